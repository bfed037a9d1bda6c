package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	controllerruntimezap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// New builds a zap backed logr.Logger at the given level.
func New(level string, development bool) (logr.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Discard(), err
	}
	logger := controllerruntimezap.NewRaw(
		controllerruntimezap.UseDevMode(development),
		controllerruntimezap.Level(zap.NewAtomicLevelAt(lvl)),
	)
	return zapr.NewLogger(logger), nil
}

// Setup installs the logger for controller-runtime and for klog, so that
// klog.InfoS and friends end up in the same stream.
func Setup(level string, development bool) (logr.Logger, error) {
	logger, err := New(level, development)
	if err != nil {
		return logger, err
	}
	ctrl.SetLogger(logger)
	klog.SetLogger(logger)
	return logger, nil
}
