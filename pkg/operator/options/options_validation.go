package options

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/openshift/managed-node-taint-operator/pkg/trigger"
)

func (o *Options) Validate() error {
	return multierr.Combine(
		o.validateTriggerMode(),
		o.validateConcurrency(),
		o.validateLogLevel(),
	)
}

func (o *Options) validateTriggerMode() error {
	switch o.TriggerMode {
	case trigger.ModeQueue, trigger.ModeAnnotation:
		return nil
	}
	return fmt.Errorf("trigger-mode must be %q or %q, got %q", trigger.ModeQueue, trigger.ModeAnnotation, o.TriggerMode)
}

func (o *Options) validateConcurrency() (err error) {
	if o.MaxConcurrentReconciles < 1 {
		err = multierr.Append(err, fmt.Errorf("max-concurrent-reconciles must be at least 1"))
	}
	if o.TriggerConcurrency < 1 {
		err = multierr.Append(err, fmt.Errorf("trigger-concurrency must be at least 1"))
	}
	return err
}

func (o *Options) validateLogLevel() error {
	if _, err := zapcore.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	return nil
}
