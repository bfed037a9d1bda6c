package options

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/openshift/managed-node-taint-operator/pkg/trigger"
	"github.com/openshift/managed-node-taint-operator/pkg/utils/env"
)

// Options for running the operator
type Options struct {
	*flag.FlagSet

	MetricsBindAddress      string
	HealthProbeBindAddress  string
	EnableLeaderElection    bool
	TriggerMode             string
	MaxConcurrentReconciles int
	TriggerConcurrency      int
	LogLevel                string
	LogDevelopment          bool
	ConfigFile              string
}

// fileOptions is the on-disk form. Fields left out of the file keep their
// flag or environment value.
type fileOptions struct {
	MetricsBindAddress      *string `toml:"metricsBindAddress"`
	HealthProbeBindAddress  *string `toml:"healthProbeBindAddress"`
	EnableLeaderElection    *bool   `toml:"leaderElect"`
	TriggerMode             *string `toml:"triggerMode"`
	MaxConcurrentReconciles *int    `toml:"maxConcurrentReconciles"`
	TriggerConcurrency      *int    `toml:"triggerConcurrency"`
	LogLevel                *string `toml:"logLevel"`
	LogDevelopment          *bool   `toml:"logDevelopment"`
}

// New creates an Options struct and registers CLI flags and environment variables to fill-in the Options struct fields
func New() *Options {
	opts := &Options{}
	f := flag.NewFlagSet("managed-node-taint-operator", flag.ContinueOnError)
	opts.FlagSet = f

	f.StringVar(&opts.MetricsBindAddress, "metrics-bind-address", env.String("METRICS_BIND_ADDRESS", ":8080"), "The address the metric endpoint binds to.")
	f.StringVar(&opts.HealthProbeBindAddress, "health-probe-bind-address", env.String("HEALTH_PROBE_BIND_ADDRESS", ":8081"), "The address the probe endpoint binds to.")
	f.BoolVar(&opts.EnableLeaderElection, "leader-elect", env.Bool("LEADER_ELECT", false), "Enable leader election for controller manager. Enabling this will ensure there is only one active controller manager.")
	f.StringVar(&opts.TriggerMode, "trigger-mode", env.String("TRIGGER_MODE", trigger.ModeQueue), "How nodes are re-evaluated after a rule change: queue or annotation.")
	f.IntVar(&opts.MaxConcurrentReconciles, "max-concurrent-reconciles", env.Int("MAX_CONCURRENT_RECONCILES", 5), "The number of nodes reconciled in parallel.")
	f.IntVar(&opts.TriggerConcurrency, "trigger-concurrency", env.Int("TRIGGER_CONCURRENCY", trigger.DefaultConcurrency), "The number of nodes annotated in parallel in annotation trigger mode.")
	f.StringVar(&opts.LogLevel, "log-level", env.String("LOG_LEVEL", "info"), "Minimum log level: debug, info, warn or error.")
	f.BoolVar(&opts.LogDevelopment, "log-development", env.Bool("LOG_DEVELOPMENT", false), "Log human readable console output instead of JSON.")
	f.StringVar(&opts.ConfigFile, "config", env.String("CONFIG_FILE", ""), "Optional TOML file with option values. Flags given on the command line take precedence.")
	return opts
}

// Parse reads flags from args, then the config file if one is named, and validates the result.
func (o *Options) Parse(args []string) error {
	if err := o.FlagSet.Parse(args); err != nil {
		return err
	}
	if o.ConfigFile != "" {
		if err := o.loadFile(o.ConfigFile); err != nil {
			return err
		}
	}
	return o.Validate()
}

// MustParse reads the user passed flags, environment variables, and default values.
// Options are validated and panics if an error is returned
func (o *Options) MustParse() *Options {
	err := o.Parse(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		panic(err)
	}
	return o
}

func (o *Options) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	fo := fileOptions{}
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&fo); err != nil {
		return fmt.Errorf("decoding config file %s: %w", path, err)
	}

	set := map[string]bool{}
	o.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	apply(set["metrics-bind-address"], fo.MetricsBindAddress, &o.MetricsBindAddress)
	apply(set["health-probe-bind-address"], fo.HealthProbeBindAddress, &o.HealthProbeBindAddress)
	apply(set["leader-elect"], fo.EnableLeaderElection, &o.EnableLeaderElection)
	apply(set["trigger-mode"], fo.TriggerMode, &o.TriggerMode)
	apply(set["max-concurrent-reconciles"], fo.MaxConcurrentReconciles, &o.MaxConcurrentReconciles)
	apply(set["trigger-concurrency"], fo.TriggerConcurrency, &o.TriggerConcurrency)
	apply(set["log-level"], fo.LogLevel, &o.LogLevel)
	apply(set["log-development"], fo.LogDevelopment, &o.LogDevelopment)
	return nil
}

func apply[T any](explicit bool, from *T, to *T) {
	if explicit || from == nil {
		return
	}
	*to = *from
}
