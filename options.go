package mdstore

import (
	"log/slog"

	"github.com/hupe1980/mdstore/internal/fs"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	fs               fs.FileSystem
}

// Option configures Open.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for disk traffic.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &mdstore.BasicMetricsCollector{}
//	st, _ := mdstore.Open(ctx, cfg, mdstore.WithMetricsCollector(metrics))
//	// ... use st ...
//	stats := metrics.GetStats()
//	fmt.Printf("Saves: %d, Evictions: %d\n", stats.SaveCount, stats.EvictionCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging. It takes precedence over the
// log level of the Config. Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := mdstore.NewJSONLogger(slog.LevelInfo)
//	st, _ := mdstore.Open(ctx, cfg, mdstore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// withFileSystem replaces the file system, e.g. with a fault injecting one
// in tests.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func applyOptions(cfg Config, optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		fs:               fs.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		if level, err := cfg.level(); err == nil {
			o.logger = NewTextLogger(level)
		} else {
			o.logger = NoopLogger()
		}
	}
	return o
}
