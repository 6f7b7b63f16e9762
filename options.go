package pcago

import (
	"log/slog"

	"github.com/mnmg/pcago/resource"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	workers          int
	controller       *resource.Controller
	consistencyCheck bool
	consistencyTol   float64
}

// Option configures an Engine at construction time. Per-call algorithm
// settings live in Params instead.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := pcago.NewJSONLogger(slog.LevelInfo)
//	eng, _ := pcago.New[float64](c, desc, pcago.WithLogger(logger))
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

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &pcago.BasicMetricsCollector{}
//	eng, _ := pcago.New[float64](c, desc, pcago.WithMetricsCollector(metrics))
//	// ... fit, transform ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithWorkers bounds the projection worker pool. Values below one fall back
// to GOMAXPROCS.
func WithWorkers(workers int) Option {
	return func(o *options) {
		o.workers = workers
	}
}

// WithResourceController attaches a resource controller gating staging
// memory and metering collective payloads. Nil means unlimited.
func WithResourceController(ctrl *resource.Controller) Option {
	return func(o *options) {
		o.controller = ctrl
	}
}

// WithConsistencyCheck enables the post-fit guard: rank 0 broadcasts its
// components and every rank verifies agreement within tol. Divergence fails
// the fit with a communication-class error. Off by default; it costs one
// extra broadcast per fit.
func WithConsistencyCheck(tol float64) Option {
	return func(o *options) {
		o.consistencyCheck = true
		o.consistencyTol = tol
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
