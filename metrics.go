package pcago

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    fitCounter   prometheus.Counter
//	    fitHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordFit(duration time.Duration, err error) {
//	    p.fitCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordFit is called after each fit or fit-transform operation.
	// duration is the total time taken, err is nil if successful.
	RecordFit(duration time.Duration, err error)

	// RecordTransform is called after each transform pass.
	// rows is the number of local rows projected.
	RecordTransform(rows int, duration time.Duration, err error)

	// RecordInverseTransform is called after each inverse-transform pass.
	RecordInverseTransform(rows int, duration time.Duration, err error)

	// RecordCollective is called after each collective exchange with the
	// payload size this rank contributed.
	RecordCollective(op string, bytes int, duration time.Duration)

	// RecordSolve is called after the eigensolver stage of a fit.
	RecordSolve(algorithm string, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordFit(time.Duration, error)                   {}
func (NoopMetricsCollector) RecordTransform(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordInverseTransform(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordCollective(string, int, time.Duration)      {}
func (NoopMetricsCollector) RecordSolve(string, time.Duration, error)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	FitCount        atomic.Int64
	FitErrors       atomic.Int64
	FitTotalNanos   atomic.Int64
	TransformCount  atomic.Int64
	TransformRows   atomic.Int64
	TransformErrors atomic.Int64
	InverseCount    atomic.Int64
	InverseRows     atomic.Int64
	InverseErrors   atomic.Int64
	CollectiveCount atomic.Int64
	CollectiveBytes atomic.Int64
	SolveCount      atomic.Int64
	SolveErrors     atomic.Int64
	SolveTotalNanos atomic.Int64
}

// RecordFit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFit(duration time.Duration, err error) {
	b.FitCount.Add(1)
	b.FitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FitErrors.Add(1)
	}
}

// RecordTransform implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTransform(rows int, duration time.Duration, err error) {
	b.TransformCount.Add(1)
	b.TransformRows.Add(int64(rows))
	if err != nil {
		b.TransformErrors.Add(1)
	}
}

// RecordInverseTransform implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInverseTransform(rows int, duration time.Duration, err error) {
	b.InverseCount.Add(1)
	b.InverseRows.Add(int64(rows))
	if err != nil {
		b.InverseErrors.Add(1)
	}
}

// RecordCollective implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCollective(op string, bytes int, duration time.Duration) {
	b.CollectiveCount.Add(1)
	b.CollectiveBytes.Add(int64(bytes))
}

// RecordSolve implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSolve(algorithm string, duration time.Duration, err error) {
	b.SolveCount.Add(1)
	b.SolveTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SolveErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		FitCount:        b.FitCount.Load(),
		FitErrors:       b.FitErrors.Load(),
		FitAvgNanos:     b.getAvgFitNanos(),
		TransformCount:  b.TransformCount.Load(),
		TransformRows:   b.TransformRows.Load(),
		TransformErrors: b.TransformErrors.Load(),
		InverseCount:    b.InverseCount.Load(),
		InverseRows:     b.InverseRows.Load(),
		InverseErrors:   b.InverseErrors.Load(),
		CollectiveCount: b.CollectiveCount.Load(),
		CollectiveBytes: b.CollectiveBytes.Load(),
		SolveCount:      b.SolveCount.Load(),
		SolveErrors:     b.SolveErrors.Load(),
		SolveAvgNanos:   b.getAvgSolveNanos(),
	}
}

func (b *BasicMetricsCollector) getAvgFitNanos() int64 {
	count := b.FitCount.Load()
	if count == 0 {
		return 0
	}
	return b.FitTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgSolveNanos() int64 {
	count := b.SolveCount.Load()
	if count == 0 {
		return 0
	}
	return b.SolveTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	FitCount        int64
	FitErrors       int64
	FitAvgNanos     int64
	TransformCount  int64
	TransformRows   int64
	TransformErrors int64
	InverseCount    int64
	InverseRows     int64
	InverseErrors   int64
	CollectiveCount int64
	CollectiveBytes int64
	SolveCount      int64
	SolveErrors     int64
	SolveAvgNanos   int64
}
