package pcago

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with pcago-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRank adds a rank field to the logger. Engines tag their logger at
// construction, so interleaved ranks stay distinguishable on a shared
// handler.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{
		Logger: l.Logger.With("rank", rank),
	}
}

// detailLevel is the level for per-operation progress. Verbose raises it
// from Debug to Info.
func detailLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// LogFitStart logs the beginning of a distributed fit.
func (l *Logger) LogFitStart(ctx context.Context, verbose bool, algorithm string, size, rows, cols, components int) {
	l.Log(ctx, detailLevel(verbose), "fit started",
		"algorithm", algorithm,
		"size", size,
		"rows", rows,
		"cols", cols,
		"components", components,
	)
}

// LogFitDone logs the outcome of a distributed fit.
func (l *Logger) LogFitDone(ctx context.Context, verbose bool, algorithm string, components int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "fit failed",
			"algorithm", algorithm,
			"error", err,
		)
	} else {
		l.Log(ctx, detailLevel(verbose), "fit completed",
			"algorithm", algorithm,
			"components", components,
			"duration", duration,
		)
	}
}

// LogCollective logs one collective exchange.
func (l *Logger) LogCollective(ctx context.Context, verbose bool, op string, bytes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "collective failed",
			"op", op,
			"bytes", bytes,
			"error", err,
		)
	} else {
		l.Log(ctx, detailLevel(verbose), "collective completed",
			"op", op,
			"bytes", bytes,
		)
	}
}

// LogSolve logs the eigensolver stage.
func (l *Logger) LogSolve(ctx context.Context, verbose bool, algorithm string, dim int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "solve failed",
			"algorithm", algorithm,
			"dim", dim,
			"error", err,
		)
	} else {
		l.Log(ctx, detailLevel(verbose), "solve completed",
			"algorithm", algorithm,
			"dim", dim,
			"duration", duration,
		)
	}
}

// LogProjection logs a transform or inverse-transform pass.
func (l *Logger) LogProjection(ctx context.Context, verbose bool, direction string, rows int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "projection failed",
			"direction", direction,
			"rows", rows,
			"error", err,
		)
	} else {
		l.Log(ctx, detailLevel(verbose), "projection completed",
			"direction", direction,
			"rows", rows,
			"duration", duration,
		)
	}
}
