package driver

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/symphony233/vamanastream/vamana"
)

// Logger wraps slog.Logger with the streaming driver's structured fields:
// a thin struct around *slog.Logger with domain-specific Log* helpers
// layered on top of the plain key-value API.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler falls
// back to a text handler on stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that writes JSON-formatted records to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NewTextLogger creates a Logger that writes human-readable records to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NoopLogger discards every record, for callers that don't want driver
// output (e.g. tests).
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(1000)}))}
}

// LogBuild logs the initial batch build.
func (l *Logger) LogBuild(ctx context.Context, points int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "initial build failed", "points", points, "error", err)
		return
	}
	l.InfoContext(ctx, "initial build completed",
		"points", points,
		"elapsed_seconds", elapsed.Seconds(),
		"points_per_second", pointsPerSecond(points, elapsed),
	)
}

// LogCheckpoint logs one checkpoint's insert pass.
func (l *Logger) LogCheckpoint(ctx context.Context, start, end int, elapsed time.Duration, threads int) {
	n := end - start
	l.InfoContext(ctx, "checkpoint inserted",
		"start", start,
		"end", end,
		"elapsed_seconds", elapsed.Seconds(),
		"points_per_second", pointsPerSecond(n, elapsed),
		"points_per_second_per_thread", pointsPerSecond(n, elapsed)/float64(max(threads, 1)),
	)
}

// LogConsolidate logs a completed consolidation pass.
func (l *Logger) LogConsolidate(ctx context.Context, report vamana.Report, deleted int, threads int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "consolidation failed", "error", err)
		return
	}
	rate := pointsPerSecond(deleted, report.Time)
	l.InfoContext(ctx, "consolidation completed",
		"active_points", report.ActivePoints,
		"max_points", report.MaxPoints,
		"empty_slots", report.EmptySlots,
		"slots_released", report.SlotsReleased,
		"delete_set_size", report.DeleteSetSize,
		"points_per_second", rate,
		"points_per_second_per_thread", rate/float64(max(threads, 1)),
	)
}

// LogSnapshot logs a completed (or failed) snapshot write.
func (l *Logger) LogSnapshot(ctx context.Context, dir string, elapsed time.Duration, points int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed", "dir", dir, "error", err)
		return
	}
	l.InfoContext(ctx, "snapshot saved",
		"dir", dir,
		"points", points,
		"elapsed_seconds", elapsed.Seconds(),
		"points_per_second", pointsPerSecond(points, elapsed),
	)
}

func pointsPerSecond(n int, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(n) / seconds
}

