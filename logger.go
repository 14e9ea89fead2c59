package mdstore

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with mdstore-specific context.
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
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(1000), // Unreachable level
		})),
	}
}

// WithSession adds the session id to every record.
func (l *Logger) WithSession(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("session", id),
	}
}

// WithBox adds a box id field to the logger.
func (l *Logger) WithBox(id uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("box", id),
	}
}

// LogOpen logs opening a store.
func (l *Logger) LogOpen(ctx context.Context, dir string, layout string, fileBacked bool) {
	l.InfoContext(ctx, "store opened",
		"dir", dir,
		"layout", layout,
		"file_backed", fileBacked,
	)
}

// LogFlush logs a flush of the disk buffer.
func (l *Logger) LogFlush(ctx context.Context, boxes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"boxes", boxes,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "flush completed",
			"boxes", boxes,
		)
	}
}

// LogManifest logs a manifest save.
func (l *Logger) LogManifest(ctx context.Context, boxes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "manifest save failed",
			"boxes", boxes,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "manifest saved",
			"boxes", boxes,
		)
	}
}

// LogRestore logs restoring boxes from a manifest.
func (l *Logger) LogRestore(ctx context.Context, boxes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"boxes_restored", boxes,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "restore completed",
			"boxes_restored", boxes,
		)
	}
}

// LogExport logs a table export.
func (l *Logger) LogExport(ctx context.Context, boxes int, rows uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "export failed",
			"boxes", boxes,
			"rows", rows,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "export completed",
			"boxes", boxes,
			"rows", rows,
		)
	}
}

// LogImport logs a table import.
func (l *Logger) LogImport(ctx context.Context, boxes int, rows uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "import failed",
			"boxes", boxes,
			"rows", rows,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "import completed",
			"boxes", boxes,
			"rows", rows,
		)
	}
}
