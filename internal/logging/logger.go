// Package logging provides the structured logger shared by Forge components.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/born-ml/forge/internal/envconfig"
)

// Logger wraps slog.Logger with Forge-specific helpers.
// Field names are kept consistent across packages: "model", "path",
// "epoch", "artifact", "error".
type Logger struct {
	*slog.Logger
}

// New creates a Logger with the given handler.
// If handler is nil, a text handler on stderr at the FORGE_DEBUG level is used.
func New(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: envconfig.LogLevel(),
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewText creates a Logger that writes human-readable text to w.
func NewText(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))}
}

// NewJSON creates a Logger that writes JSON records to w.
func NewJSON(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))}
}

// Noop creates a Logger that discards all output.
func Noop() *Logger {
	return NewText(io.Discard, slog.Level(1000))
}

// Default returns a Logger using the FORGE_DEBUG level on stderr.
func Default() *Logger {
	return New(nil)
}

// WithModel adds the model name field.
func (l *Logger) WithModel(name string) *Logger {
	return &Logger{Logger: l.Logger.With("model", name)}
}

// WithComponent adds a component field, e.g. "trainer" or "predictor".
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// LogLoad logs a model load.
func (l *Logger) LogLoad(ctx context.Context, path string, epoch int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "model load failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "model loaded",
			"path", path,
			"epoch", epoch,
		)
	}
}

// LogSave logs a model save.
func (l *Logger) LogSave(ctx context.Context, path string, epoch int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "model save failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "model saved",
			"path", path,
			"epoch", epoch,
		)
	}
}

// LogArtifact logs the first load of an artifact.
func (l *Logger) LogArtifact(ctx context.Context, name string, err error) {
	if err != nil {
		l.WarnContext(ctx, "artifact load failed",
			"artifact", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "artifact loaded",
			"artifact", name,
		)
	}
}

// LogEpoch logs the end of a training epoch.
func (l *Logger) LogEpoch(ctx context.Context, epoch int, batches int, loss float32) {
	l.InfoContext(ctx, "epoch completed",
		"epoch", epoch,
		"batches", batches,
		"loss", loss,
	)
}
