// Package logger builds the zerolog loggers used by the command line tool.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	Component string
}

type ctxKey string

const ctxRunIDKey ctxKey = "run_id"

// NewRunID returns a random identifier for one run of the tool.
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID stores a run id in ctx; an empty id gets a new one.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		runID = NewRunID()
	}
	return context.WithValue(ctx, ctxRunIDKey, runID)
}

// RunID returns the run id stored in ctx, if any.
func RunID(ctx context.Context) string {
	if s, ok := ctx.Value(ctxRunIDKey).(string); ok {
		return s
	}
	return ""
}

// ParseLevel maps a level name to a zerolog level; unknown names are info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return ctx.Logger()
}

// FromContext returns a child logger with the run id of ctx applied.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	var base zerolog.Logger
	if parent == nil {
		base = zerolog.Nop()
	} else {
		base = *parent
	}
	w := base.With()
	if runID := RunID(ctx); runID != "" {
		w = w.Str("run_id", runID)
	}
	l := w.Logger()
	return &l
}
