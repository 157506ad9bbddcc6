package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		debug   bool
		written bool
	}{
		{name: "debug shown at debug", level: "debug", debug: true, written: true},
		{name: "debug hidden at info", level: "info", debug: true, written: false},
		{name: "info shown by default", level: "", written: true},
		{name: "info hidden at warn", level: "WARN", written: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := Build(Config{Level: tt.level, Component: "aggregate"}, &buf)
			if tt.debug {
				l.Debug().Msg("hello")
			} else {
				l.Info().Msg("hello")
			}
			if !tt.written {
				assert.Zero(t, buf.Len())
				return
			}
			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, "hello", line["msg"])
			assert.Equal(t, "aggregate", line["component"])
			assert.Contains(t, line, "timestamp")
		})
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	parent := Build(Config{Level: "info"}, &buf)
	ctx := WithRunID(context.Background(), "run-42")
	assert.Equal(t, "run-42", RunID(ctx))

	FromContext(ctx, &parent).Info().Msg("tile")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run-42", line["run_id"])

	// a missing parent never panics
	FromContext(context.Background(), nil).Info().Msg("discarded")

	assert.NotEmpty(t, RunID(WithRunID(context.Background(), "")))
	assert.Empty(t, RunID(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" Debug "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}
