package logging

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn"}, &buf)

	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "dealpop.log")
	logger := New(Config{Level: "info", File: true, FilePath: path, MaxSize: 1}, nil)
	logger.Info().Msg("to file")

	assert.FileExists(t, path)
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(zerolog.New(&buf), "store")

	ctx := WithLogger(context.Background(), logger)
	ctxLogger := FromContext(ctx)
	ctxLogger.Info().Msg("hello")
	require.Contains(t, buf.String(), `"component":"store"`)

	// missing logger falls back to no-op
	noop := FromContext(context.Background())
	noop.Info().Msg("dropped")
}
