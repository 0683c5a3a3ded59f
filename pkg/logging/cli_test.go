package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]struct {
		level string
		want  slog.Level
	}{
		"debug":        {level: "debug", want: slog.LevelDebug},
		"info":         {level: "info", want: slog.LevelInfo},
		"warn":         {level: "warn", want: slog.LevelWarn},
		"warning":      {level: "warning", want: slog.LevelWarn},
		"error":        {level: "error", want: slog.LevelError},
		"mixed case":   {level: "DEBUG", want: slog.LevelDebug},
		"padded":       {level: "  warn ", want: slog.LevelWarn},
		"unrecognized": {level: "trace", want: slog.LevelInfo},
		"empty":        {level: "", want: slog.LevelInfo},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLogLevel(tc.level))
		})
	}
}

func TestCLIHandler_Enabled(t *testing.T) {
	h := NewCLIHandler(&bytes.Buffer{}, slog.LevelWarn)

	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestCLIHandler_Output(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCLIHandler(&buf, slog.LevelDebug))

	logger.Info("building features", "customers", 42)

	out := buf.String()
	assert.Contains(t, out, "building features")
	assert.Contains(t, out, "customers=42")
	assert.Contains(t, out, colorGreen)
}

func TestCLIHandler_LevelColors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCLIHandler(&buf, slog.LevelDebug))

	logger.Warn("drift detected")
	assert.Contains(t, buf.String(), colorYellow)

	buf.Reset()
	logger.Error("it broke")
	assert.Contains(t, buf.String(), colorRed)
}

func TestCLIHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCLIHandler(&buf, slog.LevelDebug))

	logger.With("run", "abc").Info("scored", "rows", 7)

	out := buf.String()
	assert.Contains(t, out, "run=abc")
	assert.Contains(t, out, "rows=7")
}

func TestCLIHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCLIHandler(&buf, slog.LevelDebug))

	logger.WithGroup("train").Info("done")

	assert.Contains(t, buf.String(), "[train] done")
}
