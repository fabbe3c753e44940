package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.Debug(context.Background(), "hidden")
	log.Info(WithRequestID(context.Background(), "req-1"), "entry added", zap.String("id", "01ABC"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "entry added", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "01ABC", line["id"])
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := LevelFromString(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestFromContext(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)

	FromContext(ctx).Named("inbox").Warn(ctx, "skipped file", zap.String("file", "a.docx"))

	tl.AssertLogged(t, zapcore.WarnLevel, "skipped file")
	tl.AssertField(t, "skipped file", "file", "a.docx")

	// Missing logger falls back to nop without panicking.
	FromContext(context.Background()).Info(context.Background(), "dropped")
}
