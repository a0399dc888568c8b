package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestMaskRedactsCredentials(t *testing.T) {
	in := []any{"api_key_env", "GEMINI_API_KEY", "model", "gemini-2.5-pro", "Authorization", "Bearer x", "dangling"}
	out := mask(in)
	require.Len(t, out, 7)
	assert.Equal(t, "[REDACTED]", out[1])
	assert.Equal(t, "gemini-2.5-pro", out[3])
	assert.Equal(t, "[REDACTED]", out[5])
	assert.Equal(t, "dangling", out[6])
	assert.Equal(t, "GEMINI_API_KEY", in[1], "input is not modified")
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	l, err := New("development", "loud")
	require.NoError(t, err)
	core := l.sugar.Desugar().Core()
	assert.True(t, core.Enabled(zapcore.InfoLevel))
	assert.False(t, core.Enabled(zapcore.DebugLevel))

	l, err = New("production", "WARN")
	require.NoError(t, err)
	assert.False(t, l.sugar.Desugar().Core().Enabled(zapcore.InfoLevel))
}
