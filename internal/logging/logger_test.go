package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"", "json", "text", "console"} {
		logger, err := NewLogger("debug", format)
		require.NoError(t, err, format)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), format)
	}

	logger, err := NewLogger("", "json")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewLoggerRejectsBadInput(t *testing.T) {
	_, err := NewLogger("loud", "json")
	assert.Error(t, err)
	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}

func TestStateFields(t *testing.T) {
	s := mood.NewNeutral("u1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fields := StateFields(s)
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	assert.Contains(t, keys, "user_id")
	assert.Contains(t, keys, "conflict")
	assert.Contains(t, keys, "progress")
}
