package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Levels(t *testing.T) {
	for _, tt := range []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	} {
		logger := NewLogger(LogConfig{Level: tt.level, Format: "json"})
		require.NotNil(t, logger, tt.level)
		assert.True(t, logger.Core().Enabled(tt.want), tt.level)
		if tt.want != zapcore.DebugLevel {
			assert.False(t, logger.Core().Enabled(tt.want-1), tt.level)
		}
	}
}

func TestNewLogger_NeverNil(t *testing.T) {
	assert.NotNil(t, NewLogger(LogConfig{}))
	assert.NotNil(t, NewLogger(LogConfig{Format: "console", Level: "debug"}))
	assert.NotNil(t, NewLogger(LogConfig{OutputPaths: []string{"stdout"}}))
}
