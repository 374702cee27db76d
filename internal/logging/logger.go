package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

// #region logger
// NewLogger builds a zap logger. format is "json" (production encoder) or
// "text" (development console encoder); an empty level means info.
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zapcore.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	var config zap.Config
	switch format {
	case "", "json":
		config = zap.NewProductionConfig()
	case "text", "console":
		config = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("log format %q: want json or text", format)
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// StateFields renders the parts of a state worth a log line.
func StateFields(s mood.EmotionalState) []zap.Field {
	return []zap.Field{
		zap.String("user_id", s.UserID),
		zap.String("state_id", s.StateID),
		zap.String("conflict", string(s.ConflictState)),
		zap.Float64("arousal", s.Arousal),
		zap.Float64("valence", s.Valence),
		zap.Float64("dominance", s.Dominance),
		zap.Float64("intimacy", s.Intimacy),
		zap.Int("ignored", s.IgnoredMessageCount),
		zap.Float64("progress", s.RecoveryProgress()),
	}
}

// #endregion logger
