package logger

import (
	"go.uber.org/zap"

	"studymed-quiz-service/internal/config"
)

func New(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Env == "production" {
		return zap.NewProduction()
	}

	return zap.NewDevelopment()
}
