// Package logger создаёт zap-логер приложения.
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// NewZapLog создаёт production-логер с указанным уровнем логирования.
func NewZapLog(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl

	zl, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return zl, nil
}
