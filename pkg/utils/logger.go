package utils

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - настройка структурированного логирования (zap)
//
// Назначение:
// Единая точка инициализации logger для всего приложения.
// Фоновые циклы (bot runner, renewal check, market poller) логируют
// ошибки здесь же, пользователю они никогда не возвращаются синхронно.
//
// Конфигурация:
// - LOG_LEVEL: debug, info, warn, error
// - LOG_FORMAT: json (production) или console (development)

// InitLogger создает и настраивает zap logger.
//
// format "json" - структурированный вывод для production,
// format "console" - человекочитаемый вывод для разработки.
func InitLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "info", "":
		lvl = zapcore.InfoLevel
	case "warn", "warning":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level: %q", level)
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown log format: %q", format)
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// NopLogger возвращает logger, отбрасывающий все сообщения.
// Используется в тестах.
func NopLogger() *zap.Logger {
	return zap.NewNop()
}
