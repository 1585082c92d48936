package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel определяет уровень логирования из переменной окружения.
// Возможные значения: DEBUG, INFO, WARN, ERROR
// По умолчанию: INFO
func LogLevel() slog.Level {
	level := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
//
// debug == true (ключ debug в конфигурации) включает DEBUG независимо от LOG_LEVEL.
// Логи пишутся в stderr: stdout занят результатами команд.
func SetupLogger(debug bool) *slog.Logger {
	logger := NewLogger(os.Stderr, os.Getenv("LOG_FORMAT"), debug)
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт логгер без установки глобального.
func NewLogger(w io.Writer, format string, debug bool) *slog.Logger {
	level := LogLevel()
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// WithTaskID возвращает логгер с добавленным task_id.
func WithTaskID(logger *slog.Logger, taskID string) *slog.Logger {
	return logger.With("task_id", taskID)
}

// WithDBMS возвращает логгер с добавленными dbms и db.
func WithDBMS(logger *slog.Logger, dbms, db string) *slog.Logger {
	return logger.With("dbms", dbms, "db", db)
}

// WithWorkerID возвращает логгер с добавленным worker_id.
func WithWorkerID(logger *slog.Logger, workerID string) *slog.Logger {
	return logger.With("worker_id", workerID)
}
