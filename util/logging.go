package util

import (
	"io"
	"log/slog"
	"strings"

	"github.com/MatusOllah/slogcolor"
)

// ParseLogLevel maps a config value to a slog level. Unknown values are info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogging installs a colored slog handler writing to w as the default logger.
func SetupLogging(w io.Writer, level string) *slog.Logger {
	opts := *slogcolor.DefaultOptions
	opts.Level = ParseLogLevel(level)
	logger := slog.New(slogcolor.NewHandler(w, &opts))
	slog.SetDefault(logger)
	return logger
}
