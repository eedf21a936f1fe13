// Package logs builds the process logger. Components receive an injected
// *slog.Logger; nothing logs through a package-level default.
package logs

import (
	"log/slog"
	"os"
	"strings"
)

// GetLoggerFromString maps a LOG_LEVEL value to a logger; unknown values
// fall back to INFO.
func GetLoggerFromString(level string) *slog.Logger {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return GetLoggerFromLevel(slog.LevelDebug)
	case "WARN":
		return GetLoggerFromLevel(slog.LevelWarn)
	case "ERROR":
		return GetLoggerFromLevel(slog.LevelError)
	default:
		return GetLoggerFromLevel(slog.LevelInfo)
	}
}

func GetLoggerFromLevel(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
