package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Log is the process-wide logger. Init must be called once at startup;
// packages that may run before Init (tests mostly) get a usable default.
var Log = slog.New(slog.NewTextHandler(os.Stdout, nil))

// Init configures the global logger with a text handler at the given level.
// Unknown or empty level strings fall back to info.
func Init(level string) {
	var lv slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}
