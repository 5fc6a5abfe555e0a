package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init installs the process-wide logger. The level comes from
// GRIDCALL_LOG_LEVEL; the default only surfaces errors so log lines never
// bleed into the board view.
func Init() {
	level := slog.LevelError

	switch strings.ToLower(os.Getenv("GRIDCALL_LOG_LEVEL")) {
	case "debug", "dev":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	}

	slog.SetDefault(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	))
}
