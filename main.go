package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	svc "github.com/krshsl/mensetsu/backend/services"
)

var logOutput io.Writer = os.Stdout

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig installs the JSON logger before reading configuration so that
// warnings raised while loading use the same handler, then reapplies the
// configured level.
func loadConfig() *svc.Config {
	setupLogger(os.Getenv("LOG_LEVEL"))
	config := svc.LoadConfig()
	setupLogger(config.Log.Level)
	return config
}

// setupLogger installs a JSON slog handler at the configured level.
func setupLogger(level string) {
	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
