package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	appconfig "github.com/wolfman30/avito-asker/internal/config"
	conversationworker "github.com/wolfman30/avito-asker/internal/worker/conversation"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

func main() {
	envErr := godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}
	logger.Info("starting avito-asker",
		"env", cfg.Env,
		"form", cfg.FormName,
		"lead_store", cfg.LeadStore,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := conversationworker.Run(ctx, cfg, logger); err != nil {
		logger.Error("avito-asker stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
}
