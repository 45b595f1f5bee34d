package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"cloudx/internal/app"
	"cloudx/internal/config"
	"cloudx/internal/logging"
	"cloudx/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, FilePath: cfg.AppLogPath})
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.Build(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	bot, err := telegram.New(cfg.TelegramBotToken, a.Chat, cfg.TelegramParseMode, logger.Named("telegram"))
	if err != nil {
		logger.Fatal("failed to create bot", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Scheduler.Start()
	defer a.Scheduler.Stop()

	bot.Start(ctx)
}
