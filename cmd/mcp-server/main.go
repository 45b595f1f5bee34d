package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"cloudx/internal/app"
	"cloudx/internal/config"
	"cloudx/internal/logging"
	"cloudx/internal/mcpserver"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	// stdout carries the protocol; logs go to stderr and the rotated file.
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

	server := mcpserver.NewServer(mcpserver.NewHandlers(a.Chat, a.Memory, logger.Named("mcp")), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Scheduler.Start()
	defer a.Scheduler.Stop()

	logger.Info("mcp server running on stdio", zap.Strings("tools", []string{"chat", "remember", "recall"}))
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil && ctx.Err() == nil {
		logger.Fatal("mcp server failed", zap.Error(err))
	}
}
