// Package app wires the configured components into a ready orchestrator.
// Every binary builds its dependencies through it.
package app

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"cloudx/internal/chat"
	"cloudx/internal/config"
	"cloudx/internal/llm"
	"cloudx/internal/memory"
	"cloudx/internal/metrics"
	"cloudx/internal/ratelimit"
	"cloudx/internal/scheduler"
	"cloudx/internal/search"
	"cloudx/internal/session"
	"cloudx/internal/storage"
)

const sweepJob = "session-sweep"

type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Chat      *chat.Orchestrator
	Sessions  *session.Registry
	Memory    *memory.Store
	Recorder  *storage.FileRecorder
	Metrics   *metrics.Metrics
	Scheduler *scheduler.Scheduler
}

// Build constructs every component from cfg. The scheduler is registered
// but not started.
func Build(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider))
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	store, err := memory.NewStore(cfg.MemoryFilePath, logger.Named("memory"))
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}

	rec, err := storage.NewFileRecorder(cfg.TurnLogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open turn log: %w", err)
	}

	m := metrics.New()
	searcher := newSearcher(cfg, m, logger.Named("search"))
	sessions := session.NewRegistry(SystemPrompt(cfg.SystemPromptPath, logger))

	orch := chat.New(chat.Config{
		Sessions:           sessions,
		Limiter:            ratelimit.New(cfg.RateLimitWindow, cfg.MaxRequests),
		Memory:             store,
		LLM:                client,
		Search:             searcher,
		Recorder:           rec,
		Metrics:            m,
		Logger:             logger.Named("chat"),
		SearchResultsCount: cfg.SearchResultsCount,
		SelfRefinePasses:   cfg.SelfRefinePasses,
	})

	sched := scheduler.New(logger.Named("scheduler"))
	sweep := scheduler.SessionSweeper(sessions, cfg.SessionIdleTTL, logger.Named("sessions"),
		func(n int) { m.Sessions.Set(float64(n)) })
	if err := sched.Add(sweepJob, cfg.SessionSweepSpec, sweep); err != nil {
		_ = rec.Close()
		return nil, fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	logger.Info("components ready",
		zap.String("provider", string(cfg.LLMProvider)),
		zap.String("model", cfg.OpenAIModel),
		zap.Bool("serpapi", cfg.SerpAPIKey != ""),
		zap.String("memory_file", cfg.MemoryFilePath),
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Chat:      orch,
		Sessions:  sessions,
		Memory:    store,
		Recorder:  rec,
		Metrics:   m,
		Scheduler: sched,
	}, nil
}

// newSearcher uses SerpAPI when a key is configured and DuckDuckGo scraping
// otherwise or as the fallback.
func newSearcher(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *search.Fallback {
	var primary search.Provider
	if cfg.SerpAPIKey != "" {
		primary = search.NewSerpAPI(cfg.SerpAPIKey, logger)
	}
	f := search.NewFallback(primary, search.NewDuckDuckGo(), logger)
	f.Observe = m.ObserveSearch
	return f
}

// SystemPrompt reads the prompt from path, falling back to the built-in
// CloudX prompt when path is empty, missing or blank.
func SystemPrompt(path string, logger *zap.Logger) string {
	if path == "" {
		return chat.DefaultSystemPrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if logger == nil {
			logger = zap.NewNop()
		}
		logger.Warn("system prompt file unreadable, using default", zap.String("path", path), zap.Error(err))
		return chat.DefaultSystemPrompt
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return chat.DefaultSystemPrompt
}

// Close releases the turn log. The scheduler is stopped by whoever started it.
func (a *App) Close() error {
	return a.Recorder.Close()
}
