// Package httpapi exposes the chat orchestrator and the memory store over
// HTTP.
package httpapi

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"cloudx/internal/chat"
	"cloudx/internal/memory"
	"cloudx/internal/metrics"
	"cloudx/internal/storage"
)

// SessionHeader carries the session token in both directions.
const SessionHeader = "X-Session-Token"

type Turner interface {
	Turn(ctx context.Context, token, message string) (chat.Reply, error)
}

type MemoryStore interface {
	Append(content, description string) (memory.Entry, error)
	Search(query string, topK int) iter.Seq[string]
}

type Options struct {
	Chat           Turner
	Memory         MemoryStore
	Recorder       storage.Recorder
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	AllowedOrigins []string
}

type Server struct {
	opts     Options
	logger   *zap.Logger
	validate *validator.Validate
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{opts: opts, logger: logger, validate: validator.New()}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", SessionHeader},
		ExposedHeaders: []string{SessionHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/memory", s.handleMemoryAppend)
		r.Get("/memory/search", s.handleMemorySearch)
		r.Get("/stats", s.handleStats)
	})
	// the bundled web client posts to /chat
	r.Post("/chat", s.handleChat)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
