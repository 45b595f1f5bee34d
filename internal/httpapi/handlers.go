package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"cloudx/internal/analytics"
	"cloudx/internal/chat"
	"cloudx/internal/llm"
	"cloudx/internal/memory"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply        string `json:"reply"`
	SessionToken string `json:"session_token"`
}

type errorResponse struct {
	Error        string `json:"error"`
	SessionToken string `json:"session_token,omitempty"`
}

type memoryRequest struct {
	Content     string `json:"content" validate:"required,max=8000"`
	Description string `json:"description" validate:"max=500"`
}

type searchResponse struct {
	Results []string `json:"results"`
}

const maxBodyBytes = 1 << 20

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return
	}

	reply, err := s.opts.Chat.Turn(r.Context(), r.Header.Get(SessionHeader), req.Message)
	w.Header().Set(SessionHeader, reply.SessionToken)

	var ce *llm.CompletionError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, chatResponse{Reply: reply.Text, SessionToken: reply.SessionToken})
	case errors.Is(err, chat.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Rate limit reached. Try again later.", SessionToken: reply.SessionToken})
	case errors.Is(err, chat.ErrEmptyMessage):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Empty message", SessionToken: reply.SessionToken})
	case errors.As(err, &ce):
		s.logger.Error("completion failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "Model service unavailable. Try again later.", SessionToken: reply.SessionToken})
	default:
		s.logger.Error("chat turn failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal error", SessionToken: reply.SessionToken})
	}
}

func (s *Server) handleMemoryAppend(w http.ResponseWriter, r *http.Request) {
	var req memoryRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(err)})
		return
	}

	entry, err := s.opts.Memory.Append(req.Content, req.Description)
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveMemoryAppend(err)
	}
	var se *memory.StorageError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, entry)
	case errors.Is(err, memory.ErrEmptyContent):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "content is required"})
	case errors.As(err, &se):
		s.logger.Error("memory append failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Could not store memory entry"})
	default:
		s.logger.Error("memory append failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal error"})
	}
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	k := 3
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 50 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "k must be between 1 and 50"})
			return
		}
		k = n
	}
	results := slices.Collect(s.opts.Memory.Search(q, k))
	if results == nil {
		results = []string{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.opts.Recorder == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "turn log disabled"})
		return
	}
	day := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
			return
		}
		day = d
	}

	from, to := analytics.DayBounds(day)
	events, err := s.opts.Recorder.Between(from, to)
	if err != nil {
		s.logger.Error("load turn log", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Could not read turn log"})
		return
	}
	stats := analytics.AnalyzeDailyLogs(events, day)
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(stats.GenerateReportSummary()))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
