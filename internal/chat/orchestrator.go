// Package chat runs a single conversation turn: memory retrieval, the
// primary completion, an optional model-requested web search and optional
// self-refine passes for technical questions.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"cloudx/internal/llm"
	"cloudx/internal/metrics"
	"cloudx/internal/ratelimit"
	"cloudx/internal/search"
	"cloudx/internal/session"
	"cloudx/internal/storage"
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrRateLimited  = errors.New("rate limit reached")
)

const (
	stageGenerate = "generate"
	stageResearch = "research"
	stageRefine   = "refine"
)

// Memory is the read side of the memory store.
type Memory interface {
	Search(query string, topK int) iter.Seq[string]
}

type Config struct {
	Sessions *session.Registry
	Limiter  *ratelimit.Limiter
	Memory   Memory
	LLM      llm.Client
	Search   search.Searcher

	// Optional collaborators.
	Recorder storage.Recorder
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	MemoryTopK         int
	SearchResultsCount int
	SelfRefinePasses   int
}

type Orchestrator struct {
	cfg    Config
	logger *zap.Logger
}

// Reply is the outcome of a turn. SessionToken is set even when the turn fails.
type Reply struct {
	Text          string
	SessionToken  string
	ResearchQuery string
	Researched    bool
	RefinePasses  int
	MemoryHits    int
}

func New(cfg Config) *Orchestrator {
	if cfg.MemoryTopK <= 0 {
		cfg.MemoryTopK = 3
	}
	if cfg.SearchResultsCount <= 0 {
		cfg.SearchResultsCount = 5
	}
	if cfg.SelfRefinePasses < 0 {
		cfg.SelfRefinePasses = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

// Sessions exposes the registry the orchestrator resolves tokens against.
func (o *Orchestrator) Sessions() *session.Registry { return o.cfg.Sessions }

// Turn answers message within the session identified by token, minting a
// new session when token is empty or unknown. A completion failure aborts
// the turn; messages appended before the failure stay in the transcript.
func (o *Orchestrator) Turn(ctx context.Context, token, message string) (Reply, error) {
	start := time.Now()
	token, sess := o.cfg.Sessions.Resolve(token)
	reply := Reply{SessionToken: token}

	// Admission does not wait for a turn already running on the session.
	if !o.cfg.Limiter.Admit(sess.Window()) {
		o.observeTurn("rate_limited", start)
		return reply, ErrRateLimited
	}

	sess.BeginTurn()
	defer sess.EndTurn()

	msg := strings.TrimSpace(message)
	if msg == "" {
		o.observeTurn("invalid", start)
		return reply, ErrEmptyMessage
	}

	err := o.run(ctx, sess, msg, &reply)
	o.record(token, msg, reply, err)
	if err != nil {
		o.observeTurn("error", start)
		o.logger.Error("turn failed", zap.String("session", shortToken(token)), zap.Error(err))
		return reply, err
	}

	o.observeTurn("ok", start)
	o.logger.Info("turn completed",
		zap.String("session", shortToken(token)),
		zap.Int("memory_hits", reply.MemoryHits),
		zap.Bool("researched", reply.Researched),
		zap.Int("refine_passes", reply.RefinePasses),
		zap.Duration("elapsed", time.Since(start)),
	)
	return reply, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session, msg string, reply *Reply) error {
	for content := range o.cfg.Memory.Search(msg, o.cfg.MemoryTopK) {
		sess.Append(llm.System(memoryContextPrefix + content))
		reply.MemoryHits++
	}
	sess.Append(llm.User(msg))

	text, err := o.complete(ctx, sess, stageGenerate)
	if err != nil {
		return err
	}
	reply.Text = text

	if q := extractResearchQuery(text); q != "" {
		reply.ResearchQuery = q
		hits := o.cfg.Search.Search(ctx, q, o.cfg.SearchResultsCount)
		o.logger.Debug("research results", zap.String("query", q), zap.Int("hits", len(hits)))

		sess.Append(
			llm.Assistant(toolResultPrefix+search.FormatHits(hits)),
			llm.User(revisePrompt),
		)
		text, err = o.complete(ctx, sess, stageResearch)
		if err != nil {
			return err
		}
		reply.Text = text
		reply.Researched = true
	}

	if isTechnical(msg) {
		for i := 0; i < o.cfg.SelfRefinePasses; i++ {
			sess.Append(llm.User(refinePrompt))
			text, err = o.complete(ctx, sess, stageRefine)
			if err != nil {
				return err
			}
			reply.Text = text
			reply.RefinePasses++
		}
	}
	return nil
}

// complete sends the transcript to the model and appends the answer.
func (o *Orchestrator) complete(ctx context.Context, sess *session.Session, stage string) (string, error) {
	resp, err := o.cfg.LLM.Generate(ctx, sess.Messages())
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ObserveCompletion(stage, err)
	}
	if err != nil {
		var ce *llm.CompletionError
		if !errors.As(err, &ce) {
			err = &llm.CompletionError{Provider: "unknown", Err: err}
		}
		return "", fmt.Errorf("%s: %w", stage, err)
	}
	sess.Append(llm.Assistant(resp.Content))
	return resp.Content, nil
}

func (o *Orchestrator) record(token, msg string, reply Reply, turnErr error) {
	if o.cfg.Recorder == nil {
		return
	}
	ev := storage.Event{
		Timestamp:         time.Now().UTC(),
		SessionToken:      token,
		UserMessage:       msg,
		AssistantResponse: reply.Text,
		ResearchQuery:     reply.ResearchQuery,
		RefinePasses:      reply.RefinePasses,
		MemoryHits:        reply.MemoryHits,
	}
	if turnErr != nil {
		ev.Error = turnErr.Error()
	}
	if err := o.cfg.Recorder.Record(ev); err != nil {
		o.logger.Warn("failed to record turn", zap.Error(err))
	}
}

func (o *Orchestrator) observeTurn(outcome string, start time.Time) {
	if o.cfg.Metrics == nil {
		return
	}
	o.cfg.Metrics.ObserveTurn(outcome, time.Since(start))
	o.cfg.Metrics.Sessions.Set(float64(o.cfg.Sessions.Len()))
}

func shortToken(tok string) string {
	if len(tok) <= 8 {
		return tok
	}
	return tok[:8]
}
