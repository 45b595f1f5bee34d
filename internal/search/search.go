// Package search looks things up on the web for the research step. Callers
// get hits or a placeholder describing the failure, never an error.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type Hit struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// Searcher never fails; problems are reported as hits.
type Searcher interface {
	Search(ctx context.Context, query string, n int) []Hit
}

// Provider is one concrete search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, n int) ([]Hit, error)
}

// Fallback tries Primary and, on any error, Secondary. If Secondary fails
// too the result is a single "Search failure" hit.
type Fallback struct {
	Primary   Provider
	Secondary Provider
	Logger    *zap.Logger
	// Observe, if set, is told the outcome of every provider call.
	Observe func(provider string, err error)
}

func NewFallback(primary, secondary Provider, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{Primary: primary, Secondary: secondary, Logger: logger}
}

func (f *Fallback) Search(ctx context.Context, query string, n int) []Hit {
	if f.Primary != nil {
		hits, err := f.call(ctx, f.Primary, query, n)
		if err == nil {
			return hits
		}
		f.Logger.Warn("primary search failed, falling back",
			zap.String("provider", f.Primary.Name()), zap.Error(err))
	}
	if f.Secondary == nil {
		return []Hit{failureHit(fmt.Errorf("no search provider configured"))}
	}
	hits, err := f.call(ctx, f.Secondary, query, n)
	if err != nil {
		f.Logger.Warn("fallback search failed", zap.String("provider", f.Secondary.Name()), zap.Error(err))
		return []Hit{failureHit(err)}
	}
	return hits
}

func (f *Fallback) call(ctx context.Context, p Provider, query string, n int) ([]Hit, error) {
	hits, err := p.Search(ctx, query, n)
	if f.Observe != nil {
		f.Observe(p.Name(), err)
	}
	if err != nil {
		return nil, err
	}
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

func failureHit(err error) Hit {
	return Hit{Title: "Search failure", Snippet: err.Error()}
}

// FormatHits renders hits as "**title**\nsnippet\nlink" blocks separated by
// blank lines.
func FormatHits(hits []Hit) string {
	blocks := make([]string, 0, len(hits))
	for _, h := range hits {
		blocks = append(blocks, fmt.Sprintf("**%s**\n%s\n%s", h.Title, h.Snippet, h.Link))
	}
	return strings.Join(blocks, "\n\n")
}
