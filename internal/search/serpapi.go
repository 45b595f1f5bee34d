package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const serpAPIEndpoint = "https://serpapi.com/search.json"

var ErrNoAPIKey = errors.New("SERPAPI_API_KEY not set")

// SerpAPI queries Google through serpapi.com. Calls go through a circuit
// breaker so a broken upstream is skipped without waiting on it.
type SerpAPI struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewSerpAPI(apiKey string, logger *zap.Logger) *SerpAPI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SerpAPI{
		apiKey:     apiKey,
		endpoint:   serpAPIEndpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "serpapi",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}),
	}
}

func (s *SerpAPI) Name() string { return "serpapi" }

func (s *SerpAPI) Search(ctx context.Context, query string, n int) ([]Hit, error) {
	if s.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.do(ctx, query, n)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Hit), nil
}

func (s *SerpAPI) do(ctx context.Context, query string, n int) ([]Hit, error) {
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("num", strconv.Itoa(n))
	q.Set("api_key", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build serpapi request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read serpapi response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi HTTP %d: %s", resp.StatusCode, gjson.GetBytes(body, "error").String())
	}
	if msg := gjson.GetBytes(body, "error"); msg.Exists() {
		return nil, fmt.Errorf("serpapi: %s", msg.String())
	}

	var hits []Hit
	for _, r := range gjson.GetBytes(body, "organic_results").Array() {
		if len(hits) >= n {
			break
		}
		hits = append(hits, Hit{
			Title:   r.Get("title").String(),
			Snippet: r.Get("snippet").String(),
			Link:    r.Get("link").String(),
		})
	}
	return hits, nil
}
