package chat

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cloudx/internal/llm"
	"cloudx/internal/ratelimit"
	"cloudx/internal/search"
	"cloudx/internal/session"
	"cloudx/internal/storage"
)

type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	failAt  int // 1-based call number that fails; 0 never fails
	calls   [][]llm.Message
}

func (s *scriptedLLM) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, msgs)
	n := len(s.calls)
	if n == s.failAt {
		return llm.Response{}, &llm.CompletionError{Provider: "fake", Err: errors.New("quota exceeded")}
	}
	if n <= len(s.replies) {
		return llm.Response{Content: s.replies[n-1]}, nil
	}
	return llm.Response{Content: "default reply"}, nil
}

type fakeSearcher struct {
	queries []string
	ns      []int
	hits    []search.Hit
}

func (f *fakeSearcher) Search(ctx context.Context, query string, n int) []search.Hit {
	f.queries = append(f.queries, query)
	f.ns = append(f.ns, n)
	return f.hits
}

type fakeMemory struct{ results []string }

func (f fakeMemory) Search(query string, topK int) iter.Seq[string] {
	return slices.Values(f.results)
}

type memRecorder struct{ events []storage.Event }

func (m *memRecorder) Record(ev storage.Event) error {
	m.events = append(m.events, ev)
	return nil
}

func (m *memRecorder) Between(from, to time.Time) ([]storage.Event, error) { return m.events, nil }

type harness struct {
	orch     *Orchestrator
	llm      *scriptedLLM
	search   *fakeSearcher
	sessions *session.Registry
	recorder *memRecorder
}

func newHarness(t *testing.T, replies []string, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		llm:      &scriptedLLM{replies: replies},
		search:   &fakeSearcher{hits: []search.Hit{{Title: "Lyon", Snippet: "Sunny", Link: "https://w.test"}}},
		sessions: session.NewRegistry("sys"),
		recorder: &memRecorder{},
	}
	cfg := Config{
		Sessions:         h.sessions,
		Limiter:          ratelimit.New(15*time.Second, 5),
		Memory:           fakeMemory{},
		LLM:              h.llm,
		Search:           h.search,
		Recorder:         h.recorder,
		SelfRefinePasses: 1,
	}
	for _, o := range opts {
		o(&cfg)
	}
	h.orch = New(cfg)
	return h
}

func (h *harness) transcript(t *testing.T, token string) []llm.Message {
	t.Helper()
	s, ok := h.sessions.Get(token)
	require.True(t, ok)
	return s.Messages()
}

func TestTurnPlainChat(t *testing.T) {
	h := newHarness(t, []string{"Hello! RESEARCH_QUERY: NONE"})

	reply, err := h.orch.Turn(context.Background(), "", "  hi there  ")
	require.NoError(t, err)
	require.Len(t, reply.SessionToken, 32)
	require.Equal(t, "Hello! RESEARCH_QUERY: NONE", reply.Text)
	require.False(t, reply.Researched)
	require.Zero(t, reply.RefinePasses)

	require.Len(t, h.llm.calls, 1)
	require.Empty(t, h.search.queries)
	require.Equal(t, []llm.Message{
		llm.System("sys"),
		llm.User("hi there"),
		llm.Assistant("Hello! RESEARCH_QUERY: NONE"),
	}, h.transcript(t, reply.SessionToken))
}

func TestTurnResearch(t *testing.T) {
	h := newHarness(t, []string{
		"I am not sure.\nRESEARCH_QUERY: weather in Lyon",
		"It is sunny in Lyon.",
	})

	reply, err := h.orch.Turn(context.Background(), "", "What's the weather in Lyon today?")
	require.NoError(t, err)
	require.True(t, reply.Researched)
	require.Equal(t, "weather in Lyon", reply.ResearchQuery)
	require.Equal(t, "It is sunny in Lyon.", reply.Text)

	require.Len(t, h.llm.calls, 2)
	require.Equal(t, []string{"weather in Lyon"}, h.search.queries)
	require.Equal(t, []int{5}, h.search.ns)

	msgs := h.transcript(t, reply.SessionToken)
	require.Equal(t, []llm.Message{
		llm.System("sys"),
		llm.User("What's the weather in Lyon today?"),
		llm.Assistant("I am not sure.\nRESEARCH_QUERY: weather in Lyon"),
		llm.Assistant("TOOL: **Lyon**\nSunny\nhttps://w.test"),
		llm.User(revisePrompt),
		llm.Assistant("It is sunny in Lyon."),
	}, msgs)
	// the second call saw the tool output and the revise instruction
	require.Equal(t, msgs[:5], h.llm.calls[1])
}

func TestTurnResearchQueryCaseInsensitive(t *testing.T) {
	h := newHarness(t, []string{"research_query:   none  ", "unused"})
	_, err := h.orch.Turn(context.Background(), "", "hello")
	require.NoError(t, err)
	require.Len(t, h.llm.calls, 1)
	require.Empty(t, h.search.queries)
}

func TestTurnRefineForTechnicalMessage(t *testing.T) {
	h := newHarness(t, []string{"draft", "improved"})

	reply, err := h.orch.Turn(context.Background(), "", "Please DEBUG my loop")
	require.NoError(t, err)
	require.Equal(t, "improved", reply.Text)
	require.Equal(t, 1, reply.RefinePasses)
	require.Len(t, h.llm.calls, 2)

	msgs := h.transcript(t, reply.SessionToken)
	require.Equal(t, llm.User(refinePrompt), msgs[len(msgs)-2])
	require.Equal(t, llm.Assistant("improved"), msgs[len(msgs)-1])
}

func TestTurnRefinePassesConfigurable(t *testing.T) {
	h := newHarness(t, []string{"a", "b", "c"}, func(c *Config) { c.SelfRefinePasses = 2 })
	reply, err := h.orch.Turn(context.Background(), "", "write a python function")
	require.NoError(t, err)
	require.Equal(t, 2, reply.RefinePasses)
	require.Equal(t, "c", reply.Text)
	require.Len(t, h.llm.calls, 3)
}

func TestTurnResearchThenRefine(t *testing.T) {
	h := newHarness(t, []string{"RESEARCH_QUERY: go 1.23 iterators", "revised", "refined"})
	reply, err := h.orch.Turn(context.Background(), "", "explain this code")
	require.NoError(t, err)
	require.True(t, reply.Researched)
	require.Equal(t, 1, reply.RefinePasses)
	require.Equal(t, "refined", reply.Text)
	require.Len(t, h.llm.calls, 3)
	require.Len(t, h.search.queries, 1)
}

func TestTurnMemoryContextPrecedesQuestion(t *testing.T) {
	h := newHarness(t, []string{"ok"}, func(c *Config) {
		c.Memory = fakeMemory{results: []string{"first fact", "second fact"}}
	})
	reply, err := h.orch.Turn(context.Background(), "", "tell me facts")
	require.NoError(t, err)
	require.Equal(t, 2, reply.MemoryHits)

	require.Equal(t, []llm.Message{
		llm.System("sys"),
		llm.System("Memory context:\nfirst fact"),
		llm.System("Memory context:\nsecond fact"),
		llm.User("tell me facts"),
	}, h.llm.calls[0])
}

func TestTurnEmptyMessage(t *testing.T) {
	h := newHarness(t, []string{"first"})
	reply, err := h.orch.Turn(context.Background(), "", "hello")
	require.NoError(t, err)
	before := len(h.transcript(t, reply.SessionToken))

	r2, err := h.orch.Turn(context.Background(), reply.SessionToken, " \t\n ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.Equal(t, reply.SessionToken, r2.SessionToken)
	require.Len(t, h.transcript(t, reply.SessionToken), before)
	require.Len(t, h.llm.calls, 1)
}

func TestTurnRateLimited(t *testing.T) {
	h := newHarness(t, nil, func(c *Config) { c.Limiter = ratelimit.New(time.Minute, 2) })

	reply, err := h.orch.Turn(context.Background(), "", "one")
	require.NoError(t, err)
	tok := reply.SessionToken
	_, err = h.orch.Turn(context.Background(), tok, "two")
	require.NoError(t, err)
	before := len(h.transcript(t, tok))

	_, err = h.orch.Turn(context.Background(), tok, "three")
	require.ErrorIs(t, err, ErrRateLimited)
	require.Len(t, h.transcript(t, tok), before)
	require.Len(t, h.llm.calls, 2)

	// other sessions are unaffected
	_, err = h.orch.Turn(context.Background(), "", "four")
	require.NoError(t, err)
}

type blockingLLM struct {
	started chan struct{}
	release chan struct{}
}

func (b blockingLLM) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	close(b.started)
	<-b.release
	return llm.Response{Content: "late"}, nil
}

func TestTurnRateLimitedWithoutWaitingForInFlightTurn(t *testing.T) {
	slow := blockingLLM{started: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, nil, func(c *Config) {
		c.Limiter = ratelimit.New(time.Minute, 1)
		c.LLM = slow
	})
	tok, _ := h.sessions.Resolve("")

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Turn(context.Background(), tok, "first")
		done <- err
	}()
	<-slow.started

	rejected := make(chan error, 1)
	go func() {
		_, err := h.orch.Turn(context.Background(), tok, "second")
		rejected <- err
	}()
	select {
	case err := <-rejected:
		require.ErrorIs(t, err, ErrRateLimited)
	case <-time.After(2 * time.Second):
		t.Fatal("over-limit turn waited for the in-flight turn")
	}

	close(slow.release)
	require.NoError(t, <-done)
}

func TestTurnCompletionFailureKeepsPartialTranscript(t *testing.T) {
	h := newHarness(t, []string{"RESEARCH_QUERY: something"})
	h.llm.failAt = 2

	reply, err := h.orch.Turn(context.Background(), "", "look it up")
	require.Error(t, err)
	var ce *llm.CompletionError
	require.True(t, errors.As(err, &ce))

	msgs := h.transcript(t, reply.SessionToken)
	require.Equal(t, llm.User(revisePrompt), msgs[len(msgs)-1])

	require.Len(t, h.recorder.events, 1)
	require.NotEmpty(t, h.recorder.events[0].Error)
}

func TestTurnWrapsForeignClientErrors(t *testing.T) {
	h := newHarness(t, nil, func(c *Config) { c.LLM = failingLLM{} })
	_, err := h.orch.Turn(context.Background(), "", "hi")
	var ce *llm.CompletionError
	require.True(t, errors.As(err, &ce))
}

type failingLLM struct{}

func (failingLLM) Generate(context.Context, []llm.Message) (llm.Response, error) {
	return llm.Response{}, errors.New("connection reset")
}

func TestTurnSessionContinuity(t *testing.T) {
	h := newHarness(t, []string{"one", "two"})

	first, err := h.orch.Turn(context.Background(), "", "hello")
	require.NoError(t, err)
	n1 := len(h.transcript(t, first.SessionToken))

	second, err := h.orch.Turn(context.Background(), first.SessionToken, "again")
	require.NoError(t, err)
	require.Equal(t, first.SessionToken, second.SessionToken)
	require.GreaterOrEqual(t, len(h.transcript(t, first.SessionToken))-n1, 2)

	msgs := h.transcript(t, first.SessionToken)
	require.Equal(t, llm.RoleSystem, msgs[0].Role)
}

func TestTurnRecordsEvent(t *testing.T) {
	h := newHarness(t, []string{"RESEARCH_QUERY: x", "final", "polished"})
	reply, err := h.orch.Turn(context.Background(), "", "fix this error")
	require.NoError(t, err)

	require.Len(t, h.recorder.events, 1)
	ev := h.recorder.events[0]
	require.Equal(t, reply.SessionToken, ev.SessionToken)
	require.Equal(t, "fix this error", ev.UserMessage)
	require.Equal(t, "polished", ev.AssistantResponse)
	require.Equal(t, "x", ev.ResearchQuery)
	require.Equal(t, 1, ev.RefinePasses)
	require.Empty(t, ev.Error)
}

func TestExtractResearchQuery(t *testing.T) {
	cases := map[string]string{
		"RESEARCH_QUERY: weather in Lyon":         "weather in Lyon",
		"text\nresearch_query :  go generics  \n": "go generics",
		"RESEARCH_QUERY: NONE":                    "",
		"RESEARCH_QUERY: none":                    "",
		"no signal here":                          "",
		"RESEARCH_QUERY: first\nRESEARCH_QUERY: x": "first",
	}
	for in, want := range cases {
		require.Equal(t, want, extractResearchQuery(in), in)
	}
}

func TestIsTechnical(t *testing.T) {
	require.True(t, isTechnical("Can you Calculate this?"))
	require.True(t, isTechnical("a classic movie"))
	require.False(t, isTechnical("how are you today?"))
}
