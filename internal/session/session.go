package session

import (
	"sync"
	"time"

	"cloudx/internal/llm"
	"cloudx/internal/ratelimit"
)

// Session is the conversation state behind one token. The transcript is
// append-only and its first element is always the system prompt.
type Session struct {
	turn sync.Mutex

	mu         sync.RWMutex
	transcript []llm.Message
	lastSeen   time.Time
	busy       bool

	window ratelimit.Window
}

func newSession(systemPrompt string, now time.Time) *Session {
	return &Session{
		transcript: []llm.Message{llm.System(systemPrompt)},
		lastSeen:   now,
	}
}

// BeginTurn blocks until no other turn runs on this session. Every
// BeginTurn must be paired with EndTurn.
func (s *Session) BeginTurn() {
	s.turn.Lock()
	s.mu.Lock()
	s.busy = true
	s.mu.Unlock()
}

func (s *Session) EndTurn() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
	s.turn.Unlock()
}

// Window returns the rate window owned by this session.
func (s *Session) Window() *ratelimit.Window { return &s.window }

func (s *Session) Append(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, msgs...)
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transcript)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastSeen), s.busy
}
