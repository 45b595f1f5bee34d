// Package session keeps the process-wide map from opaque tokens to
// conversation state.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	systemPrompt string
	now          func() time.Time
}

func NewRegistry(systemPrompt string) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		systemPrompt: systemPrompt,
		now:          time.Now,
	}
}

// Resolve returns the session for token. An empty or unknown token gets a
// freshly minted token and a new session seeded with the system prompt.
func (r *Registry) Resolve(token string) (string, *Session) {
	now := r.now()
	if token != "" {
		r.mu.RLock()
		s, ok := r.sessions[token]
		r.mu.RUnlock()
		if ok {
			s.touch(now)
			return token, s
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	tok := newToken()
	s := newSession(r.systemPrompt, now)
	r.sessions[tok] = s
	return tok, s
}

// Get looks up a session without creating one.
func (r *Registry) Get(token string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[token]
	return s, ok
}

func (r *Registry) Drop(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for at least idle. Sessions with a turn in
// progress are kept. It returns the number of evicted sessions.
func (r *Registry) Sweep(idle time.Duration) int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for tok, s := range r.sessions {
		since, busy := s.idleSince(now)
		if busy || since < idle {
			continue
		}
		delete(r.sessions, tok)
		n++
	}
	return n
}

// newToken returns 128 random bits, hex encoded.
func newToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("session: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
