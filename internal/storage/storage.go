// Package storage persists the turn log: one record per chat turn.
package storage

import "time"

// Event is the record of one chat turn. Events are appended in
// chronological order; a failed turn carries Error and may have no response.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	SessionToken      string    `json:"session_token"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response,omitempty"`
	ResearchQuery     string    `json:"research_query,omitempty"`
	RefinePasses      int       `json:"refine_passes,omitempty"`
	MemoryHits        int       `json:"memory_hits,omitempty"`
	Error             string    `json:"error,omitempty"`
}

// Failed reports whether the turn ended with an error.
func (e Event) Failed() bool { return e.Error != "" }

// Recorder persists turn events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(event Event) error
	// Between returns events with from <= Timestamp < to, oldest first.
	Between(from, to time.Time) ([]Event, error)
}
