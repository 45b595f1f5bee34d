package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const maxLineBytes = 10 * 1024 * 1024

// FileRecorder keeps events as JSON lines in one append-only file. The
// file stays open for writing until Close.
type FileRecorder struct {
	path string

	mu sync.Mutex
	w  *os.File
}

func NewFileRecorder(path string) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure turn log dir: %w", err)
	}
	w, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open turn log: %w", err)
	}
	return &FileRecorder{path: path, w: w}, nil
}

// Record writes event as a single line. Each line goes out in one write so
// a crash leaves at most the last line torn.
func (r *FileRecorder) Record(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode turn event: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("turn log %s is closed", r.path)
	}
	if _, err := r.w.Write(line); err != nil {
		return fmt.Errorf("append turn event: %w", err)
	}
	return nil
}

// Between scans the whole log. Blank and undecodable lines are skipped.
func (r *FileRecorder) Between(from, to time.Time) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open turn log: %w", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var events []Event
	for s.Scan() {
		line := s.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Timestamp.Before(from) || !ev.Timestamp.Before(to) {
			continue
		}
		events = append(events, ev)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan turn log: %w", err)
	}
	return events, nil
}

func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	err := r.w.Close()
	r.w = nil
	return err
}
