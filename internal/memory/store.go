// Package memory is a small append-only content store with lexical-overlap
// retrieval, persisted as a single JSON snapshot.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrEmptyContent = errors.New("memory content is empty")

type Store struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure memory dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}, nil
}

// Append adds an entry at the end of the store and persists the whole
// snapshot before returning.
func (s *Store) Append(content, description string) (Entry, error) {
	if strings.TrimSpace(content) == "" {
		return Entry{}, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadUnlocked()
	if err != nil {
		return Entry{}, err
	}
	e := Entry{ID: uuid.NewString(), Content: content, Description: description}
	entries = append(entries, e)
	if err := s.saveUnlocked(entries); err != nil {
		return Entry{}, err
	}
	s.logger.Info("memory entry appended", zap.String("id", e.ID), zap.Int("entries", len(entries)))
	return e, nil
}

// Entries returns the whole store in insertion order.
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadUnlocked()
}

// Search ranks entries by the number of distinct lower-cased whitespace
// tokens they share with query and yields the contents of the best topK.
// Entries sharing no token are never yielded; ties keep insertion order.
// The snapshot is read when the sequence is first ranged over, and the
// sequence can be consumed only once.
func (s *Store) Search(query string, topK int) iter.Seq[string] {
	consumed := false
	return func(yield func(string) bool) {
		if consumed {
			return
		}
		consumed = true

		entries, err := s.Entries()
		if err != nil {
			s.logger.Warn("memory search degraded to no context", zap.Error(err))
			return
		}
		for _, c := range rank(entries, query, topK) {
			if !yield(c) {
				return
			}
		}
	}
}

func rank(entries []Entry, query string, topK int) []string {
	if topK <= 0 {
		return nil
	}
	q := tokens(query)
	if len(q) == 0 {
		return nil
	}

	type scored struct {
		content string
		score   int
	}
	var hits []scored
	for _, e := range entries {
		n := 0
		for tok := range tokens(e.Content) {
			if _, ok := q[tok]; ok {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, scored{content: e.Content, score: n})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.content
	}
	return out
}

func tokens(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// loadUnlocked reads the snapshot, falling back to the seed corpus when
// none has been written yet.
func (s *Store) loadUnlocked() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(strings.TrimSpace(string(data))) == 0) {
		seed, serr := Seed()
		if serr != nil {
			return nil, &StorageError{Op: "seed", Path: s.path, Err: serr}
		}
		return seed, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Path: s.path, Err: err}
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &StorageError{Op: "decode", Path: s.path, Err: err}
	}
	return entries, nil
}

// saveUnlocked replaces the snapshot wholesale via a temp file and rename.
func (s *Store) saveUnlocked(entries []Entry) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".memory-*.json")
	if err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		_ = tmp.Close()
		return &StorageError{Op: "encode", Path: s.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &StorageError{Op: "sync", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &StorageError{Op: "rename", Path: s.path, Err: err}
	}
	return nil
}
