package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, entries ...Entry) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "memory.json"), nil)
	require.NoError(t, err)
	if entries != nil {
		require.NoError(t, s.saveUnlocked(entries))
	}
	return s
}

func TestSearchRanksByOverlapStable(t *testing.T) {
	s := newTestStore(t,
		Entry{ID: "a", Content: "go channels and goroutines"},
		Entry{ID: "b", Content: "Rust ownership"},
		Entry{ID: "c", Content: "Go Channels buffered channels"},
		Entry{ID: "d", Content: "goroutines leak when channels block"},
		Entry{ID: "e", Content: "go"},
	)

	got := slices.Collect(s.Search("GO channels goroutines", 3))
	require.Equal(t, []string{
		"go channels and goroutines",
		"Go Channels buffered channels",
		"goroutines leak when channels block",
	}, got)

	again := slices.Collect(s.Search("GO channels goroutines", 3))
	require.Equal(t, got, again, "search must be deterministic")
}

func TestSearchExcludesZeroScore(t *testing.T) {
	s := newTestStore(t,
		Entry{ID: "a", Content: "alpha beta"},
		Entry{ID: "b", Content: "gamma"},
	)
	require.Equal(t, []string{"gamma"}, slices.Collect(s.Search("gamma delta", 3)))
	require.Empty(t, slices.Collect(s.Search("nothing matches", 3)))
	require.Empty(t, slices.Collect(s.Search("   ", 3)))
}

func TestSearchDoesNotReorderStore(t *testing.T) {
	s := newTestStore(t,
		Entry{ID: "a", Content: "one"},
		Entry{ID: "b", Content: "one two"},
	)
	_ = slices.Collect(s.Search("one two", 3))
	entries, err := s.Entries()
	require.NoError(t, err)
	require.Equal(t, "a", entries[0].ID)
	require.Equal(t, "b", entries[1].ID)
}

func TestSearchSequenceIsSingleUse(t *testing.T) {
	s := newTestStore(t, Entry{ID: "a", Content: "hello world"})
	seq := s.Search("hello", 3)
	require.Len(t, slices.Collect(seq), 1)
	require.Empty(t, slices.Collect(seq))
}

func TestSearchFallsBackToSeed(t *testing.T) {
	s := newTestStore(t)
	got := slices.Collect(s.Search("python code", 3))
	require.NotEmpty(t, got)
	require.Contains(t, got[0], "Python")
}

func TestSearchReadFailureYieldsNothing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.path, []byte("{not json"), 0o644))

	require.Empty(t, slices.Collect(s.Search("python code", 3)))

	_, err := s.Entries()
	var se *StorageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "decode", se.Op)
}

func TestAppendRoundTrip(t *testing.T) {
	s := newTestStore(t)
	e, err := s.Append("kubernetes pods restart", "ops note")
	require.NoError(t, err)
	require.NotEmpty(t, e.ID)

	reloaded, err := NewStore(s.path, nil)
	require.NoError(t, err)
	entries, err := reloaded.Entries()
	require.NoError(t, err)

	seed, err := Seed()
	require.NoError(t, err)
	require.Len(t, entries, len(seed)+1)
	require.Equal(t, e, entries[len(entries)-1])
	require.Equal(t, seed, entries[:len(seed)])
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	s := newTestStore(t)
	const n = 25

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := s.Append(fmt.Sprintf("note %d", i), "")
			require.NoError(t, err)
			ids <- e.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	entries, err := s.Entries()
	require.NoError(t, err)
	seed, err := Seed()
	require.NoError(t, err)
	require.Len(t, entries, len(seed)+n)

	stored := make(map[string]bool, len(entries))
	for _, e := range entries {
		stored[e.ID] = true
	}
	for id := range ids {
		require.True(t, stored[id], "entry %s lost", id)
	}
}

func TestAppendRejectsEmpty(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Append("  \n", "x")
	require.ErrorIs(t, err, ErrEmptyContent)
}

func TestAppendSignalsStorageError(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	s, err := NewStore(filepath.Join(sub, "memory.json"), nil)
	require.NoError(t, err)

	// replace the directory with a plain file so nothing can be written under it
	require.NoError(t, os.RemoveAll(sub))
	require.NoError(t, os.WriteFile(sub, []byte("x"), 0o644))

	_, err = s.Append("content", "desc")
	var se *StorageError
	require.True(t, errors.As(err, &se), "got %v", err)
}

func TestSeedParses(t *testing.T) {
	seed, err := Seed()
	require.NoError(t, err)
	require.NotEmpty(t, seed)
	for _, e := range seed {
		require.NotEmpty(t, e.ID)
		require.NotEmpty(t, e.Content)
	}
}
