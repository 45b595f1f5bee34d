package memory

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Entry is one stored snippet of reference content.
type Entry struct {
	ID          string `json:"id" yaml:"id"`
	Content     string `json:"content" yaml:"content"`
	Description string `json:"description" yaml:"description"`
}

//go:embed seed.yaml
var seedYAML []byte

// Seed returns the built-in default entries.
func Seed() ([]Entry, error) {
	var entries []Entry
	if err := yaml.Unmarshal(seedYAML, &entries); err != nil {
		return nil, fmt.Errorf("parse seed memory: %w", err)
	}
	return entries, nil
}

// StorageError reports a failed read or write of the memory snapshot.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("memory %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
