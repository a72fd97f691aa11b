package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/locie/comepos-fetcher/internal/vesta"
)

// MemoryStore is an in-memory Store for testing.
type MemoryStore struct {
	series map[string]vesta.Series
	docs   map[string][]byte

	// Writes records every Put/Append call for assertions.
	Writes []WriteLogEntry
}

// WriteLogEntry records one mutating call against the store.
type WriteLogEntry struct {
	Op   string // "put" or "append"
	Key  string
	Rows int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series: make(map[string]vesta.Series),
		docs:   make(map[string][]byte),
	}
}

// Get returns the full series stored under key.
func (s *MemoryStore) Get(key string) (vesta.Series, error) {
	series, ok := s.series[key]
	if !ok {
		return nil, fmt.Errorf("memory: %q: %w", key, ErrKeyNotFound)
	}
	out := make(vesta.Series, len(series))
	copy(out, series)
	return out, nil
}

// Put creates or overwrites the series stored under key.
func (s *MemoryStore) Put(key string, series vesta.Series) error {
	stored := make(vesta.Series, len(series))
	copy(stored, series)
	s.series[key] = stored
	s.Writes = append(s.Writes, WriteLogEntry{Op: "put", Key: key, Rows: len(series)})
	return nil
}

// Append extends the series stored under key with new rows.
func (s *MemoryStore) Append(key string, series vesta.Series) error {
	stored, ok := s.series[key]
	if !ok {
		return fmt.Errorf("memory: %q: %w", key, ErrKeyNotFound)
	}
	s.series[key] = append(stored, series...)
	s.Writes = append(s.Writes, WriteLogEntry{Op: "append", Key: key, Rows: len(series)})
	return nil
}

// Keys returns every series key in the store, sorted.
func (s *MemoryStore) Keys() ([]string, error) {
	keys := make([]string, 0, len(s.series))
	for key := range s.series {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetDoc decodes the metadata document stored under key into v.
func (s *MemoryStore) GetDoc(key string, v interface{}) error {
	doc, ok := s.docs[key]
	if !ok {
		return fmt.Errorf("memory: %q: %w", key, ErrKeyNotFound)
	}
	return json.Unmarshal(doc, v)
}

// PutDoc creates or overwrites a metadata document.
func (s *MemoryStore) PutDoc(key string, v interface{}) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.docs[key] = doc
	return nil
}

// DeletePrefix removes every series and document whose key starts with
// prefix.
func (s *MemoryStore) DeletePrefix(prefix string) error {
	for key := range s.series {
		if strings.HasPrefix(key, prefix) {
			delete(s.series, key)
		}
	}
	for key := range s.docs {
		if strings.HasPrefix(key, prefix) {
			delete(s.docs, key)
		}
	}
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Seed stores a series directly, bypassing the write log (for tests).
func (s *MemoryStore) Seed(key string, series vesta.Series) {
	stored := make(vesta.Series, len(series))
	copy(stored, series)
	s.series[key] = stored
}
