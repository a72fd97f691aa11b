// Package store implements the local cache store: a key-value store mapping
// hierarchical keys to time-indexed series tables and metadata documents,
// persisted in a single SQLite file.
package store

import (
	"errors"

	"github.com/locie/comepos-fetcher/internal/vesta"
)

// ErrKeyNotFound is returned by Get, GetDoc and Append when the key has
// never been written. Callers use it to tell a bootstrap from a refresh.
var ErrKeyNotFound = errors.New("key not found in store")

// Store is the contract for the local cache store.
//
// Series tables are ordered, timestamp-ascending and free of duplicate
// timestamps; Append extends a table in place without re-sorting or
// de-duplicating, so callers must only pass strictly newer rows.
type Store interface {
	// Get returns the full series stored under key.
	Get(key string) (vesta.Series, error)

	// Put creates or overwrites the series stored under key.
	Put(key string, series vesta.Series) error

	// Append extends the series stored under key with new rows.
	// Fails with ErrKeyNotFound when the key was never Put.
	Append(key string, series vesta.Series) error

	// Keys returns every series key in the store.
	Keys() ([]string, error)

	// GetDoc decodes the metadata document stored under key into v.
	GetDoc(key string, v interface{}) error

	// PutDoc creates or overwrites a metadata document.
	PutDoc(key string, v interface{}) error

	// DeletePrefix removes every series and document whose key starts
	// with prefix.
	DeletePrefix(prefix string) error

	Close() error
}
