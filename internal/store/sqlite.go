package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/locie/comepos-fetcher/internal/core"
	"github.com/locie/comepos-fetcher/internal/vesta"
)

const schema = `
CREATE TABLE IF NOT EXISTS series_keys (
	key TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS samples (
	key   TEXT NOT NULL,
	ts    INTEGER NOT NULL,
	value REAL NOT NULL,
	PRIMARY KEY (key, ts)
);
CREATE TABLE IF NOT EXISTS docs (
	key TEXT PRIMARY KEY,
	doc TEXT NOT NULL
);
`

// SQLiteStore persists series tables and metadata documents in one SQLite
// file. Rows are keyed by (series key, timestamp), which makes appends
// cheap regardless of table size.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the store at the given path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the location of the backing file.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Remove deletes the store file at path, along with the -wal and -shm
// sidecars SQLite leaves next to it in WAL mode. A missing file is not an
// error.
func Remove(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("sqlite: remove %q: %w", p, err)
		}
	}
	return nil
}

// Close releases the backing file.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the full series stored under key, timestamp-ascending.
func (s *SQLiteStore) Get(key string) (vesta.Series, error) {
	if ok, err := s.hasKey(key); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("sqlite: %q: %w", key, ErrKeyNotFound)
	}

	rows, err := s.db.Query(`SELECT ts, value FROM samples WHERE key = ? ORDER BY ts ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %q: %w", key, err)
	}
	defer rows.Close()

	series := vesta.Series{}
	for rows.Next() {
		var ms int64
		var value float64
		if err := rows.Scan(&ms, &value); err != nil {
			return nil, fmt.Errorf("sqlite: get %q: %w", key, err)
		}
		series = append(series, vesta.Sample{Date: core.FromMillis(ms), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: get %q: %w", key, err)
	}
	return series, nil
}

// Put creates or overwrites the series stored under key.
func (s *SQLiteStore) Put(key string, series vesta.Series) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: put %q: %w", key, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR IGNORE INTO series_keys (key) VALUES (?)`, key); err != nil {
		return fmt.Errorf("sqlite: put %q: %w", key, err)
	}
	if _, err := tx.Exec(`DELETE FROM samples WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: put %q: %w", key, err)
	}
	if err := insertSamples(tx, key, series); err != nil {
		return err
	}
	return tx.Commit()
}

// Append extends the series stored under key with new rows. The rows are
// stored as given; ordering relative to existing rows is the caller's
// responsibility.
func (s *SQLiteStore) Append(key string, series vesta.Series) error {
	if ok, err := s.hasKey(key); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("sqlite: %q: %w", key, ErrKeyNotFound)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: append %q: %w", key, err)
	}
	defer tx.Rollback()

	if err := insertSamples(tx, key, series); err != nil {
		return err
	}
	return tx.Commit()
}

// Keys returns every series key in the store, sorted.
func (s *SQLiteStore) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM series_keys ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite: keys: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: keys: %w", err)
	}
	return keys, nil
}

// GetDoc decodes the metadata document stored under key into v.
func (s *SQLiteStore) GetDoc(key string, v interface{}) error {
	var doc string
	err := s.db.QueryRow(`SELECT doc FROM docs WHERE key = ?`, key).Scan(&doc)
	if err == sql.ErrNoRows {
		return fmt.Errorf("sqlite: %q: %w", key, ErrKeyNotFound)
	}
	if err != nil {
		return fmt.Errorf("sqlite: get doc %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return fmt.Errorf("sqlite: decode doc %q: %w", key, err)
	}
	return nil
}

// PutDoc creates or overwrites a metadata document.
func (s *SQLiteStore) PutDoc(key string, v interface{}) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sqlite: encode doc %q: %w", key, err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO docs (key, doc) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET doc = excluded.doc`,
		key, string(doc),
	); err != nil {
		return fmt.Errorf("sqlite: put doc %q: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every series and document whose key starts with
// prefix.
func (s *SQLiteStore) DeletePrefix(prefix string) error {
	pattern := prefix + "%"
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: delete prefix %q: %w", prefix, err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM samples WHERE key LIKE ?`,
		`DELETE FROM series_keys WHERE key LIKE ?`,
		`DELETE FROM docs WHERE key LIKE ?`,
	} {
		if _, err := tx.Exec(stmt, pattern); err != nil {
			return fmt.Errorf("sqlite: delete prefix %q: %w", prefix, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) hasKey(key string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM series_keys WHERE key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: lookup %q: %w", key, err)
	}
	return true, nil
}

func insertSamples(tx *sql.Tx, key string, series vesta.Series) error {
	stmt, err := tx.Prepare(`INSERT INTO samples (key, ts, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: insert into %q: %w", key, err)
	}
	defer stmt.Close()

	for _, sample := range series {
		if _, err := stmt.Exec(key, core.ToMillis(sample.Date), sample.Value); err != nil {
			return fmt.Errorf("sqlite: insert into %q: %w", key, err)
		}
	}
	return nil
}
