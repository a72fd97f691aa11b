// Package export writes cached series out as CSV files.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/locie/comepos-fetcher/internal/store"
)

// Options bounds an export. Zero-value times mean unbounded.
type Options struct {
	Start time.Time
	End   time.Time
}

// WriteAll exports every series in the store to dir, one CSV per key.
// The key hierarchy becomes a directory hierarchy:
// /mybuilding/sensors/temp_1 -> <dir>/mybuilding/sensors/temp_1.csv.
// Rows outside [opts.Start, opts.End] are skipped.
func WriteAll(st store.Store, dir string, opts Options, log logrus.FieldLogger) error {
	keys, err := st.Keys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := writeOne(st, dir, key, opts); err != nil {
			return err
		}
		if log != nil {
			log.WithField("key", key).Debug("exported")
		}
	}
	return nil
}

func writeOne(st store.Store, dir, key string, opts Options) error {
	series, err := st.Get(key)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(key, "/"))+".csv")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export %q: %w", key, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export %q: %w", key, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "value"}); err != nil {
		return fmt.Errorf("export %q: %w", key, err)
	}
	for _, sample := range series {
		if !opts.Start.IsZero() && sample.Date.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && sample.Date.After(opts.End) {
			continue
		}
		record := []string{
			sample.Date.UTC().Format(time.RFC3339),
			strconv.FormatFloat(sample.Value, 'g', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("export %q: %w", key, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export %q: %w", key, err)
	}
	return f.Close()
}
