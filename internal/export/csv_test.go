package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locie/comepos-fetcher/internal/store"
	"github.com/locie/comepos-fetcher/internal/vesta"
)

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	st.Seed("/bat_1/sensors/temp", vesta.Series{
		{Date: base, Value: 20.5},
		{Date: base.AddDate(0, 0, 1), Value: 21},
		{Date: base.AddDate(0, 0, 2), Value: 19.75},
	})
	st.Seed("/bat_1/sensors/co2", vesta.Series{
		{Date: base, Value: 400},
	})
	return st
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteAll(t *testing.T) {
	st := seedStore(t)
	dir := t.TempDir()

	require.NoError(t, WriteAll(st, dir, Options{}, nil))

	records := readCSV(t, filepath.Join(dir, "bat_1", "sensors", "temp.csv"))
	require.Len(t, records, 4) // header + 3 rows
	assert.Equal(t, []string{"date", "value"}, records[0])
	assert.Equal(t, []string{"2021-01-01T00:00:00Z", "20.5"}, records[1])

	records = readCSV(t, filepath.Join(dir, "bat_1", "sensors", "co2.csv"))
	assert.Len(t, records, 2)
}

func TestWriteAllDateRange(t *testing.T) {
	st := seedStore(t)
	dir := t.TempDir()

	opts := Options{
		Start: time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2021, 1, 2, 23, 59, 59, 0, time.UTC),
	}
	require.NoError(t, WriteAll(st, dir, opts, nil))

	records := readCSV(t, filepath.Join(dir, "bat_1", "sensors", "temp.csv"))
	require.Len(t, records, 2)
	assert.Equal(t, "2021-01-02T00:00:00Z", records[1][0])
}
