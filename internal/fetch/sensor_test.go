package fetch

import (
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locie/comepos-fetcher/internal/store"
	"github.com/locie/comepos-fetcher/internal/vesta"
)

const (
	testBuildingID = "bat-1"
	testSlug       = "s1_temp"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// samples returns n hourly samples starting at start.
func samples(start time.Time, n int) vesta.Series {
	series := make(vesta.Series, n)
	for i := range series {
		series[i] = vesta.Sample{Date: start.Add(time.Duration(i) * time.Hour), Value: float64(i)}
	}
	return series
}

// newTestTransport seeds one building with one sensor whose history is the
// given series. Status bounds follow the series.
func newTestTransport(history vesta.Series) *vesta.InMemoryTransport {
	tr := vesta.NewInMemoryTransport()
	tr.Buildings = []vesta.Building{{ID: testBuildingID, Name: "Maison A", Status: "active"}}
	tr.Sensors[testBuildingID] = []vesta.SensorInfo{{
		ID:           "42",
		Zone:         "salon",
		Device:       "dev-1",
		Label:        "Température salon",
		Type:         "temperature",
		ServiceName:  "zone_svc",
		VariableName: "temp",
		UniqueID:     "S1 temp",
		Unit:         "°C",
		Historics:    true,
	}}
	status := vesta.BuildingStatus{}
	if len(history) > 0 {
		status.FirstMeasurement = history[0].Date
		status.LastValueChanged = history[len(history)-1].Date
	}
	tr.Statuses[testBuildingID] = status
	tr.SeedHistory(testBuildingID, "zone_svc", "temp", history)
	return tr
}

func newTestBuilding(t *testing.T, tr *vesta.InMemoryTransport, st store.Store, opts ...Option) *Building {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	building, err := NewBuilding(vesta.NewService(tr, quietLogger()), st, testBuildingID, opts...)
	require.NoError(t, err)
	return building
}

func testSensor(t *testing.T, b *Building) *Sensor {
	t.Helper()
	sensor, ok := b.Sensor(testSlug)
	require.True(t, ok, "sensor %s not found", testSlug)
	return sensor
}

func TestDataBootstrapsCache(t *testing.T) {
	start := date("2021-01-01T00:00:00Z")
	tr := newTestTransport(samples(start, 10))
	st := store.NewMemoryStore()
	sensor := testSensor(t, newTestBuilding(t, tr, st))

	series, err := sensor.Data()
	require.NoError(t, err)
	assert.Len(t, series, 10)

	// Exactly one persistence operation, a put.
	require.Len(t, st.Writes, 1)
	assert.Equal(t, "put", st.Writes[0].Op)
	assert.Equal(t, sensor.Key(), st.Writes[0].Key)
	assert.Equal(t, "/bat_1/sensors/s1_temp", sensor.Key())

	// A second call serves from cache without touching the remote.
	tr.Reset()
	cached, err := sensor.Data()
	require.NoError(t, err)
	assert.Len(t, cached, 10)
	assert.Zero(t, tr.RequestsMade("getSensorHistory.php"))
	assert.Zero(t, tr.RequestsMade("getSensorHistorySize.php"))
}

func TestDataSlicesLargeHistory(t *testing.T) {
	start := date("2021-01-01T00:00:00Z")
	// 9 hourly samples; limit 4 gives 9/4+1 = 3 boundaries, 2 slices,
	// with the sample at +4h sitting exactly on the shared boundary.
	history := samples(start, 9)
	tr := newTestTransport(history)
	st := store.NewMemoryStore()
	sensor := testSensor(t, newTestBuilding(t, tr, st, WithMaxRows(4)))

	series, err := sensor.Data()
	require.NoError(t, err)
	assert.Equal(t, 2, tr.RequestsMade("getSensorHistory.php"))

	// The merged table covers everything once, timestamp-ascending.
	require.Len(t, series, 9)
	for i := 1; i < len(series); i++ {
		assert.True(t, series[i].Date.After(series[i-1].Date),
			"row %d out of order or duplicated", i)
	}
}

func TestRefreshAppendsOnlyNewRows(t *testing.T) {
	start := date("2021-01-01T00:00:00Z")
	full := samples(start, 8)
	tr := newTestTransport(full)
	st := store.NewMemoryStore()
	sensor := testSensor(t, newTestBuilding(t, tr, st))

	// Five rows already cached; three accumulated remotely since.
	st.Seed(sensor.Key(), full[:5])
	watermark := full[4].Date

	require.NoError(t, sensor.Refresh())

	series, err := st.Get(sensor.Key())
	require.NoError(t, err)
	require.Len(t, series, 8)

	require.Len(t, st.Writes, 1)
	assert.Equal(t, "append", st.Writes[0].Op)
	assert.Equal(t, 3, st.Writes[0].Rows)

	// The size request is bounded strictly after the watermark.
	var sizeStart string
	for _, entry := range tr.RequestLog {
		if entry.Endpoint == "getSensorHistorySize.php" {
			sizeStart = entry.Params.Get("start")
		}
	}
	require.NotEmpty(t, sizeStart)
	since := watermark.Add(time.Millisecond)
	assert.Equal(t, strconv.FormatInt(since.Unix(), 10), sizeStart)
}

func TestRefreshWithoutNewDataIsNoop(t *testing.T) {
	start := date("2021-06-01T00:00:00Z")
	full := samples(start, 6)
	tr := newTestTransport(full)
	st := store.NewMemoryStore()
	sensor := testSensor(t, newTestBuilding(t, tr, st))

	st.Seed(sensor.Key(), full)
	tr.Reset()

	require.NoError(t, sensor.Refresh())
	assert.Empty(t, st.Writes, "no append may be issued when nothing is new")
	assert.Zero(t, tr.RequestsMade("getSensorHistory.php"))

	// Refreshing twice in a row leaves the table unchanged.
	require.NoError(t, sensor.Refresh())
	series, err := st.Get(sensor.Key())
	require.NoError(t, err)
	assert.Len(t, series, 6)
}

func TestRefreshBootstrapsWhenCacheEmpty(t *testing.T) {
	start := date("2021-01-01T00:00:00Z")
	tr := newTestTransport(samples(start, 7))
	st := store.NewMemoryStore()
	sensor := testSensor(t, newTestBuilding(t, tr, st))

	require.NoError(t, sensor.Refresh())

	require.Len(t, st.Writes, 1)
	assert.Equal(t, "put", st.Writes[0].Op)
	assert.Equal(t, 7, st.Writes[0].Rows)
}

func TestRefreshDropsRowsAtOrBelowWatermark(t *testing.T) {
	start := date("2021-01-01T00:00:00Z")
	full := samples(start, 6)
	tr := newTestTransport(full)
	st := store.NewMemoryStore()
	sensor := testSensor(t, newTestBuilding(t, tr, st))

	// The remote bounds requests at second resolution, so the slice
	// containing the watermark row comes back. It must not be
	// re-persisted.
	st.Seed(sensor.Key(), full[:5])

	require.NoError(t, sensor.Refresh())

	series, err := st.Get(sensor.Key())
	require.NoError(t, err)
	require.Len(t, series, 6)
	for i := 1; i < len(series); i++ {
		assert.True(t, series[i].Date.After(series[i-1].Date))
	}
}

func TestMalformedSliceDegradesToEmpty(t *testing.T) {
	start := date("2021-01-01T00:00:00Z")
	history := samples(start, 9)
	tr := newTestTransport(history)
	// Limit 3 gives 9/3+1 = 4 boundaries, 3 slices; the second one
	// answers with garbage.
	tr.Intercept = func(endpoint string, call int) ([]byte, bool) {
		if endpoint == "getSensorHistory.php" && call == 2 {
			return []byte("<html>maintenance</html>"), true
		}
		return nil, false
	}
	st := store.NewMemoryStore()
	sensor := testSensor(t, newTestBuilding(t, tr, st, WithMaxRows(3)))

	series, err := sensor.Data()
	require.NoError(t, err, "a bad slice must not abort the fetch")

	assert.Equal(t, 3, tr.RequestsMade("getSensorHistory.php"))
	assert.Less(t, len(series), 9, "the bad slice's rows are missing")
	assert.NotEmpty(t, series, "the good slices' rows survive")
	for i := 1; i < len(series); i++ {
		assert.True(t, series[i].Date.After(series[i-1].Date))
	}
}

func TestWatermark(t *testing.T) {
	start := date("2021-01-01T00:00:00Z")
	full := samples(start, 3)
	tr := newTestTransport(full)
	st := store.NewMemoryStore()
	sensor := testSensor(t, newTestBuilding(t, tr, st))

	_, ok, err := sensor.Watermark()
	require.NoError(t, err)
	assert.False(t, ok, "no watermark before bootstrap")

	st.Seed(sensor.Key(), full)
	watermark, ok, err := sensor.Watermark()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, full[2].Date, watermark)
}
