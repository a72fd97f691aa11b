package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/locie/comepos-fetcher/internal/core"
	"github.com/locie/comepos-fetcher/internal/progress"
	"github.com/locie/comepos-fetcher/internal/store"
	"github.com/locie/comepos-fetcher/internal/vesta"
)

// Source is the full remote collaborator a building needs: series history
// plus the metadata endpoints. *vesta.Service satisfies it.
type Source interface {
	SeriesSource
	Buildings() ([]vesta.Building, error)
	BuildingStatus(buildingID string) (vesta.BuildingStatus, error)
	SensorList(buildingID string) ([]vesta.SensorInfo, error)
}

// Building is the handle for one monitored building: its metadata, its
// acquisition bounds and one Sensor handle per sensor variable.
//
// Construction resolves everything eagerly: building info and the sensor
// list come from the store when cached and from the remote otherwise, the
// status is always fetched live. Any failure surfaces from NewBuilding,
// not on first use.
type Building struct {
	ID     string
	Info   vesta.Building
	Status vesta.BuildingStatus

	// Sensors maps sensor slug to handle. Order holds the slugs in the
	// sensor list's order, which RefreshAll follows.
	Sensors map[string]*Sensor
	Order   []string

	store    store.Store
	reporter progress.Reporter
	log      logrus.FieldLogger
	maxRows  int
}

// Option configures a Building.
type Option func(*Building)

// WithReporter injects a progress reporter. The default discards updates.
func WithReporter(r progress.Reporter) Option {
	return func(b *Building) { b.reporter = r }
}

// WithLogger injects a logger. The default logs warnings to stderr.
func WithLogger(log logrus.FieldLogger) Option {
	return func(b *Building) { b.log = log }
}

// WithMaxRows overrides the rows-per-request limit used when planning
// fetches.
func WithMaxRows(maxRows int) Option {
	return func(b *Building) { b.maxRows = maxRows }
}

// NewBuilding builds the handle for buildingID.
func NewBuilding(source Source, st store.Store, buildingID string, opts ...Option) (*Building, error) {
	b := &Building{
		ID:       buildingID,
		Sensors:  make(map[string]*Sensor),
		store:    st,
		reporter: progress.Nop{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		b.log = logger
	}
	b.log = b.log.WithField("building", buildingID)

	info, err := b.loadInfo(source)
	if err != nil {
		return nil, err
	}
	b.Info = info

	status, err := source.BuildingStatus(buildingID)
	if err != nil {
		return nil, err
	}
	b.Status = status

	sensors, err := b.loadSensorList(source)
	if err != nil {
		return nil, err
	}

	planner := NewPlanner(b.maxRows)
	for _, info := range sensors {
		slug := core.Slugify(info.UniqueID)
		b.Sensors[slug] = &Sensor{
			Info:       info,
			Slug:       slug,
			buildingID: buildingID,
			status:     status,
			source:     source,
			store:      st,
			planner:    planner,
			reporter:   b.reporter,
			log:        b.log,
		}
		b.Order = append(b.Order, slug)
	}
	return b, nil
}

// loadInfo returns the building description, from the store when cached.
func (b *Building) loadInfo(source Source) (vesta.Building, error) {
	key := store.BuildingInfoKey(b.ID)

	var info vesta.Building
	err := b.store.GetDoc(key, &info)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, store.ErrKeyNotFound) {
		return vesta.Building{}, err
	}

	buildings, err := source.Buildings()
	if err != nil {
		return vesta.Building{}, err
	}
	for _, candidate := range buildings {
		if candidate.ID == b.ID {
			return candidate, b.store.PutDoc(key, candidate)
		}
	}
	return vesta.Building{}, fmt.Errorf("building %q not found in building list", b.ID)
}

// loadSensorList returns the sensor list, from the store when cached.
func (b *Building) loadSensorList(source Source) ([]vesta.SensorInfo, error) {
	key := store.SensorsInfoKey(b.ID)

	var sensors []vesta.SensorInfo
	err := b.store.GetDoc(key, &sensors)
	if err == nil {
		return sensors, nil
	}
	if !errors.Is(err, store.ErrKeyNotFound) {
		return nil, err
	}

	sensors, err = source.SensorList(b.ID)
	if err != nil {
		return nil, err
	}
	return sensors, b.store.PutDoc(key, sensors)
}

// Sensor returns the handle for one sensor slug.
func (b *Building) Sensor(slug string) (*Sensor, bool) {
	sensor, ok := b.Sensors[slug]
	return sensor, ok
}

// RefreshAll refreshes every sensor sequentially, in sensor-list order.
//
// Cancelling ctx stops the run between sensors: already refreshed sensors
// keep their new data, the rest stay untouched, and the partial run is
// reported as a warning rather than an error. A sensor that fails to
// refresh is logged and skipped; the remaining sensors still run.
func (b *Building) RefreshAll(ctx context.Context) error {
	var failed int
	for i, slug := range b.Order {
		if ctx.Err() != nil {
			b.log.Warn("interrupted; some sensors have not been updated")
			return nil
		}
		if err := b.Sensors[slug].Refresh(); err != nil {
			b.log.WithError(err).WithField("sensor", slug).Error("refresh failed")
			failed++
		}
		b.reporter.Update(i+1, len(b.Order), "refresh all sensors")
	}
	if failed > 0 {
		return fmt.Errorf("refresh incomplete: %d of %d sensors failed", failed, len(b.Order))
	}
	return nil
}

// SensorsData returns the cached table of every sensor, fetching the
// missing ones.
func (b *Building) SensorsData() (map[string]vesta.Series, error) {
	data := make(map[string]vesta.Series, len(b.Order))
	for _, slug := range b.Order {
		series, err := b.Sensors[slug].Data()
		if err != nil {
			return nil, err
		}
		data[slug] = series
	}
	return data, nil
}

// Clean removes the building's whole subtree from the store.
func (b *Building) Clean() error {
	return b.store.DeletePrefix(store.BuildingPrefix(b.ID))
}
