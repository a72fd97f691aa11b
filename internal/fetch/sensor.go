package fetch

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/locie/comepos-fetcher/internal/progress"
	"github.com/locie/comepos-fetcher/internal/store"
	"github.com/locie/comepos-fetcher/internal/vesta"
)

// SeriesSource is the remote collaborator the fetch engine consumes for
// history data. Retry and auth are the transport's concern; by the time a
// call returns here it has either succeeded or definitively failed.
type SeriesSource interface {
	VariableHistory(buildingID, serviceName, variableName string, start, end *time.Time) (vesta.Series, error)
	VariableHistorySize(buildingID, serviceName, variableName string, start, end *time.Time) (int, error)
}

// Sensor is the incremental cache for one sensor variable. Data returns
// the cached table, bootstrapping it with a full fetch when absent;
// Refresh appends the rows that accumulated since the last cached
// timestamp.
type Sensor struct {
	Info vesta.SensorInfo
	Slug string

	buildingID string
	status     vesta.BuildingStatus
	source     SeriesSource
	store      store.Store
	planner    Planner
	reporter   progress.Reporter
	log        logrus.FieldLogger
}

// Key returns the store key of the sensor's cached table.
func (s *Sensor) Key() string {
	return store.SensorKey(s.buildingID, s.Slug)
}

// Data returns the full cached table for the sensor. When no cache entry
// exists yet it performs a full fetch over the building's whole
// acquisition period and persists the result. A present cache entry is
// returned unchanged; call Refresh for incremental updates.
func (s *Sensor) Data() (vesta.Series, error) {
	series, err := s.store.Get(s.Key())
	if err == nil {
		return series, nil
	}
	if !errors.Is(err, store.ErrKeyNotFound) {
		return nil, err
	}
	return s.bootstrap()
}

// Refresh fetches the rows newer than the cached watermark and appends
// them to the cached table. Without a cache entry it behaves like Data.
// With no new remote rows it is a no-op: no append is issued.
func (s *Sensor) Refresh() error {
	watermark, cached, err := s.Watermark()
	if err != nil {
		return err
	}
	if !cached {
		_, err := s.bootstrap()
		return err
	}

	// Strictly after the watermark; the remote resolution is one
	// millisecond.
	since := watermark.Add(time.Millisecond)
	end := s.status.LastValueChanged
	if !end.After(watermark) {
		s.log.WithField("sensor", s.Slug).Debug("no change since watermark")
		return nil
	}

	rowCount, err := s.OnlineLength(&since)
	if err != nil {
		return err
	}
	plan := s.planner.Plan(since, end, rowCount)

	fetched, err := s.executePlan(plan)
	if err != nil {
		return err
	}
	// The remote bounds requests at second resolution, so a slice may
	// still hand back the watermark row itself.
	fresh := fetched.After(watermark)
	if len(fresh) == 0 {
		s.log.WithField("sensor", s.Slug).Debug("refresh found no new rows")
		return nil
	}
	return s.store.Append(s.Key(), fresh)
}

// Watermark returns the latest cached timestamp for the sensor, or false
// when the sensor has no cached data.
func (s *Sensor) Watermark() (time.Time, bool, error) {
	series, err := s.store.Get(s.Key())
	if errors.Is(err, store.ErrKeyNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	watermark, ok := series.Watermark()
	return watermark, ok, nil
}

// OnlineLength returns the number of rows the remote holds for the sensor,
// optionally from since onward.
func (s *Sensor) OnlineLength(since *time.Time) (int, error) {
	return s.source.VariableHistorySize(
		s.buildingID, s.Info.ServiceName, s.Info.VariableName, since, nil,
	)
}

// bootstrap performs the first-time full fetch of the sensor and creates
// its cache entry.
func (s *Sensor) bootstrap() (vesta.Series, error) {
	rowCount, err := s.OnlineLength(nil)
	if err != nil {
		return nil, err
	}
	plan := s.planner.Plan(s.status.FirstMeasurement, s.status.LastValueChanged, rowCount)

	series, err := s.executePlan(plan)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(s.Key(), series); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"sensor": s.Slug,
		"rows":   len(series),
	}).Debug("bootstrapped cache entry")
	return series, nil
}

// executePlan fetches every planned range in order and concatenates the
// results. Slice order is preserved, which keeps the merged table
// timestamp-ascending. Empty slices are tolerated; transport errors abort
// the whole operation.
func (s *Sensor) executePlan(plan []Range) (vesta.Series, error) {
	merged := vesta.Series{}
	for i, r := range plan {
		if r.ZeroWidth() {
			continue
		}
		start, end := r.Start, r.End
		slice, err := s.source.VariableHistory(
			s.buildingID, s.Info.ServiceName, s.Info.VariableName, &start, &end,
		)
		if err != nil {
			return nil, fmt.Errorf("sensor %s: slice %d/%d: %w", s.Slug, i+1, len(plan), err)
		}
		// Adjacent ranges share a boundary timestamp and the remote
		// bounds are inclusive, so drop rows already merged.
		if last, ok := merged.Watermark(); ok {
			slice = slice.After(last)
		}
		merged = append(merged, slice...)
		s.reporter.Update(i+1, len(plan), s.Slug)
	}
	return merged, nil
}
