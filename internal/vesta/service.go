package vesta

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrEmptyResponse is returned when a metadata endpoint answers with an
// empty body. History endpoints instead degrade to an empty series.
var ErrEmptyResponse = errors.New("empty response from web request")

// Service is the typed layer over the Vesta endpoints.
//
// Building list, zone lists and sensor lists change rarely and are cached
// per call site for the lifetime of the Service. Building status and
// history are always fetched live.
type Service struct {
	transport Transport
	log       logrus.FieldLogger

	buildings []Building
	zones     map[string][]Zone
	sensors   map[string][]SensorInfo
}

// NewService creates a typed Vesta service over the given transport.
func NewService(transport Transport, log logrus.FieldLogger) *Service {
	if log == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		log = logger
	}
	return &Service{
		transport: transport,
		log:       log.WithField("component", "vesta"),
		zones:     make(map[string][]Zone),
		sensors:   make(map[string][]SensorInfo),
	}
}

// Buildings returns the buildings visible to the authenticated account.
func (s *Service) Buildings() ([]Building, error) {
	if s.buildings != nil {
		return s.buildings, nil
	}

	body, err := s.transport.Get("getBuildingList.php", nil)
	if err != nil {
		return nil, fmt.Errorf("building list: %w", err)
	}
	var buildings []Building
	if err := decodeList(body, &buildings); err != nil {
		return nil, fmt.Errorf("building list: %w", err)
	}

	s.buildings = buildings
	return buildings, nil
}

// Zones returns the zones of one building.
func (s *Service) Zones(buildingID string) ([]Zone, error) {
	if zones, ok := s.zones[buildingID]; ok {
		return zones, nil
	}

	q := url.Values{}
	q.Set("building", buildingID)
	body, err := s.transport.Get("getZones.php", q)
	if err != nil {
		return nil, fmt.Errorf("zone list for %s: %w", buildingID, err)
	}
	var zones []Zone
	if err := decodeList(body, &zones); err != nil {
		return nil, fmt.Errorf("zone list for %s: %w", buildingID, err)
	}

	s.zones[buildingID] = zones
	return zones, nil
}

// BuildingStatus returns the acquisition bounds of one building: the first
// measurement date and the date of the last variable value change.
func (s *Service) BuildingStatus(buildingID string) (BuildingStatus, error) {
	q := url.Values{}
	q.Set("building", buildingID)
	body, err := s.transport.Get("getStatus.php", q)
	if err != nil {
		return BuildingStatus{}, fmt.Errorf("status for %s: %w", buildingID, err)
	}

	var raw []map[string]json.Number
	if err := decodeList(body, &raw); err != nil {
		return BuildingStatus{}, fmt.Errorf("status for %s: %w", buildingID, err)
	}
	if len(raw) == 0 {
		return BuildingStatus{}, fmt.Errorf("status for %s: %w", buildingID, ErrEmptyResponse)
	}

	status := BuildingStatus{}
	for key, value := range raw[0] {
		ms, err := value.Int64()
		if err != nil {
			return BuildingStatus{}, fmt.Errorf("status for %s: field %s: %w", buildingID, key, err)
		}
		switch key {
		case "firstMeasurementDate":
			status.FirstMeasurement = time.UnixMilli(ms).UTC()
		case "lastVariableValueChangedDate":
			status.LastValueChanged = time.UnixMilli(ms).UTC()
		}
	}
	return status, nil
}

// SensorList returns the sensors available in one building.
// The transient "date"/"value" columns of the raw response carry the last
// observed value and are deliberately not part of SensorInfo.
func (s *Service) SensorList(buildingID string) ([]SensorInfo, error) {
	if sensors, ok := s.sensors[buildingID]; ok {
		return sensors, nil
	}

	q := url.Values{}
	q.Set("building", buildingID)
	body, err := s.transport.Get("getSensors.php", q)
	if err != nil {
		return nil, fmt.Errorf("sensor list for %s: %w", buildingID, err)
	}
	var sensors []SensorInfo
	if err := decodeList(body, &sensors); err != nil {
		return nil, fmt.Errorf("sensor list for %s: %w", buildingID, err)
	}

	s.sensors[buildingID] = sensors
	return sensors, nil
}

// VariableHistory returns the measurements of one sensor variable over the
// given period. Both bounds are optional. An empty or malformed response
// yields an empty series, not an error: single bad slices must not abort a
// multi-slice fetch.
func (s *Service) VariableHistory(buildingID, serviceName, variableName string, start, end *time.Time) (Series, error) {
	q := historyParams(buildingID, serviceName, variableName, start, end)

	body, err := s.transport.Get("getSensorHistory.php", q)
	if err != nil {
		return nil, fmt.Errorf("history for %s/%s: %w", serviceName, variableName, err)
	}

	var rows []historyRow
	if err := decodeList(body, &rows); err != nil {
		if !errors.Is(err, ErrEmptyResponse) {
			s.log.WithError(err).WithFields(logrus.Fields{
				"service":  serviceName,
				"variable": variableName,
			}).Warn("unusable history response; treating slice as empty")
		}
		return Series{}, nil
	}

	series := make(Series, 0, len(rows))
	for _, row := range rows {
		sample, err := row.sample()
		if err != nil {
			s.log.WithError(err).Warn("skipping unparsable history row")
			continue
		}
		series = append(series, sample)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return series, nil
}

// VariableHistorySize returns the number of rows the service holds for one
// sensor variable, optionally bounded to a period.
func (s *Service) VariableHistorySize(buildingID, serviceName, variableName string, start, end *time.Time) (int, error) {
	q := historyParams(buildingID, serviceName, variableName, start, end)

	body, err := s.transport.Get("getSensorHistorySize.php", q)
	if err != nil {
		return 0, fmt.Errorf("history size for %s/%s: %w", serviceName, variableName, err)
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, fmt.Errorf("history size for %s/%s: %w", serviceName, variableName, err)
	}
	return n, nil
}

func historyParams(buildingID, serviceName, variableName string, start, end *time.Time) url.Values {
	q := url.Values{}
	q.Set("building", buildingID)
	q.Set("serviceName", serviceName)
	q.Set("variableName", variableName)
	if start != nil {
		q.Set("start", strconv.FormatInt(start.Unix(), 10))
	}
	if end != nil {
		q.Set("end", strconv.FormatInt(end.Unix(), 10))
	}
	return q
}

// decodeList decodes a JSON array response, rejecting empty bodies and
// empty arrays the way every metadata caller needs.
func decodeList(body []byte, v interface{}) error {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" || trimmed == "[]" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
