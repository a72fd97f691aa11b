package vesta

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// InMemoryTransport is a lightweight simulation of the Vesta web service,
// sufficient for unit-testing the fetch and cache logic without a network.
type InMemoryTransport struct {
	Buildings  []Building
	Zones      map[string][]Zone
	Statuses   map[string]BuildingStatus
	Sensors    map[string][]SensorInfo
	Histories  map[string]Series // keyed by building/serviceName/variableName
	Failures   map[string]error  // per-endpoint forced errors
	Malformed  map[string]bool   // per-endpoint garbage responses
	RequestLog []RequestLogEntry

	// Intercept, when set, may override the response for one call.
	// call counts requests to that endpoint, starting at 1. Return
	// ok=false to fall through to the normal behaviour.
	Intercept func(endpoint string, call int) (body []byte, ok bool)
}

// RequestLogEntry records a request made to the transport.
type RequestLogEntry struct {
	Endpoint string
	Params   url.Values
}

// NewInMemoryTransport creates an empty in-memory transport.
func NewInMemoryTransport() *InMemoryTransport {
	return &InMemoryTransport{
		Zones:     make(map[string][]Zone),
		Statuses:  make(map[string]BuildingStatus),
		Sensors:   make(map[string][]SensorInfo),
		Histories: make(map[string]Series),
		Failures:  make(map[string]error),
		Malformed: make(map[string]bool),
	}
}

// HistoryKey builds the key under which SeedHistory stores a series.
func HistoryKey(buildingID, serviceName, variableName string) string {
	return buildingID + "/" + serviceName + "/" + variableName
}

// SeedHistory registers the full remote history of one sensor variable.
func (t *InMemoryTransport) SeedHistory(buildingID, serviceName, variableName string, series Series) {
	t.Histories[HistoryKey(buildingID, serviceName, variableName)] = series
}

// RequestsMade returns the number of requests recorded, optionally filtered
// by endpoint.
func (t *InMemoryTransport) RequestsMade(endpoint string) int {
	if endpoint == "" {
		return len(t.RequestLog)
	}
	n := 0
	for _, entry := range t.RequestLog {
		if entry.Endpoint == endpoint {
			n++
		}
	}
	return n
}

// Reset clears the recorded requests.
func (t *InMemoryTransport) Reset() {
	t.RequestLog = nil
}

// Get simulates a raw Vesta request.
func (t *InMemoryTransport) Get(endpoint string, params url.Values) ([]byte, error) {
	t.RequestLog = append(t.RequestLog, RequestLogEntry{Endpoint: endpoint, Params: copyValues(params)})

	if t.Intercept != nil {
		if body, ok := t.Intercept(endpoint, t.RequestsMade(endpoint)); ok {
			return body, nil
		}
	}
	if err, ok := t.Failures[endpoint]; ok {
		return nil, err
	}
	if t.Malformed[endpoint] {
		return []byte("<html>maintenance</html>"), nil
	}

	switch endpoint {
	case "login.php":
		return []byte("test-token"), nil
	case "logout.php":
		return []byte(""), nil
	case "getBuildingList.php":
		return json.Marshal(t.Buildings)
	case "getZones.php":
		return json.Marshal(t.Zones[params.Get("building")])
	case "getSensors.php":
		return json.Marshal(t.Sensors[params.Get("building")])
	case "getStatus.php":
		status, ok := t.Statuses[params.Get("building")]
		if !ok {
			return []byte("[]"), nil
		}
		return json.Marshal([]map[string]int64{{
			"firstMeasurementDate":         status.FirstMeasurement.UnixMilli(),
			"lastVariableValueChangedDate": status.LastValueChanged.UnixMilli(),
		}})
	case "getSensorHistory.php":
		series := t.filteredHistory(params)
		rows := make([]map[string]interface{}, len(series))
		for i, sample := range series {
			rows[i] = map[string]interface{}{
				"date":  sample.Date.UnixMilli(),
				"value": sample.Value,
			}
		}
		return json.Marshal(rows)
	case "getSensorHistorySize.php":
		return []byte(strconv.Itoa(len(t.filteredHistory(params)))), nil
	}

	return nil, fmt.Errorf("unknown endpoint %s", endpoint)
}

// filteredHistory applies the optional start/end bounds (Unix seconds, as
// sent by the real client) to the seeded series.
func (t *InMemoryTransport) filteredHistory(params url.Values) Series {
	key := HistoryKey(params.Get("building"), params.Get("serviceName"), params.Get("variableName"))
	series := t.Histories[key]

	if s := params.Get("start"); s != "" {
		if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
			series = filterSeries(series, func(sample Sample) bool {
				return !sample.Date.Before(time.Unix(sec, 0).UTC())
			})
		}
	}
	if e := params.Get("end"); e != "" {
		if sec, err := strconv.ParseInt(e, 10, 64); err == nil {
			series = filterSeries(series, func(sample Sample) bool {
				return !sample.Date.After(time.Unix(sec, 0).UTC())
			})
		}
	}
	return series
}

func filterSeries(series Series, keep func(Sample) bool) Series {
	out := make(Series, 0, len(series))
	for _, sample := range series {
		if keep(sample) {
			out = append(out, sample)
		}
	}
	return out
}

func copyValues(params url.Values) url.Values {
	out := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}
