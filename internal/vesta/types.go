// Package vesta provides the HTTP client and types for the Vesta Energy
// building-monitoring web service.
package vesta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Transport is the interface for making raw Vesta requests.
// The production implementation is Client; tests use InMemoryTransport.
type Transport interface {
	Get(endpoint string, params url.Values) ([]byte, error)
}

// Building describes one monitored building.
type Building struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// Zone describes one zone inside a building.
type Zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BuildingStatus holds the acquisition bounds reported by getStatus.php.
// These resolve open fetch periods: the first measurement date is the
// earliest point any sensor has data, the last change date the latest.
type BuildingStatus struct {
	FirstMeasurement time.Time
	LastValueChanged time.Time
}

// SensorInfo describes one sensor variable as listed by getSensors.php.
type SensorInfo struct {
	ID           string `json:"id"`
	Zone         string `json:"zone"`
	Device       string `json:"device"`
	Label        string `json:"label"`
	Type         string `json:"type"`
	ServiceName  string `json:"serviceName"`
	VariableName string `json:"variableName"`
	UniqueID     string `json:"uniqueId"`
	Unit         string `json:"unit"`
	Historics    Flag   `json:"historics"`
}

// Flag is a bool that tolerates the service's mixed encodings
// (true/false, 0/1, "0"/"1").
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	switch string(data) {
	case "true", "1":
		*f = true
	case "false", "0", "", "null":
		*f = false
	default:
		return fmt.Errorf("cannot parse %q as flag", data)
	}
	return nil
}

// Sample is one measurement of a sensor variable.
type Sample struct {
	Date  time.Time
	Value float64
}

// Series is a timestamp-ascending sequence of samples with no duplicate
// timestamps.
type Series []Sample

// Watermark returns the latest timestamp in the series, or false when the
// series is empty.
func (s Series) Watermark() (time.Time, bool) {
	if len(s) == 0 {
		return time.Time{}, false
	}
	return s[len(s)-1].Date, true
}

// After returns the samples strictly newer than t.
func (s Series) After(t time.Time) Series {
	for i, sample := range s {
		if sample.Date.After(t) {
			return s[i:]
		}
	}
	return nil
}

// historyRow is the wire shape of one getSensorHistory.php row.
// Dates are Unix milliseconds; values arrive as numbers or quoted numbers.
type historyRow struct {
	Date  int64           `json:"date"`
	Value json.RawMessage `json:"value"`
}

func (r historyRow) sample() (Sample, error) {
	raw := string(bytes.Trim(r.Value, `"`))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("history value %q: %w", raw, err)
	}
	return Sample{Date: time.UnixMilli(r.Date).UTC(), Value: v}, nil
}
