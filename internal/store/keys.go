package store

import (
	"github.com/locie/comepos-fetcher/internal/core"
)

// Key layout inside the store, one subtree per building:
//
//	/<building-slug>/building_info
//	/<building-slug>/sensors_info
//	/<building-slug>/sensors/<sensor-slug>
//
// Sensor slugs derive from the sensor's unique source identifier, which
// keeps them collision-free within a building.

// SensorKey returns the series key for one sensor variable.
func SensorKey(buildingID, sensorSlug string) string {
	return "/" + core.Slugify(buildingID) + "/sensors/" + sensorSlug
}

// BuildingInfoKey returns the document key for a building's description.
func BuildingInfoKey(buildingID string) string {
	return "/" + core.Slugify(buildingID) + "/building_info"
}

// SensorsInfoKey returns the document key for a building's sensor list.
func SensorsInfoKey(buildingID string) string {
	return "/" + core.Slugify(buildingID) + "/sensors_info"
}

// BuildingPrefix returns the key prefix covering a building's whole subtree.
func BuildingPrefix(buildingID string) string {
	return "/" + core.Slugify(buildingID) + "/"
}
