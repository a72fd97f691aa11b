// Package core provides shared constants and helpers for the comepos fetcher.
package core

import (
	"os"
	"path/filepath"
)

// Vesta service configuration
const (
	DefaultBaseURL = "http://37.187.134.115/VestaEnergy/Application/service/"
	UsernameEnvVar = "COMEPOS_USERNAME"
	PasswordEnvVar = "COMEPOS_PASSWORD"
	BaseURLEnvVar  = "COMEPOS_BASE_URL"
	StoreEnvVar    = "COMEPOS_STORE"
	ConfigEnvVar   = "COMEPOS_CONFIG"
)

// Date formats
const (
	DateFmt     = "2006-01-02"
	DatetimeFmt = "2006-01-02 15:04:05"
)

// MaxRowsPerRequest caps the number of rows asked from Vesta in one history
// request. Larger periods are sliced to stay under this limit.
const MaxRowsPerRequest = 100000

// AppName is used for the default data directory.
const AppName = "comepos_fetcher"

// Version is the current CLI version.
const Version = "1.0.0"

// DefaultStorePath returns the default location of the local cache store.
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, AppName, "store.db")
}
