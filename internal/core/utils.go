package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// Slugify normalizes an identifier into a URL- and key-safe slug.
// Words are joined with underscores, matching the historical key layout of
// the cache store.
func Slugify(s string) string {
	return strings.ReplaceAll(slug.Make(s), "-", "_")
}

// ParseDate parses a YYYY-MM-DD string into a time.Time at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateFmt, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s' (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

// ParseDatetime parses either YYYY-MM-DD or "YYYY-MM-DD HH:MM:SS".
func ParseDatetime(s string) (time.Time, error) {
	if t, err := time.Parse(DatetimeFmt, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(DateFmt, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid datetime '%s' (expected YYYY-MM-DD or YYYY-MM-DD HH:MM:SS)", s)
}

// FromMillis converts a Unix-millisecond timestamp into a UTC time.Time.
// Vesta reports all measurement dates in milliseconds.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ToMillis converts a time.Time into a Unix-millisecond timestamp.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FormatDatetime formats a time.Time as "YYYY-MM-DD HH:MM:SS".
func FormatDatetime(t time.Time) string {
	return t.Format(DatetimeFmt)
}
