// Package fetch implements the incremental fetch-and-cache engine: planning
// bounded history requests, merging fetched slices into the local store and
// refreshing whole buildings.
package fetch

import (
	"time"

	"github.com/locie/comepos-fetcher/internal/core"
)

// Range is one bounded sub-period of a larger fetch, sized to stay under
// the rows-per-request limit.
type Range struct {
	Start time.Time
	End   time.Time
}

// ZeroWidth reports whether the range covers no time at all.
func (r Range) ZeroWidth() bool {
	return !r.End.After(r.Start)
}

// Planner partitions a fetch period into ranges whose expected row count
// stays below MaxRows. It is a pure function of its inputs; no remote or
// store access happens here.
type Planner struct {
	MaxRows int
}

// NewPlanner returns a planner with the given rows-per-request limit.
// Non-positive limits select the default.
func NewPlanner(maxRows int) Planner {
	if maxRows <= 0 {
		maxRows = core.MaxRowsPerRequest
	}
	return Planner{MaxRows: maxRows}
}

// Plan partitions [start, end] into contiguous ranges given the known
// remote row count for that period.
//
// A row count of zero yields an empty plan. A count under the limit yields
// a single range spanning the full period. Anything larger is split at
// rowCount/MaxRows + 1 equally spaced boundary timestamps, adjacent pairs
// forming the ranges. A zero-width period yields a single zero-width range
// which callers must treat as "no new data".
func (p Planner) Plan(start, end time.Time, rowCount int) []Range {
	if rowCount == 0 {
		return nil
	}
	if !end.After(start) {
		return []Range{{Start: start, End: start}}
	}
	if rowCount < p.MaxRows {
		return []Range{{Start: start, End: end}}
	}

	nSlices := rowCount/p.MaxRows + 1
	bounds := boundaries(start, end, nSlices)

	ranges := make([]Range, 0, nSlices-1)
	for i := 0; i+1 < len(bounds); i++ {
		ranges = append(ranges, Range{Start: bounds[i], End: bounds[i+1]})
	}
	return ranges
}

// boundaries returns n equally spaced timestamps from start to end,
// inclusive on both sides. n must be at least 2.
func boundaries(start, end time.Time, n int) []time.Time {
	span := end.Sub(start)
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		out[i] = start.Add(time.Duration(int64(span) / int64(n-1) * int64(i)))
	}
	// The last boundary lands exactly on end regardless of division
	// remainders.
	out[n-1] = end
	return out
}
