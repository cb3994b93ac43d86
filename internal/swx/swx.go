// Package swx provides the space weather domain model shared by the
// reconciliation engine, the bulletin source adapters, and the warehouse
// tools: index identities and cadences, time-stamped samples, fill value
// semantics, and the standard Kp/ap/F10.7 index conversions.
package swx

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SchemaVersion is the current combined-series schema version.
const SchemaVersion = 1

// GeomagFill is the conventional fill value in geomagnetic products.
// Solar flux products use NaN.
const GeomagFill = -1.0

// Index identifies a geophysical index series.
type Index int

const (
	IndexKp      Index = iota // planetary Kp, 3-hourly
	IndexAp                   // equivalent-range ap, 3-hourly
	IndexApDaily              // daily Ap
	IndexF107                 // 10.7 cm solar radio flux, daily
	IndexSSN                  // sunspot number, daily
)

var indexNames = map[Index]string{
	IndexKp:      "kp",
	IndexAp:      "ap",
	IndexApDaily: "ap_daily",
	IndexF107:    "f107",
	IndexSSN:     "ssn",
}

// String returns the lowercase series name used in filenames, flags,
// and warehouse columns.
func (i Index) String() string {
	if name, ok := indexNames[i]; ok {
		return name
	}
	return fmt.Sprintf("index(%d)", int(i))
}

// Cadence returns the nominal reporting interval of the index.
func (i Index) Cadence() time.Duration {
	switch i {
	case IndexKp, IndexAp:
		return 3 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ParseIndex converts a series name as used on the command line back
// into an Index.
func ParseIndex(name string) (Index, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for idx, known := range indexNames {
		if known == want {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("unknown index %q", name)
}

// Sample is a single observation or prediction. Times are UTC.
type Sample struct {
	Time  time.Time
	Value float64
}

// IsFill reports whether v matches the fill value. NaN fill values
// require this helper since NaN never compares equal to itself.
func IsFill(v, fill float64) bool {
	if math.IsNaN(fill) {
		return math.IsNaN(v)
	}
	return v == fill
}

// CombinedRow is one row of the swx.combined warehouse table.
type CombinedRow struct {
	RunID string    `ch:"run_id"`
	Index string    `ch:"index"`
	Time  time.Time `ch:"time"`
	Value float64   `ch:"value"`
	Notes string    `ch:"notes"`
}

// SeriesRow is the flat on-disk record for CSV and Parquet extracts.
// Timestamp is Unix seconds UTC.
type SeriesRow struct {
	Timestamp int64   `parquet:"timestamp"`
	Value     float64 `parquet:"value"`
}
