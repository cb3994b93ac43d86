package swx

// kpap.go - Conversions between the quasi-logarithmic Kp index and the
// linear equivalent-range ap index, plus the daily Ap aggregate.
//
// The 28-step table is the standard NOAA/GFZ correspondence
// (https://www.ngdc.noaa.gov/stp/GEOMAG/kp_ap.html). Kp steps run in
// thirds: 0, 0+, 1-, 1, ... 9, i.e. step i has Kp = i/3.

import (
	"math"
	"sort"
	"time"
)

// kpToAp maps Kp truncated to tenths (floor(kp*10)) to equivalent ap.
// Only the 28 canonical steps are present; anything else is not a Kp.
var kpToAp = map[int]float64{
	0: 0, 3: 2, 6: 3, 10: 4, 13: 5, 16: 6, 20: 7, 23: 9,
	26: 12, 30: 15, 33: 18, 36: 22, 40: 27, 43: 32, 46: 39,
	50: 48, 53: 56, 56: 67, 60: 80, 63: 94, 66: 111, 70: 132,
	73: 154, 76: 179, 80: 207, 83: 236, 86: 300, 90: 400,
}

// apSteps holds the 28 canonical ap values in ascending order; the Kp of
// apSteps[i] is i/3.
var apSteps = [28]float64{
	0, 2, 3, 4, 5, 6, 7, 9, 12, 15, 18, 22, 27, 32, 39,
	48, 56, 67, 80, 94, 111, 132, 154, 179, 207, 236, 300, 400,
}

// KpToAp converts a 3-hourly Kp value to the equivalent-range ap index.
// The Kp is truncated to one decimal before lookup, so thirds stored as
// 2.33 or 2.333 both resolve to the 2+ step. Non-finite or off-scale
// values report ok=false.
func KpToAp(kp float64) (float64, bool) {
	if math.IsNaN(kp) || math.IsInf(kp, 0) {
		return 0, false
	}
	tenth := int(math.Floor(kp*10 + 1e-6))
	ap, ok := kpToAp[tenth]
	return ap, ok
}

// ApToKp converts an ap value to the best matching Kp step. Exact table
// values map to their own step; intermediate values round down to the
// largest step at or below the input. Values below 0 or above 400 report
// ok=false.
func ApToKp(ap float64) (float64, bool) {
	if math.IsNaN(ap) || math.IsInf(ap, 0) {
		return 0, false
	}
	if ap < apSteps[0] || ap > apSteps[len(apSteps)-1] {
		return 0, false
	}
	// First step strictly above ap, minus one.
	i := sort.Search(len(apSteps), func(j int) bool { return apSteps[j] > ap })
	return float64(i-1) / 3, true
}

// DailyAp reduces a 3-hourly ap series to daily Ap values: the mean of
// the eight 3-hourly indices of each UTC day. Days with at least one
// sample but fewer than eight non-fill values yield the fill value.
// Output is stamped at 00:00 UTC in ascending day order.
func DailyAp(samples []Sample, fill float64) []Sample {
	type acc struct {
		sum float64
		n   int
	}
	days := make(map[time.Time]*acc)
	for _, s := range samples {
		day := time.Date(s.Time.Year(), s.Time.Month(), s.Time.Day(),
			0, 0, 0, 0, time.UTC)
		a, ok := days[day]
		if !ok {
			a = &acc{}
			days[day] = a
		}
		if !IsFill(s.Value, fill) {
			a.sum += s.Value
			a.n++
		}
	}

	out := make([]Sample, 0, len(days))
	for day, a := range days {
		v := fill
		if a.n >= 8 {
			v = a.sum / float64(a.n)
		}
		out = append(out, Sample{Time: day, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
