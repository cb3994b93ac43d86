package swx

// f107.go - F10.7a, the 81-day centered mean of the daily 10.7 cm solar
// radio flux. 81 days is three solar rotations; the mean needs at least
// 41 real observations (half the window) to be reported.

import "time"

// f107aWindow is the half-width of the centered averaging window in days.
const f107aWindow = 40

// f107aMinPoints is the minimum number of non-fill observations required
// to report an average.
const f107aMinPoints = 41

// F107A computes the 81-day centered mean flux for each sample of a daily
// F10.7 series. Fill values never contribute to a mean; windows holding
// fewer than 41 observations yield the fill value. The output is aligned
// one-to-one with the input times.
func F107A(samples []Sample, fill float64) []Sample {
	byDay := make(map[time.Time]float64, len(samples))
	for _, s := range samples {
		if IsFill(s.Value, fill) {
			continue
		}
		byDay[dayOf(s.Time)] = s.Value
	}

	out := make([]Sample, len(samples))
	for i, s := range samples {
		center := dayOf(s.Time)
		sum := 0.0
		n := 0
		for d := -f107aWindow; d <= f107aWindow; d++ {
			if v, ok := byDay[center.AddDate(0, 0, d)]; ok {
				sum += v
				n++
			}
		}
		v := fill
		if n >= f107aMinPoints {
			v = sum / float64(n)
		}
		out[i] = Sample{Time: s.Time, Value: v}
	}
	return out
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
