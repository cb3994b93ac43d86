package merge

// grid.go - Projection of collected samples onto the output grid. The
// grid is half open: start inclusive, stop exclusive, one slot per freq.

import "time"

// regrid places samples onto the regular grid covering [start, stop) at
// freq. Matching is exact: a sample lands on a slot only when its
// timestamp equals the slot time, later duplicates win, off-grid samples
// are dropped, and unmatched slots carry the fill value.
func regrid(times []time.Time, values []float64, start, stop time.Time, freq time.Duration, fill float64) ([]time.Time, []float64) {
	if freq <= 0 {
		return nil, nil
	}

	byStamp := make(map[int64]float64, len(times))
	for i, tt := range times {
		byStamp[tt.UnixNano()] = values[i]
	}

	n := gridLen(start, stop, freq)
	gridTimes := make([]time.Time, 0, n)
	gridValues := make([]float64, 0, n)

	for t := start; t.Before(stop); t = t.Add(freq) {
		v, ok := byStamp[t.UnixNano()]
		if !ok {
			v = fill
		}
		gridTimes = append(gridTimes, t)
		gridValues = append(gridValues, v)
	}
	return gridTimes, gridValues
}

func gridLen(start, stop time.Time, freq time.Duration) int {
	if freq <= 0 || !start.Before(stop) {
		return 0
	}
	return int((stop.Sub(start) + freq - 1) / freq)
}
