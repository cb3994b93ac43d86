package merge

// freq.go - Grid frequency inference. The combined series may splice
// sources of different cadences; the output grid uses the delta that
// dominates the collected samples.

import "time"

// InferFreq returns the most common consecutive delta of an ascending
// time series. Ties break toward the smaller delta, which keeps every
// sample of the denser stretch on the grid. Series with fewer than two
// points (or no positive deltas) report ok=false.
func InferFreq(times []time.Time) (freq time.Duration, ok bool) {
	if len(times) < 2 {
		return 0, false
	}

	counts := make(map[time.Duration]int, 4)
	for i := 1; i < len(times); i++ {
		d := times[i].Sub(times[i-1])
		if d <= 0 {
			continue
		}
		counts[d]++
	}

	best := time.Duration(0)
	bestN := 0
	for d, n := range counts {
		if n > bestN || (n == bestN && d < best) {
			best, bestN = d, n
		}
	}
	return best, bestN > 0
}
