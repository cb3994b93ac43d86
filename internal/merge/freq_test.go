package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stamps(hours ...int) []time.Time {
	out := make([]time.Time, len(hours))
	for i, h := range hours {
		out[i] = hour(h)
	}
	return out
}

func TestInferFreqDominantDelta(t *testing.T) {
	// 3-hourly with one 6 hour gap: 3h dominates.
	freq, ok := InferFreq(stamps(0, 3, 6, 12, 15))
	assert.True(t, ok)
	assert.Equal(t, 3*time.Hour, freq)
}

func TestInferFreqTieBreaksTowardSmallerDelta(t *testing.T) {
	freq, ok := InferFreq(stamps(0, 1, 3))
	assert.True(t, ok)
	assert.Equal(t, 1*time.Hour, freq)
}

func TestInferFreqNeedsTwoPoints(t *testing.T) {
	_, ok := InferFreq(nil)
	assert.False(t, ok)

	_, ok = InferFreq(stamps(0))
	assert.False(t, ok)
}

func TestInferFreqIgnoresNonPositiveDeltas(t *testing.T) {
	// A duplicated stamp contributes no delta.
	freq, ok := InferFreq([]time.Time{hour(0), hour(0), hour(1), hour(2)})
	assert.True(t, ok)
	assert.Equal(t, 1*time.Hour, freq)

	// Only duplicates: nothing to infer.
	_, ok = InferFreq([]time.Time{hour(0), hour(0)})
	assert.False(t, ok)
}
