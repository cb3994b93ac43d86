package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hour(h int) time.Time {
	return time.Date(2019, time.March, 1, h, 0, 0, 0, time.UTC)
}

func TestRegridPlacesExactMatchesOnly(t *testing.T) {
	times := []time.Time{hour(0), hour(3), hour(4)} // hour(4) is off grid
	values := []float64{1, 2, 9}

	gt, gv := regrid(times, values, hour(0), hour(9), 3*time.Hour, -1)

	require.Equal(t, []time.Time{hour(0), hour(3), hour(6)}, gt)
	assert.Equal(t, []float64{1, 2, -1}, gv)
}

func TestRegridFillsLeadingAndTrailingGaps(t *testing.T) {
	times := []time.Time{hour(6)}
	values := []float64{7}

	gt, gv := regrid(times, values, hour(0), hour(15), 3*time.Hour, -1)

	require.Len(t, gt, 5)
	assert.Equal(t, []float64{-1, -1, 7, -1, -1}, gv)
}

func TestRegridLaterDuplicateWins(t *testing.T) {
	times := []time.Time{hour(0), hour(0)}
	values := []float64{1, 2}

	_, gv := regrid(times, values, hour(0), hour(3), 3*time.Hour, -1)
	assert.Equal(t, []float64{2}, gv)
}

func TestRegridEmptyInputIsAllFill(t *testing.T) {
	gt, gv := regrid(nil, nil, hour(0), hour(9), 3*time.Hour, -1)

	require.Equal(t, []time.Time{hour(0), hour(3), hour(6)}, gt)
	assert.Equal(t, []float64{-1, -1, -1}, gv)
}

func TestRegridStopIsExclusive(t *testing.T) {
	times := []time.Time{hour(0), hour(3)}
	values := []float64{1, 2}

	gt, gv := regrid(times, values, hour(0), hour(3), 3*time.Hour, -1)

	require.Equal(t, []time.Time{hour(0)}, gt)
	assert.Equal(t, []float64{1}, gv)
}

func TestRegridDropsOutOfRangeSamples(t *testing.T) {
	times := []time.Time{hour(0).Add(-3 * time.Hour), hour(3), hour(12)}
	values := []float64{9, 2, 9}

	gt, gv := regrid(times, values, hour(0), hour(9), 3*time.Hour, -1)

	require.Equal(t, []time.Time{hour(0), hour(3), hour(6)}, gt)
	assert.Equal(t, []float64{-1, 2, -1}, gv)
}

func TestRegridRejectsNonPositiveFreq(t *testing.T) {
	gt, gv := regrid(nil, nil, hour(0), hour(9), 0, -1)
	assert.Nil(t, gt)
	assert.Nil(t, gv)
}

func TestGridLen(t *testing.T) {
	assert.Equal(t, 3, gridLen(hour(0), hour(9), 3*time.Hour))
	// A window that is not a whole number of steps still covers the
	// final partial slot.
	assert.Equal(t, 3, gridLen(hour(0), hour(5), 2*time.Hour))
	assert.Equal(t, 1, gridLen(hour(0), hour(1), 3*time.Hour))
	assert.Equal(t, 0, gridLen(hour(9), hour(0), 3*time.Hour))
	assert.Equal(t, 0, gridLen(hour(0), hour(9), 0))
}
