package sources

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swxlab/swx-apps/internal/merge"
)

const forecastBulletin = `:Product: 3-Day Geomagnetic Forecast
:Issued: 2019 Mar 18 0030 UTC
# Prepared by the U.S. Dept. of Commerce, NOAA, Space Weather Prediction Center
#
A. NOAA Geomagnetic Activity Observation and Forecast

The greatest expected 3 hr Kp for Mar 18-Mar 20 2019 is 4.00.

NOAA Kp index forecast 18 Mar - 20 Mar

            Mar 18    Mar 19    Mar 20
00-03UT        4         3         2
03-06UT        4         3         2
06-09UT        3         3         2
09-12UT        3         2         2
12-15UT        2         2         1
15-18UT        2         2         1
18-21UT        3         2         2
21-00UT        3         2         2
`

const forecastBulletinNext = `:Product: 3-Day Geomagnetic Forecast
:Issued: 2019 Mar 19 0030 UTC
#
NOAA Kp index forecast 19 Mar - 21 Mar

            Mar 19    Mar 20    Mar 21
00-03UT        5         3         2
03-06UT        5         3         2
06-09UT        4         3         2
09-12UT        4         2         2
12-15UT        3         2         1
15-18UT        3         2         1
18-21UT        3         2         2
21-00UT        3         2         2
`

const forecastBulletinStorm = `:Product: 3-Day Geomagnetic Forecast
:Issued: 2019 Mar 18 0030 UTC
#
NOAA Kp index forecast 18 Mar - 20 Mar

            Mar 18    Mar 19    Mar 20
00-03UT      6.00 (G2)   5.33 (G1)   4.00
03-06UT      4.00       3.33       2.33
06-09UT      3.00       3.00       2.00
09-12UT      3.00       2.00       2.00
12-15UT      2.00       2.00       1.00
15-18UT      2.00       2.00       1.00
18-21UT      3.00       2.00       2.00
21-00UT      3.00       2.00       2.00
`

func TestParseGeomagForecast(t *testing.T) {
	issued, samples, err := ParseGeomagForecast(strings.NewReader(forecastBulletin))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2019, 3, 18, 0, 30, 0, 0, time.UTC), issued)
	require.Len(t, samples, 24)

	// Day-major, 3-hourly from the forecast start.
	assert.Equal(t, time.Date(2019, 3, 18, 0, 0, 0, 0, time.UTC), samples[0].Time)
	assert.Equal(t, 4.0, samples[0].Value)
	assert.Equal(t, time.Date(2019, 3, 18, 6, 0, 0, 0, time.UTC), samples[2].Time)
	assert.Equal(t, 3.0, samples[2].Value)
	assert.Equal(t, time.Date(2019, 3, 19, 0, 0, 0, 0, time.UTC), samples[8].Time)
	assert.Equal(t, 3.0, samples[8].Value)
	assert.Equal(t, time.Date(2019, 3, 20, 21, 0, 0, 0, time.UTC), samples[23].Time)
	assert.Equal(t, 2.0, samples[23].Value)
}

func TestParseGeomagForecastSkipsStormMarkers(t *testing.T) {
	_, samples, err := ParseGeomagForecast(strings.NewReader(forecastBulletinStorm))
	require.NoError(t, err)

	require.Len(t, samples, 24)
	assert.Equal(t, 6.0, samples[0].Value)
	assert.Equal(t, 5.33, samples[8].Value)
	assert.Equal(t, 4.0, samples[16].Value)
}

func TestParseGeomagForecastMissingKpBlock(t *testing.T) {
	body := ":Issued: 2019 Mar 18 0030 UTC\nno table here\n"
	_, _, err := ParseGeomagForecast(strings.NewReader(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Kp block")
}

func TestParseGeomagForecastMissingPeriodRow(t *testing.T) {
	body := strings.Replace(forecastBulletin, "21-00UT        3         2         2\n", "", 1)
	_, _, err := ParseGeomagForecast(strings.NewReader(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "21-00UT")
}

func TestIssuedStampRejectsGarbage(t *testing.T) {
	_, err := issuedStamp("no stamp at all")
	assert.Error(t, err)

	_, err = issuedStamp(":Issued: yesterday UTC\n")
	assert.Error(t, err)
}

func TestForecastStartYearRollover(t *testing.T) {
	issued := time.Date(2019, 12, 31, 22, 30, 0, 0, time.UTC)
	start, err := forecastStart("01 Jan", issued)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), start)

	issued = time.Date(2019, 3, 18, 0, 30, 0, 0, time.UTC)
	start, err = forecastStart("18 Mar", issued)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 3, 18, 0, 0, 0, 0, time.UTC), start)
}

func TestNumericFields(t *testing.T) {
	assert.Equal(t, []float64{6, 5.33, 4},
		numericFields("00-03UT      6.00 (G2)   5.33 (G1)   4.00"))
	assert.Empty(t, numericFields("no numbers"))
}

func forecastStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	writeMirrorFile(t, dir, "3-day-geomag-forecast_2019-03-18.txt", forecastBulletin)
	writeMirrorFile(t, dir, "3-day-geomag-forecast_2019-03-19.txt", forecastBulletinNext)
	return NewStore(dir)
}

func TestSWPCForecastShorterLeadWins(t *testing.T) {
	src := NewSWPCForecast(forecastStore(t))

	samples, err := src.Fetch(context.Background(),
		time.Date(2019, 3, 19, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 3, 21, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, samples, 16)
	// Both issues forecast 03-19 00UT; the newer one says 5, not 3.
	assert.Equal(t, time.Date(2019, 3, 19, 0, 0, 0, 0, time.UTC), samples[0].Time)
	assert.Equal(t, 5.0, samples[0].Value)
	// 03-20 00UT: day 3 of the old issue said 2, day 2 of the new says 3.
	assert.Equal(t, 3.0, samples[8].Value)
}

func TestSWPCForecastIgnoresIssuesAfterWindow(t *testing.T) {
	src := NewSWPCForecast(forecastStore(t))

	samples, err := src.Fetch(context.Background(),
		time.Date(2019, 3, 18, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 3, 19, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, samples, 8)
	want := []float64{4, 4, 3, 3, 2, 2, 3, 3}
	for i, smp := range samples {
		assert.Equal(t, want[i], smp.Value, "period %d", i)
	}
}

func TestSWPCForecastBounds(t *testing.T) {
	src := NewSWPCForecast(forecastStore(t))

	first, last, err := src.Bounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 3, 18, 0, 0, 0, 0, time.UTC), first)
	assert.Equal(t, time.Date(2019, 3, 21, 21, 0, 0, 0, time.UTC), last)

	empty := NewSWPCForecast(NewStore(t.TempDir()))
	_, _, err = empty.Bounds(context.Background())
	assert.ErrorIs(t, err, merge.ErrNoBounds)
}
