package sources

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swxlab/swx-apps/internal/swx"
)

const forecast45Bulletin = `:Product: 45 Day AP Forecast  45DF.txt
:Issued: 2019 Mar 18 0000 UTC
# Prepared by the U.S. Air Force.
# Retransmitted by the Dept. of Commerce, NOAA, Space Weather Prediction Center
# Please send comments and suggestions to SWPC.Webmaster@noaa.gov
#
#-------------------------------------------------------
45-DAY AP FORECAST
18Mar19 008 19Mar19 010 20Mar19 012 21Mar19 010 22Mar19 008
23Mar19 005 24Mar19 005
45-DAY F10.7 CM FLUX FORECAST
18Mar19 070 19Mar19 070 20Mar19 071 21Mar19 072 22Mar19 072
23Mar19 071 24Mar19 070
FORECASTER:  WAGNER/HODGES
99999
NNNN
`

const forecast45BulletinNext = `:Product: 45 Day AP Forecast  45DF.txt
:Issued: 2019 Mar 20 0000 UTC
#
45-DAY AP FORECAST
20Mar19 015 21Mar19 012 22Mar19 010 23Mar19 008 24Mar19 005
25Mar19 005 26Mar19 005
45-DAY F10.7 CM FLUX FORECAST
20Mar19 074 21Mar19 073 22Mar19 072 23Mar19 071 24Mar19 070
25Mar19 070 26Mar19 070
FORECASTER:  WAGNER/HODGES
`

func TestParse45Day(t *testing.T) {
	issued, ap, f107, err := Parse45Day(strings.NewReader(forecast45Bulletin))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2019, 3, 18, 0, 0, 0, 0, time.UTC), issued)
	require.Len(t, ap, 7)
	require.Len(t, f107, 7)

	assert.Equal(t, time.Date(2019, 3, 18, 0, 0, 0, 0, time.UTC), ap[0].Time)
	assert.Equal(t, 8.0, ap[0].Value)
	assert.Equal(t, 5.0, ap[6].Value)

	assert.Equal(t, 70.0, f107[0].Value)
	assert.Equal(t, 72.0, f107[3].Value)
	assert.Equal(t, time.Date(2019, 3, 24, 0, 0, 0, 0, time.UTC), f107[6].Time)
}

func TestParse45DayMissingBlocks(t *testing.T) {
	_, _, _, err := Parse45Day(strings.NewReader(":Issued: 2019 Mar 18 0000 UTC\nnothing\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Ap block")

	body := ":Issued: 2019 Mar 18 0000 UTC\n45-DAY AP FORECAST\n18Mar19 008\n"
	_, _, _, err = Parse45Day(strings.NewReader(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no F10.7 block")
}

func TestParse45DayBlock(t *testing.T) {
	samples, err := parse45DayBlock("18Mar19 008 19Mar19 010")
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 8.0, samples[0].Value)
	assert.Equal(t, time.Date(2019, 3, 19, 0, 0, 0, 0, time.UTC), samples[1].Time)

	_, err = parse45DayBlock("18Mar19 008 19Mar19")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "odd field count")

	_, err = parse45DayBlock("99Foo19 008")
	assert.Error(t, err)

	_, err = parse45DayBlock("18Mar19 abc")
	assert.Error(t, err)
}

func store45(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	writeMirrorFile(t, dir, "45-day-ap-forecast_2019-03-18.txt", forecast45Bulletin)
	writeMirrorFile(t, dir, "45-day-ap-forecast_2019-03-20.txt", forecast45BulletinNext)
	return NewStore(dir)
}

func TestSWPC45DayNewerIssueWins(t *testing.T) {
	src := NewSWPC45Day(store45(t), swx.IndexApDaily)

	samples, err := src.Fetch(context.Background(),
		time.Date(2019, 3, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 3, 23, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, samples, 3)
	assert.Equal(t, 15.0, samples[0].Value) // 12 in the older issue
	assert.Equal(t, 12.0, samples[1].Value)
	assert.Equal(t, 10.0, samples[2].Value)
}

func TestSWPC45DayF107BeforeNewerIssue(t *testing.T) {
	src := NewSWPC45Day(store45(t), swx.IndexF107)

	samples, err := src.Fetch(context.Background(),
		time.Date(2019, 3, 18, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 3, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, samples, 2)
	assert.Equal(t, 70.0, samples[0].Value)
	assert.Equal(t, 70.0, samples[1].Value)
}

func TestSWPC45DayBounds(t *testing.T) {
	src := NewSWPC45Day(store45(t), swx.IndexApDaily)

	first, last, err := src.Bounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 3, 18, 0, 0, 0, 0, time.UTC), first)
	assert.Equal(t, time.Date(2019, 3, 26, 0, 0, 0, 0, time.UTC), last)
}
