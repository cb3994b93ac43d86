package merge

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swxlab/swx-apps/internal/swx"
)

// stubSource serves a fixed sample series, filtering to the requested
// window like a well behaved source. It does not filter fill values, so
// tests can hand the walker a sloppy source on purpose.
type stubSource struct {
	name    string
	cadence time.Duration
	samples []swx.Sample
	err     error
	fetches int
}

func (s *stubSource) Name() string           { return s.name }
func (s *stubSource) Cadence() time.Duration { return s.cadence }

func (s *stubSource) Fetch(_ context.Context, start, stop time.Time) ([]swx.Sample, error) {
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	var out []swx.Sample
	for _, smp := range s.samples {
		if smp.Time.Before(start) || !smp.Time.Before(stop) {
			continue
		}
		out = append(out, smp)
	}
	return out, nil
}

// boundedSource adds a Bounds capability on top of stubSource.
type boundedSource struct {
	stubSource
	first     time.Time
	last      time.Time
	boundsErr error
}

func (s *boundedSource) Bounds(context.Context) (time.Time, time.Time, error) {
	if s.boundsErr != nil {
		return time.Time{}, time.Time{}, s.boundsErr
	}
	return s.first, s.last, nil
}

// pagedSource serves at most page samples per fetch, the way a source
// backed by one-file-per-day loads behaves.
type pagedSource struct {
	stubSource
	page int
}

func (s *pagedSource) Fetch(ctx context.Context, start, stop time.Time) ([]swx.Sample, error) {
	batch, err := s.stubSource.Fetch(ctx, start, stop)
	if err != nil || len(batch) <= s.page {
		return batch, err
	}
	return batch[:s.page], nil
}

func day(d int) time.Time {
	return time.Date(2019, time.March, d, 0, 0, 0, 0, time.UTC)
}

// dailySamples builds a run of daily samples starting at day(first).
func dailySamples(first int, vals ...float64) []swx.Sample {
	out := make([]swx.Sample, len(vals))
	for i, v := range vals {
		out[i] = swx.Sample{Time: day(first + i), Value: v}
	}
	return out
}

func newDaily(name string, samples []swx.Sample) *stubSource {
	return &stubSource{name: name, cadence: 24 * time.Hour, samples: samples}
}

func rankAll(srcs ...Source) []RankedSource {
	roles := []Role{RoleDefinitive, RoleNowcast, RoleForecast}
	out := make([]RankedSource, len(srcs))
	for i, s := range srcs {
		role := roles[len(roles)-1]
		if i < len(roles) {
			role = roles[i]
		}
		out[i] = RankedSource{Source: s, Role: role}
	}
	return out
}

func windowOpts(start, stop time.Time, fill float64) Options {
	opts := NewOptions()
	opts.Start = start
	opts.Stop = stop
	opts.Fill = fill
	return opts
}

func TestCombineRejectsTooFewSources(t *testing.T) {
	_, err := Combine(context.Background(), nil, NewOptions())
	assert.ErrorIs(t, err, ErrTooFewSources)

	lone := newDaily("def", dailySamples(1, 1))
	_, err = Combine(context.Background(), rankAll(lone), NewOptions())
	assert.ErrorIs(t, err, ErrTooFewSources)
	assert.Zero(t, lone.fetches, "configuration errors must precede any fetch")
}

func TestCombineRejectsZeroOrNegativeWindow(t *testing.T) {
	def := newDaily("def", dailySamples(1, 1))
	rec := newDaily("recent", dailySamples(1, 2))

	_, err := Combine(context.Background(), rankAll(def, rec), windowOpts(day(3), day(3), -1))
	assert.ErrorIs(t, err, ErrBadWindow)

	_, err = Combine(context.Background(), rankAll(def, rec), windowOpts(day(4), day(2), -1))
	assert.ErrorIs(t, err, ErrBadWindow)

	assert.Zero(t, def.fetches)
	assert.Zero(t, rec.fetches)
}

func TestCombineRejectsUnderivableWindow(t *testing.T) {
	def := newDaily("def", nil)
	rec := newDaily("recent", nil)

	_, err := Combine(context.Background(), rankAll(def, rec), NewOptions())
	assert.ErrorIs(t, err, ErrNoWindow)
	assert.Zero(t, def.fetches)
	assert.Zero(t, rec.fetches)
}

// Scenario: the definitive source covers the head of the window, the
// recent source the tail. The output switches sources at the frontier
// and the notes record both spans in consult order.
func TestCombineHandoff(t *testing.T) {
	def := newDaily("def", dailySamples(1, 1.5))
	rec := newDaily("recent", dailySamples(2, 2.25, 2.5))

	res, err := Combine(context.Background(),
		rankAll(def, rec), windowOpts(day(1), day(4), math.NaN()))
	require.NoError(t, err)

	require.Equal(t, []time.Time{day(1), day(2), day(3)}, res.Times)
	assert.Equal(t, []float64{1.5, 2.25, 2.5}, res.Values)
	assert.Equal(t, 24*time.Hour, res.Freq)
	assert.Equal(t,
		"Combines data from the def source (2019-03-01 to 2019-03-02)"+
			" the recent source (2019-03-02 to 2019-03-04), in that order",
		res.Notes)
}

// Wherever the most trusted source has data, its value wins; lower
// ranked sources holding different values for the same times are never
// consulted.
func TestCombinePriorityWins(t *testing.T) {
	def := newDaily("def", dailySamples(1, 1, 2, 3))
	rec := newDaily("recent", dailySamples(1, 9, 9, 9))

	res, err := Combine(context.Background(),
		rankAll(def, rec), windowOpts(day(1), day(4), math.NaN()))
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 2, 3}, res.Values)
	assert.Zero(t, rec.fetches)
	assert.NotContains(t, res.Notes, "recent")
}

// A hole inside the top source's span stays a hole: once the frontier
// has moved past a region, lower priority data for it is never used.
func TestCombineMidSpanHoleStaysFill(t *testing.T) {
	def := newDaily("def", []swx.Sample{
		{Time: day(1), Value: 1},
		{Time: day(3), Value: 3},
		{Time: day(4), Value: 4},
	})
	rec := newDaily("recent", dailySamples(1, 9, 9, 9, 9))

	res, err := Combine(context.Background(),
		rankAll(def, rec), windowOpts(day(1), day(5), -1))
	require.NoError(t, err)

	require.Equal(t, []time.Time{day(1), day(2), day(3), day(4)}, res.Times)
	assert.Equal(t, []float64{1, -1, 3, 4}, res.Values)
	assert.Zero(t, rec.fetches)
}

// Lower priority data lying behind the frontier at demotion time never
// enters the output; the tail the walker could not cover becomes fill.
func TestCombineStaleLowerSourceDropped(t *testing.T) {
	def := newDaily("def", dailySamples(1, 1, 2))
	rec := newDaily("recent", dailySamples(1, 9))

	res, err := Combine(context.Background(),
		rankAll(def, rec), windowOpts(day(1), day(4), -1))
	require.NoError(t, err)

	require.Equal(t, []time.Time{day(1), day(2), day(3)}, res.Times)
	assert.Equal(t, []float64{1, 2, -1}, res.Values)
	// The recent source was consulted for the tail and contributed a
	// zero width span.
	assert.Equal(t, 1, rec.fetches)
	assert.Contains(t, res.Notes, "the recent source (2019-03-03 to 2019-03-03)")
}

func TestCombineAllEmpty(t *testing.T) {
	def := newDaily("def", nil)
	rec := newDaily("recent", nil)

	res, err := Combine(context.Background(),
		rankAll(def, rec), windowOpts(day(1), day(4), -1))
	require.NoError(t, err)

	require.Equal(t, []time.Time{day(1), day(2), day(3)}, res.Times)
	assert.Equal(t, []float64{-1, -1, -1}, res.Values)
	assert.Equal(t, 24*time.Hour, res.Freq, "falls back to the top source cadence")
	assert.Equal(t,
		"Combines data from the def source (2019-03-01 to 2019-03-01)"+
			" the recent source (2019-03-01 to 2019-03-01), in that order",
		res.Notes)
}

func TestCombineIdempotent(t *testing.T) {
	opts := windowOpts(day(1), day(5), -1)

	run := func() *Result {
		def := newDaily("def", dailySamples(1, 1, 2))
		rec := newDaily("recent", dailySamples(3, 3))
		res, err := Combine(context.Background(), rankAll(def, rec), opts)
		require.NoError(t, err)
		return res
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func TestCombineFetchErrorPropagates(t *testing.T) {
	boom := errors.New("mirror offline")
	def := newDaily("def", nil)
	def.err = boom
	rec := newDaily("recent", dailySamples(1, 1))

	_, err := Combine(context.Background(),
		rankAll(def, rec), windowOpts(day(1), day(3), -1))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "def")
	assert.Zero(t, rec.fetches, "a failed fetch aborts the walk")
}

func TestCombineDerivedWindow(t *testing.T) {
	def := &boundedSource{
		stubSource: *newDaily("def", dailySamples(1, 1, 2)),
		first:      day(1), last: day(2),
	}
	rec := &boundedSource{
		stubSource: *newDaily("recent", dailySamples(2, 9, 3, 4)),
		first:      day(2), last: day(4),
	}

	res, err := Combine(context.Background(), rankAll(def, rec), NewOptions())
	require.NoError(t, err)

	// Start is the earliest bound; stop is the latest bound padded by
	// its owner's cadence, so day 4 is the final grid point.
	require.Equal(t, []time.Time{day(1), day(2), day(3), day(4)}, res.Times)
	assert.Equal(t, []float64{1, 2, 3, 4}, res.Values)
}

func TestCombineDerivedWindowSkipsUnboundedSources(t *testing.T) {
	noBounds := &boundedSource{
		stubSource: *newDaily("def", nil),
		boundsErr:  ErrNoBounds,
	}
	rec := &boundedSource{
		stubSource: *newDaily("recent", dailySamples(2, 2, 3)),
		first:      day(2), last: day(3),
	}

	res, err := Combine(context.Background(), rankAll(noBounds, rec), NewOptions())
	require.NoError(t, err)
	require.Equal(t, []time.Time{day(2), day(3)}, res.Times)
	assert.Equal(t, []float64{2, 3}, res.Values)

	// When nothing reports bounds there is no window to derive.
	other := &boundedSource{
		stubSource: *newDaily("recent", nil),
		boundsErr:  ErrNoBounds,
	}
	_, err = Combine(context.Background(), rankAll(noBounds, other), NewOptions())
	assert.ErrorIs(t, err, ErrNoWindow)
}

func TestCombineBoundsErrorAborts(t *testing.T) {
	boom := errors.New("mirror unreadable")
	broken := &boundedSource{
		stubSource: *newDaily("def", nil),
		boundsErr:  boom,
	}
	rec := &boundedSource{
		stubSource: *newDaily("recent", dailySamples(1, 1)),
		first:      day(1), last: day(1),
	}

	_, err := Combine(context.Background(), rankAll(broken, rec), NewOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, rec.fetches)
}

// A source that serves partial windows per fetch is consulted again from
// the advanced pointer until it yields nothing, then demoted.
func TestCombinePagedSourceDrainedFully(t *testing.T) {
	def := &pagedSource{
		stubSource: *newDaily("def", dailySamples(1, 1, 2)),
		page:       1,
	}
	rec := newDaily("recent", dailySamples(3, 3, 4))

	res, err := Combine(context.Background(),
		rankAll(def, rec), windowOpts(day(1), day(5), -1))
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 2, 3, 4}, res.Values)
	// Two one-sample pages plus the empty fetch that demoted it.
	assert.Equal(t, 3, def.fetches)
}

func TestCombineFreqOverride(t *testing.T) {
	threeHourly := make([]swx.Sample, 0, 16)
	for i := 0; i < 16; i++ {
		threeHourly = append(threeHourly, swx.Sample{
			Time:  day(1).Add(time.Duration(i) * 3 * time.Hour),
			Value: float64(i),
		})
	}
	def := &stubSource{name: "def", cadence: 3 * time.Hour, samples: threeHourly}
	rec := newDaily("recent", nil)

	opts := windowOpts(day(1), day(3), -1)
	opts.Freq = 24 * time.Hour

	res, err := Combine(context.Background(), rankAll(def, rec), opts)
	require.NoError(t, err)

	// Only the midnight samples land on the daily grid.
	require.Equal(t, []time.Time{day(1), day(2)}, res.Times)
	assert.Equal(t, []float64{0, 8}, res.Values)
	assert.Equal(t, 24*time.Hour, res.Freq)
}

// A sloppy source returning fill valued samples does not stall the walk:
// the fill samples are dropped and the source demoted.
func TestCombineFillSamplesFiltered(t *testing.T) {
	def := newDaily("def", []swx.Sample{{Time: day(1), Value: math.NaN()}})
	rec := newDaily("recent", dailySamples(1, 5))

	res, err := Combine(context.Background(),
		rankAll(def, rec), windowOpts(day(1), day(2), math.NaN()))
	require.NoError(t, err)

	require.Equal(t, []time.Time{day(1)}, res.Times)
	assert.Equal(t, []float64{5}, res.Values)
}

func TestCombineContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	def := newDaily("def", dailySamples(1, 1))
	rec := newDaily("recent", dailySamples(2, 2))

	_, err := Combine(ctx, rankAll(def, rec), windowOpts(day(1), day(3), -1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "definitive", RoleDefinitive.String())
	assert.Equal(t, "nowcast", RoleNowcast.String())
	assert.Equal(t, "forecast", RoleForecast.String())
}
