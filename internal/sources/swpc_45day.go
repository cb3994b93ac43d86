package sources

// swpc_45day.go - US Air Force 45-day Ap and F10.7 forecast
// (45-day-ap-forecast.txt). Two blocks of whitespace-separated
// date/value pairs:
//
//	45-DAY AP FORECAST
//	18Mar19 008 19Mar19 010 20Mar19 012 ...
//	45-DAY F10.7 CM FLUX FORECAST
//	18Mar19 070 19Mar19 070 ...
//	FORECASTER: ...

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/swxlab/swx-apps/internal/merge"
	"github.com/swxlab/swx-apps/internal/swx"
)

// Forecast45URL is the upstream location of the bulletin.
const Forecast45URL = "https://services.swpc.noaa.gov/text/45-day-ap-forecast.txt"

const (
	apBlockHeader   = "45-DAY AP FORECAST"
	f107BlockHeader = "45-DAY F10.7 CM FLUX FORECAST"
	forecast45Days  = 45
)

// Parse45Day parses a 45-day forecast bulletin into its issue time and
// the daily Ap and F10.7 sample series.
func Parse45Day(r io.Reader) (time.Time, []swx.Sample, []swx.Sample, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return time.Time{}, nil, nil, err
	}
	text := string(raw)

	issued, err := issuedStamp(text)
	if err != nil {
		return time.Time{}, nil, nil, err
	}

	_, rest, found := strings.Cut(text, apBlockHeader)
	if !found {
		return time.Time{}, nil, nil, fmt.Errorf("45-day forecast: no Ap block")
	}
	apBlock, rest, found := strings.Cut(rest, f107BlockHeader)
	if !found {
		return time.Time{}, nil, nil, fmt.Errorf("45-day forecast: no F10.7 block")
	}
	f107Block, _, _ := strings.Cut(rest, "FORECASTER")

	ap, err := parse45DayBlock(apBlock)
	if err != nil {
		return time.Time{}, nil, nil, fmt.Errorf("45-day Ap block: %w", err)
	}
	f107, err := parse45DayBlock(f107Block)
	if err != nil {
		return time.Time{}, nil, nil, fmt.Errorf("45-day F10.7 block: %w", err)
	}
	return issued, ap, f107, nil
}

// parse45DayBlock reads "ddMonyy value" pairs, one sample per day at
// 00:00 UT.
func parse45DayBlock(block string) ([]swx.Sample, error) {
	fields := strings.Fields(block)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("odd field count %d", len(fields))
	}

	samples := make([]swx.Sample, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		t, err := time.Parse("02Jan06", fields[i])
		if err != nil {
			return nil, fmt.Errorf("date %q: %w", fields[i], err)
		}
		v, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", fields[i+1], err)
		}
		samples = append(samples, swx.Sample{Time: t.UTC(), Value: float64(v)})
	}
	return samples, nil
}

// SWPC45Day serves daily Ap or F10.7 from the mirrored 45-day forecast
// bulletins. Issues covering the requested window are merged in issue
// order; where forecasts overlap the newer issue wins.
type SWPC45Day struct {
	store *Store
	index swx.Index

	mu    sync.Mutex
	cache map[time.Time][]swx.Sample
}

// NewSWPC45Day returns a 45-day forecast source for daily Ap
// (swx.IndexApDaily) or F10.7 (swx.IndexF107).
func NewSWPC45Day(store *Store, index swx.Index) *SWPC45Day {
	return &SWPC45Day{store: store, index: index, cache: make(map[time.Time][]swx.Sample)}
}

func (s *SWPC45Day) Name() string { return "45day" }

func (s *SWPC45Day) Cadence() time.Duration { return 24 * time.Hour }

func (s *SWPC45Day) issue(date time.Time) ([]swx.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if samples, ok := s.cache[date]; ok {
		return samples, nil
	}

	rc, err := s.store.OpenIssue(Product45Day, date)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	_, ap, f107, err := Parse45Day(rc)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", Product45Day, date.Format(issueLayout), err)
	}
	samples := ap
	if s.index == swx.IndexF107 {
		samples = f107
	}
	s.cache[date] = samples
	return samples, nil
}

// Fetch returns forecast samples in [start, stop), ascending.
func (s *SWPC45Day) Fetch(ctx context.Context, start, stop time.Time) ([]swx.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dates, err := s.store.Dates(Product45Day)
	if err != nil {
		return nil, err
	}

	// Issues arrive ascending, so later writes are newer issues.
	byStamp := make(map[int64]swx.Sample)
	for _, iss := range dates {
		coverStop := iss.Add((forecast45Days + 1) * 24 * time.Hour)
		if !iss.Before(stop) || !coverStop.After(start) {
			continue
		}
		samples, err := s.issue(iss)
		if err != nil {
			return nil, err
		}
		for _, smp := range samples {
			if smp.Time.Before(start) || !smp.Time.Before(stop) {
				continue
			}
			if swx.IsFill(smp.Value, swx.GeomagFill) {
				continue
			}
			byStamp[smp.Time.UnixNano()] = smp
		}
	}

	out := make([]swx.Sample, 0, len(byStamp))
	for _, smp := range byStamp {
		out = append(out, smp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// Bounds reports the forecast span across every mirrored issue.
func (s *SWPC45Day) Bounds(ctx context.Context) (time.Time, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	dates, err := s.store.Dates(Product45Day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if len(dates) == 0 {
		return time.Time{}, time.Time{}, merge.ErrNoBounds
	}

	var first, last time.Time
	for _, iss := range dates {
		samples, err := s.issue(iss)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		for _, smp := range samples {
			if swx.IsFill(smp.Value, swx.GeomagFill) {
				continue
			}
			if first.IsZero() || smp.Time.Before(first) {
				first = smp.Time
			}
			if smp.Time.After(last) {
				last = smp.Time
			}
		}
	}
	if first.IsZero() {
		return time.Time{}, time.Time{}, merge.ErrNoBounds
	}
	return first, last, nil
}
