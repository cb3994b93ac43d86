package sources

// swpc_forecast.go - SWPC 3-day geomagnetic forecast
// (3-day-geomag-forecast.txt). The Kp block is a table of eight 3-hour
// rows by three day columns:
//
//	NOAA Kp index forecast 18 Mar - 20 Mar
//	             Mar 18     Mar 19     Mar 20
//	00-03UT        4          3          2
//	...
//	21-00UT        3          2          2
//
// Storm rows may carry G-scale markers ("6.00 (G2)"); markers are not
// values and get skipped. The forecast start date carries no year; it is
// taken from the issue stamp, rolling forward across a year boundary.

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

// ForecastURL is the upstream location of the bulletin.
const ForecastURL = "https://services.swpc.noaa.gov/text/3-day-geomag-forecast.txt"

// forecastDays is the horizon of one 3-day forecast issue.
const forecastDays = 3

// kpPeriods are the row labels of the Kp block, one per 3-hour slot.
var kpPeriods = [8]string{
	"00-03UT", "03-06UT", "06-09UT", "09-12UT",
	"12-15UT", "15-18UT", "18-21UT", "21-00UT",
}

// ParseGeomagForecast parses a 3-day forecast bulletin into its issue
// time and the 24 consecutive 3-hourly Kp samples starting at the
// forecast date.
func ParseGeomagForecast(r io.Reader) (time.Time, []swx.Sample, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return time.Time{}, nil, err
	}
	text := string(raw)

	issued, err := issuedStamp(text)
	if err != nil {
		return time.Time{}, nil, err
	}

	_, kpBlock, found := strings.Cut(text, "NOAA Kp index forecast ")
	if !found {
		return time.Time{}, nil, fmt.Errorf("3-day forecast: no Kp block")
	}
	if len(kpBlock) < 6 {
		return time.Time{}, nil, fmt.Errorf("3-day forecast: truncated Kp block")
	}

	startDate, err := forecastStart(kpBlock[0:6], issued)
	if err != nil {
		return time.Time{}, nil, err
	}

	// days[d][p] is the Kp of day d, period p.
	var days [forecastDays][8]float64
	for p, label := range kpPeriods {
		_, rest, found := strings.Cut(kpBlock, label)
		if !found {
			return time.Time{}, nil, fmt.Errorf("3-day forecast: missing %s row", label)
		}
		row, _, _ := strings.Cut(rest, "\n")

		vals := numericFields(row)
		if len(vals) < forecastDays {
			return time.Time{}, nil, fmt.Errorf("3-day forecast: %s row has %d values", label, len(vals))
		}
		for d := 0; d < forecastDays; d++ {
			days[d][p] = vals[d]
		}
	}

	samples := make([]swx.Sample, 0, forecastDays*8)
	t := startDate
	for d := 0; d < forecastDays; d++ {
		for p := 0; p < 8; p++ {
			samples = append(samples, swx.Sample{Time: t, Value: days[d][p]})
			t = t.Add(3 * time.Hour)
		}
	}
	return issued, samples, nil
}

// issuedStamp extracts the ":Issued: 2019 Mar 18 0030 UTC" line.
func issuedStamp(text string) (time.Time, error) {
	_, rest, found := strings.Cut(text, ":Issued: ")
	if !found {
		return time.Time{}, fmt.Errorf("forecast bulletin: no :Issued: line")
	}
	stamp, _, _ := strings.Cut(rest, " UTC")
	t, err := time.Parse("2006 Jan 02 1504", strings.TrimSpace(stamp))
	if err != nil {
		return time.Time{}, fmt.Errorf("issue stamp %q: %w", stamp, err)
	}
	return t.UTC(), nil
}

// forecastStart resolves a day-month header like "18 Mar" against the
// issue year. A start that lands far before the issue date crossed a
// year boundary (issued Dec 31, forecast starts Jan 1).
func forecastStart(dayMonth string, issued time.Time) (time.Time, error) {
	t, err := time.Parse("02 Jan 2006", fmt.Sprintf("%s %04d", dayMonth, issued.Year()))
	if err != nil {
		return time.Time{}, fmt.Errorf("forecast start %q: %w", dayMonth, err)
	}
	t = t.UTC()
	if issued.Sub(t) > 180*24*time.Hour {
		t = t.AddDate(1, 0, 0)
	}
	return t, nil
}

// numericFields returns the float-parseable tokens of a row, dropping
// labels and G-scale markers.
func numericFields(row string) []float64 {
	var vals []float64
	for _, f := range strings.Fields(row) {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			continue
		}
		vals = append(vals, v)
	}
	return vals
}

// SWPCForecast serves 3-hourly forecast Kp from the mirrored 3-day
// forecast bulletins. Issues covering the requested window are merged in
// issue order; where forecasts overlap the newer issue wins, since it
// carries the shorter lead time.
type SWPCForecast struct {
	store *Store

	mu    sync.Mutex
	cache map[time.Time][]swx.Sample
}

// NewSWPCForecast returns a forecast Kp source over the mirror.
func NewSWPCForecast(store *Store) *SWPCForecast {
	return &SWPCForecast{store: store, cache: make(map[time.Time][]swx.Sample)}
}

func (s *SWPCForecast) Name() string { return "forecast" }

func (s *SWPCForecast) Cadence() time.Duration { return 3 * time.Hour }

func (s *SWPCForecast) issue(date time.Time) ([]swx.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if samples, ok := s.cache[date]; ok {
		return samples, nil
	}

	rc, err := s.store.OpenIssue(ProductGeomagForecast, date)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	_, samples, err := ParseGeomagForecast(rc)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", ProductGeomagForecast, date.Format(issueLayout), err)
	}
	s.cache[date] = samples
	return samples, nil
}

// Fetch returns forecast Kp samples in [start, stop), ascending.
func (s *SWPCForecast) Fetch(ctx context.Context, start, stop time.Time) ([]swx.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dates, err := s.store.Dates(ProductGeomagForecast)
	if err != nil {
		return nil, err
	}

	// Issues arrive ascending, so later writes are newer issues.
	byStamp := make(map[int64]swx.Sample)
	for _, iss := range dates {
		coverStop := iss.Add((forecastDays + 1) * 24 * time.Hour)
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
func (s *SWPCForecast) Bounds(ctx context.Context) (time.Time, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	dates, err := s.store.Dates(ProductGeomagForecast)
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
