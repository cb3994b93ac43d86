package sources

// swpc_recent.go - SWPC daily geomagnetic indices bulletin
// (daily-geomagnetic-indices.txt): the last ~30 days of daily A and
// 3-hourly K for the Fredericksburg (mid latitude), College (high
// latitude), and estimated planetary stations.
//
// Data rows are fixed width: date at [0:10], then per station a daily A
// column and a 3-hourly K group:
//
//	A groups: [10:17], [33:40], [56:63]
//	K groups: [17:33], [40:56], [63:]
//
// K groups are eight 2-character integers in older issues and
// whitespace-separated decimals in newer ones; both forms occur in the
// wild. Missing values are -1.

import (
	"bufio"
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

// RecentURL is the upstream location of the bulletin.
const RecentURL = "https://services.swpc.noaa.gov/text/daily-geomagnetic-indices.txt"

// recentCoverage is the nominal span of one daily geomagnetic indices
// issue, counted back from the issue date.
const recentCoverage = 30 * 24 * time.Hour

// GeomagDay is one parsed row of the bulletin.
type GeomagDay struct {
	Date       time.Time
	MidLatA    float64
	HighLatA   float64
	PlanetaryA float64
	MidLatK    [8]float64
	HighLatK   [8]float64
	PlanetaryK [8]float64
}

// ParseGeomagRecent parses a daily geomagnetic indices bulletin,
// returning the issue time from the :Issued: line and the data rows in
// file order.
func ParseGeomagRecent(r io.Reader) (time.Time, []GeomagDay, error) {
	var issued time.Time
	var days []GeomagDay
	inData := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, ":Issued:") {
			var err error
			issued, err = parseIssuedUT(strings.TrimSpace(strings.TrimPrefix(line, ":Issued:")))
			if err != nil {
				return time.Time{}, nil, err
			}
			continue
		}
		if strings.HasPrefix(line, "#  Date") {
			inData = true
			continue
		}
		if !inData || strings.TrimSpace(line) == "" {
			continue
		}

		day, err := parseGeomagLine(line)
		if err != nil {
			return time.Time{}, nil, err
		}
		days = append(days, day)
	}
	if err := scanner.Err(); err != nil {
		return time.Time{}, nil, err
	}
	if issued.IsZero() {
		return time.Time{}, nil, fmt.Errorf("daily geomagnetic indices: no :Issued: line")
	}
	return issued, days, nil
}

// parseIssuedUT parses issue stamps of the form "1840 UT 17 Mar 2019".
func parseIssuedUT(s string) (time.Time, error) {
	t, err := time.Parse("1504 UT 02 Jan 2006", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("issue stamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseGeomagLine(line string) (GeomagDay, error) {
	if len(line) < 64 {
		return GeomagDay{}, fmt.Errorf("geomagnetic indices row too short: %q", line)
	}

	date, err := time.Parse("2006 01 02", line[0:10])
	if err != nil {
		return GeomagDay{}, fmt.Errorf("geomagnetic indices date %q: %w", line[0:10], err)
	}

	day := GeomagDay{Date: date.UTC()}
	aSpans := [3]string{line[10:17], line[33:40], line[56:63]}
	kSpans := [3]string{line[17:33], line[40:56], line[63:]}
	aVals := [3]*float64{&day.MidLatA, &day.HighLatA, &day.PlanetaryA}
	kVals := [3]*[8]float64{&day.MidLatK, &day.HighLatK, &day.PlanetaryK}

	for i := range aSpans {
		a, err := strconv.Atoi(strings.TrimSpace(aSpans[i]))
		if err != nil {
			return GeomagDay{}, fmt.Errorf("daily A %q: %w", aSpans[i], err)
		}
		*aVals[i] = float64(a)

		k, err := parseKGroup(kSpans[i])
		if err != nil {
			return GeomagDay{}, err
		}
		*kVals[i] = k
	}
	return day, nil
}

// parseKGroup decodes one station's eight 3-hourly K values, accepting
// both the packed 2-character integer form and the decimal form.
func parseKGroup(sub string) ([8]float64, error) {
	var out [8]float64

	if strings.Contains(sub, ".") {
		fields := strings.Fields(sub)
		if len(fields) < 8 {
			return out, fmt.Errorf("K group %q: want 8 values, got %d", sub, len(fields))
		}
		for i := 0; i < 8; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return out, fmt.Errorf("K value %q: %w", fields[i], err)
			}
			out[i] = v
		}
		return out, nil
	}

	if len(sub) < 16 {
		return out, fmt.Errorf("K group %q: too short", sub)
	}
	for i := 0; i < 8; i++ {
		cell := strings.TrimSpace(sub[i*2 : (i+1)*2])
		v, err := strconv.Atoi(cell)
		if err != nil {
			return out, fmt.Errorf("K value %q: %w", cell, err)
		}
		out[i] = float64(v)
	}
	return out, nil
}

// SWPCRecent serves planetary Kp (3-hourly) or planetary daily A from the
// mirrored daily geomagnetic indices bulletins. Issues covering the
// requested window are merged in issue order; where issues overlap the
// newer issue wins, since later bulletins carry revised values.
type SWPCRecent struct {
	store *Store
	index swx.Index

	mu    sync.Mutex
	cache map[time.Time][]GeomagDay
}

// NewSWPCRecent returns a recent-bulletin source for IndexKp or
// IndexApDaily.
func NewSWPCRecent(store *Store, index swx.Index) *SWPCRecent {
	return &SWPCRecent{store: store, index: index, cache: make(map[time.Time][]GeomagDay)}
}

func (s *SWPCRecent) Name() string { return "recent" }

func (s *SWPCRecent) Cadence() time.Duration { return s.index.Cadence() }

// issue loads and caches one mirrored issue.
func (s *SWPCRecent) issue(date time.Time) ([]GeomagDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if days, ok := s.cache[date]; ok {
		return days, nil
	}

	rc, err := s.store.OpenIssue(ProductGeomagRecent, date)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	_, days, err := ParseGeomagRecent(rc)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", ProductGeomagRecent, date.Format(issueLayout), err)
	}
	s.cache[date] = days
	return days, nil
}

// covering returns the mirrored issue dates whose coverage intersects
// [start, stop), ascending.
func (s *SWPCRecent) covering(start, stop time.Time) ([]time.Time, error) {
	dates, err := s.store.Dates(ProductGeomagRecent)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for _, d := range dates {
		coverStart := d.Add(-recentCoverage)
		coverStop := d.Add(24 * time.Hour)
		if coverStart.Before(stop) && coverStop.After(start) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Fetch returns the planetary samples in [start, stop), ascending.
func (s *SWPCRecent) Fetch(ctx context.Context, start, stop time.Time) ([]swx.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	issues, err := s.covering(start, stop)
	if err != nil {
		return nil, err
	}

	// Issues arrive ascending, so later writes are newer issues.
	byStamp := make(map[int64]swx.Sample)
	for _, iss := range issues {
		days, err := s.issue(iss)
		if err != nil {
			return nil, err
		}
		for _, day := range days {
			for _, smp := range s.daySamples(day) {
				if smp.Time.Before(start) || !smp.Time.Before(stop) {
					continue
				}
				if swx.IsFill(smp.Value, swx.GeomagFill) {
					continue
				}
				byStamp[smp.Time.UnixNano()] = smp
			}
		}
	}

	out := make([]swx.Sample, 0, len(byStamp))
	for _, smp := range byStamp {
		out = append(out, smp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (s *SWPCRecent) daySamples(day GeomagDay) []swx.Sample {
	if s.index == swx.IndexApDaily {
		return []swx.Sample{{Time: day.Date, Value: day.PlanetaryA}}
	}
	samples := make([]swx.Sample, 0, 8)
	for i := 0; i < 8; i++ {
		samples = append(samples, swx.Sample{
			Time:  day.Date.Add(time.Duration(i*3) * time.Hour),
			Value: day.PlanetaryK[i],
		})
	}
	return samples
}

// Bounds reports the sample span across every mirrored issue.
func (s *SWPCRecent) Bounds(ctx context.Context) (time.Time, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	dates, err := s.store.Dates(ProductGeomagRecent)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if len(dates) == 0 {
		return time.Time{}, time.Time{}, merge.ErrNoBounds
	}

	var first, last time.Time
	for _, iss := range dates {
		days, err := s.issue(iss)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		for _, day := range days {
			for _, smp := range s.daySamples(day) {
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
	}
	if first.IsZero() {
		return time.Time{}, time.Time{}, merge.ErrNoBounds
	}
	return first, last, nil
}
