package sources

// noaa.go - NOAA SWPC services JSON products. The planetary K index
// product is a products-API array of string arrays (header row first);
// observed-solar-cycle-indices is an array of monthly objects and feeds
// the warehouse only, its monthly cadence being no grid material.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/swxlab/swx-apps/internal/merge"
	"github.com/swxlab/swx-apps/internal/swx"
)

// Upstream endpoints for the JSON products.
const (
	KpJSONURL     = "https://services.swpc.noaa.gov/products/noaa-planetary-k-index.json"
	SolarCycleURL = "https://services.swpc.noaa.gov/json/solar-cycle/observed-solar-cycle-indices.json"
)

// ParseKpJSON parses the planetary K index product: a header row
// ["time_tag","Kp","a_running","station_count"] followed by value rows,
// all strings.
func ParseKpJSON(r io.Reader) ([]swx.Sample, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("planetary K index: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("planetary K index: empty product")
	}

	samples := make([]swx.Sample, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 2 {
			return nil, fmt.Errorf("planetary K index row has %d columns", len(row))
		}
		t, err := parseProductTime(row[0])
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("planetary K index value %q: %w", row[1], err)
		}
		samples = append(samples, swx.Sample{Time: t, Value: v})
	}
	return samples, nil
}

// parseProductTime accepts products-API stamps with and without the
// millisecond suffix.
func parseProductTime(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04:05.000", s)
	if err != nil {
		t, err = time.Parse("2006-01-02 15:04:05", s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("product time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// SolarCycleRecord is one month of the observed solar cycle indices
// product.
type SolarCycleRecord struct {
	TimeTag      string  `json:"time-tag"`
	SSN          float64 `json:"ssn"`
	SmoothedSSN  float64 `json:"smoothed_ssn"`
	ObservedSWPC float64 `json:"observed_swpc_ssn"`
	SmoothedSWPC float64 `json:"smoothed_swpc_ssn"`
	F107         float64 `json:"f10.7"`
	SmoothedF107 float64 `json:"smoothed_f10.7"`
}

// Month resolves the record's "YYYY-MM" time tag to the first of the
// month, UTC.
func (r SolarCycleRecord) Month() (time.Time, error) {
	t, err := time.Parse("2006-01", r.TimeTag)
	if err != nil {
		return time.Time{}, fmt.Errorf("solar cycle time tag %q: %w", r.TimeTag, err)
	}
	return t.UTC(), nil
}

// ParseSolarCycle parses the observed solar cycle indices product.
func ParseSolarCycle(r io.Reader) ([]SolarCycleRecord, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var records []SolarCycleRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("solar cycle indices: %w", err)
	}
	return records, nil
}

// NOAAKp serves the live 3-hourly planetary Kp from the SWPC services
// API. The product is fetched once per process and held in memory; it
// spans roughly the last month.
type NOAAKp struct {
	client *Client
	url    string

	mu      sync.Mutex
	loaded  bool
	samples []swx.Sample
}

// NewNOAAKp returns a live planetary Kp source over the shared resilient
// client.
func NewNOAAKp(client *Client) *NOAAKp {
	return &NOAAKp{client: client, url: KpJSONURL}
}

func (s *NOAAKp) Name() string { return "realtime" }

func (s *NOAAKp) Cadence() time.Duration { return 3 * time.Hour }

func (s *NOAAKp) load(ctx context.Context) ([]swx.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.samples, nil
	}

	body, err := s.client.Get(ctx, s.url)
	if err != nil {
		return nil, err
	}
	samples, err := ParseKpJSON(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })

	s.samples = samples
	s.loaded = true
	return s.samples, nil
}

// Fetch returns live Kp samples in [start, stop), ascending.
func (s *NOAAKp) Fetch(ctx context.Context, start, stop time.Time) ([]swx.Sample, error) {
	samples, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []swx.Sample
	for _, smp := range samples {
		if smp.Time.Before(start) || !smp.Time.Before(stop) {
			continue
		}
		if swx.IsFill(smp.Value, swx.GeomagFill) {
			continue
		}
		out = append(out, smp)
	}
	return out, nil
}

// Bounds reports the span of the live product, fetching it on first use.
func (s *NOAAKp) Bounds(ctx context.Context) (time.Time, time.Time, error) {
	samples, err := s.load(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	var first, last time.Time
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
	if first.IsZero() {
		return time.Time{}, time.Time{}, merge.ErrNoBounds
	}
	return first, last, nil
}
