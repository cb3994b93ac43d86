package sources

// gfz.go - GFZ Potsdam Kp/ap/Ap/SN/F10.7 archive. One whitespace table
// covers 1932 to present; each data line is a day:
//
//	Col  0: Year
//	Col  1: Month
//	Col  2: Day
//	Col  3: Days (day of year)
//	Col  4: Days_m (modified Julian)
//	Col  5: Bsr (Bartels rotation)
//	Col  6: dB (day within rotation)
//	Col  7-14: Kp1..Kp8 (3-hourly, decimal 0.000-9.000)
//	Col 15-22: ap1..ap8 (3-hourly)
//	Col 23: Ap (daily)
//	Col 24: SN (sunspot number)
//	Col 25: F10.7obs
//	Col 26: F10.7adj
//	Col 27: D (1 = definitive, 0 = preliminary/nowcast), absent in
//	        older snapshots
//
// Missing values are -1.000 or -1 and stay that way in GFZDay; the
// Source filters them at fetch time.

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/swxlab/swx-apps/internal/merge"
	"github.com/swxlab/swx-apps/internal/swx"
)

// GFZURL is the upstream location of the archive table.
const GFZURL = "https://kp.gfz-potsdam.de/app/files/Kp_ap_Ap_SN_F107_since_1932.txt"

// gfzHours are the 3-hour bucket start hours (UTC) of the Kp/ap columns.
var gfzHours = [8]int{0, 3, 6, 9, 12, 15, 18, 21}

// GFZDay holds one parsed day from the GFZ archive.
type GFZDay struct {
	Date       time.Time
	Kp         [8]float64
	Ap         [8]float64
	DayAp      float64
	SSN        float64
	F107Obs    float64
	F107Adj    float64
	Definitive bool
}

// parseGFZField keeps the archive's -1 missing convention: unparseable
// fields degrade to the fill value instead of a phantom zero.
func parseGFZField(field string) float64 {
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return swx.GeomagFill
	}
	return v
}

// ParseGFZLine parses one data line from the GFZ archive. Lines that are
// not data (headers, malformed rows, impossible dates) report ok=false.
func ParseGFZLine(line string) (GFZDay, bool) {
	fields := strings.Fields(line)
	if len(fields) < 27 {
		return GFZDay{}, false
	}

	year, err := strconv.Atoi(fields[0])
	if err != nil || year < 1900 || year > 2100 {
		return GFZDay{}, false
	}
	month, _ := strconv.Atoi(fields[1])
	day, _ := strconv.Atoi(fields[2])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return GFZDay{}, false
	}

	d := GFZDay{
		Date:       time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC),
		Definitive: true,
	}

	for i := 0; i < 8; i++ {
		d.Kp[i] = parseGFZField(fields[7+i])
		d.Ap[i] = parseGFZField(fields[15+i])
	}
	d.DayAp = parseGFZField(fields[23])
	d.SSN = parseGFZField(fields[24])
	d.F107Obs = parseGFZField(fields[25])
	d.F107Adj = parseGFZField(fields[26])

	if len(fields) > 27 {
		d.Definitive = fields[27] == "1"
	}
	return d, true
}

// ParseGFZ reads the archive table, skipping headers and junk lines.
func ParseGFZ(r io.Reader) ([]GFZDay, error) {
	var days []GFZDay
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		d, ok := ParseGFZLine(line)
		if !ok {
			continue
		}
		days = append(days, d)
	}
	return days, scanner.Err()
}

// GFZMode selects which archive rows a GFZ source serves.
type GFZMode int

const (
	GFZAll        GFZMode = iota // every row
	GFZDefinitive                // rows flagged definitive
	GFZNowcast                   // preliminary rows past the definitive horizon
)

func (m GFZMode) String() string {
	switch m {
	case GFZDefinitive:
		return "gfz_def"
	case GFZNowcast:
		return "gfz_now"
	}
	return "gfz"
}

// GFZ serves one index series from the mirrored GFZ archive. The archive
// is loaded once on first use and fetches are answered from memory.
type GFZ struct {
	store *Store
	index swx.Index
	mode  GFZMode

	mu     sync.Mutex
	loaded bool
	days   []GFZDay
}

// NewGFZ returns a GFZ source for the given index, serving the rows the
// mode selects.
func NewGFZ(store *Store, index swx.Index, mode GFZMode) *GFZ {
	return &GFZ{store: store, index: index, mode: mode}
}

func (g *GFZ) Name() string { return g.mode.String() }

func (g *GFZ) Cadence() time.Duration { return g.index.Cadence() }

// load reads and parses the archive once, keeping only the mode's rows.
func (g *GFZ) load() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loaded {
		return nil
	}

	rc, err := g.store.OpenArchive()
	if err != nil {
		return err
	}
	defer rc.Close()

	days, err := ParseGFZ(rc)
	if err != nil {
		return fmt.Errorf("parse %s: %w", ArchiveFile, err)
	}

	kept := days[:0]
	for _, d := range days {
		switch g.mode {
		case GFZDefinitive:
			if !d.Definitive {
				continue
			}
		case GFZNowcast:
			if d.Definitive {
				continue
			}
		}
		kept = append(kept, d)
	}
	g.days = kept
	g.loaded = true
	return nil
}

// Fetch returns the non-fill samples of the configured index in
// [start, stop), ascending.
func (g *GFZ) Fetch(ctx context.Context, start, stop time.Time) ([]swx.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := g.load(); err != nil {
		return nil, err
	}

	var out []swx.Sample
	for _, d := range g.days {
		if d.Date.Add(24 * time.Hour).Before(start) || !d.Date.Before(stop) {
			continue
		}
		for _, s := range g.daySamples(d) {
			if s.Time.Before(start) || !s.Time.Before(stop) {
				continue
			}
			if swx.IsFill(s.Value, swx.GeomagFill) {
				continue
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// daySamples expands one archive day into the configured index's samples.
func (g *GFZ) daySamples(d GFZDay) []swx.Sample {
	switch g.index {
	case swx.IndexKp, swx.IndexAp:
		samples := make([]swx.Sample, 0, len(gfzHours))
		for i, hour := range gfzHours {
			v := d.Kp[i]
			if g.index == swx.IndexAp {
				v = d.Ap[i]
			}
			samples = append(samples, swx.Sample{
				Time:  d.Date.Add(time.Duration(hour) * time.Hour),
				Value: v,
			})
		}
		return samples
	case swx.IndexApDaily:
		return []swx.Sample{{Time: d.Date, Value: d.DayAp}}
	case swx.IndexF107:
		return []swx.Sample{{Time: d.Date, Value: d.F107Obs}}
	case swx.IndexSSN:
		return []swx.Sample{{Time: d.Date, Value: d.SSN}}
	}
	return nil
}

// Bounds reports the span of non-fill samples the archive holds for the
// configured index.
func (g *GFZ) Bounds(ctx context.Context) (time.Time, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err := g.load(); err != nil {
		return time.Time{}, time.Time{}, err
	}

	var first, last time.Time
	for _, d := range g.days {
		for _, s := range g.daySamples(d) {
			if swx.IsFill(s.Value, swx.GeomagFill) {
				continue
			}
			if first.IsZero() {
				first = s.Time
			}
			last = s.Time
		}
	}
	if first.IsZero() {
		return time.Time{}, time.Time{}, merge.ErrNoBounds
	}
	return first, last, nil
}
