// Package merge reconciles a geophysical index series published by several
// sources of different latency and trust into one series on a regular time
// grid. Sources are ranked most-trusted first; the walker takes everything
// the best source has, hands the remainder of the window to the next one,
// and records the handoffs in a provenance note.
//
// The walk is frontier based: once the pointer has moved past a region,
// holes inside that region stay holes. A less trusted source never back
// fills a span a more trusted source claimed.
package merge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/swxlab/swx-apps/internal/swx"
)

// dateLayout renders provenance span boundaries.
const dateLayout = "2006-01-02"

// Source supplies samples of one index series.
//
// Fetch returns the non-fill samples in [start, stop) in ascending time
// order. An empty result is not an error. Implementations load by their
// natural file boundaries and may cache between calls; I/O failures are
// returned to the caller.
type Source interface {
	Name() string
	Cadence() time.Duration
	Fetch(ctx context.Context, start, stop time.Time) ([]swx.Sample, error)
}

// Bounded is implemented by sources that can cheaply report the span they
// hold data for, letting Combine derive a window when the caller gives
// none. Sources that cannot say return ErrNoBounds.
type Bounded interface {
	Bounds(ctx context.Context) (first, last time.Time, err error)
}

// Role classifies a ranked source by the kind of product it serves.
type Role int

const (
	RoleDefinitive Role = iota
	RoleNowcast
	RoleForecast
)

func (r Role) String() string {
	switch r {
	case RoleDefinitive:
		return "definitive"
	case RoleNowcast:
		return "nowcast"
	case RoleForecast:
		return "forecast"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// RankedSource pairs a Source with its product role. Priority is the
// position in the slice handed to Combine, not the role.
type RankedSource struct {
	Source
	Role Role
}

// Options configures a combine run. Zero Start/Stop means derive the
// window from the bounds the sources report. Freq overrides the output
// grid frequency when positive; otherwise the frequency is inferred from
// the collected samples, falling back to the top source's cadence.
type Options struct {
	Start time.Time
	Stop  time.Time
	Freq  time.Duration
	Fill  float64
}

// NewOptions returns Options with the conventional NaN fill. Callers
// merging geomagnetic products usually set Fill to swx.GeomagFill.
func NewOptions() Options {
	return Options{Fill: math.NaN()}
}

// Result is a combined series on a regular half-open grid.
type Result struct {
	Times  []time.Time
	Values []float64
	Fill   float64
	Freq   time.Duration
	Notes  string
}

// Len returns the number of grid points.
func (r *Result) Len() int { return len(r.Times) }

// Combine merges the ranked sources over the window into a single series.
// Empty sources produce an all-fill series, not an error. Configuration
// problems (too few sources, underivable or degenerate window) fail
// before any sample is fetched.
func Combine(ctx context.Context, sources []RankedSource, opts Options) (*Result, error) {
	if len(sources) < 2 {
		return nil, ErrTooFewSources
	}

	start, stop := opts.Start, opts.Stop
	if !start.IsZero() && !stop.IsZero() && !start.Before(stop) {
		return nil, ErrBadWindow
	}
	if start.IsZero() || stop.IsZero() {
		var err error
		start, stop, err = deriveWindow(ctx, sources, start, stop)
		if err != nil {
			return nil, err
		}
		if !start.Before(stop) {
			return nil, ErrBadWindow
		}
	}

	s := &session{
		sources: sources,
		start:   start.UTC(),
		stop:    stop.UTC(),
		freq:    opts.Freq,
		fill:    opts.Fill,
	}
	return s.run(ctx)
}

// deriveWindow fills in a missing start or stop from the spans the
// Bounded sources report. The derived stop is the latest reported bound
// padded by the cadence of the source reporting it, so that last sample
// stays inside the half-open window without trailing fill slots.
func deriveWindow(ctx context.Context, sources []RankedSource, start, stop time.Time) (time.Time, time.Time, error) {
	var first, last time.Time
	var lastPad time.Duration
	found := false

	for _, rs := range sources {
		b, ok := rs.Source.(Bounded)
		if !ok {
			continue
		}
		lo, hi, err := b.Bounds(ctx)
		if err != nil {
			if errors.Is(err, ErrNoBounds) {
				continue
			}
			return start, stop, fmt.Errorf("%s: bounds: %w", rs.Name(), err)
		}
		if !found {
			first, last, lastPad = lo, hi, rs.Cadence()
			found = true
			continue
		}
		if lo.Before(first) {
			first = lo
		}
		if hi.After(last) {
			last, lastPad = hi, rs.Cadence()
		}
	}

	if !found {
		return start, stop, ErrNoWindow
	}
	if start.IsZero() {
		start = first
	}
	if stop.IsZero() {
		stop = last.Add(lastPad)
	}
	return start, stop, nil
}

// session is the state of one combine run: the advancing pointer, the
// samples collected so far, and the provenance being assembled.
type session struct {
	sources []RankedSource
	start   time.Time
	stop    time.Time
	freq    time.Duration
	fill    float64

	times  []time.Time
	values []float64
	notes  strings.Builder
}

func (s *session) run(ctx context.Context) (*Result, error) {
	s.notes.WriteString("Combines data from")

	t := s.start
	for _, rs := range s.sources {
		if !t.Before(s.stop) {
			break
		}
		var err error
		t, err = s.walk(ctx, rs, t)
		if err != nil {
			return nil, err
		}
	}
	s.notes.WriteString(", in that order")

	freq := s.selectFreq()
	times, values := regrid(s.times, s.values, s.start, s.stop, freq, s.fill)

	return &Result{
		Times:  times,
		Values: values,
		Fill:   s.fill,
		Freq:   freq,
		Notes:  s.notes.String(),
	}, nil
}

// walk drains one source from pointer t, returning the advanced pointer.
// The source is consulted until it yields nothing at or after t, so
// sources serving partial windows per fetch still hand over everything
// they have. A fetch that fails aborts the run.
func (s *session) walk(ctx context.Context, rs RankedSource, t time.Time) (time.Time, error) {
	fmt.Fprintf(&s.notes, " the %s source (%s to ", rs.Name(), t.Format(dateLayout))

	for t.Before(s.stop) {
		if err := ctx.Err(); err != nil {
			return t, err
		}

		batch, err := rs.Fetch(ctx, t, s.stop)
		if err != nil {
			return t, fmt.Errorf("%s: fetch %s to %s: %w",
				rs.Name(), t.Format(dateLayout), s.stop.Format(dateLayout), err)
		}

		batch = s.usable(batch, t)
		if len(batch) == 0 {
			break
		}
		for _, smp := range batch {
			s.times = append(s.times, smp.Time)
			s.values = append(s.values, smp.Value)
		}

		next := batch[len(batch)-1].Time.Add(rs.Cadence())
		if !next.After(t) {
			break
		}
		t = next
	}

	fmt.Fprintf(&s.notes, "%s)", t.Format(dateLayout))
	return t, nil
}

// usable drops samples behind the pointer, past the window, or carrying
// the fill value. Well behaved sources return none of these; the clamp
// keeps a sloppy source from stalling or corrupting the walk.
func (s *session) usable(batch []swx.Sample, t time.Time) []swx.Sample {
	out := batch[:0]
	for _, smp := range batch {
		if smp.Time.Before(t) || !smp.Time.Before(s.stop) {
			continue
		}
		if swx.IsFill(smp.Value, s.fill) {
			continue
		}
		out = append(out, smp)
	}
	return out
}

// selectFreq picks the output grid frequency: explicit override first,
// then the dominant delta of the collected samples, then the nominal
// cadence of the most trusted source.
func (s *session) selectFreq() time.Duration {
	if s.freq > 0 {
		return s.freq
	}
	if freq, ok := InferFreq(s.times); ok {
		return freq
	}
	return s.sources[0].Cadence()
}
