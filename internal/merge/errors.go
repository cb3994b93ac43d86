package merge

import "errors"

// Sentinel errors for the merge package.
// Use errors.Is to check: errors.Is(err, merge.ErrBadWindow)
var (
	// ErrTooFewSources is returned when fewer than two ranked sources
	// are supplied; with one source there is nothing to reconcile.
	ErrTooFewSources = errors.New("merge: need at least two ranked sources to combine them")

	// ErrNoWindow is returned when no explicit start/stop is given and
	// no source can report the bounds of the data it holds.
	ErrNoWindow = errors.New("merge: provide start and stop times or sources that report bounds")

	// ErrBadWindow is returned when the combining window is zero or
	// negative.
	ErrBadWindow = errors.New("merge: date range is zero or negative")

	// ErrNoBounds is reported by Bounded sources that cannot state the
	// span they cover; window derivation skips such sources.
	ErrNoBounds = errors.New("merge: bounds unavailable")
)
