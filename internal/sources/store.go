// Package sources adapts the upstream space weather bulletins (GFZ Potsdam
// and NOAA SWPC products) to the merge engine's Source contract. A Store
// names and reads the locally mirrored bulletin files; pure parse functions
// decode each product format; the adapter types add file discovery,
// windowing, and caching on top.
package sources

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/pgzip"
)

// Product names, matching the upstream filenames the mirror downloads.
const (
	ProductGeomagRecent   = "daily-geomagnetic-indices"
	ProductGeomagForecast = "3-day-geomag-forecast"
	Product45Day          = "45-day-ap-forecast"
	ProductKpJSON         = "noaa-planetary-k-index"
	ProductSolarCycle     = "observed-solar-cycle-indices"
)

// ArchiveFile is the GFZ Potsdam full-history table; it is undated in the
// mirror because each download replaces it wholesale.
const ArchiveFile = "Kp_ap_Ap_SN_F107_since_1932.txt"

// issueLayout dates mirrored bulletin filenames by issue day.
const issueLayout = "2006-01-02"

// Sentinel errors for the sources package.
var (
	ErrNoIssues       = errors.New("sources: no mirrored issues for product")
	ErrUnknownProduct = errors.New("sources: unknown product")
)

// Store reads the local bulletin mirror. Dated products are stored as
// <product>_<YYYY-MM-DD>.<ext>, optionally gzip compressed with a .gz
// suffix; reads are decompressed transparently.
type Store struct {
	dir string
}

// NewStore returns a Store over the given mirror directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the mirror directory.
func (s *Store) Dir() string { return s.dir }

// ext returns the filename extension for a product.
func ext(product string) string {
	switch product {
	case ProductKpJSON, ProductSolarCycle:
		return ".json"
	default:
		return ".txt"
	}
}

// Path returns the uncompressed mirror path of a dated product issue.
func (s *Store) Path(product string, issue time.Time) string {
	name := fmt.Sprintf("%s_%s%s", product, issue.Format(issueLayout), ext(product))
	return filepath.Join(s.dir, name)
}

// ArchivePath returns the uncompressed mirror path of the GFZ archive.
func (s *Store) ArchivePath() string {
	return filepath.Join(s.dir, ArchiveFile)
}

// Open opens a mirror file for reading, preferring the uncompressed name
// and falling back to its .gz sibling. Gzip content is decompressed with
// parallel readers.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err == nil {
		return f, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	f, err = os.Open(path + ".gz")
	if err != nil {
		return nil, err
	}
	gz, err := pgzip.NewReaderN(f, 256*1024, runtime.NumCPU())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gzip open %s: %w", filepath.Base(path)+".gz", err)
	}
	return &gzFile{gz: gz, f: f}, nil
}

// OpenIssue opens one dated issue of a product.
func (s *Store) OpenIssue(product string, issue time.Time) (io.ReadCloser, error) {
	return s.Open(s.Path(product, issue))
}

// OpenArchive opens the GFZ archive table.
func (s *Store) OpenArchive() (io.ReadCloser, error) {
	return s.Open(s.ArchivePath())
}

// Dates scans the mirror for the issue dates of a product, ascending.
func (s *Store) Dates(product string) ([]time.Time, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	prefix := product + "_"
	suffix := ext(product)
	var dates []time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".gz")
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		d, err := time.Parse(issueLayout, stamp)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// IssueDate extracts the issue time from a downloaded bulletin payload,
// for naming the mirrored file. Products without an :Issued: line report
// false and are dated by the caller (usually today, UTC).
func IssueDate(product string, body []byte) (time.Time, bool) {
	switch product {
	case ProductGeomagRecent:
		if issued, _, err := ParseGeomagRecent(bytes.NewReader(body)); err == nil {
			return issued, true
		}
	case ProductGeomagForecast:
		if issued, _, err := ParseGeomagForecast(bytes.NewReader(body)); err == nil {
			return issued, true
		}
	case Product45Day:
		if issued, _, _, err := Parse45Day(bytes.NewReader(body)); err == nil {
			return issued, true
		}
	}
	return time.Time{}, false
}

// LatestIssue returns the newest mirrored issue of a product at or before
// notAfter. A zero notAfter means no upper limit.
func (s *Store) LatestIssue(product string, notAfter time.Time) (time.Time, error) {
	dates, err := s.Dates(product)
	if err != nil {
		return time.Time{}, err
	}
	for i := len(dates) - 1; i >= 0; i-- {
		if notAfter.IsZero() || !dates[i].After(notAfter) {
			return dates[i], nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s", ErrNoIssues, product)
}

// gzFile closes the decompressor and the underlying file together.
type gzFile struct {
	gz *pgzip.Reader
	f  *os.File
}

func (g *gzFile) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzFile) Close() error {
	gzErr := g.gz.Close()
	fErr := g.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}
