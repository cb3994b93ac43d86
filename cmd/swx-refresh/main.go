// swx-refresh - Periodic bulletin refresh and re-combine daemon
//
// Polls the fast-moving SWPC bulletins (daily geomagnetic indices, 3-day
// forecast, 45-day forecast) into the mirror on a fixed interval, then
// re-combines the configured index and rewrites <index>_latest.csv plus
// its provenance sidecar. The GFZ archive moves once a day and is left
// to scheduled swx-download runs.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/swx-refresh ./cmd/swx-refresh

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/swxlab/swx-apps/internal/common"
	"github.com/swxlab/swx-apps/internal/merge"
	"github.com/swxlab/swx-apps/internal/sources"
	"github.com/swxlab/swx-apps/internal/swx"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

// refreshed are the products polled each cycle, all issue-dated text
// bulletins that SWPC reissues during the day.
var refreshed = []struct {
	Name    string
	URL     string
	Product string
}{
	{"recent", sources.RecentURL, sources.ProductGeomagRecent},
	{"forecast", sources.ForecastURL, sources.ProductGeomagForecast},
	{"45day", sources.Forecast45URL, sources.Product45Day},
}

// refresher holds the state shared across cycles.
type refresher struct {
	store   *sources.Store
	client  *sources.Client
	outDir  string
	index   swx.Index
	rank    string
	timeout time.Duration
	stats   *common.Stats
}

// download mirrors one product, naming the file by its issue date.
func (r *refresher) download(ctx context.Context, name, url, product string) error {
	body, err := r.client.Get(ctx, url)
	if err != nil {
		return err
	}

	issue, ok := sources.IssueDate(product, body)
	if !ok {
		issue = time.Now().UTC()
	}
	dest := r.store.Path(product, issue)
	tmp := dest + ".tmp"

	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	log.Printf("[%s] Mirrored %s (%d bytes)", name, filepath.Base(dest), len(body))
	return nil
}

// ranked builds fresh sources each cycle so newly mirrored issues are
// seen; adapter caches do not outlive the cycle.
func (r *refresher) ranked() ([]merge.RankedSource, error) {
	var out []merge.RankedSource
	for _, token := range strings.Split(r.rank, ",") {
		token = strings.TrimSpace(token)
		switch token {
		case "def":
			out = append(out, merge.RankedSource{
				Source: sources.NewGFZ(r.store, r.index, sources.GFZDefinitive),
				Role:   merge.RoleDefinitive,
			})
		case "now":
			out = append(out, merge.RankedSource{
				Source: sources.NewGFZ(r.store, r.index, sources.GFZNowcast),
				Role:   merge.RoleNowcast,
			})
		case "recent":
			out = append(out, merge.RankedSource{
				Source: sources.NewSWPCRecent(r.store, r.index),
				Role:   merge.RoleNowcast,
			})
		case "forecast":
			out = append(out, merge.RankedSource{
				Source: sources.NewSWPCForecast(r.store),
				Role:   merge.RoleForecast,
			})
		case "45day":
			out = append(out, merge.RankedSource{
				Source: sources.NewSWPC45Day(r.store, r.index),
				Role:   merge.RoleForecast,
			})
		case "":
		default:
			return nil, fmt.Errorf("unknown rank token %q", token)
		}
	}
	return out, nil
}

// writeSeries lands the combined series and its provenance sidecar under
// a temp name and renames into place, so readers never see half a file.
func (r *refresher) writeSeries(res *merge.Result) (string, error) {
	dest := filepath.Join(r.outDir, fmt.Sprintf("%s_latest.csv", r.index))
	tmp := dest + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return dest, err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "time,value")
	for i, t := range res.Times {
		fmt.Fprintf(w, "%s,%s\n",
			t.UTC().Format(time.RFC3339),
			strconv.FormatFloat(res.Values[i], 'g', -1, 64))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return dest, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return dest, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return dest, err
	}

	return dest, os.WriteFile(dest+".notes.txt", []byte(res.Notes+"\n"), 0644)
}

// cycle is one refresh pass: poll the bulletins, then re-combine.
func (r *refresher) cycle(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	t0 := time.Now()
	log.Println("Cycle: refreshing bulletins...")

	for _, p := range refreshed {
		if ctx.Err() != nil {
			return
		}
		if err := r.download(ctx, p.Name, p.URL, p.Product); err != nil {
			log.Printf("[%s] Refresh failed: %v", p.Name, err)
			r.stats.AddFailed(1)
			continue
		}
		r.stats.AddFiles(1)
	}

	ranked, err := r.ranked()
	if err != nil {
		log.Printf("Combine skipped: %v", err)
		return
	}

	opts := merge.NewOptions()
	opts.Fill = math.NaN()
	res, err := merge.Combine(ctx, ranked, opts)
	if err != nil {
		log.Printf("Combine failed: %v", err)
		r.stats.AddFailed(1)
		return
	}
	r.stats.AddRecords(uint64(res.Len()))

	dest, err := r.writeSeries(res)
	if err != nil {
		log.Printf("Write failed: %v", err)
		r.stats.AddFailed(1)
		return
	}

	log.Printf("Cycle done in %v: %d points -> %s",
		time.Since(t0).Round(time.Millisecond), res.Len(), dest)
	log.Printf("Totals: %d mirrored, %d combined points, %d failures",
		r.stats.GetFiles(), r.stats.GetRecords(), r.stats.GetFailed())
}

func main() {
	cfg := common.DefaultConfig()

	dataDir := flag.String("data", cfg.BulletinDir(), "Bulletin mirror directory")
	outDir := flag.String("out", cfg.CombinedDir(), "Combined series output directory")
	indexName := flag.String("index", "kp", "Index series to re-combine")
	rank := flag.String("rank", "recent,forecast", "Sources in priority order")
	interval := flag.Int("interval", cfg.RefreshMinutes, "Minutes between cycles")
	timeout := flag.Duration("timeout", 5*time.Minute, "Per-cycle deadline")
	once := flag.Bool("once", false, "Run a single cycle and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "swx-refresh v%s - Bulletin Refresh Daemon\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Periodically mirrors the SWPC bulletins and re-combines an index\n")
		fmt.Fprintf(os.Stderr, "series into <index>_latest.csv.\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -index kp -rank recent,forecast -interval 60\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -index ap_daily -rank recent,45day -once\n", os.Args[0])
	}

	flag.Parse()

	log.Println("=========================================================")
	log.Printf("Space Weather Refresh v%s", Version)
	log.Println("=========================================================")

	index, err := swx.ParseIndex(*indexName)
	if err != nil {
		log.Fatalf("Bad -index: %v", err)
	}
	if *interval < 1 {
		log.Fatalf("Bad -interval: %d minutes", *interval)
	}

	for _, dir := range []string{*dataDir, *outDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Cannot create %s: %v", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	r := &refresher{
		store:   sources.NewStore(*dataDir),
		client:  sources.NewClient("swx-refresh", 60*time.Second),
		outDir:  *outDir,
		index:   index,
		rank:    *rank,
		timeout: *timeout,
		stats:   common.NewStats(),
	}

	log.Printf("Mirror:   %s", *dataDir)
	log.Printf("Output:   %s", *outDir)
	log.Printf("Index:    %s (rank %s)", index, *rank)
	log.Printf("Interval: %d minutes", *interval)

	// First cycle runs up front so a fresh deployment serves data
	// before the first tick.
	r.cycle(ctx)
	if *once {
		return
	}

	sched := gocron.NewScheduler(time.UTC)
	if _, err := sched.Every(*interval).Minutes().Do(func() { r.cycle(ctx) }); err != nil {
		log.Fatalf("Schedule failed: %v", err)
	}
	sched.StartAsync()

	<-sigChan
	log.Println("\nShutdown requested...")
	cancel()
	sched.Stop()

	log.Println("=========================================================")
	log.Printf("Refresh stopped: %d mirrored, %d combined points, %d failures",
		r.stats.GetFiles(), r.stats.GetRecords(), r.stats.GetFailed())
	log.Println("=========================================================")
}
