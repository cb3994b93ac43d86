// swx-combine - Merge ranked bulletin sources into one index series
//
// Combines a geophysical index (Kp, ap, daily Ap, F10.7, SSN) from the
// mirrored bulletins, most trusted source first, and writes the result as
// CSV or Parquet with a provenance note recording which source served
// which span.
//
// Rank tokens: def, now (GFZ archive split), recent (SWPC daily indices),
// forecast (SWPC 3-day), 45day (USAF 45-day), realtime (SWPC services).
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/swx-combine ./cmd/swx-combine

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

	"github.com/parquet-go/parquet-go"

	"github.com/swxlab/swx-apps/internal/common"
	"github.com/swxlab/swx-apps/internal/merge"
	"github.com/swxlab/swx-apps/internal/sources"
	"github.com/swxlab/swx-apps/internal/swx"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

// buildSource maps one rank token to a store-backed source. Tokens that
// cannot serve the requested index are rejected here, before any I/O.
func buildSource(token string, index swx.Index, store *sources.Store, timeout time.Duration) (merge.RankedSource, error) {
	switch token {
	case "def":
		return merge.RankedSource{
			Source: sources.NewGFZ(store, index, sources.GFZDefinitive),
			Role:   merge.RoleDefinitive,
		}, nil
	case "now":
		return merge.RankedSource{
			Source: sources.NewGFZ(store, index, sources.GFZNowcast),
			Role:   merge.RoleNowcast,
		}, nil
	case "recent":
		if index != swx.IndexKp && index != swx.IndexApDaily {
			return merge.RankedSource{}, fmt.Errorf("recent serves kp and ap_daily, not %s", index)
		}
		return merge.RankedSource{
			Source: sources.NewSWPCRecent(store, index),
			Role:   merge.RoleNowcast,
		}, nil
	case "forecast":
		if index != swx.IndexKp {
			return merge.RankedSource{}, fmt.Errorf("forecast serves kp, not %s", index)
		}
		return merge.RankedSource{
			Source: sources.NewSWPCForecast(store),
			Role:   merge.RoleForecast,
		}, nil
	case "45day":
		if index != swx.IndexApDaily && index != swx.IndexF107 {
			return merge.RankedSource{}, fmt.Errorf("45day serves ap_daily and f107, not %s", index)
		}
		return merge.RankedSource{
			Source: sources.NewSWPC45Day(store, index),
			Role:   merge.RoleForecast,
		}, nil
	case "realtime":
		if index != swx.IndexKp {
			return merge.RankedSource{}, fmt.Errorf("realtime serves kp, not %s", index)
		}
		return merge.RankedSource{
			Source: sources.NewNOAAKp(sources.NewClient("swx-combine", timeout)),
			Role:   merge.RoleNowcast,
		}, nil
	}
	return merge.RankedSource{}, fmt.Errorf("unknown rank token %q", token)
}

// parseWhen accepts YYYY-MM-DD or RFC3339 stamps. Empty means unset.
func parseWhen(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad time %q (want YYYY-MM-DD or RFC3339)", s)
	}
	return t.UTC(), nil
}

func writeCSV(path string, res *merge.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
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
		return err
	}
	return f.Close()
}

func writeParquet(path string, res *merge.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	rows := make([]swx.SeriesRow, len(res.Times))
	for i, t := range res.Times {
		rows[i] = swx.SeriesRow{Timestamp: t.UTC().Unix(), Value: res.Values[i]}
	}

	w := parquet.NewGenericWriter[swx.SeriesRow](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	cfg := common.DefaultConfig()

	dataDir := flag.String("data", cfg.BulletinDir(), "Bulletin mirror directory")
	indexName := flag.String("index", "kp", "Index series: kp, ap, ap_daily, f107, ssn")
	rank := flag.String("rank", "def,now,recent", "Sources in priority order (comma separated)")
	startStr := flag.String("start", "", "Window start (default: derive from source bounds)")
	stopStr := flag.String("stop", "", "Window stop, exclusive (default: derive)")
	freq := flag.Duration("freq", 0, "Output grid frequency (default: infer from the data)")
	fill := flag.Float64("fill", math.NaN(), "Fill value for grid gaps")
	outPath := flag.String("out", "", "Output path (default: under the combined data directory)")
	format := flag.String("format", "csv", "Output format: csv or parquet")
	notes := flag.Bool("notes", false, "Write the provenance note to a .notes.txt sidecar")
	timeout := flag.Duration("timeout", 30*time.Second, "HTTP timeout for the realtime source")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "swx-combine v%s - Index Series Reconciliation\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Merges a geophysical index from ranked bulletin sources into one\n")
		fmt.Fprintf(os.Stderr, "series on a regular time grid.\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -index kp -rank def,now,recent,forecast\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -index f107 -rank def,45day -start 2024-01-01 -stop 2024-03-01\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -index ap_daily -rank def,recent -format parquet -notes\n", os.Args[0])
	}

	flag.Parse()

	log.Println("=========================================================")
	log.Printf("Space Weather Combine v%s", Version)
	log.Println("=========================================================")

	index, err := swx.ParseIndex(*indexName)
	if err != nil {
		log.Fatalf("Bad -index: %v", err)
	}

	start, err := parseWhen(*startStr)
	if err != nil {
		log.Fatalf("Bad -start: %v", err)
	}
	stop, err := parseWhen(*stopStr)
	if err != nil {
		log.Fatalf("Bad -stop: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	store := sources.NewStore(*dataDir)

	var ranked []merge.RankedSource
	for _, token := range strings.Split(*rank, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		rs, err := buildSource(token, index, store, *timeout)
		if err != nil {
			log.Fatalf("Bad -rank: %v", err)
		}
		ranked = append(ranked, rs)
	}

	log.Printf("Index:   %s", index)
	log.Printf("Mirror:  %s", *dataDir)
	for i, rs := range ranked {
		log.Printf("Rank %d:  %s (%s)", i+1, rs.Name(), rs.Role)
	}

	opts := merge.NewOptions()
	opts.Start = start
	opts.Stop = stop
	opts.Freq = *freq
	opts.Fill = *fill

	t0 := time.Now()
	res, err := merge.Combine(ctx, ranked, opts)
	if err != nil {
		log.Fatalf("Combine failed: %v", err)
	}

	filled := 0
	for _, v := range res.Values {
		if swx.IsFill(v, res.Fill) {
			filled++
		}
	}

	log.Printf("Combined %d points in %v (%d filled, freq %v)",
		res.Len(), time.Since(t0).Round(time.Millisecond), filled, res.Freq)
	log.Printf("Notes: %s", res.Notes)

	out := *outPath
	if out == "" {
		ext := "csv"
		if *format == "parquet" {
			ext = "parquet"
		}
		name := fmt.Sprintf("%s_combined_%s.%s",
			index, res.Times[0].UTC().Format("2006-01-02"), ext)
		out = filepath.Join(cfg.CombinedDir(), name)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		log.Fatalf("Cannot create output directory: %v", err)
	}

	switch *format {
	case "csv":
		err = writeCSV(out, res)
	case "parquet":
		err = writeParquet(out, res)
	default:
		log.Fatalf("Bad -format %q (want csv or parquet)", *format)
	}
	if err != nil {
		log.Fatalf("Write failed: %v", err)
	}
	log.Printf("Wrote %s", out)

	if *notes {
		sidecar := out + ".notes.txt"
		if err := os.WriteFile(sidecar, []byte(res.Notes+"\n"), 0644); err != nil {
			log.Fatalf("Notes write failed: %v", err)
		}
		log.Printf("Wrote %s", sidecar)
	}

	log.Println("=========================================================")
	log.Printf("Window:  %s to %s",
		res.Times[0].UTC().Format(time.RFC3339),
		res.Times[res.Len()-1].UTC().Format(time.RFC3339))
	log.Printf("Points:  %d (%d with data)", res.Len(), res.Len()-filled)
	log.Println("=========================================================")
}
