// swx-download - Mirror space weather bulletins from GFZ and NOAA SWPC
//
// Data sources:
//   - GFZ Potsdam: definitive Kp/ap/Ap/SN/F10.7 archive (1932-present)
//   - NOAA SWPC: daily geomagnetic indices, 3-day and 45-day forecasts,
//     services JSON products
//
// Dated products are written as <product>_<YYYY-MM-DD>.<ext>, named by the
// issue date parsed from the payload when the bulletin carries one.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/swx-download ./cmd/swx-download

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/swxlab/swx-apps/internal/common"
	"github.com/swxlab/swx-apps/internal/sources"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

// DataSource defines one upstream bulletin product
type DataSource struct {
	Name    string
	URL     string
	Product string // store product key; empty for the undated GFZ archive
	Desc    string
}

var products = []DataSource{
	{
		Name:    "gfz-archive",
		URL:     sources.GFZURL,
		Product: "",
		Desc:    "GFZ Potsdam Kp/ap/Ap/SN/F10.7 archive (1932-present)",
	},
	{
		Name:    "recent",
		URL:     sources.RecentURL,
		Product: sources.ProductGeomagRecent,
		Desc:    "SWPC daily geomagnetic indices (last 30 days)",
	},
	{
		Name:    "forecast",
		URL:     sources.ForecastURL,
		Product: sources.ProductGeomagForecast,
		Desc:    "SWPC 3-day geomagnetic forecast",
	},
	{
		Name:    "45day",
		URL:     sources.Forecast45URL,
		Product: sources.Product45Day,
		Desc:    "USAF 45-day Ap and F10.7 forecast",
	},
	{
		Name:    "kp-json",
		URL:     sources.KpJSONURL,
		Product: sources.ProductKpJSON,
		Desc:    "NOAA planetary K index (services JSON)",
	},
	{
		Name:    "solar-cycle",
		URL:     sources.SolarCycleURL,
		Product: sources.ProductSolarCycle,
		Desc:    "NOAA observed solar cycle indices (monthly)",
	},
}

// destPath names the mirror file for a downloaded payload.
func destPath(store *sources.Store, src DataSource, body []byte) string {
	if src.Product == "" {
		return store.ArchivePath()
	}
	issue, ok := sources.IssueDate(src.Product, body)
	if !ok {
		issue = time.Now().UTC()
	}
	return store.Path(src.Product, issue)
}

// writeFile lands the payload under a temp name and renames it into
// place, gzip compressing when asked.
func writeFile(destPath string, body []byte, compress bool) (string, error) {
	if compress {
		destPath += ".gz"
	}
	tmpPath := destPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return destPath, fmt.Errorf("create file failed: %w", err)
	}

	if compress {
		gz := gzip.NewWriter(f)
		_, err = gz.Write(body)
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
	} else {
		_, err = f.Write(body)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return destPath, fmt.Errorf("write failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return destPath, fmt.Errorf("rename failed: %w", err)
	}
	return destPath, nil
}

func main() {
	cfg := common.DefaultConfig()

	destDir := flag.String("dest", cfg.BulletinDir(), "Bulletin mirror directory")
	timeout := flag.Duration("timeout", 60*time.Second, "HTTP timeout per download")
	compress := flag.Bool("compress", false, "Gzip the mirrored files")
	listProducts := flag.Bool("list", false, "List available products")
	product := flag.String("source", "all", "Product to download (or 'all')")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "swx-download v%s - Space Weather Bulletin Mirror\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Downloads geomagnetic and solar bulletins from GFZ and NOAA SWPC.\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nProducts:\n")
		for _, s := range products {
			fmt.Fprintf(os.Stderr, "  %-12s %s\n", s.Name, s.Desc)
		}
	}

	flag.Parse()

	if *listProducts {
		fmt.Printf("Available products:\n\n")
		for _, s := range products {
			fmt.Printf("  %-12s %s\n", s.Name, s.Desc)
			fmt.Printf("               URL: %s\n\n", s.URL)
		}
		return
	}

	fmt.Println("=========================================================")
	fmt.Printf("Space Weather Download v%s\n", Version)
	fmt.Println("=========================================================")
	fmt.Printf("Destination: %s\n", *destDir)
	fmt.Printf("Timeout:     %v\n", *timeout)
	fmt.Println()

	if err := os.MkdirAll(*destDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Cannot create directory: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutdown requested...")
		cancel()
	}()

	store := sources.NewStore(*destDir)
	client := sources.NewClient("swx-download", *timeout)

	startTime := time.Now()
	downloaded := 0
	failed := 0

	for _, src := range products {
		if *product != "all" && *product != src.Name {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		fmt.Printf("[%s] Downloading from %s...\n", src.Name, src.URL)

		body, err := client.Get(ctx, src.URL)
		if err != nil {
			fmt.Printf("  ERROR: %v\n", err)
			failed++
			continue
		}

		dest, err := writeFile(destPath(store, src, body), body, *compress)
		if err != nil {
			fmt.Printf("  ERROR: %v\n", err)
			failed++
			continue
		}

		fmt.Printf("  Downloaded %s (%d bytes)\n", filepath.Base(dest), len(body))
		downloaded++
	}

	elapsed := time.Since(startTime)

	fmt.Println()
	fmt.Println("=========================================================")
	fmt.Println("Download Summary")
	fmt.Println("=========================================================")
	fmt.Printf("Downloaded: %d files\n", downloaded)
	fmt.Printf("Failed:     %d files\n", failed)
	fmt.Printf("Elapsed:    %v\n", elapsed.Round(time.Millisecond))
	fmt.Println("=========================================================")

	if failed > 0 {
		os.Exit(1)
	}
}
