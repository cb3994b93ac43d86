// swx-backfill - Historical geomagnetic/solar index backfill from GFZ
//
// Loads the definitive Kp/ap/Ap/SN/F10.7 archive (local mirror, local
// file, or a fresh download from GFZ Potsdam) and inserts into ClickHouse
// swx.indices_raw with 3-hour bucketing.
//
// Each day produces 8 rows (one per 3-hour bucket: 00, 03, ..., 21 UTC).
// Daily Ap, SSN, and F10.7 are replicated across the buckets; Kp/ap are
// bucket-specific. Missing values keep the upstream -1 fill so the
// warehouse can tell "no data" from zero. ReplacingMergeTree(updated_at)
// on (date, time) handles deduplication.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/swx-backfill ./cmd/swx-backfill

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"

	"github.com/swxlab/swx-apps/internal/common"
	"github.com/swxlab/swx-apps/internal/sources"
)

var Version = "1.0.0"

const (
	sourceTag  = "gfz-archive"
	batchLimit = 50000 // flush every 50k rows (~6250 days)
)

// 3-hour bucket start hours (UTC)
var bucketHours = [8]int{0, 3, 6, 9, 12, 15, 18, 21}

// IndicesBatch holds columnar data for native ClickHouse insert.
// Matches schema: swx.indices_raw (date, time, kp, ap, ap_daily, ssn,
// f107_obs, f107_adj, definitive, source_file)
type IndicesBatch struct {
	Date       *proto.ColDate32
	Time       *proto.ColDateTime
	Kp         *proto.ColFloat32
	Ap         *proto.ColFloat32
	ApDaily    *proto.ColFloat32
	SSN        *proto.ColFloat32
	F107Obs    *proto.ColFloat32
	F107Adj    *proto.ColFloat32
	Definitive *proto.ColUInt8
	SourceFile *proto.ColStr
}

func NewIndicesBatch() *IndicesBatch {
	return &IndicesBatch{
		Date:       new(proto.ColDate32),
		Time:       new(proto.ColDateTime),
		Kp:         new(proto.ColFloat32),
		Ap:         new(proto.ColFloat32),
		ApDaily:    new(proto.ColFloat32),
		SSN:        new(proto.ColFloat32),
		F107Obs:    new(proto.ColFloat32),
		F107Adj:    new(proto.ColFloat32),
		Definitive: new(proto.ColUInt8),
		SourceFile: new(proto.ColStr),
	}
}

func (b *IndicesBatch) Reset() {
	b.Date.Reset()
	b.Time.Reset()
	b.Kp.Reset()
	b.Ap.Reset()
	b.ApDaily.Reset()
	b.SSN.Reset()
	b.F107Obs.Reset()
	b.F107Adj.Reset()
	b.Definitive.Reset()
	b.SourceFile.Reset()
}

func (b *IndicesBatch) Len() int {
	return b.Date.Rows()
}

func (b *IndicesBatch) Input() proto.Input {
	return proto.Input{
		{Name: "date", Data: b.Date},
		{Name: "time", Data: b.Time},
		{Name: "kp", Data: b.Kp},
		{Name: "ap", Data: b.Ap},
		{Name: "ap_daily", Data: b.ApDaily},
		{Name: "ssn", Data: b.SSN},
		{Name: "f107_obs", Data: b.F107Obs},
		{Name: "f107_adj", Data: b.F107Adj},
		{Name: "definitive", Data: b.Definitive},
		{Name: "source_file", Data: b.SourceFile},
	}
}

func (b *IndicesBatch) AddRow(day sources.GFZDay, bucket int, ts time.Time) {
	b.Date.Append(day.Date)
	b.Time.Append(ts)
	b.Kp.Append(float32(day.Kp[bucket]))
	b.Ap.Append(float32(day.Ap[bucket]))
	b.ApDaily.Append(float32(day.DayAp))
	b.SSN.Append(float32(day.SSN))
	b.F107Obs.Append(float32(day.F107Obs))
	b.F107Adj.Append(float32(day.F107Adj))
	if day.Definitive {
		b.Definitive.Append(1)
	} else {
		b.Definitive.Append(0)
	}
	b.SourceFile.Append(sourceTag)
}

func flushBatch(ctx context.Context, conn *ch.Client, table string, batch *IndicesBatch) error {
	if batch.Len() == 0 {
		return nil
	}
	query := fmt.Sprintf("INSERT INTO %s (date, time, kp, ap, ap_daily, ssn, f107_obs, f107_adj, definitive, source_file) VALUES", table)
	return conn.Do(ctx, ch.Query{
		Body:  query,
		Input: batch.Input(),
	})
}

// openArchive resolves the archive in preference order: explicit -file,
// the local mirror, then a fresh download from GFZ.
func openArchive(ctx context.Context, localFile, dataDir string, timeout time.Duration) (io.ReadCloser, string, error) {
	if localFile != "" {
		f, err := os.Open(localFile)
		if err != nil {
			return nil, "", err
		}
		return f, localFile, nil
	}

	store := sources.NewStore(dataDir)
	rc, err := store.OpenArchive()
	if err == nil {
		return rc, store.ArchivePath(), nil
	}
	if !os.IsNotExist(err) {
		return nil, "", err
	}

	client := sources.NewClient("swx-backfill", timeout)
	body, err := client.Get(ctx, sources.GFZURL)
	if err != nil {
		return nil, "", err
	}
	return io.NopCloser(bytes.NewReader(body)), sources.GFZURL, nil
}

func main() {
	cfg := common.DefaultConfig()

	chHost := flag.String("ch-host", "127.0.0.1:9000", "ClickHouse native protocol address")
	chDB := flag.String("ch-db", cfg.ClickHouseDatabase, "ClickHouse database")
	chTable := flag.String("ch-table", "indices_raw", "ClickHouse table")
	dataDir := flag.String("data", cfg.BulletinDir(), "Bulletin mirror directory")
	startStr := flag.String("start", "1932-01-01", "Start date (YYYY-MM-DD)")
	endStr := flag.String("end", "", "End date (default: today)")
	localFile := flag.String("file", "", "Local GFZ archive file (skip mirror and download)")
	dryRun := flag.Bool("dry-run", false, "Parse only, no ClickHouse insert")
	timeout := flag.Duration("timeout", 120*time.Second, "HTTP download timeout")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "swx-backfill v%s - Historical Index Backfill (GFZ Potsdam)\n\n", Version)
		fmt.Fprintf(os.Stderr, "Loads Kp, ap, Ap, SSN, and F10.7 from the GFZ archive and inserts\n")
		fmt.Fprintf(os.Stderr, "into ClickHouse swx.indices_raw.\n\n")
		fmt.Fprintf(os.Stderr, "Source: %s\n\n", sources.GFZURL)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -ch-host 192.168.1.90:9000 -start 2020-01-01\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -file /tmp/Kp_ap_Ap_SN_F107_since_1932.txt -dry-run\n", os.Args[0])
	}
	flag.Parse()

	log.Println("=========================================================")
	log.Printf("swx-backfill v%s - GFZ Potsdam Index Backfill", Version)
	log.Println("=========================================================")

	startDate, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}
	endDate := time.Now().UTC().Truncate(24 * time.Hour)
	if *endStr != "" {
		endDate, err = time.Parse("2006-01-02", *endStr)
		if err != nil {
			log.Fatalf("Invalid end date: %v", err)
		}
	}
	log.Printf("Date range: %s to %s", startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	rc, from, err := openArchive(ctx, *localFile, *dataDir, *timeout)
	if err != nil {
		log.Fatalf("Cannot open archive: %v", err)
	}
	log.Printf("Reading %s", from)

	t0 := time.Now()
	all, err := sources.ParseGFZ(rc)
	rc.Close()
	if err != nil {
		log.Fatalf("Parse error: %v", err)
	}

	days := all[:0]
	for _, d := range all {
		if d.Date.Before(startDate) || d.Date.After(endDate) {
			continue
		}
		days = append(days, d)
	}
	log.Printf("Parsed %d days in range (%d total) in %v",
		len(days), len(all), time.Since(t0).Round(time.Millisecond))

	if len(days) == 0 {
		log.Fatal("No data found in date range")
	}

	// Coverage summary
	var kpCount, f107Count, ssnCount, defCount int
	for _, d := range days {
		if d.Definitive {
			defCount++
		}
		if d.SSN >= 0 {
			ssnCount++
		}
		if d.F107Obs >= 0 {
			f107Count++
		}
		for _, kp := range d.Kp {
			if kp >= 0 {
				kpCount++
			}
		}
	}
	log.Printf("Coverage (%s to %s):",
		days[0].Date.Format("2006-01-02"), days[len(days)-1].Date.Format("2006-01-02"))
	log.Printf("  Definitive: %d of %d days", defCount, len(days))
	log.Printf("  Kp:   %d 3-hour values", kpCount)
	log.Printf("  SSN:  %d days", ssnCount)
	log.Printf("  F107: %d days", f107Count)

	totalRows := len(days) * 8
	log.Printf("Will insert: %d rows (%d days x 8 buckets)", totalRows, len(days))

	if *dryRun {
		log.Println("Dry run - skipping ClickHouse insert")
		return
	}

	log.Printf("Connecting to ClickHouse at %s...", *chHost)
	conn, err := ch.Dial(ctx, ch.Options{
		Address:     *chHost,
		Database:    *chDB,
		User:        cfg.ClickHouseUser,
		Password:    cfg.ClickHousePassword,
		Compression: ch.CompressionLZ4,
	})
	if err != nil {
		log.Fatalf("ClickHouse connection failed: %v", err)
	}
	defer conn.Close()

	tableFQN := fmt.Sprintf("%s.%s", *chDB, *chTable)
	log.Printf("Table: %s", tableFQN)

	t0 = time.Now()
	batch := NewIndicesBatch()
	inserted := 0

	for _, d := range days {
		select {
		case <-ctx.Done():
			log.Printf("Interrupted after %d rows", inserted)
			return
		default:
		}

		for i, hour := range bucketHours {
			ts := time.Date(d.Date.Year(), d.Date.Month(), d.Date.Day(),
				hour, 0, 0, 0, time.UTC)
			batch.AddRow(d, i, ts)
		}

		if batch.Len() >= batchLimit {
			if err := flushBatch(ctx, conn, tableFQN, batch); err != nil {
				log.Fatalf("Insert error at row %d: %v", inserted, err)
			}
			inserted += batch.Len()
			elapsed := time.Since(t0)
			rps := float64(inserted) / elapsed.Seconds()
			log.Printf("  Inserted %d / %d rows (%.0f rows/sec)", inserted, totalRows, rps)
			batch.Reset()
		}
	}

	if batch.Len() > 0 {
		if err := flushBatch(ctx, conn, tableFQN, batch); err != nil {
			log.Fatalf("Final insert error: %v", err)
		}
		inserted += batch.Len()
	}

	elapsed := time.Since(t0)
	rps := float64(inserted) / elapsed.Seconds()

	log.Println()
	log.Println("=========================================================")
	log.Println("Backfill Complete")
	log.Println("=========================================================")
	log.Printf("Days:    %d (%s to %s)", len(days),
		days[0].Date.Format("2006-01-02"), days[len(days)-1].Date.Format("2006-01-02"))
	log.Printf("Rows:    %d (8 per day)", inserted)
	log.Printf("Elapsed: %v", elapsed.Round(time.Millisecond))
	log.Printf("Rate:    %.0f rows/sec", rps)
	log.Printf("Source:  %s", sourceTag)
	log.Println("=========================================================")
	log.Println()
	log.Printf("Run OPTIMIZE TABLE %s FINAL to merge duplicates.", tableFQN)
}
