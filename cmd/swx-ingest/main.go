// swx-ingest - Combined index series ingestion into ClickHouse
//
// Two modes:
//   - File arguments: ingest combined CSV series written by swx-combine
//     (time,value rows; a .notes.txt sidecar supplies the provenance note)
//   - No arguments: run the combine against the bulletin mirror and ingest
//     the result directly
//
// Every run is tagged with a fresh UUID so a warehouse query can pull one
// reconciliation run, its provenance note attached to each row.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/swx-ingest ./cmd/swx-ingest

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"
	"github.com/google/uuid"

	"github.com/swxlab/swx-apps/internal/common"
	"github.com/swxlab/swx-apps/internal/merge"
	"github.com/swxlab/swx-apps/internal/sources"
	"github.com/swxlab/swx-apps/internal/swx"
)

var Version = "1.0.0"

// CombinedBatch holds column data for native insert into swx.combined.
type CombinedBatch struct {
	RunID  *proto.ColUUID
	Index  *proto.ColStr
	Time   *proto.ColDateTime
	Value  *proto.ColFloat64
	Notes  *proto.ColStr
	runID  uuid.UUID
	series string
	notes  string
}

func NewCombinedBatch(series, notes string) *CombinedBatch {
	return &CombinedBatch{
		RunID:  new(proto.ColUUID),
		Index:  new(proto.ColStr),
		Time:   new(proto.ColDateTime),
		Value:  new(proto.ColFloat64),
		Notes:  new(proto.ColStr),
		runID:  uuid.New(),
		series: series,
		notes:  notes,
	}
}

func (b *CombinedBatch) Reset() {
	b.RunID.Reset()
	b.Index.Reset()
	b.Time.Reset()
	b.Value.Reset()
	b.Notes.Reset()
}

func (b *CombinedBatch) Len() int {
	return b.RunID.Rows()
}

func (b *CombinedBatch) Input() proto.Input {
	return proto.Input{
		{Name: "run_id", Data: b.RunID},
		{Name: "index", Data: b.Index},
		{Name: "time", Data: b.Time},
		{Name: "value", Data: b.Value},
		{Name: "notes", Data: b.Notes},
	}
}

func (b *CombinedBatch) AddRecord(t time.Time, value float64) {
	b.RunID.Append(b.runID)
	b.Index.Append(b.series)
	b.Time.Append(t)
	b.Value.Append(value)
	b.Notes.Append(b.notes)
}

func flushBatch(ctx context.Context, conn *ch.Client, tableFQN string, batch *CombinedBatch) error {
	if batch.Len() == 0 {
		return nil
	}
	query := fmt.Sprintf("INSERT INTO %s (run_id, index, time, value, notes) VALUES", tableFQN)
	return conn.Do(ctx, ch.Query{
		Body:  query,
		Input: batch.Input(),
	})
}

// parseCombinedCSV reads the time,value rows swx-combine writes.
func parseCombinedCSV(r io.Reader) ([]swx.Sample, error) {
	var samples []swx.Sample
	scanner := bufio.NewScanner(r)
	first := true

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			if strings.HasPrefix(line, "time,") {
				continue
			}
		}

		stamp, value, found := strings.Cut(line, ",")
		if !found {
			return nil, fmt.Errorf("bad series row %q", line)
		}
		t, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			return nil, fmt.Errorf("bad series time %q: %w", stamp, err)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("bad series value %q: %w", value, err)
		}
		samples = append(samples, swx.Sample{Time: t.UTC(), Value: v})
	}
	return samples, scanner.Err()
}

// sidecarNotes reads the provenance sidecar next to a combined CSV, if
// one exists.
func sidecarNotes(csvPath string) string {
	raw, err := os.ReadFile(csvPath + ".notes.txt")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// recombine reruns the merge against the mirror, mirroring swx-combine's
// source wiring for the store-backed rank tokens.
func recombine(ctx context.Context, store *sources.Store, index swx.Index, rank string, opts merge.Options) (*merge.Result, error) {
	var ranked []merge.RankedSource
	for _, token := range strings.Split(rank, ",") {
		token = strings.TrimSpace(token)
		switch token {
		case "def":
			ranked = append(ranked, merge.RankedSource{
				Source: sources.NewGFZ(store, index, sources.GFZDefinitive),
				Role:   merge.RoleDefinitive,
			})
		case "now":
			ranked = append(ranked, merge.RankedSource{
				Source: sources.NewGFZ(store, index, sources.GFZNowcast),
				Role:   merge.RoleNowcast,
			})
		case "recent":
			if index != swx.IndexKp && index != swx.IndexApDaily {
				return nil, fmt.Errorf("recent serves kp and ap_daily, not %s", index)
			}
			ranked = append(ranked, merge.RankedSource{
				Source: sources.NewSWPCRecent(store, index),
				Role:   merge.RoleNowcast,
			})
		case "forecast":
			if index != swx.IndexKp {
				return nil, fmt.Errorf("forecast serves kp, not %s", index)
			}
			ranked = append(ranked, merge.RankedSource{
				Source: sources.NewSWPCForecast(store),
				Role:   merge.RoleForecast,
			})
		case "45day":
			if index != swx.IndexApDaily && index != swx.IndexF107 {
				return nil, fmt.Errorf("45day serves ap_daily and f107, not %s", index)
			}
			ranked = append(ranked, merge.RankedSource{
				Source: sources.NewSWPC45Day(store, index),
				Role:   merge.RoleForecast,
			})
		case "":
		default:
			return nil, fmt.Errorf("unknown rank token %q", token)
		}
	}
	return merge.Combine(ctx, ranked, opts)
}

func main() {
	cfg := common.DefaultConfig()

	chHost := flag.String("ch-host", "127.0.0.1:9000", "ClickHouse address")
	chDB := flag.String("ch-db", cfg.ClickHouseDatabase, "ClickHouse database")
	chTable := flag.String("ch-table", "combined", "ClickHouse table")
	dataDir := flag.String("data", cfg.BulletinDir(), "Bulletin mirror directory")
	indexName := flag.String("index", "kp", "Index series: kp, ap, ap_daily, f107, ssn")
	rank := flag.String("rank", "def,now,recent", "Sources in priority order (no-args mode)")
	startStr := flag.String("start", "", "Window start YYYY-MM-DD (no-args mode)")
	stopStr := flag.String("stop", "", "Window stop YYYY-MM-DD, exclusive (no-args mode)")
	freq := flag.Duration("freq", 0, "Output grid frequency (default: infer)")
	truncate := flag.Bool("truncate", false, "Truncate table before insert")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "swx-ingest v%s - Combined Series Ingester\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [combined.csv ...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Ingests combined index series into ClickHouse, tagged per run.\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -index kp kp_combined_2024-01-01.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -index f107 -rank def,45day -start 2024-01-01 -stop 2024-03-01\n", os.Args[0])
	}

	flag.Parse()

	log.Println("=========================================================")
	log.Printf("Space Weather Ingest v%s", Version)
	log.Println("=========================================================")

	index, err := swx.ParseIndex(*indexName)
	if err != nil {
		log.Fatalf("Bad -index: %v", err)
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

	if *truncate {
		log.Printf("Truncating table %s...", tableFQN)
		if err := conn.Do(ctx, ch.Query{Body: fmt.Sprintf("TRUNCATE TABLE %s", tableFQN)}); err != nil {
			log.Printf("Truncate warning: %v", err)
		}
	}

	startTime := time.Now()
	totalRows := 0

	if len(flag.Args()) > 0 {
		// File mode: one run ID per CSV.
		for _, filePath := range flag.Args() {
			if ctx.Err() != nil {
				break
			}

			f, err := os.Open(filePath)
			if err != nil {
				log.Fatalf("Cannot open %s: %v", filePath, err)
			}
			samples, err := parseCombinedCSV(f)
			f.Close()
			if err != nil {
				log.Fatalf("[%s] Parse error: %v", filePath, err)
			}

			batch := NewCombinedBatch(index.String(), sidecarNotes(filePath))
			for _, smp := range samples {
				batch.AddRecord(smp.Time, smp.Value)
			}
			if err := flushBatch(ctx, conn, tableFQN, batch); err != nil {
				log.Fatalf("[%s] Insert error: %v", filePath, err)
			}
			log.Printf("[%s] Inserted %d rows (run %s)", filePath, batch.Len(), batch.runID)
			totalRows += batch.Len()
		}
	} else {
		// Recombine mode.
		opts := merge.NewOptions()
		opts.Freq = *freq
		opts.Fill = math.NaN()
		if *startStr != "" {
			if opts.Start, err = time.Parse("2006-01-02", *startStr); err != nil {
				log.Fatalf("Invalid start date: %v", err)
			}
		}
		if *stopStr != "" {
			if opts.Stop, err = time.Parse("2006-01-02", *stopStr); err != nil {
				log.Fatalf("Invalid stop date: %v", err)
			}
		}

		store := sources.NewStore(*dataDir)
		res, err := recombine(ctx, store, index, *rank, opts)
		if err != nil {
			log.Fatalf("Combine failed: %v", err)
		}
		log.Printf("Combined %d points (freq %v)", res.Len(), res.Freq)
		log.Printf("Notes: %s", res.Notes)

		batch := NewCombinedBatch(index.String(), res.Notes)
		for i, t := range res.Times {
			batch.AddRecord(t, res.Values[i])
		}
		if err := flushBatch(ctx, conn, tableFQN, batch); err != nil {
			log.Fatalf("Insert error: %v", err)
		}
		log.Printf("Inserted %d rows (run %s)", batch.Len(), batch.runID)
		totalRows = batch.Len()
	}

	elapsed := time.Since(startTime)

	log.Println()
	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Total Rows: %d", totalRows)
	log.Printf("Elapsed:    %v", elapsed.Round(time.Millisecond))
	log.Println("=========================================================")
}
