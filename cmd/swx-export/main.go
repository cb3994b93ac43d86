// swx-export - Extract index series from ClickHouse to CSV or Parquet
//
// Exports a time range of swx.combined (one reconciliation run, or all
// rows for an index) or a single column of swx.indices_raw. Output is the
// same time,value shape swx-combine writes, so extracts and fresh
// combines are interchangeable downstream.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/swx-export ./cmd/swx-export

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/parquet-go/parquet-go"

	"github.com/swxlab/swx-apps/internal/common"
	"github.com/swxlab/swx-apps/internal/swx"
)

var Version = "1.0.0"

// rawColumn maps an index series to its swx.indices_raw column.
func rawColumn(index swx.Index) string {
	switch index {
	case swx.IndexF107:
		return "f107_obs"
	default:
		return index.String()
	}
}

// queryRows streams (time, value) pairs for the requested export.
func queryRows(ctx context.Context, conn driver.Conn, db, table string, index swx.Index, runID string, start, end time.Time) (driver.Rows, error) {
	switch table {
	case "combined":
		query := fmt.Sprintf(
			"SELECT time, value FROM %s.combined WHERE index = ? AND time >= ? AND time < ?", db)
		args := []any{index.String(), start, end}
		if runID != "" {
			query += " AND run_id = ?"
			args = append(args, runID)
		}
		query += " ORDER BY time"
		return conn.Query(ctx, query, args...)
	case "indices_raw":
		query := fmt.Sprintf(
			"SELECT time, %s FROM %s.indices_raw WHERE time >= ? AND time < ? ORDER BY time",
			rawColumn(index), db)
		return conn.Query(ctx, query, start, end)
	}
	return nil, fmt.Errorf("unknown table %q (want combined or indices_raw)", table)
}

func main() {
	cfg := common.DefaultConfig()

	chHost := flag.String("ch-host", "127.0.0.1:9000", "ClickHouse address")
	chDB := flag.String("ch-db", cfg.ClickHouseDatabase, "ClickHouse database")
	table := flag.String("table", "combined", "Source table: combined or indices_raw")
	indexName := flag.String("index", "kp", "Index series: kp, ap, ap_daily, f107, ssn")
	runID := flag.String("run", "", "Run ID filter for the combined table (default: all runs)")
	startStr := flag.String("start", "1932-01-01", "Start date (YYYY-MM-DD)")
	endStr := flag.String("end", "", "End date, exclusive (default: tomorrow)")
	outPath := flag.String("out", "", "Output path (default: <index>_export.<ext>)")
	format := flag.String("format", "csv", "Output format: csv or parquet")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "swx-export v%s - Warehouse Series Extract\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Exports index series from ClickHouse to CSV or Parquet.\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -index kp -start 2024-01-01 -end 2024-02-01\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -table indices_raw -index f107 -format parquet\n", os.Args[0])
	}

	flag.Parse()

	log.Println("=========================================================")
	log.Printf("Space Weather Export v%s", Version)
	log.Println("=========================================================")

	index, err := swx.ParseIndex(*indexName)
	if err != nil {
		log.Fatalf("Bad -index: %v", err)
	}

	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	if *endStr != "" {
		end, err = time.Parse("2006-01-02", *endStr)
		if err != nil {
			log.Fatalf("Invalid end date: %v", err)
		}
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
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{*chHost},
		Auth: clickhouse.Auth{
			Database: *chDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	if err != nil {
		log.Fatalf("ClickHouse connection failed: %v", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		log.Fatalf("ClickHouse ping failed: %v", err)
	}

	log.Printf("Table: %s.%s (index %s)", *chDB, *table, index)
	log.Printf("Range: %s to %s", start.Format("2006-01-02"), end.Format("2006-01-02"))

	t0 := time.Now()
	rows, err := queryRows(ctx, conn, *chDB, *table, index, *runID, start, end)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	var series []swx.SeriesRow
	for rows.Next() {
		var (
			ts time.Time
			v  float64
		)
		if err := rows.Scan(&ts, &v); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		series = append(series, swx.SeriesRow{Timestamp: ts.UTC().Unix(), Value: v})
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	log.Printf("Fetched %d rows in %v", len(series), time.Since(t0).Round(time.Millisecond))

	if len(series) == 0 {
		log.Fatal("No rows in range")
	}

	out := *outPath
	if out == "" {
		ext := "csv"
		if *format == "parquet" {
			ext = "parquet"
		}
		out = fmt.Sprintf("%s_export.%s", index, ext)
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Cannot create output directory: %v", err)
		}
	}

	switch *format {
	case "csv":
		err = writeCSV(out, series)
	case "parquet":
		err = writeParquet(out, series)
	default:
		log.Fatalf("Bad -format %q (want csv or parquet)", *format)
	}
	if err != nil {
		log.Fatalf("Write failed: %v", err)
	}

	log.Println("=========================================================")
	log.Printf("Wrote %s (%d rows)", out, len(series))
	log.Println("=========================================================")
}

func writeCSV(path string, series []swx.SeriesRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "time,value")
	for _, row := range series {
		fmt.Fprintf(w, "%s,%s\n",
			time.Unix(row.Timestamp, 0).UTC().Format(time.RFC3339),
			strconv.FormatFloat(row.Value, 'g', -1, 64))
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeParquet(path string, series []swx.SeriesRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := parquet.NewGenericWriter[swx.SeriesRow](f)
	if _, err := w.Write(series); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
