package common

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats holds atomic counters for telemetry tracking across a download,
// parse, or ingest run.
type Stats struct {
	FilesDownloaded uint64 // Atomic counter for bulletins fetched
	RecordsParsed   uint64 // Atomic counter for records parsed
	RowsInserted    uint64 // Atomic counter for warehouse rows written
	FilesFailed     uint64 // Atomic counter for failed downloads/parses

	// Internal state for reporter
	running  atomic.Bool
	stopCh   chan struct{}
	silent   bool
	lastRows uint64
	lastTime time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{
		stopCh: make(chan struct{}),
	}
}

// AddFiles atomically increments the bulletins fetched counter.
func (s *Stats) AddFiles(count uint64) {
	atomic.AddUint64(&s.FilesDownloaded, count)
}

// AddRecords atomically increments the records parsed counter.
func (s *Stats) AddRecords(count uint64) {
	atomic.AddUint64(&s.RecordsParsed, count)
}

// AddRows atomically increments the rows inserted counter.
func (s *Stats) AddRows(count uint64) {
	atomic.AddUint64(&s.RowsInserted, count)
}

// AddFailed atomically increments the failure counter.
func (s *Stats) AddFailed(count uint64) {
	atomic.AddUint64(&s.FilesFailed, count)
}

// GetFiles atomically reads the bulletins fetched counter.
func (s *Stats) GetFiles() uint64 {
	return atomic.LoadUint64(&s.FilesDownloaded)
}

// GetRecords atomically reads the records parsed counter.
func (s *Stats) GetRecords() uint64 {
	return atomic.LoadUint64(&s.RecordsParsed)
}

// GetRows atomically reads the rows inserted counter.
func (s *Stats) GetRows() uint64 {
	return atomic.LoadUint64(&s.RowsInserted)
}

// GetFailed atomically reads the failure counter.
func (s *Stats) GetFailed() uint64 {
	return atomic.LoadUint64(&s.FilesFailed)
}

// SetSilent enables or disables silent mode.
func (s *Stats) SetSilent(silent bool) {
	s.silent = silent
}

// StartReporter starts a background goroutine that prints telemetry every
// 5 seconds using newline-based output so it interleaves cleanly with
// log.Printf statements.
func (s *Stats) StartReporter() {
	if s.running.Load() {
		return // Already running
	}

	s.running.Store(true)
	s.lastTime = time.Now()
	s.lastRows = 0

	go s.reporterLoop()
}

// StopReporter stops the background reporter goroutine.
func (s *Stats) StopReporter() {
	if !s.running.Load() {
		return
	}

	s.running.Store(false)
	close(s.stopCh)
}

func (s *Stats) reporterLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.printStatus()
		}
	}
}

func (s *Stats) printStatus() {
	if s.silent {
		return
	}

	now := time.Now()
	elapsed := now.Sub(s.lastTime).Seconds()
	if elapsed < 0.001 {
		return
	}

	currentRows := s.GetRows()
	deltaRows := currentRows - s.lastRows
	rowsPerSec := float64(deltaRows) / elapsed

	fmt.Printf("[Progress] Files: %d | Records: %d | Inserted: %d rows (%.0f rows/s) | Failed: %d\n",
		s.GetFiles(),
		s.GetRecords(),
		currentRows,
		rowsPerSec,
		s.GetFailed(),
	)

	s.lastRows = currentRows
	s.lastTime = now
}

// Reset resets all counters (useful for testing or restarting).
func (s *Stats) Reset() {
	atomic.StoreUint64(&s.FilesDownloaded, 0)
	atomic.StoreUint64(&s.RecordsParsed, 0)
	atomic.StoreUint64(&s.RowsInserted, 0)
	atomic.StoreUint64(&s.FilesFailed, 0)
	s.lastRows = 0
	s.lastTime = time.Now()
}
