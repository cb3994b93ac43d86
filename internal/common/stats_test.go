package common

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsCounters(t *testing.T) {
	s := NewStats()
	s.AddFiles(2)
	s.AddRecords(100)
	s.AddRows(90)
	s.AddFailed(1)

	assert.Equal(t, uint64(2), s.GetFiles())
	assert.Equal(t, uint64(100), s.GetRecords())
	assert.Equal(t, uint64(90), s.GetRows())
	assert.Equal(t, uint64(1), s.GetFailed())

	s.Reset()
	assert.Equal(t, uint64(0), s.GetFiles())
	assert.Equal(t, uint64(0), s.GetRecords())
	assert.Equal(t, uint64(0), s.GetRows())
	assert.Equal(t, uint64(0), s.GetFailed())
}

func TestStatsConcurrentAdds(t *testing.T) {
	s := NewStats()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s.AddRows(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8000), s.GetRows())
}
