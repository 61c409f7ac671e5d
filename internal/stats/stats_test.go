package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsCollectorCounters(t *testing.T) {
	s := NewStatsCollector()

	s.IncReceived()
	s.IncReceived()
	s.IncParseErrors()
	s.IncMatched()
	s.IncDispatched()
	s.IncSuppressed()
	s.IncDeliveryErrors()
	s.IncStorageErrors()

	got := s.GetStats()
	assert.Equal(t, uint64(2), got["received"])
	assert.Equal(t, uint64(1), got["parse_errors"])
	assert.Equal(t, uint64(1), got["matched"])
	assert.Equal(t, uint64(1), got["dispatched"])
	assert.Equal(t, uint64(1), got["suppressed"])
	assert.Equal(t, uint64(1), got["delivery_errors"])
	assert.Equal(t, uint64(1), got["storage_errors"])
}

func TestStatsCollectorConcurrent(t *testing.T) {
	s := NewStatsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.IncReceived()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(5000), s.GetStats()["received"])
}

func TestCalculateRate(t *testing.T) {
	s := NewStatsCollector()
	assert.GreaterOrEqual(t, s.CalculateRate(), 0.0)

	s.IncReceived()
	assert.Greater(t, s.CalculateRate(), 0.0)
}
