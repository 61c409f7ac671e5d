package stats

import (
	"sync/atomic"
	"time"
)

// StatsCollector tracks observation pipeline counters
type StatsCollector struct {
	StartTime      time.Time
	Received       uint64
	ParseErrors    uint64
	Matched        uint64
	Dispatched     uint64
	Suppressed     uint64
	DeliveryErrors uint64
	StorageErrors  uint64
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		StartTime: time.Now(),
	}
}

func (s *StatsCollector) IncReceived()       { atomic.AddUint64(&s.Received, 1) }
func (s *StatsCollector) IncParseErrors()    { atomic.AddUint64(&s.ParseErrors, 1) }
func (s *StatsCollector) IncMatched()        { atomic.AddUint64(&s.Matched, 1) }
func (s *StatsCollector) IncDispatched()     { atomic.AddUint64(&s.Dispatched, 1) }
func (s *StatsCollector) IncSuppressed()     { atomic.AddUint64(&s.Suppressed, 1) }
func (s *StatsCollector) IncDeliveryErrors() { atomic.AddUint64(&s.DeliveryErrors, 1) }
func (s *StatsCollector) IncStorageErrors()  { atomic.AddUint64(&s.StorageErrors, 1) }

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	uptime := time.Since(s.StartTime)
	return map[string]interface{}{
		"uptime":          uptime.String(),
		"rate":            s.CalculateRate(),
		"received":        atomic.LoadUint64(&s.Received),
		"parse_errors":    atomic.LoadUint64(&s.ParseErrors),
		"matched":         atomic.LoadUint64(&s.Matched),
		"dispatched":      atomic.LoadUint64(&s.Dispatched),
		"suppressed":      atomic.LoadUint64(&s.Suppressed),
		"delivery_errors": atomic.LoadUint64(&s.DeliveryErrors),
		"storage_errors":  atomic.LoadUint64(&s.StorageErrors),
	}
}

// CalculateRate calculates the observation processing rate per second
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.Received)) / uptime
}
