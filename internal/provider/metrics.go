package provider

import (
	"math"
	"sync/atomic"
)

// Metrics holds per-adapter running counters. Mutated only through its owning
// adapter; atomic increments, no cross-adapter coordination. Reset only on
// process restart.
type Metrics struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	costMicros    atomic.Int64 // cumulative cost estimate in micro-dollars
}

func (m *Metrics) recordStart() { m.totalRequests.Add(1) }

func (m *Metrics) recordSuccess(costUSD float64) {
	m.successCount.Add(1)
	m.costMicros.Add(int64(math.Round(costUSD * 1e6)))
}

func (m *Metrics) recordError() { m.errorCount.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	SuccessCount   int64   `json:"success_count"`
	ErrorCount     int64   `json:"error_count"`
	CumulativeCost float64 `json:"cumulative_cost_usd"`
}

// Load returns a consistent-enough snapshot for stats endpoints.
func (m *Metrics) Load() Snapshot {
	return Snapshot{
		TotalRequests:  m.totalRequests.Load(),
		SuccessCount:   m.successCount.Load(),
		ErrorCount:     m.errorCount.Load(),
		CumulativeCost: float64(m.costMicros.Load()) / 1e6,
	}
}
