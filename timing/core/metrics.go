package core

import "github.com/rs/xid"

// Stall cause keys of the stalls_by_cause breakdown.
const (
	StallROBFull    = "rob_full"
	StallRSFull     = "rs_full"
	StallLSQFull    = "lsq_full"
	StallICacheMiss = "icache_miss"
	StallDCacheMiss = "dcache_miss"
	StallRawHazard  = "raw_hazard"
)

var stallCauses = []string{
	StallROBFull, StallRSFull, StallLSQFull,
	StallICacheMiss, StallDCacheMiss, StallRawHazard,
}

// Metrics collects the engine's raw counters.
type Metrics struct {
	Cycles    uint64
	Committed uint64

	BranchPredictions    uint64
	BranchMispredictions uint64

	Stalls map[string]uint64
	FUBusy map[string]uint64
}

// NewMetrics creates a metrics collector with all causes present.
func NewMetrics() *Metrics {
	m := &Metrics{
		Stalls: make(map[string]uint64),
		FUBusy: make(map[string]uint64),
	}
	for _, cause := range stallCauses {
		m.Stalls[cause] = 0
	}
	return m
}

// Results is the structured record emitted on halt or cycle limit.
type Results struct {
	RunID                 string            `json:"run_id"`
	Cycles                uint64            `json:"cycles"`
	InstructionsCommitted uint64            `json:"instructions_committed"`
	IPC                   float64           `json:"ipc"`
	BranchPredictions     uint64            `json:"branch_predictions"`
	BranchMispredictions  uint64            `json:"branch_mispredictions"`
	BranchAccuracy        float64           `json:"branch_accuracy"`
	ICacheAccesses        uint64            `json:"icache_accesses"`
	ICacheHits            uint64            `json:"icache_hits"`
	DCacheAccesses        uint64            `json:"dcache_accesses"`
	DCacheHits            uint64            `json:"dcache_hits"`
	StallsByCause         map[string]uint64 `json:"stalls_by_cause"`
	FUUtilization         map[string]uint64 `json:"fu_utilization"`
}

// buildResults derives the results record from the raw counters.
func buildResults(m *Metrics, icacheAccesses, icacheHits, dcacheAccesses, dcacheHits uint64) *Results {
	r := &Results{
		RunID:                 xid.New().String(),
		Cycles:                m.Cycles,
		InstructionsCommitted: m.Committed,
		BranchPredictions:     m.BranchPredictions,
		BranchMispredictions:  m.BranchMispredictions,
		ICacheAccesses:        icacheAccesses,
		ICacheHits:            icacheHits,
		DCacheAccesses:        dcacheAccesses,
		DCacheHits:            dcacheHits,
		StallsByCause:         make(map[string]uint64),
		FUUtilization:         make(map[string]uint64),
	}

	if m.Cycles > 0 {
		r.IPC = float64(m.Committed) / float64(m.Cycles)
	}

	// Programs with no branches report perfect accuracy by convention.
	r.BranchAccuracy = 1.0
	if m.BranchPredictions > 0 {
		r.BranchAccuracy = float64(m.BranchPredictions-m.BranchMispredictions) /
			float64(m.BranchPredictions)
	}

	for cause, n := range m.Stalls {
		r.StallsByCause[cause] = n
	}
	for name, n := range m.FUBusy {
		r.FUUtilization[name] = n
	}

	return r
}
