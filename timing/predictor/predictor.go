// Package predictor provides the branch direction predictors and the
// branch target buffer used by the fetch stage.
//
// All predictors implement the same two-operation interface: Predict
// returns a taken/not-taken guess for a pc under a given global history,
// and Update trains the predictor with the actual outcome using the
// history that was current when the prediction was made. The engine owns
// the global history register and snapshots it per branch so a squash
// can rewind speculative history updates.
package predictor

import "fmt"

// Type names of the available predictors.
const (
	TypeAlwaysTaken = "always_taken"
	TypeBimodal     = "bimodal"
	TypeGshare      = "gshare"
)

// Config selects and sizes a predictor.
type Config struct {
	// Type is one of TypeAlwaysTaken, TypeBimodal, TypeGshare.
	Type string
	// NumEntries is the pattern table size. Must be a power of two.
	NumEntries int
	// HistoryLength is the global history length in bits (gshare).
	HistoryLength int
}

// Predictor predicts conditional branch directions.
type Predictor interface {
	// Predict returns the taken guess for the branch at pc given the
	// global history at prediction time.
	Predict(pc uint64, history uint64) bool
	// Update trains the predictor with the actual outcome. The history
	// argument must be the value passed to the matching Predict call.
	Update(pc uint64, history uint64, taken bool)
}

// New creates a predictor from the configuration.
func New(cfg Config) (Predictor, error) {
	switch cfg.Type {
	case TypeAlwaysTaken:
		return NewAlwaysTaken(), nil
	case TypeBimodal:
		return NewBimodal(cfg.NumEntries), nil
	case TypeGshare:
		return NewGshare(cfg.NumEntries, cfg.HistoryLength), nil
	}
	return nil, fmt.Errorf("unknown branch predictor type %q", cfg.Type)
}

// Two-bit saturating counter states. Counters predict taken at
// weaklyTaken and above and initialize weakly not-taken.
const (
	stronglyNotTaken = 0
	weaklyNotTaken   = 1
	weaklyTaken      = 2
	stronglyTaken    = 3
)

// counterTable is a table of 2-bit saturating counters shared by the
// bimodal and gshare predictors.
type counterTable struct {
	counters []uint8
	mask     uint64
}

func newCounterTable(numEntries int) counterTable {
	if numEntries <= 0 {
		numEntries = 1024
	}
	t := counterTable{
		counters: make([]uint8, numEntries),
		mask:     uint64(numEntries - 1),
	}
	for i := range t.counters {
		t.counters[i] = weaklyNotTaken
	}
	return t
}

func (t *counterTable) taken(index uint64) bool {
	return t.counters[index&t.mask] >= weaklyTaken
}

func (t *counterTable) train(index uint64, taken bool) {
	i := index & t.mask
	if taken {
		if t.counters[i] < stronglyTaken {
			t.counters[i]++
		}
	} else {
		if t.counters[i] > stronglyNotTaken {
			t.counters[i]--
		}
	}
}
