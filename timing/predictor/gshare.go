package predictor

// Gshare XORs pc bits with the global history register to index a table
// of 2-bit saturating counters, letting one branch train different
// counters under different global outcomes.
type Gshare struct {
	table       counterTable
	historyMask uint64
}

// NewGshare creates a gshare predictor with the given table size and
// history length in bits.
func NewGshare(numEntries, historyLength int) *Gshare {
	if historyLength <= 0 {
		historyLength = 8
	}
	return &Gshare{
		table:       newCounterTable(numEntries),
		historyMask: (1 << historyLength) - 1,
	}
}

func (p *Gshare) index(pc uint64, history uint64) uint64 {
	return (pc >> 2) ^ (history & p.historyMask)
}

// Predict returns taken when the counter selected by pc XOR history is
// weakly or strongly taken.
func (p *Gshare) Predict(pc uint64, history uint64) bool {
	return p.table.taken(p.index(pc, history))
}

// Update trains the counter selected by pc and the history captured at
// prediction time.
func (p *Gshare) Update(pc uint64, history uint64, taken bool) {
	p.table.train(p.index(pc, history), taken)
}
