package predictor

// Bimodal is a table of 2-bit saturating counters indexed by pc bits.
type Bimodal struct {
	table counterTable
}

// NewBimodal creates a bimodal predictor with the given table size.
func NewBimodal(numEntries int) *Bimodal {
	return &Bimodal{table: newCounterTable(numEntries)}
}

func (p *Bimodal) index(pc uint64) uint64 {
	// Drop the alignment bits so consecutive branches spread over the
	// table.
	return pc >> 2
}

// Predict returns taken when the counter is weakly or strongly taken.
func (p *Bimodal) Predict(pc uint64, history uint64) bool {
	return p.table.taken(p.index(pc))
}

// Update saturates the counter toward the actual outcome.
func (p *Bimodal) Update(pc uint64, history uint64, taken bool) {
	p.table.train(p.index(pc), taken)
}
