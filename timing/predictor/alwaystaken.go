package predictor

// AlwaysTaken predicts every branch taken. The fetch stage supplies the
// target from the BTB, falling back to the static target for direct
// branches.
type AlwaysTaken struct{}

// NewAlwaysTaken creates an always-taken predictor.
func NewAlwaysTaken() *AlwaysTaken {
	return &AlwaysTaken{}
}

// Predict always returns taken.
func (p *AlwaysTaken) Predict(pc uint64, history uint64) bool {
	return true
}

// Update is a no-op; the predictor keeps no state.
func (p *AlwaysTaken) Update(pc uint64, history uint64, taken bool) {}
