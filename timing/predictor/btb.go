package predictor

// btbWays is the associativity of the branch target buffer.
const btbWays = 4

type btbEntry struct {
	valid  bool
	pc     uint64
	target uint64
	stamp  uint64
}

// BTB is a set-associative branch target buffer with LRU replacement.
// It is shared by all predictor variants.
type BTB struct {
	sets  [][]btbEntry
	clock uint64
}

// NewBTB creates a BTB with the given total number of entries. Entry
// counts smaller than one set degrade to a single set.
func NewBTB(numEntries int) *BTB {
	numSets := numEntries / btbWays
	if numSets < 1 {
		numSets = 1
	}
	sets := make([][]btbEntry, numSets)
	for i := range sets {
		sets[i] = make([]btbEntry, btbWays)
	}
	return &BTB{sets: sets}
}

func (b *BTB) set(pc uint64) []btbEntry {
	return b.sets[(pc>>2)%uint64(len(b.sets))]
}

// Lookup returns the predicted target for pc, if one is cached.
func (b *BTB) Lookup(pc uint64) (uint64, bool) {
	b.clock++
	set := b.set(pc)
	for i := range set {
		if set[i].valid && set[i].pc == pc {
			set[i].stamp = b.clock
			return set[i].target, true
		}
	}
	return 0, false
}

// Insert records the target for pc, evicting the LRU way when the set is
// full.
func (b *BTB) Insert(pc uint64, target uint64) {
	b.clock++
	set := b.set(pc)

	victim := 0
	for i := range set {
		if set[i].valid && set[i].pc == pc {
			victim = i
			break
		}
		if !set[i].valid {
			victim = i
			break
		}
		if set[i].stamp < set[victim].stamp {
			victim = i
		}
	}

	set[victim] = btbEntry{valid: true, pc: pc, target: target, stamp: b.clock}
}
