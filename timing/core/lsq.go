package core

// LSQEntry is one load/store queue slot. Entries sit in program order;
// addresses resolve when the LSU finishes address generation.
type LSQEntry struct {
	Valid    bool
	SeqNo    uint64
	ROBIndex int
	IsStore  bool

	AddrValid bool
	Addr      uint64
	Size      int

	// Value is the data to store (stores) and becomes valid together
	// with the address.
	Value      uint64
	ValueValid bool

	// Done means the load obtained its data, or the store resolved.
	// Stores leave the queue only at commit.
	Done bool
}

// LSQ is the load/store queue: a fixed-capacity FIFO in program order.
type LSQ struct {
	entries []LSQEntry
	head    int
	tail    int
	count   int
}

// NewLSQ creates a load/store queue with the given capacity.
func NewLSQ(capacity int) *LSQ {
	return &LSQ{entries: make([]LSQEntry, capacity)}
}

// Full reports whether no slot is free.
func (q *LSQ) Full() bool {
	return q.count == len(q.entries)
}

// Empty reports whether the queue holds no entries.
func (q *LSQ) Empty() bool {
	return q.count == 0
}

// Alloc claims the tail slot for a new memory operation.
func (q *LSQ) Alloc(seq uint64, robIndex int, isStore bool, size int) int {
	if q.Full() {
		panic("lsq: allocation into a full load/store queue")
	}
	idx := q.tail
	q.entries[idx] = LSQEntry{
		Valid:    true,
		SeqNo:    seq,
		ROBIndex: robIndex,
		IsStore:  isStore,
		Size:     size,
	}
	q.tail = (q.tail + 1) % len(q.entries)
	q.count++
	return idx
}

// Entry returns the entry at index idx.
func (q *LSQ) Entry(idx int) *LSQEntry {
	return &q.entries[idx]
}

// HeadIndex returns the index of the oldest entry, -1 if empty.
func (q *LSQ) HeadIndex() int {
	if q.Empty() {
		return -1
	}
	return q.head
}

// FreeHead retires the oldest entry.
func (q *LSQ) FreeHead() {
	if q.Empty() {
		panic("lsq: freeing the head of an empty load/store queue")
	}
	q.entries[q.head].Valid = false
	q.head = (q.head + 1) % len(q.entries)
	q.count--
}

// Indices returns the live entry indices in program order.
func (q *LSQ) Indices() []int {
	out := make([]int, 0, q.count)
	for i, idx := 0, q.head; i < q.count; i++ {
		out = append(out, idx)
		idx = (idx + 1) % len(q.entries)
	}
	return out
}

// SquashYounger frees every entry younger than seq from the tail back.
func (q *LSQ) SquashYounger(seq uint64) {
	for q.count > 0 {
		t := (q.tail - 1 + len(q.entries)) % len(q.entries)
		if q.entries[t].SeqNo <= seq {
			return
		}
		q.entries[t].Valid = false
		q.tail = t
		q.count--
	}
}
