package core

import (
	"github.com/sarchlab/mipssim/emu"
	"github.com/sarchlab/mipssim/insts"
)

// ROBEntry is one slot of the reorder buffer.
type ROBEntry struct {
	Valid bool
	SeqNo uint64
	PC    uint64
	Inst  *insts.Instruction

	// Dest is the destination architectural register, RegNone if none.
	Dest   uint8
	Result uint64

	Completed bool

	// Exception marks a fault detected at execute; it surfaces when the
	// entry reaches the head.
	Exception bool
	ExcCause  string
	ExcAddr   uint64

	// Control-flow bookkeeping. IsBranch covers everything that can
	// redirect fetch: conditional branches, jr, j and jal.
	IsBranch        bool
	Counted         bool
	PredictedTaken  bool
	PredictedTarget uint64
	ActualTaken     bool
	ActualTarget    uint64
	HistoryAt       uint64

	// Rename is the rename-map snapshot captured at decode of a
	// redirecting instruction, for squash recovery.
	Rename      emu.RenameSnapshot
	HasSnapshot bool

	// Memory bookkeeping.
	IsLoad     bool
	IsStore    bool
	StoreAddr  uint64
	StoreValue uint64
	MemSize    int
	LSQIndex   int
}

// ROB is the reorder buffer: a fixed-capacity ring allocated at decode
// and freed at commit or squash. Head is the commit point, tail the
// allocation point.
type ROB struct {
	entries []ROBEntry
	head    int
	tail    int
	count   int
}

// NewROB creates a reorder buffer with the given capacity.
func NewROB(capacity int) *ROB {
	return &ROB{entries: make([]ROBEntry, capacity)}
}

// Full reports whether no slot is free.
func (r *ROB) Full() bool {
	return r.count == len(r.entries)
}

// Empty reports whether no instruction is in flight.
func (r *ROB) Empty() bool {
	return r.count == 0
}

// Occupancy returns the number of live entries.
func (r *ROB) Occupancy() int {
	return r.count
}

// Capacity returns the ring size.
func (r *ROB) Capacity() int {
	return len(r.entries)
}

// Alloc claims the tail slot and returns its index. The caller fills the
// entry. Allocating into a full ROB is an invariant violation.
func (r *ROB) Alloc() int {
	if r.Full() {
		panic("rob: allocation into a full reorder buffer")
	}
	idx := r.tail
	r.tail = (r.tail + 1) % len(r.entries)
	r.count++
	return idx
}

// Entry returns the entry at index idx.
func (r *ROB) Entry(idx int) *ROBEntry {
	return &r.entries[idx]
}

// HeadIndex returns the index of the oldest entry, -1 if empty.
func (r *ROB) HeadIndex() int {
	if r.Empty() {
		return -1
	}
	return r.head
}

// FreeHead retires the oldest entry.
func (r *ROB) FreeHead() {
	if r.Empty() {
		panic("rob: freeing the head of an empty reorder buffer")
	}
	r.entries[r.head].Valid = false
	r.head = (r.head + 1) % len(r.entries)
	r.count--
}

// Live reports whether the slot at idx still holds the instruction with
// the given sequence number. Slots are recycled, so identity is the
// (index, seq) pair.
func (r *ROB) Live(idx int, seq uint64) bool {
	if idx < 0 || idx >= len(r.entries) {
		return false
	}
	e := &r.entries[idx]
	return e.Valid && e.SeqNo == seq
}

// SquashYounger frees every entry younger than seq, walking back from
// the tail. Freed instructions are marked squashed.
func (r *ROB) SquashYounger(seq uint64) {
	for r.count > 0 {
		t := (r.tail - 1 + len(r.entries)) % len(r.entries)
		e := &r.entries[t]
		if e.SeqNo <= seq {
			return
		}
		e.Valid = false
		if e.Inst != nil {
			e.Inst.Status = insts.StatusSquashed
		}
		r.tail = t
		r.count--
	}
}
