package core

import (
	"fmt"

	"github.com/sarchlab/mipssim/insts"
)

// Operand is one reservation station operand slot: either a value that
// is ready, or a producer tag to watch on the common data bus.
type Operand struct {
	Value  uint64
	Tag    int
	TagSeq uint64
	Ready  bool
}

// RSEntry is an issued instruction waiting to execute.
type RSEntry struct {
	Busy        bool
	SeqNo       uint64
	ROBIndex    int
	Inst        *insts.Instruction
	Ops         [2]Operand
	IssuedCycle uint64
}

// ready reports whether both operand slots hold values.
func (e *RSEntry) ready() bool {
	return e.Ops[0].Ready && e.Ops[1].Ready
}

// Station is the fixed-capacity reservation station of one FU class.
type Station struct {
	Class   insts.Class
	entries []RSEntry
}

// NewStation creates a reservation station for the given class.
func NewStation(class insts.Class, capacity int) *Station {
	return &Station{Class: class, entries: make([]RSEntry, capacity)}
}

// FreeSlot returns the index of a free slot, -1 if the station is full.
func (s *Station) FreeSlot() int {
	for i := range s.entries {
		if !s.entries[i].Busy {
			return i
		}
	}
	return -1
}

// Install places an entry into the given slot.
func (s *Station) Install(slot int, e RSEntry) {
	s.entries[slot] = e
}

// Entry returns the entry in the given slot.
func (s *Station) Entry(slot int) *RSEntry {
	return &s.entries[slot]
}

// Release frees the given slot.
func (s *Station) Release(slot int) {
	s.entries[slot].Busy = false
	s.entries[slot].Inst = nil
}

// OldestReady returns the slot of the lowest-seq entry with both
// operands ready, -1 if none.
func (s *Station) OldestReady() int {
	best := -1
	for i := range s.entries {
		e := &s.entries[i]
		if !e.Busy || !e.ready() {
			continue
		}
		if best < 0 || e.SeqNo < s.entries[best].SeqNo {
			best = i
		}
	}
	return best
}

// HasWaiting reports whether any entry is still waiting for operands.
func (s *Station) HasWaiting() bool {
	for i := range s.entries {
		if s.entries[i].Busy && !s.entries[i].ready() {
			return true
		}
	}
	return false
}

// BusyCount returns the number of occupied slots.
func (s *Station) BusyCount() int {
	n := 0
	for i := range s.entries {
		if s.entries[i].Busy {
			n++
		}
	}
	return n
}

// Broadcast delivers a CDB value to every operand waiting on the tag.
func (s *Station) Broadcast(tag int, tagSeq uint64, value uint64) {
	for i := range s.entries {
		e := &s.entries[i]
		if !e.Busy {
			continue
		}
		for o := range e.Ops {
			op := &e.Ops[o]
			if !op.Ready && op.Tag == tag && op.TagSeq == tagSeq {
				op.Value = value
				op.Ready = true
			}
		}
	}
}

// SquashYounger drops every entry younger than seq.
func (s *Station) SquashYounger(seq uint64) {
	for i := range s.entries {
		if s.entries[i].Busy && s.entries[i].SeqNo > seq {
			s.Release(i)
		}
	}
}

// FuncUnit is one functional unit: it holds at most one instruction and
// counts its remaining execution cycles down each tick.
type FuncUnit struct {
	Name    string
	Class   insts.Class
	Latency uint64

	Busy      bool
	Remaining uint64
	SeqNo     uint64
	ROBIndex  int
	Inst      *insts.Instruction
	Src       [2]uint64

	BusyCycles uint64
}

// NewFuncUnit creates a functional unit of the given class.
func NewFuncUnit(class insts.Class, index int, latency uint64) *FuncUnit {
	return &FuncUnit{
		Name:    fmt.Sprintf("%v%d", class, index),
		Class:   class,
		Latency: latency,
	}
}

// Bind starts executing a reservation station entry on the unit.
func (fu *FuncUnit) Bind(e *RSEntry) {
	fu.Busy = true
	fu.Remaining = fu.Latency
	fu.SeqNo = e.SeqNo
	fu.ROBIndex = e.ROBIndex
	fu.Inst = e.Inst
	fu.Src[0] = e.Ops[0].Value
	fu.Src[1] = e.Ops[1].Value
}

// Clear cancels any in-flight work.
func (fu *FuncUnit) Clear() {
	fu.Busy = false
	fu.Remaining = 0
	fu.Inst = nil
}
