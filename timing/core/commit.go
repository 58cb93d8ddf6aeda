package core

import (
	"fmt"

	"github.com/sarchlab/mipssim/emu"
	"github.com/sarchlab/mipssim/insts"
)

// commitStage retires completed instructions in program order from the
// ROB head, up to the commit width. It stops at the first entry that is
// not completed, at a fault, at the halt sentinel, at a store that a
// waiting load can still forward from, or after squashing a mispredicted
// branch.
func (e *Engine) commitStage() {
	var wrote [emu.NumRegs]bool
	for n := 0; n < e.cfg.Pipeline.CommitWidth; n++ {
		if e.rob.Empty() {
			return
		}
		idx := e.rob.HeadIndex()
		ent := e.rob.Entry(idx)
		if !ent.Completed {
			return
		}

		// One register write port per architectural register per
		// cycle: a second writer of the same register waits.
		if ent.Dest != insts.RegNone && wrote[ent.Dest] {
			return
		}

		if ent.Exception {
			e.fault = fmt.Errorf("%s at pc=%#x seq=%d addr=%#x: %w",
				ent.ExcCause, ent.PC, ent.SeqNo, ent.ExcAddr, ErrFault)
			e.halted = true
			return
		}

		// A store stays at the head while the next load the memory stage
		// will service can still forward from it out of the LSQ.
		if ent.IsStore {
			for _, i := range e.lsq.Indices() {
				m := e.lsq.Entry(i)
				if m.AddrValid && (m.IsStore || m.Done || (e.memInFlight && e.memLSQ == i)) {
					continue
				}
				if _, covered, _ := e.searchForwarding(i, m); m.AddrValid && covered {
					return
				}
				break
			}
		}

		// Stores retire from the LSQ head into the D-cache; this is
		// the only writer of the D-cache.
		if ent.IsStore {
			e.dcache.Write(ent.StoreAddr, ent.MemSize, ent.StoreValue)
			e.freeLSQHead(ent.SeqNo)
		}
		if ent.IsLoad {
			e.freeLSQHead(ent.SeqNo)
		}

		if ent.Dest != insts.RegNone {
			e.regs.Write(ent.Dest, ent.Result)
			e.regs.ClearProducer(ent.Dest, idx)
			wrote[ent.Dest] = true
		}

		ent.Inst.Status = insts.StatusCommitted
		e.metrics.Committed++
		e.lastCommitCycle = e.metrics.Cycles

		if ent.Inst.Op == insts.OpSyscall && ent.Result == haltServiceCode {
			e.halted = true
			e.rob.FreeHead()
			return
		}

		if ent.IsBranch {
			if e.resolveBranch(ent) {
				// Squash already freed everything younger; free the
				// branch itself and stop committing this cycle.
				e.rob.FreeHead()
				return
			}
		}

		e.rob.FreeHead()
	}
}

// resolveBranch settles a control-flow instruction at the head: trains
// the predictor and BTB, and on a misprediction squashes everything
// younger and redirects fetch. Returns true when a squash happened.
func (e *Engine) resolveBranch(ent *ROBEntry) bool {
	mispredicted := ent.PredictedTaken != ent.ActualTaken ||
		(ent.ActualTaken && ent.PredictedTarget != ent.ActualTarget)

	if ent.Counted {
		e.metrics.BranchPredictions++
		if mispredicted {
			e.metrics.BranchMispredictions++
		}
	}

	if ent.Inst.IsBranch() {
		e.pred.Update(ent.PC, ent.HistoryAt, ent.ActualTaken)
	}
	// Jumps with static targets never consult the BTB; conditional
	// branches and jr train it on taken outcomes.
	if ent.ActualTaken && (ent.Inst.IsBranch() || ent.Inst.Op == insts.OpJr) {
		e.btb.Insert(ent.PC, ent.ActualTarget)
	}

	if !mispredicted {
		return false
	}

	redirect := ent.ActualTarget
	if !ent.ActualTaken {
		redirect = ent.PC + 4
	}
	e.squash(ent, redirect)
	return true
}

// freeLSQHead pops the LSQ head, which must belong to the committing
// instruction: memory operations allocate and free strictly in program
// order.
func (e *Engine) freeLSQHead(seq uint64) {
	h := e.lsq.HeadIndex()
	if h < 0 || e.lsq.Entry(h).SeqNo != seq {
		panic(fmt.Sprintf("core: lsq head out of sync with commit of seq %d", seq))
	}
	e.lsq.FreeHead()
}

// squash reclaims all state younger than the mispredicted branch within
// the same cycle: ROB tail, reservation stations, in-flight FU work, the
// pending CDB queue, the LSQ tail, the fetch and issue buffers, and the
// rename map, which reverts to the snapshot captured at the branch's
// decode. Fetch restarts at the actual target next cycle.
func (e *Engine) squash(branch *ROBEntry, redirect uint64) {
	k := branch.SeqNo

	e.rob.SquashYounger(k)
	for _, st := range e.stations {
		st.SquashYounger(k)
	}
	for _, fu := range e.fus {
		if fu.Busy && fu.SeqNo > k {
			fu.Clear()
		}
	}
	e.cdb.SquashYounger(k)
	e.lsq.SquashYounger(k)
	if e.memInFlight && e.memSeq > k {
		e.memInFlight = false
		e.memBusy = 0
	}

	e.fetchBuf = nil
	e.issueQ = e.issueQ[:0]
	e.fetchStall = 0
	e.fetchStallMiss = false

	e.restoreRename(branch)

	// Rewind the speculative global-history update and redo it with
	// the actual outcome.
	if branch.Inst.IsBranch() {
		e.ghr = ((branch.HistoryAt << 1) | boolBit(branch.ActualTaken)) & e.ghrMask
	}

	e.pc = redirect
}

// restoreRename reverts every register whose producer was squashed. The
// snapshot producer is reinstated only if it is still in flight;
// otherwise the register's architectural value is current again.
func (e *Engine) restoreRename(branch *ROBEntry) {
	if !branch.HasSnapshot {
		return
	}
	for r := uint8(1); r < emu.NumRegs; r++ {
		cur, _ := e.regs.Producer(r)
		if cur == emu.NoProducer {
			continue
		}
		curEnt := e.rob.Entry(cur)
		if curEnt.Valid && curEnt.SeqNo <= branch.SeqNo {
			continue
		}

		snap := branch.Rename[r]
		if snap.Producer != emu.NoProducer && e.rob.Live(snap.Producer, snap.Seq) {
			e.regs.ForceProducer(r, snap.Producer, snap.Seq)
		} else {
			e.regs.ForceProducer(r, emu.NoProducer, 0)
		}
	}
}
