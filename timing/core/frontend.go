package core

import (
	"github.com/sarchlab/mipssim/emu"
	"github.com/sarchlab/mipssim/insts"
)

// issueStage installs decoded instructions into reservation stations in
// program order, up to the issue width. An instruction that finds no
// free station blocks everything behind it: issue is in-order even
// though execution is not.
func (e *Engine) issueStage() {
	for n := 0; n < e.cfg.Pipeline.IssueWidth && len(e.issueQ) > 0; n++ {
		robIdx := e.issueQ[0]
		ent := e.rob.Entry(robIdx)
		inst := ent.Inst

		st := e.stations[inst.Op.Class()]
		slot := st.FreeSlot()
		if slot < 0 {
			e.metrics.Stalls[StallRSFull]++
			return
		}

		st.Install(slot, RSEntry{
			Busy:     true,
			SeqNo:    ent.SeqNo,
			ROBIndex: robIdx,
			Inst:     inst,
			Ops: [2]Operand{
				e.resolveOperand(inst.Src1, inst.Src1Tag, inst.Src1TagSeq),
				e.resolveOperand(inst.Src2, inst.Src2Tag, inst.Src2TagSeq),
			},
			IssuedCycle: e.metrics.Cycles,
		})
		inst.Status = insts.StatusWaiting

		e.issueQ = e.issueQ[1:]
	}
}

// resolveOperand fills one operand slot: the register value when the
// architectural copy is current, the ROB result when the producer
// already completed, or the producer tag to watch on the CDB.
func (e *Engine) resolveOperand(reg uint8, tag int, tagSeq uint64) Operand {
	if reg == insts.RegNone || reg == emu.RegZero {
		return Operand{Ready: true}
	}
	if tag == emu.NoProducer || !e.rob.Live(tag, tagSeq) {
		// No producer in flight (or it committed since decode); the
		// architectural value is current.
		return Operand{Ready: true, Value: e.regs.Read(reg)}
	}

	producer := e.rob.Entry(tag)
	if producer.Completed {
		return Operand{Ready: true, Value: producer.Result}
	}
	return Operand{Tag: tag, TagSeq: tagSeq}
}

// decodeStage pulls fetched instructions in program order, allocating an
// ROB slot, an LSQ slot for memory operations, and a rename tag for the
// destination. A full ROB or LSQ backpressures the stage with no
// allocation.
func (e *Engine) decodeStage() {
	for n := 0; n < e.cfg.Pipeline.IssueWidth && len(e.fetchBuf) > 0; n++ {
		if len(e.issueQ) >= e.issueQCap {
			return
		}

		f := e.fetchBuf[0]
		isMem := f.inst.IsMem()
		if e.rob.Full() {
			e.metrics.Stalls[StallROBFull]++
			return
		}
		if isMem && e.lsq.Full() {
			e.metrics.Stalls[StallLSQFull]++
			return
		}

		inst := new(insts.Instruction)
		*inst = f.inst
		inst.SeqNo = e.nextSeq
		e.nextSeq++
		inst.Status = insts.StatusIssued

		// Snapshot source producer tags from the current rename map.
		inst.Src1Tag, inst.Src1TagSeq = e.sourceTag(inst.Src1)
		inst.Src2Tag, inst.Src2TagSeq = e.sourceTag(inst.Src2)

		// Redirecting instructions snapshot the rename map before
		// renaming their own destination, so squash recovery sees the
		// map as of their decode.
		var snap emu.RenameSnapshot
		hasSnap := false
		if inst.Redirects() {
			snap = e.regs.SnapshotRename()
			hasSnap = true
		}

		robIdx := e.rob.Alloc()
		inst.ROBIndex = robIdx
		ent := e.rob.Entry(robIdx)
		*ent = ROBEntry{
			Valid:           true,
			SeqNo:           inst.SeqNo,
			PC:              inst.PC,
			Inst:            inst,
			Dest:            inst.Dest,
			IsBranch:        inst.Redirects(),
			Counted:         f.counted,
			PredictedTaken:  f.predictedTaken,
			PredictedTarget: f.predictedTarget,
			HistoryAt:       f.history,
			Rename:          snap,
			HasSnapshot:     hasSnap,
			IsLoad:          inst.IsLoad(),
			IsStore:         inst.IsStore(),
			MemSize:         4,
			LSQIndex:        -1,
		}
		ent.Inst.PredictedTaken = f.predictedTaken
		ent.Inst.PredictedTarget = f.predictedTarget

		if isMem {
			ent.LSQIndex = e.lsq.Alloc(inst.SeqNo, robIdx, inst.IsStore(), 4)
		}
		if inst.HasDest() {
			e.regs.SetProducer(inst.Dest, robIdx, inst.SeqNo)
		}

		e.issueQ = append(e.issueQ, robIdx)
		e.fetchBuf = e.fetchBuf[1:]
	}
}

// sourceTag reads the rename map for one source register.
func (e *Engine) sourceTag(reg uint8) (int, uint64) {
	if reg == insts.RegNone || e.regs.Ready(reg) {
		return emu.NoProducer, 0
	}
	return e.regs.Producer(reg)
}

// fetchStage reads up to the fetch width of instructions through the
// I-cache, predicting branches as it goes. A predicted-taken branch
// drops the rest of the packet and redirects the next fetch; an I-cache
// miss stalls fetch for the miss penalty.
func (e *Engine) fetchStage() {
	if e.fetchStall > 0 {
		e.fetchStall--
		if e.fetchStallMiss {
			e.metrics.Stalls[StallICacheMiss]++
		}
		return
	}
	if len(e.fetchBuf) > 0 {
		// The previous packet was not fully consumed.
		return
	}

	for n := 0; n < e.cfg.Pipeline.FetchWidth; n++ {
		if e.pc < e.prog.TextBase {
			return
		}
		idx := (e.pc - e.prog.TextBase) / 4
		if idx >= uint64(len(e.prog.Instructions)) {
			return
		}

		res := e.icache.Read(e.pc, 4)
		if !res.Hit {
			e.fetchStall = res.Latency - 1
			e.fetchStallMiss = true
			e.metrics.Stalls[StallICacheMiss]++
			return
		}

		f := fetchedInst{inst: e.prog.Instructions[idx]}
		f.inst.PC = e.pc
		redirected := e.predictFetch(&f)
		e.fetchBuf = append(e.fetchBuf, f)

		if redirected || e.fetchStall > 0 {
			return
		}
	}
}

// predictFetch fills the prediction fields of a fetched instruction and
// advances the fetch pc. Returns true when the packet ends here because
// fetch was redirected.
func (e *Engine) predictFetch(f *fetchedInst) bool {
	inst := &f.inst

	switch {
	case inst.IsBranch():
		hist := e.ghr
		taken := e.pred.Predict(inst.PC, hist)
		f.counted = true
		f.history = hist
		f.predictedTaken = taken

		// Speculative history update; recovered from the branch's
		// snapshot on misprediction.
		e.ghr = ((hist << 1) | boolBit(taken)) & e.ghrMask

		if !taken {
			e.pc += 4
			return false
		}
		target, ok := e.btb.Lookup(inst.PC)
		if !ok {
			// Direct branches carry a static target; computing it on
			// a BTB miss costs one fetch bubble.
			target = inst.Target
			e.fetchStall = 1
			e.fetchStallMiss = false
		}
		f.predictedTarget = target
		e.pc = target
		return true

	case inst.Op == insts.OpJ || inst.Op == insts.OpJal:
		f.predictedTaken = true
		f.predictedTarget = inst.Target
		e.pc = inst.Target
		return true

	case inst.Op == insts.OpJr:
		if target, ok := e.btb.Lookup(inst.PC); ok {
			f.predictedTaken = true
			f.predictedTarget = target
			e.pc = target
			return true
		}
		// No cached target: fall through and let commit redirect.
		e.pc += 4
		return false

	default:
		e.pc += 4
		return false
	}
}
