package core

import (
	"math"

	"github.com/sarchlab/mipssim/insts"
)

// executeStage dispatches ready reservation station entries to free
// functional units, advances every busy unit, and broadcasts completed
// results on the common data bus. Dispatch reads operand readiness as
// latched before this cycle's broadcasts, so a forwarded value is first
// usable the cycle after its broadcast.
func (e *Engine) executeStage() {
	e.dispatch()
	e.tickUnits()
	e.broadcast()
}

// dispatch binds, for each free unit, the oldest ready entry of its
// class. At most one instruction starts per unit per cycle.
func (e *Engine) dispatch() {
	for _, fu := range e.fus {
		if fu.Busy {
			continue
		}
		st := e.stations[fu.Class]
		slot := st.OldestReady()
		if slot < 0 {
			continue
		}
		entry := st.Entry(slot)
		fu.Bind(entry)
		entry.Inst.Status = insts.StatusExecuting
		st.Release(slot)
	}

	// A class with a free unit and only operand-blocked entries is
	// starved by RAW dependencies.
	for class, st := range e.stations {
		if st.HasWaiting() && e.hasFreeUnit(class) {
			e.metrics.Stalls[StallRawHazard]++
			break
		}
	}
}

func (e *Engine) hasFreeUnit(class insts.Class) bool {
	for _, fu := range e.fus {
		if fu.Class == class && !fu.Busy {
			return true
		}
	}
	return false
}

// tickUnits decrements every busy unit and posts finished results to
// the CDB queue.
func (e *Engine) tickUnits() {
	for _, fu := range e.fus {
		if !fu.Busy {
			continue
		}
		if fu.Remaining == 0 {
			panic("core: functional unit busy past its latency")
		}
		fu.Remaining--
		fu.BusyCycles++
		e.metrics.FUBusy[fu.Name]++
		if fu.Remaining == 0 {
			if msg := e.computeResult(fu); msg != nil {
				e.cdb.Push(*msg)
			}
			fu.Busy = false
			fu.Inst = nil
		}
	}
}

// broadcast pops up to the bus width of pending completions, lowest
// seq-no first, and applies each to the ROB, the reservation stations
// and the LSQ.
func (e *Engine) broadcast() {
	for n := 0; n < e.cdb.Width(); n++ {
		msg, ok := e.cdb.Pop()
		if !ok {
			return
		}
		e.applyBroadcast(msg)
	}
}

func (e *Engine) applyBroadcast(msg Message) {
	if !e.rob.Live(msg.Tag, msg.SeqNo) {
		return
	}
	ent := e.rob.Entry(msg.Tag)

	ent.Completed = true
	ent.Result = msg.Value
	ent.Inst.Result = msg.Value
	ent.Inst.Status = insts.StatusCompleted

	if msg.Exception {
		ent.Exception = true
		ent.ExcCause = msg.ExcCause
		ent.ExcAddr = msg.ExcAddr
	}
	if msg.Branch {
		ent.ActualTaken = msg.Taken
		ent.ActualTarget = msg.Target
		ent.Inst.ActualTaken = msg.Taken
		ent.Inst.ActualTarget = msg.Target
	}
	if msg.Store {
		ent.StoreAddr = msg.Addr
		ent.StoreValue = msg.Value
		ent.MemSize = msg.MemSize
		lsqEnt := e.lsq.Entry(ent.LSQIndex)
		lsqEnt.Addr = msg.Addr
		lsqEnt.AddrValid = true
		lsqEnt.Value = msg.Value
		lsqEnt.ValueValid = true
		lsqEnt.Done = true
	}

	if ent.Dest != insts.RegNone {
		for _, st := range e.stations {
			st.Broadcast(msg.Tag, msg.SeqNo, msg.Value)
		}
	}
}

// computeResult evaluates a finished functional unit. Loads resolve
// their address into the LSQ and return no message; everything else
// returns the CDB broadcast. Faults ride the broadcast as exceptions
// and surface at commit.
func (e *Engine) computeResult(fu *FuncUnit) *Message {
	inst := fu.Inst
	a, b := fu.Src[0], fu.Src[1]
	msg := Message{SeqNo: fu.SeqNo, Tag: fu.ROBIndex}

	switch inst.Op {
	case insts.OpNop:
		// Completes with no effect.
	case insts.OpAdd:
		msg.Value = a + b
	case insts.OpAddi:
		msg.Value = a + uint64(inst.Imm)
	case insts.OpSub:
		msg.Value = a - b
	case insts.OpMul:
		msg.Value = a * b
	case insts.OpDiv:
		if b == 0 {
			msg.Exception = true
			msg.ExcCause = "integer divide by zero"
			break
		}
		msg.Value = uint64(int64(a) / int64(b))
	case insts.OpAnd:
		msg.Value = a & b
	case insts.OpOr:
		msg.Value = a | b
	case insts.OpXor:
		msg.Value = a ^ b
	case insts.OpSll:
		msg.Value = a << (uint64(inst.Imm) & 63)
	case insts.OpSrl:
		msg.Value = a >> (uint64(inst.Imm) & 63)
	case insts.OpSlt:
		if int64(a) < int64(b) {
			msg.Value = 1
		}
	case insts.OpLi, insts.OpLa:
		msg.Value = uint64(inst.Imm)

	case insts.OpFadd:
		msg.Value = math.Float64bits(math.Float64frombits(a) + math.Float64frombits(b))
	case insts.OpFsub:
		msg.Value = math.Float64bits(math.Float64frombits(a) - math.Float64frombits(b))
	case insts.OpFmul:
		msg.Value = math.Float64bits(math.Float64frombits(a) * math.Float64frombits(b))
	case insts.OpFdiv:
		fb := math.Float64frombits(b)
		if fb == 0 {
			msg.Exception = true
			msg.ExcCause = "float divide by zero"
			break
		}
		msg.Value = math.Float64bits(math.Float64frombits(a) / fb)

	case insts.OpSyscall:
		// The service number travels as the result and is inspected
		// at commit.
		msg.Value = a

	case insts.OpBeq, insts.OpBne, insts.OpBgt, insts.OpBge,
		insts.OpBle, insts.OpBlt:
		msg.Branch = true
		msg.Taken = branchTaken(inst.Op, int64(a), int64(b))
		msg.Target = inst.Target
	case insts.OpJ:
		msg.Branch = true
		msg.Taken = true
		msg.Target = inst.Target
	case insts.OpJal:
		msg.Branch = true
		msg.Taken = true
		msg.Target = inst.Target
		msg.Value = inst.PC + 4
	case insts.OpJr:
		msg.Branch = true
		msg.Taken = true
		msg.Target = a

	case insts.OpLw:
		return e.resolveLoadAddress(fu, a)
	case insts.OpSw:
		return e.resolveStoreAddress(fu, a, b)
	}

	return &msg
}

func branchTaken(op insts.Opcode, a, b int64) bool {
	switch op {
	case insts.OpBeq:
		return a == b
	case insts.OpBne:
		return a != b
	case insts.OpBgt:
		return a > b
	case insts.OpBge:
		return a >= b
	case insts.OpBle:
		return a <= b
	case insts.OpBlt:
		return a < b
	}
	return false
}

// resolveLoadAddress finishes address generation for a load. The
// address goes straight into the LSQ; the data broadcast happens later,
// from the memory stage. Out-of-bounds addresses complete the load with
// an exception instead.
func (e *Engine) resolveLoadAddress(fu *FuncUnit, base uint64) *Message {
	ent := e.rob.Entry(fu.ROBIndex)
	lsqEnt := e.lsq.Entry(ent.LSQIndex)
	addr := uint64(int64(base) + fu.Inst.Disp)

	if err := e.mem.CheckBounds(addr, lsqEnt.Size); err != nil {
		lsqEnt.AddrValid = true
		lsqEnt.Done = true
		return &Message{
			SeqNo:     fu.SeqNo,
			Tag:       fu.ROBIndex,
			Exception: true,
			ExcCause:  "load address out of bounds",
			ExcAddr:   addr,
		}
	}

	lsqEnt.Addr = addr
	lsqEnt.AddrValid = true
	return nil
}

// resolveStoreAddress finishes a store: address and value broadcast
// together and wait in the ROB until commit writes the D-cache.
func (e *Engine) resolveStoreAddress(fu *FuncUnit, base, value uint64) *Message {
	ent := e.rob.Entry(fu.ROBIndex)
	lsqEnt := e.lsq.Entry(ent.LSQIndex)
	addr := uint64(int64(base) + fu.Inst.Disp)

	if err := e.mem.CheckBounds(addr, lsqEnt.Size); err != nil {
		// The address stays unresolved so younger loads keep waiting;
		// the fault drains the machine at commit anyway.
		lsqEnt.Done = true
		return &Message{
			SeqNo:     fu.SeqNo,
			Tag:       fu.ROBIndex,
			Exception: true,
			ExcCause:  "store address out of bounds",
			ExcAddr:   addr,
		}
	}

	return &Message{
		SeqNo:   fu.SeqNo,
		Tag:     fu.ROBIndex,
		Value:   value,
		Store:   true,
		Addr:    addr,
		MemSize: lsqEnt.Size,
	}
}
