// Package core implements the cycle-driven out-of-order execution
// engine: decode with register renaming, reservation stations, the
// reorder buffer's in-order commit, the load/store queue, and the common
// data bus that forwards completed results.
//
// The engine owns every structure (arena-plus-index): the ROB, the
// reservation stations and the LSQ are arrays; instruction identity is a
// sequence number plus an index. Each Tick evaluates the stages in
// reverse pipeline order (commit first, fetch last) so a value produced
// in one cycle becomes visible in the next.
package core

import (
	"errors"
	"fmt"

	"github.com/sarchlab/mipssim/config"
	"github.com/sarchlab/mipssim/emu"
	"github.com/sarchlab/mipssim/insts"
	"github.com/sarchlab/mipssim/loader"
	"github.com/sarchlab/mipssim/timing/cache"
	"github.com/sarchlab/mipssim/timing/predictor"
)

// ErrFault marks runtime faults surfaced at commit.
var ErrFault = errors.New("runtime fault")

// haltServiceCode is the syscall service number that stops the machine.
const haltServiceCode = 10

// stuckThreshold is the number of cycles the ROB head may sit without a
// commit before the engine declares an internal invariant violation.
const stuckThreshold = 50000

// fetchedInst is one slot of the fetch buffer: an instruction plus the
// prediction made for it at fetch time.
type fetchedInst struct {
	inst            insts.Instruction
	predictedTaken  bool
	predictedTarget uint64
	// counted marks predictions that participate in accuracy stats.
	counted bool
	// history is the global history register at prediction time.
	history uint64
}

// EngineOption is a functional option for configuring the Engine.
type EngineOption func(*Engine)

// WithPredictor overrides the configured branch predictor.
func WithPredictor(p predictor.Predictor) EngineOption {
	return func(e *Engine) {
		e.pred = p
	}
}

// Engine is the out-of-order core model. It is single-threaded: one
// logical cycle clock drives all stages, and components interact only
// through the engine.
type Engine struct {
	cfg  *config.Config
	prog *loader.Program

	mem    *emu.Memory
	regs   *emu.RegFile
	icache *cache.Cache
	dcache *cache.Cache

	pred    predictor.Predictor
	btb     *predictor.BTB
	ghr     uint64
	ghrMask uint64

	rob      *ROB
	stations map[insts.Class]*Station
	fus      []*FuncUnit
	lsq      *LSQ
	cdb      *CDB

	// Frontend latches. fetchBuf is the packet fetched last cycle;
	// issueQ holds decoded ROB indices waiting for a reservation
	// station.
	fetchBuf  []fetchedInst
	issueQ    []int
	issueQCap int

	// fetchStall counts down cycles fetch is blocked; miss marks it as
	// an I-cache miss for stall accounting.
	fetchStall     uint64
	fetchStallMiss bool

	// The single data memory port. While memBusy counts down, one load
	// occupies the D-cache.
	memBusy     uint64
	memInFlight bool
	memSeq      uint64
	memROB      int
	memLSQ      int
	memValue    uint64

	pc      uint64
	nextSeq uint64

	halted          bool
	fault           error
	lastCommitCycle uint64

	metrics *Metrics
}

// NewEngine builds an engine for the given program. Configuration and
// program problems are reported here, before any cycle runs.
func NewEngine(cfg *config.Config, prog *loader.Program, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	memSize := uint64(cfg.MemorySize)
	textEnd := prog.TextBase + uint64(4*len(prog.Instructions))
	if textEnd > memSize {
		return nil, fmt.Errorf("text segment ends at %#x, outside memory of %d bytes",
			textEnd, cfg.MemorySize)
	}
	dataEnd := prog.DataBase + uint64(len(prog.Data))
	if dataEnd > memSize {
		return nil, fmt.Errorf("data segment ends at %#x, outside memory of %d bytes",
			dataEnd, cfg.MemorySize)
	}

	mem := emu.NewMemory(cfg.MemorySize)
	mem.WriteBytes(prog.DataBase, prog.Data)

	backing := cache.NewMemoryBacking(mem)
	icache, err := cache.New(cache.Config{
		Size:          cfg.ICache.Size,
		BlockSize:     cfg.ICache.BlockSize,
		Associativity: cfg.ICache.Associativity,
		MissPenalty:   cfg.ICache.MissPenalty,
	}, backing)
	if err != nil {
		return nil, fmt.Errorf("invalid i-cache: %w", err)
	}
	dcache, err := cache.New(cache.Config{
		Size:          cfg.DCache.Size,
		BlockSize:     cfg.DCache.BlockSize,
		Associativity: cfg.DCache.Associativity,
		MissPenalty:   cfg.DCache.MissPenalty,
	}, backing)
	if err != nil {
		return nil, fmt.Errorf("invalid d-cache: %w", err)
	}

	pred, err := predictor.New(predictor.Config{
		Type:          cfg.BranchPredictor.Type,
		NumEntries:    cfg.BranchPredictor.NumEntries,
		HistoryLength: cfg.BranchPredictor.HistoryLength,
	})
	if err != nil {
		return nil, err
	}

	regs := emu.NewRegFile()
	// The stack grows down from the top of memory.
	regs.Write(emu.RegSP, memSize-16)

	stations := map[insts.Class]*Station{
		insts.ClassALU: NewStation(insts.ClassALU, cfg.Pipeline.RSCapacityPerClass),
		insts.ClassFPU: NewStation(insts.ClassFPU, cfg.Pipeline.RSCapacityPerClass),
		insts.ClassLSU: NewStation(insts.ClassLSU, cfg.Pipeline.RSCapacityPerClass),
	}

	var fus []*FuncUnit
	for _, class := range []insts.Class{insts.ClassALU, insts.ClassFPU, insts.ClassLSU} {
		unit := cfg.ExecuteUnits[class.String()]
		for i := 0; i < unit.Count; i++ {
			fus = append(fus, NewFuncUnit(class, i, unit.Latency))
		}
	}

	e := &Engine{
		cfg:       cfg,
		prog:      prog,
		mem:       mem,
		regs:      regs,
		icache:    icache,
		dcache:    dcache,
		pred:      pred,
		btb:       predictor.NewBTB(cfg.BranchPredictor.BTBEntries),
		ghrMask:   (1 << cfg.BranchPredictor.HistoryLength) - 1,
		rob:       NewROB(cfg.Pipeline.ROBCapacity),
		stations:  stations,
		fus:       fus,
		lsq:       NewLSQ(cfg.Pipeline.LSQCapacity),
		cdb:       NewCDB(cfg.Pipeline.IssueWidth),
		issueQCap: 2 * cfg.Pipeline.IssueWidth,
		pc:        prog.Entry,
		nextSeq:   1,
		metrics:   NewMetrics(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// PC returns the fetch program counter.
func (e *Engine) PC() uint64 {
	return e.pc
}

// Cycle returns the number of cycles simulated so far.
func (e *Engine) Cycle() uint64 {
	return e.metrics.Cycles
}

// Halted reports whether the machine has stopped.
func (e *Engine) Halted() bool {
	return e.halted
}

// Fault returns the runtime fault that stopped the machine, if any.
func (e *Engine) Fault() error {
	return e.fault
}

// RegFile returns the architectural register file.
func (e *Engine) RegFile() *emu.RegFile {
	return e.regs
}

// Memory returns the flat memory. Committed stores reach it only after
// the D-cache writes back; Run flushes the cache before returning.
func (e *Engine) Memory() *emu.Memory {
	return e.mem
}

// ROBOccupancy returns the current reorder buffer occupancy.
func (e *Engine) ROBOccupancy() int {
	return e.rob.Occupancy()
}

// Tick simulates one cycle. Stages run in reverse pipeline order so
// every stage reads the state latched by the previous cycle.
func (e *Engine) Tick() {
	if e.halted || e.fault != nil {
		return
	}
	e.metrics.Cycles++

	e.commitStage()
	if e.halted || e.fault != nil {
		return
	}
	e.memoryStage()
	e.executeStage()
	e.issueStage()
	e.decodeStage()
	e.fetchStage()

	e.checkProgress()
}

// Run simulates until the halt sentinel commits, a fault surfaces, or
// the cycle limit is reached. The D-cache is drained before reporting so
// memory reflects every committed store.
func (e *Engine) Run() (*Results, error) {
	max := e.cfg.Simulation.MaxCycles
	for !e.halted && e.fault == nil {
		if max > 0 && e.metrics.Cycles >= max {
			break
		}
		e.Tick()
	}

	e.dcache.Flush()
	return e.Report(), e.fault
}

// Report builds the results record from the current counters.
func (e *Engine) Report() *Results {
	ist := e.icache.Stats()
	dst := e.dcache.Stats()
	return buildResults(e.metrics,
		ist.Accesses(), ist.Hits, dst.Accesses(), dst.Hits)
}

// checkProgress asserts that the ROB head retires eventually. A head
// that never completes is an internal invariant violation, not an
// expected runtime outcome.
func (e *Engine) checkProgress() {
	if e.rob.Empty() {
		e.lastCommitCycle = e.metrics.Cycles
		return
	}
	if e.metrics.Cycles-e.lastCommitCycle > stuckThreshold {
		head := e.rob.Entry(e.rob.HeadIndex())
		panic(fmt.Sprintf(
			"core: rob head stuck at cycle %d: seq=%d pc=%#x op=%v completed=%v",
			e.metrics.Cycles, head.SeqNo, head.PC, head.Inst.Op, head.Completed))
	}
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
