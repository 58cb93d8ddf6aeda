package core_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mipssim/config"
	"github.com/sarchlab/mipssim/loader"
	"github.com/sarchlab/mipssim/timing/core"
)

// run assembles the source and simulates it to completion under the
// given configuration.
func run(src string, cfg *config.Config) (*core.Results, *core.Engine, error) {
	prog, err := loader.Parse(src)
	Expect(err).NotTo(HaveOccurred())

	engine, err := core.NewEngine(cfg, prog)
	Expect(err).NotTo(HaveOccurred())

	results, err := engine.Run()
	return results, engine, err
}

const haltSeq = `
	li $v0, 10
	syscall
`

var _ = Describe("Engine", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = config.DefaultConfig()
	})

	Describe("construction", func() {
		It("should reject an invalid configuration", func() {
			cfg.Pipeline.ROBCapacity = 0
			prog, err := loader.Parse(haltSeq)
			Expect(err).NotTo(HaveOccurred())
			_, err = core.NewEngine(cfg, prog)
			Expect(err).To(MatchError(ContainSubstring("rob_capacity")))
		})

		It("should reject a program outside memory", func() {
			cfg.MemorySize = 4096 // smaller than the data base
			prog, err := loader.Parse(".data\nx: .word 1\n.text\nnop\n")
			Expect(err).NotTo(HaveOccurred())
			_, err = core.NewEngine(cfg, prog)
			Expect(err).To(MatchError(ContainSubstring("outside memory")))
		})
	})

	Describe("halting", func() {
		It("should stop at the exit syscall", func() {
			results, engine, err := run(haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Halted()).To(BeTrue())
			Expect(results.InstructionsCommitted).To(Equal(uint64(2)))
		})

		It("should retire non-exit syscalls as no-ops", func() {
			results, _, err := run(`
				li $v0, 1
				syscall
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(results.InstructionsCommitted).To(Equal(uint64(4)))
		})

		It("should stop at the cycle limit when nothing halts", func() {
			cfg.Simulation.MaxCycles = 200
			results, engine, err := run(`
			spin:	j spin
			`, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Halted()).To(BeFalse())
			Expect(results.Cycles).To(Equal(uint64(200)))
		})
	})

	Describe("dependent arithmetic", func() {
		It("should execute a tight RAW chain in order", func() {
			results, engine, err := run(`
				li $t0, 1
				addi $t1, $t0, 1
				addi $t2, $t1, 1
				addi $t3, $t2, 1
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())

			regs := engine.RegFile()
			Expect(regs.Read(8)).To(Equal(uint64(1)))
			Expect(regs.Read(9)).To(Equal(uint64(2)))
			Expect(regs.Read(10)).To(Equal(uint64(3)))
			Expect(regs.Read(11)).To(Equal(uint64(4)))
			Expect(results.InstructionsCommitted).To(Equal(uint64(6)))
			Expect(results.BranchMispredictions).To(Equal(uint64(0)))
		})

		It("should sustain one dependent op per cycle at unit latency", func() {
			// A 1-cycle miss penalty takes cold-cache noise out of the
			// cycle count.
			cfg.ICache.MissPenalty = 1
			cfg.DCache.MissPenalty = 1

			src := ""
			for i := 0; i < 40; i++ {
				src += "addi $t0, $t0, 1\n"
			}
			results, engine, err := run(src+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.RegFile().Read(8)).To(Equal(uint64(40)))

			// 40 chained adds retire one per cycle; the rest is fill
			// and drain.
			Expect(results.Cycles).To(BeNumerically(">=", 42))
			Expect(results.Cycles).To(BeNumerically("<=", 62))
		})

		It("should approach the issue width on independent ops", func() {
			cfg.ExecuteUnits["ALU"] = config.UnitConfig{Count: 4, Latency: 1}
			cfg.Pipeline.RSCapacityPerClass = 16
			cfg.ICache.MissPenalty = 1
			cfg.DCache.MissPenalty = 1

			src := ""
			for i := 0; i < 25; i++ {
				src += "addi $t0, $zero, 1\n"
				src += "addi $t1, $zero, 2\n"
				src += "addi $t2, $zero, 3\n"
				src += "addi $t3, $zero, 4\n"
			}
			results, _, err := run(src+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(results.InstructionsCommitted).To(Equal(uint64(102)))
			// 100 independent ops at width 4 plus fill and drain.
			Expect(results.Cycles).To(BeNumerically("<=", 55))
		})
	})

	Describe("arithmetic coverage", func() {
		It("should evaluate the integer ALU operations", func() {
			_, engine, err := run(`
				li $t0, 12
				li $t1, 5
				sub $t2, $t0, $t1
				mul $t3, $t0, $t1
				and $t4, $t0, $t1
				or  $t5, $t0, $t1
				xor $t6, $t0, $t1
				slt $t7, $t1, $t0
				sll $s0, $t1, 2
				srl $s1, $t0, 1
				div $s2, $t0, $t1
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())

			regs := engine.RegFile()
			Expect(regs.Read(10)).To(Equal(uint64(7)))
			Expect(regs.Read(11)).To(Equal(uint64(60)))
			Expect(regs.Read(12)).To(Equal(uint64(4)))
			Expect(regs.Read(13)).To(Equal(uint64(13)))
			Expect(regs.Read(14)).To(Equal(uint64(9)))
			Expect(regs.Read(15)).To(Equal(uint64(1)))
			Expect(regs.Read(16)).To(Equal(uint64(20)))
			Expect(regs.Read(17)).To(Equal(uint64(6)))
			Expect(regs.Read(18)).To(Equal(uint64(2)))
		})

		It("should keep $zero at zero", func() {
			_, engine, err := run(`
				addi $zero, $zero, 5
				add $t0, $zero, $zero
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.RegFile().Read(0)).To(Equal(uint64(0)))
			Expect(engine.RegFile().Read(8)).To(Equal(uint64(0)))
		})
	})

	Describe("memory operations", func() {
		It("should store and load through the stack", func() {
			_, engine, err := run(`
				li $t0, 1234
				sw $t0, 0($sp)
				lw $t1, 0($sp)
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.RegFile().Read(9)).To(Equal(uint64(1234)))
		})

		It("should forward store data to a matching load", func() {
			results, engine, err := run(`
				li $t0, 42
				sw $t0, 0($sp)
				lw $t1, 0($sp)
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.RegFile().Read(9)).To(Equal(uint64(42)))

			// The load forwards from the store queue: the only D-cache
			// traffic is the store's commit-time write.
			Expect(results.DCacheAccesses).To(Equal(uint64(1)))
		})

		It("should load initialized data", func() {
			_, engine, err := run(`
				.data
			val:	.word 7
				.text
			main:	la $t0, val
				lw $t1, 0($t0)
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.RegFile().Read(9)).To(Equal(uint64(7)))
		})

		It("should charge the miss penalty for an uncached load", func() {
			results, _, err := run(`
				.data
			val:	.word 7
				.text
			main:	la $t0, val
				lw $t1, 0($t0)
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(results.DCacheAccesses).To(Equal(uint64(1)))
			Expect(results.DCacheHits).To(Equal(uint64(0)))
			Expect(results.StallsByCause[core.StallDCacheMiss]).
				To(Equal(cfg.DCache.MissPenalty))
		})

		It("should make committed stores visible in memory after Run", func() {
			prog, err := loader.Parse(`
				.data
			out:	.space 4
				.text
			main:	li $t0, 99
				la $t1, out
				sw $t0, 0($t1)
			` + haltSeq)
			Expect(err).NotTo(HaveOccurred())

			engine, err := core.NewEngine(cfg, prog)
			Expect(err).NotTo(HaveOccurred())
			_, err = engine.Run()
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.Memory().Read32(prog.Labels["out"])).To(Equal(uint32(99)))
		})
	})

	Describe("branches", func() {
		It("should run a counted loop to completion", func() {
			results, engine, err := run(`
				li $t0, 0
				li $t1, 100
			loop:	addi $t0, $t0, 1
				bne $t0, $t1, loop
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.RegFile().Read(8)).To(Equal(uint64(100)))
			Expect(results.BranchPredictions).To(Equal(uint64(100)))
		})

		It("should learn a regular loop branch with gshare", func() {
			// The first iterations walk the history register through
			// untrained patterns; afterwards the branch predicts
			// cleanly until the final fall-through.
			results, _, err := run(`
				li $t0, 0
				li $t1, 200
			loop:	addi $t0, $t0, 1
				bne $t0, $t1, loop
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(results.BranchPredictions).To(Equal(uint64(200)))
			Expect(results.BranchAccuracy).To(BeNumerically(">=", 0.9))
		})

		It("should squash wrong-path work on a misprediction", func() {
			cfg.BranchPredictor.Type = config.PredictorAlwaysTaken
			results, engine, err := run(`
				li $t0, 1
				li $t1, 2
				beq $t0, $t1, skip
				addi $t2, $zero, 7
				j end
			skip:	addi $t2, $zero, 9
			end:
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())

			// The not-taken beq mispredicts under always-taken; the
			// speculative path's effects must be absent.
			Expect(engine.RegFile().Read(10)).To(Equal(uint64(7)))
			Expect(results.BranchMispredictions).To(BeNumerically(">=", 1))
			Expect(results.StallsByCause[core.StallROBFull]).To(Equal(uint64(0)))
		})

		It("should call and return through jal and jr", func() {
			_, engine, err := run(`
			main:	jal fn
				addi $t1, $t0, 1
				li $v0, 10
				syscall
			fn:	li $t0, 5
				jr $ra
			`, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.RegFile().Read(8)).To(Equal(uint64(5)))
			Expect(engine.RegFile().Read(9)).To(Equal(uint64(6)))
		})

		It("should report perfect accuracy for branch-free programs", func() {
			results, _, err := run(haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(results.BranchPredictions).To(Equal(uint64(0)))
			Expect(results.BranchAccuracy).To(Equal(1.0))
		})
	})

	Describe("faults", func() {
		It("should surface an out-of-bounds load at commit", func() {
			cfg.Simulation.MaxCycles = 10000
			_, engine, err := run(`
				li $t0, -64
				lw $t1, 0($t0)
			`+haltSeq, cfg)
			Expect(err).To(MatchError(core.ErrFault))
			Expect(errors.Is(err, core.ErrFault)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("load address"))
			Expect(engine.Halted()).To(BeTrue())
		})

		It("should surface a divide by zero at commit", func() {
			_, _, err := run(`
				li $t0, 0
				li $t1, 8
				div $t2, $t1, $t0
			`+haltSeq, cfg)
			Expect(err).To(MatchError(core.ErrFault))
			Expect(err.Error()).To(ContainSubstring("divide by zero"))
		})

		It("should not fault on the wrong path", func() {
			// The load behind the taken branch is squashed before it
			// can surface its fault.
			_, _, err := run(`
				li $t0, -64
				li $t1, 1
				li $t2, 1
				beq $t1, $t2, over
				lw $t3, 0($t0)
			over:
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("metric identities", func() {
		It("should keep ipc consistent with committed and cycles", func() {
			results, _, err := run(`
				li $t0, 0
				li $t1, 20
			loop:	addi $t0, $t0, 1
				bne $t0, $t1, loop
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(results.IPC).To(BeNumerically("~",
				float64(results.InstructionsCommitted)/float64(results.Cycles), 1e-12))
		})

		It("should keep branch accuracy consistent with its counters", func() {
			cfg.BranchPredictor.Type = config.PredictorBimodal
			results, _, err := run(`
				li $t0, 0
				li $t1, 10
			loop:	addi $t0, $t0, 1
				bne $t0, $t1, loop
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			want := float64(results.BranchPredictions-results.BranchMispredictions) /
				float64(results.BranchPredictions)
			Expect(results.BranchAccuracy).To(BeNumerically("~", want, 1e-12))
		})

		It("should be deterministic across runs", func() {
			src := `
				li $t0, 0
				li $t1, 50
			loop:	addi $t0, $t0, 1
				sw $t0, 0($sp)
				lw $t2, 0($sp)
				bne $t0, $t1, loop
			` + haltSeq

			first, _, err := run(src, config.DefaultConfig())
			Expect(err).NotTo(HaveOccurred())
			second, _, err := run(src, config.DefaultConfig())
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Cycles).To(Equal(first.Cycles))
			Expect(second.InstructionsCommitted).To(Equal(first.InstructionsCommitted))
			Expect(second.BranchMispredictions).To(Equal(first.BranchMispredictions))
			Expect(second.DCacheAccesses).To(Equal(first.DCacheAccesses))
		})

		It("should report utilization for every functional unit", func() {
			results, _, err := run(`
				li $t0, 3
				sw $t0, 0($sp)
				lw $t1, 0($sp)
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(results.FUUtilization["ALU0"]).To(BeNumerically(">", 0))
			Expect(results.FUUtilization["LSU0"]).To(BeNumerically(">", 0))
		})
	})

	Describe("floating point", func() {
		It("should execute float arithmetic on the FPU", func() {
			// Building 3.0 and 2.0 from integer halves is awkward; use
			// fadd and fmul of zero-initialized registers instead:
			// 0.0 + 0.0 = 0.0 and 0.0 * 0.0 = 0.0.
			results, engine, err := run(`
				fadd $t0, $zero, $zero
				fmul $t1, $t0, $t0
			`+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.RegFile().Read(8)).To(Equal(uint64(0)))
			Expect(engine.RegFile().Read(9)).To(Equal(uint64(0)))
			Expect(results.FUUtilization["FPU0"]).To(BeNumerically(">", 0))
		})
	})

	Describe("structural stalls", func() {
		It("should count ROB pressure on a long dependency shadow", func() {
			cfg.Pipeline.ROBCapacity = 4
			cfg.ExecuteUnits["FPU"] = config.UnitConfig{Count: 1, Latency: 8}

			src := "fadd $t0, $zero, $zero\nfadd $t0, $t0, $t0\nfadd $t0, $t0, $t0\n"
			for i := 0; i < 8; i++ {
				src += "addi $t1, $t1, 1\n"
			}
			results, _, err := run(src+haltSeq, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(results.StallsByCause[core.StallROBFull]).To(BeNumerically(">", 0))
		})
	})
})
