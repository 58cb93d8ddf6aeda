package loader_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mipssim/insts"
	"github.com/sarchlab/mipssim/loader"
)

var _ = Describe("Parse", func() {
	It("should parse a minimal program", func() {
		prog, err := loader.Parse(`
			.text
		main:
			li $v0, 10
			syscall
		`)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Instructions).To(HaveLen(2))
		Expect(prog.Entry).To(Equal(prog.TextBase))
		Expect(prog.Instructions[0].Op).To(Equal(insts.OpLi))
		Expect(prog.Instructions[0].Dest).To(Equal(uint8(2)))
		Expect(prog.Instructions[0].Imm).To(Equal(int64(10)))
		Expect(prog.Instructions[1].Op).To(Equal(insts.OpSyscall))
	})

	It("should assign sequential PCs from the text base", func() {
		prog, err := loader.Parse("nop\nnop\nnop\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Instructions[0].PC).To(Equal(prog.TextBase))
		Expect(prog.Instructions[2].PC).To(Equal(prog.TextBase + 8))
	})

	It("should parse three-register ALU forms", func() {
		prog, err := loader.Parse("add $t2, $t0, $t1\n")
		Expect(err).NotTo(HaveOccurred())
		i := prog.Instructions[0]
		Expect(i.Op).To(Equal(insts.OpAdd))
		Expect(i.Dest).To(Equal(uint8(10)))
		Expect(i.Src1).To(Equal(uint8(8)))
		Expect(i.Src2).To(Equal(uint8(9)))
	})

	It("should parse memory operands", func() {
		prog, err := loader.Parse("lw $t1, 8($sp)\nsw $t1, -4($sp)\n")
		Expect(err).NotTo(HaveOccurred())

		lw := prog.Instructions[0]
		Expect(lw.Op).To(Equal(insts.OpLw))
		Expect(lw.Dest).To(Equal(uint8(9)))
		Expect(lw.Src1).To(Equal(uint8(29)))
		Expect(lw.Disp).To(Equal(int64(8)))

		sw := prog.Instructions[1]
		Expect(sw.Op).To(Equal(insts.OpSw))
		Expect(sw.Src2).To(Equal(uint8(9)))
		Expect(sw.Src1).To(Equal(uint8(29)))
		Expect(sw.Disp).To(Equal(int64(-4)))
	})

	It("should resolve branch and jump labels", func() {
		prog, err := loader.Parse(`
		loop:
			addi $t0, $t0, 1
			bne $t0, $t1, loop
			j done
		done:
			syscall
		`)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Instructions[1].Target).To(Equal(prog.TextBase))
		Expect(prog.Instructions[2].Target).To(Equal(prog.TextBase + 12))
	})

	It("should give jal a $ra destination", func() {
		prog, err := loader.Parse("jal f\nf: jr $ra\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Instructions[0].Dest).To(Equal(uint8(31)))
		Expect(prog.Instructions[1].Src1).To(Equal(uint8(31)))
	})

	It("should lay out the data segment", func() {
		prog, err := loader.Parse(`
			.data
		vec:	.word 1, 2, 3
		buf:	.space 8
		msg:	.asciiz "hi"
			.text
			la $a0, msg
		`)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Labels["vec"]).To(Equal(prog.DataBase))
		Expect(prog.Labels["buf"]).To(Equal(prog.DataBase + 12))
		Expect(prog.Labels["msg"]).To(Equal(prog.DataBase + 20))
		Expect(prog.Data).To(HaveLen(23))
		Expect(prog.Data[0]).To(Equal(byte(1)))
		Expect(prog.Data[4]).To(Equal(byte(2)))
		Expect(prog.Data[20]).To(Equal(byte('h')))
		Expect(prog.Data[22]).To(Equal(byte(0)))
		Expect(prog.Instructions[0].Imm).To(Equal(int64(prog.DataBase + 20)))
	})

	It("should strip comments", func() {
		prog, err := loader.Parse("# full line\nnop # trailing\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Instructions).To(HaveLen(1))
	})

	It("should use main as the entry point", func() {
		prog, err := loader.Parse("nop\nmain: nop\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Entry).To(Equal(prog.TextBase + 4))
	})

	It("should reject unknown opcodes", func() {
		_, err := loader.Parse("frobnicate $t0, $t1\n")
		Expect(err).To(MatchError(ContainSubstring("unknown opcode")))
	})

	It("should reject unresolved labels", func() {
		_, err := loader.Parse("j nowhere\n")
		Expect(err).To(MatchError(ContainSubstring("nowhere")))
	})

	It("should reject bad registers", func() {
		_, err := loader.Parse("add $t0, $q9, $t1\n")
		Expect(err).To(MatchError(ContainSubstring("register")))
	})

	It("should reject duplicate labels", func() {
		_, err := loader.Parse("x: nop\nx: nop\n")
		Expect(err).To(MatchError(ContainSubstring("duplicate")))
	})

	It("should reject wrong operand counts", func() {
		_, err := loader.Parse("add $t0, $t1\n")
		Expect(err).To(MatchError(ContainSubstring("expects 3")))
	})
})
