// Package loader parses MIPS-style assembly into a program image.
//
// The loader produces everything the timing engine needs: a flat data
// image, an instruction array indexed by (pc - text base) / 4, a label
// table, and the entry-point pc. Programs with unknown opcodes, bad
// registers, or unresolved labels fail here, before simulation starts.
package loader

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/mipssim/insts"
)

// DefaultTextBase is the address of the first text instruction.
const DefaultTextBase = 0x1000

// DefaultDataBase is the address of the start of the data segment.
const DefaultDataBase = 0x10000

// Program is a parsed assembly program ready for loading into the engine.
type Program struct {
	// Instructions is the text segment, indexed by (pc - TextBase) / 4.
	Instructions []insts.Instruction
	// TextBase is the address of Instructions[0].
	TextBase uint64
	// Data is the data segment image, loaded at DataBase.
	Data []byte
	// DataBase is the load address of the data segment.
	DataBase uint64
	// Labels maps label names to addresses in either segment.
	Labels map[string]uint64
	// Entry is the pc where execution begins: the main label if
	// present, else the first text instruction.
	Entry uint64
}

var registerNames = map[string]uint8{
	"$zero": 0, "$at": 1,
	"$v0": 2, "$v1": 3,
	"$a0": 4, "$a1": 5, "$a2": 6, "$a3": 7,
	"$t0": 8, "$t1": 9, "$t2": 10, "$t3": 11,
	"$t4": 12, "$t5": 13, "$t6": 14, "$t7": 15,
	"$s0": 16, "$s1": 17, "$s2": 18, "$s3": 19,
	"$s4": 20, "$s5": 21, "$s6": 22, "$s7": 23,
	"$t8": 24, "$t9": 25,
	"$k0": 26, "$k1": 27,
	"$gp": 28, "$sp": 29, "$fp": 30, "$ra": 31,
}

var mnemonics = map[string]insts.Opcode{
	"nop":     insts.OpNop,
	"add":     insts.OpAdd,
	"addi":    insts.OpAddi,
	"sub":     insts.OpSub,
	"mul":     insts.OpMul,
	"div":     insts.OpDiv,
	"and":     insts.OpAnd,
	"or":      insts.OpOr,
	"xor":     insts.OpXor,
	"sll":     insts.OpSll,
	"srl":     insts.OpSrl,
	"slt":     insts.OpSlt,
	"li":      insts.OpLi,
	"la":      insts.OpLa,
	"fadd":    insts.OpFadd,
	"fsub":    insts.OpFsub,
	"fmul":    insts.OpFmul,
	"fdiv":    insts.OpFdiv,
	"lw":      insts.OpLw,
	"sw":      insts.OpSw,
	"beq":     insts.OpBeq,
	"bne":     insts.OpBne,
	"bgt":     insts.OpBgt,
	"bge":     insts.OpBge,
	"ble":     insts.OpBle,
	"blt":     insts.OpBlt,
	"j":       insts.OpJ,
	"jal":     insts.OpJal,
	"jr":      insts.OpJr,
	"syscall": insts.OpSyscall,
}

// sourceLine is one statement surviving tokenization, with its original
// line number for diagnostics.
type sourceLine struct {
	num    int
	text   string
	inText bool
}

// LoadFile reads and parses an assembly file.
func LoadFile(path string) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}
	return Parse(string(src))
}

// Parse parses assembly source text into a Program.
func Parse(src string) (*Program, error) {
	prog := &Program{
		TextBase: DefaultTextBase,
		DataBase: DefaultDataBase,
		Labels:   make(map[string]uint64),
	}

	lines, err := splitStatements(src, prog)
	if err != nil {
		return nil, err
	}

	// Pass 2: encode instructions and data, resolving labels.
	for _, ln := range lines {
		if ln.inText {
			inst, err := parseInstruction(ln, prog.Labels)
			if err != nil {
				return nil, err
			}
			inst.PC = prog.TextBase + uint64(4*len(prog.Instructions))
			prog.Instructions = append(prog.Instructions, inst)
		} else {
			if err := appendData(ln, prog); err != nil {
				return nil, err
			}
		}
	}

	prog.Entry = prog.TextBase
	if main, ok := prog.Labels["main"]; ok {
		prog.Entry = main
	}

	return prog, nil
}

// splitStatements runs the first pass: it strips comments, peels labels,
// tracks sections, and assigns every label an address.
func splitStatements(src string, prog *Program) ([]sourceLine, error) {
	var out []sourceLine
	inText := true
	textOff := 0
	dataOff := 0

	for num, raw := range strings.Split(src, "\n") {
		line := stripComment(raw)
		line = strings.ReplaceAll(line, "\t", " ")
		line = strings.TrimSpace(line)

		// Peel leading labels; several may stack on one statement.
		for {
			idx := strings.Index(line, ":")
			if idx < 0 || !isLabelName(line[:idx]) {
				break
			}
			name := line[:idx]
			if _, dup := prog.Labels[name]; dup {
				return nil, fmt.Errorf("line %d: duplicate label %q", num+1, name)
			}
			if inText {
				prog.Labels[name] = prog.TextBase + uint64(textOff)
			} else {
				prog.Labels[name] = prog.DataBase + uint64(dataOff)
			}
			line = strings.TrimSpace(line[idx+1:])
		}

		if line == "" {
			continue
		}

		switch {
		case line == ".text":
			inText = true
			continue
		case line == ".data":
			inText = false
			continue
		case strings.HasPrefix(line, ".globl"):
			continue
		}

		if inText {
			textOff += 4
		} else {
			size, err := dataSize(line, num+1)
			if err != nil {
				return nil, err
			}
			// .word values are 4-byte aligned.
			if strings.HasPrefix(line, ".word") && dataOff%4 != 0 {
				pad := 4 - dataOff%4
				dataOff += pad
				// Alignment padding is re-derived in pass 2, so the
				// label just assigned must move with it.
				realign(prog.Labels, prog.DataBase+uint64(dataOff-pad), pad)
			}
			dataOff += size
		}

		out = append(out, sourceLine{num: num + 1, text: line, inText: inText})
	}

	return out, nil
}

// realign shifts labels that landed on the unaligned offset.
func realign(labels map[string]uint64, oldAddr uint64, pad int) {
	for name, addr := range labels {
		if addr == oldAddr {
			labels[name] = addr + uint64(pad)
		}
	}
}

// stripComment removes a trailing # comment, respecting string literals.
func stripComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			if i == 0 || line[i-1] != '\\' {
				inString = !inString
			}
		case '#':
			if !inString {
				return line[:i]
			}
		}
	}
	return line
}

func isLabelName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '.':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// dataSize returns the number of bytes a data directive occupies.
func dataSize(line string, num int) (int, error) {
	switch {
	case strings.HasPrefix(line, ".word"):
		rest := strings.TrimSpace(strings.TrimPrefix(line, ".word"))
		if rest == "" {
			return 0, fmt.Errorf("line %d: .word needs at least one value", num)
		}
		return 4 * len(strings.Split(rest, ",")), nil
	case strings.HasPrefix(line, ".space"):
		rest := strings.TrimSpace(strings.TrimPrefix(line, ".space"))
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("line %d: bad .space size %q", num, rest)
		}
		return n, nil
	case strings.HasPrefix(line, ".asciiz"):
		rest := strings.TrimSpace(strings.TrimPrefix(line, ".asciiz"))
		s, err := unquote(rest)
		if err != nil {
			return 0, fmt.Errorf("line %d: %v", num, err)
		}
		return len(s) + 1, nil
	}
	return 0, fmt.Errorf("line %d: unknown data directive %q", num, line)
}

// appendData encodes one data directive into the program image.
func appendData(ln sourceLine, prog *Program) error {
	line := ln.text
	switch {
	case strings.HasPrefix(line, ".word"):
		for len(prog.Data)%4 != 0 {
			prog.Data = append(prog.Data, 0)
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, ".word"))
		for _, field := range strings.Split(rest, ",") {
			field = strings.TrimSpace(field)
			v, err := parseValue(field, prog.Labels)
			if err != nil {
				return fmt.Errorf("line %d: %v", ln.num, err)
			}
			w := uint32(v)
			prog.Data = append(prog.Data,
				byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
		}
	case strings.HasPrefix(line, ".space"):
		rest := strings.TrimSpace(strings.TrimPrefix(line, ".space"))
		n, _ := strconv.Atoi(rest)
		prog.Data = append(prog.Data, make([]byte, n)...)
	case strings.HasPrefix(line, ".asciiz"):
		rest := strings.TrimSpace(strings.TrimPrefix(line, ".asciiz"))
		s, err := unquote(rest)
		if err != nil {
			return fmt.Errorf("line %d: %v", ln.num, err)
		}
		prog.Data = append(prog.Data, []byte(s)...)
		prog.Data = append(prog.Data, 0)
	default:
		return fmt.Errorf("line %d: unknown data directive %q", ln.num, line)
	}
	return nil
}

// unquote decodes a double-quoted string with \n, \t, \0, \\ and \"
// escapes.
func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("bad string literal %q", s)
	}
	body := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] != '\\' {
			b.WriteByte(body[i])
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("dangling escape in %q", s)
		}
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '0':
			b.WriteByte(0)
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		default:
			return "", fmt.Errorf("unknown escape \\%c", body[i])
		}
	}
	return b.String(), nil
}

// parseValue parses an integer literal or a label reference.
func parseValue(s string, labels map[string]uint64) (int64, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	if addr, ok := labels[s]; ok {
		return int64(addr), nil
	}
	return 0, fmt.Errorf("unresolved value %q", s)
}

func parseRegister(s string) (uint8, error) {
	s = strings.TrimSpace(s)
	if r, ok := registerNames[s]; ok {
		return r, nil
	}
	if strings.HasPrefix(s, "$") {
		if n, err := strconv.Atoi(s[1:]); err == nil && n >= 0 && n < 32 {
			return uint8(n), nil
		}
	}
	return 0, fmt.Errorf("bad register %q", s)
}

// parseMemOperand parses off(base) addressing.
func parseMemOperand(s string) (int64, uint8, error) {
	s = strings.TrimSpace(s)
	open := strings.Index(s, "(")
	if open < 0 || !strings.HasSuffix(s, ")") {
		return 0, 0, fmt.Errorf("bad memory operand %q", s)
	}
	disp := int64(0)
	if off := strings.TrimSpace(s[:open]); off != "" {
		v, err := strconv.ParseInt(off, 0, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("bad displacement in %q", s)
		}
		disp = v
	}
	base, err := parseRegister(s[open+1 : len(s)-1])
	if err != nil {
		return 0, 0, err
	}
	return disp, base, nil
}

// parseInstruction encodes one text statement.
func parseInstruction(ln sourceLine, labels map[string]uint64) (insts.Instruction, error) {
	fields := strings.SplitN(ln.text, " ", 2)
	mnemonic := strings.ToLower(strings.TrimSpace(fields[0]))

	op, ok := mnemonics[mnemonic]
	if !ok {
		return insts.Instruction{}, fmt.Errorf("line %d: unknown opcode %q",
			ln.num, mnemonic)
	}

	var args []string
	if len(fields) == 2 {
		for _, a := range strings.Split(fields[1], ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}

	inst := insts.Instruction{
		Op:   op,
		Dest: insts.RegNone,
		Src1: insts.RegNone,
		Src2: insts.RegNone,
	}
	fail := func(format string, a ...interface{}) (insts.Instruction, error) {
		return insts.Instruction{}, fmt.Errorf("line %d: "+format,
			append([]interface{}{ln.num}, a...)...)
	}
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("line %d: %s expects %d operands, got %d",
				ln.num, mnemonic, n, len(args))
		}
		return nil
	}

	var err error
	switch op {
	case insts.OpNop, insts.OpSyscall:
		if err = need(0); err != nil {
			return inst, err
		}
		if op == insts.OpSyscall {
			// Syscall reads the service number from $v0 at execute.
			inst.Src1 = 2
		}

	case insts.OpAdd, insts.OpSub, insts.OpMul, insts.OpDiv,
		insts.OpAnd, insts.OpOr, insts.OpXor, insts.OpSlt,
		insts.OpFadd, insts.OpFsub, insts.OpFmul, insts.OpFdiv:
		if err = need(3); err != nil {
			return inst, err
		}
		if inst.Dest, err = parseRegister(args[0]); err != nil {
			return fail("%v", err)
		}
		if inst.Src1, err = parseRegister(args[1]); err != nil {
			return fail("%v", err)
		}
		if inst.Src2, err = parseRegister(args[2]); err != nil {
			return fail("%v", err)
		}

	case insts.OpAddi, insts.OpSll, insts.OpSrl:
		if err = need(3); err != nil {
			return inst, err
		}
		if inst.Dest, err = parseRegister(args[0]); err != nil {
			return fail("%v", err)
		}
		if inst.Src1, err = parseRegister(args[1]); err != nil {
			return fail("%v", err)
		}
		if inst.Imm, err = strconv.ParseInt(args[2], 0, 64); err != nil {
			return fail("bad immediate %q", args[2])
		}

	case insts.OpLi:
		if err = need(2); err != nil {
			return inst, err
		}
		if inst.Dest, err = parseRegister(args[0]); err != nil {
			return fail("%v", err)
		}
		if inst.Imm, err = strconv.ParseInt(args[1], 0, 64); err != nil {
			return fail("bad immediate %q", args[1])
		}

	case insts.OpLa:
		if err = need(2); err != nil {
			return inst, err
		}
		if inst.Dest, err = parseRegister(args[0]); err != nil {
			return fail("%v", err)
		}
		v, verr := parseValue(args[1], labels)
		if verr != nil {
			return fail("unresolved label %q", args[1])
		}
		inst.Imm = v

	case insts.OpLw:
		if err = need(2); err != nil {
			return inst, err
		}
		if inst.Dest, err = parseRegister(args[0]); err != nil {
			return fail("%v", err)
		}
		if inst.Disp, inst.Src1, err = parseMemOperand(args[1]); err != nil {
			return fail("%v", err)
		}

	case insts.OpSw:
		if err = need(2); err != nil {
			return inst, err
		}
		if inst.Src2, err = parseRegister(args[0]); err != nil {
			return fail("%v", err)
		}
		if inst.Disp, inst.Src1, err = parseMemOperand(args[1]); err != nil {
			return fail("%v", err)
		}

	case insts.OpBeq, insts.OpBne, insts.OpBgt, insts.OpBge,
		insts.OpBle, insts.OpBlt:
		if err = need(3); err != nil {
			return inst, err
		}
		if inst.Src1, err = parseRegister(args[0]); err != nil {
			return fail("%v", err)
		}
		if inst.Src2, err = parseRegister(args[1]); err != nil {
			return fail("%v", err)
		}
		v, verr := parseValue(args[2], labels)
		if verr != nil {
			return fail("unresolved branch target %q", args[2])
		}
		inst.Target = uint64(v)

	case insts.OpJ, insts.OpJal:
		if err = need(1); err != nil {
			return inst, err
		}
		v, verr := parseValue(args[0], labels)
		if verr != nil {
			return fail("unresolved jump target %q", args[0])
		}
		inst.Target = uint64(v)
		if op == insts.OpJal {
			inst.Dest = 31 // $ra
		}

	case insts.OpJr:
		if err = need(1); err != nil {
			return inst, err
		}
		if inst.Src1, err = parseRegister(args[0]); err != nil {
			return fail("%v", err)
		}
	}

	return inst, nil
}
