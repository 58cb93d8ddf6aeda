// Package benchmarks provides assembly microbenchmarks and a harness
// for running them through the timing engine.
package benchmarks

// Benchmark is one named assembly program.
type Benchmark struct {
	Name   string
	Source string
}

// TightRAWChain serializes three adds behind a load-immediate: every
// instruction depends on the previous one.
const TightRAWChain = `
main:	li $t0, 1
	addi $t1, $t0, 1
	addi $t2, $t1, 1
	addi $t3, $t2, 1
	li $v0, 10
	syscall
`

// IndependentALU streams independent adds with no cross dependencies.
const IndependentALU = `
main:	addi $t0, $zero, 1
	addi $t1, $zero, 2
	addi $t2, $zero, 3
	addi $t3, $zero, 4
	addi $t4, $zero, 5
	addi $t5, $zero, 6
	addi $t6, $zero, 7
	addi $t7, $zero, 8
	addi $s0, $zero, 1
	addi $s1, $zero, 2
	addi $s2, $zero, 3
	addi $s3, $zero, 4
	addi $s4, $zero, 5
	addi $s5, $zero, 6
	addi $s6, $zero, 7
	addi $s7, $zero, 8
	li $v0, 10
	syscall
`

// CountedLoop iterates a backward branch 100 times: taken 99 times,
// then falls through.
const CountedLoop = `
main:	li $t0, 0
	li $t1, 100
loop:	addi $t0, $t0, 1
	bne $t0, $t1, loop
	li $v0, 10
	syscall
`

// StoreLoadForward writes the stack and immediately reads it back, so
// the load's value comes from the store queue, not the D-cache.
const StoreLoadForward = `
main:	li $t0, 42
	sw $t0, 0($sp)
	lw $t1, 0($sp)
	li $v0, 10
	syscall
`

// PointerChase walks a chain of data-dependent loads.
const PointerChase = `
	.data
n0:	.word n1
n1:	.word n2
n2:	.word n3
n3:	.word 0
	.text
main:	la $t0, n0
chase:	lw $t0, 0($t0)
	bne $t0, $zero, chase
	li $v0, 10
	syscall
`

// MatrixIdentity multiplies a 4x4 matrix by the identity and writes the
// product to the result region, which must equal the input.
const MatrixIdentity = `
	.data
mat_a:	.word 1, 2, 3, 4
	.word 5, 6, 7, 8
	.word 9, 10, 11, 12
	.word 13, 14, 15, 16
mat_b:	.word 1, 0, 0, 0
	.word 0, 1, 0, 0
	.word 0, 0, 1, 0
	.word 0, 0, 0, 1
mat_c:	.space 64
	.text
main:	li $s0, 0
row:	li $s1, 0
col:	li $s2, 0
	li $s3, 0
dot:	sll $t0, $s0, 4
	sll $t1, $s2, 2
	add $t0, $t0, $t1
	la $t2, mat_a
	add $t0, $t0, $t2
	lw $t3, 0($t0)
	sll $t4, $s2, 4
	sll $t5, $s1, 2
	add $t4, $t4, $t5
	la $t6, mat_b
	add $t4, $t4, $t6
	lw $t7, 0($t4)
	mul $t8, $t3, $t7
	add $s3, $s3, $t8
	addi $s2, $s2, 1
	li $t9, 4
	blt $s2, $t9, dot
	sll $t0, $s0, 4
	sll $t1, $s1, 2
	add $t0, $t0, $t1
	la $t2, mat_c
	add $t0, $t0, $t2
	sw $s3, 0($t0)
	addi $s1, $s1, 1
	li $t9, 4
	blt $s1, $t9, col
	addi $s0, $s0, 1
	li $t9, 4
	blt $s0, $t9, row
	li $v0, 10
	syscall
`

// All lists every microbenchmark in the suite.
var All = []Benchmark{
	{Name: "tight_raw_chain", Source: TightRAWChain},
	{Name: "independent_alu", Source: IndependentALU},
	{Name: "counted_loop", Source: CountedLoop},
	{Name: "store_load_forward", Source: StoreLoadForward},
	{Name: "pointer_chase", Source: PointerChase},
	{Name: "matrix_identity", Source: MatrixIdentity},
}
