// Package main provides the entry point for mipssim.
// mipssim is a cycle-accurate superscalar out-of-order MIPS-style CPU
// simulator.
//
// For the full CLI, use: go run ./cmd/mipssim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("mipssim - superscalar out-of-order MIPS-style CPU simulator")
	fmt.Println("")
	fmt.Println("Usage: mipssim [options] <program.s>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config     Path to configuration JSON file")
	fmt.Println("  -predictor  Branch predictor (always_taken, bimodal, gshare)")
	fmt.Println("  -max-cycles Cycle limit override")
	fmt.Println("  -json       Emit the results record as JSON")
	fmt.Println("  -v          Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/mipssim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/mipssim' instead.")
	}
}
