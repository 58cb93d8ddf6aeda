package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"

	"github.com/sarchlab/mipssim/timing/core"
)

// printJSON emits the raw results record.
func printJSON(results *core.Results) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error serializing results: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// printReport renders the human-readable simulation report.
func printReport(programPath string, results *core.Results, engine *core.Engine) {
	header := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgWhite)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)

	fmt.Println()
	header.Printf("Simulation report: %s (run %s)\n", programPath, results.RunID)

	label.Printf("  Cycles:       %d\n", results.Cycles)
	label.Printf("  Committed:    %d\n", results.InstructionsCommitted)
	label.Printf("  IPC:          %.3f\n", results.IPC)
	if engine.Halted() {
		good.Println("  Machine halted at the exit syscall.")
	} else {
		warn.Println("  Cycle limit reached before halt.")
	}

	fmt.Println()
	header.Println("Branch prediction")
	label.Printf("  Predictions:    %d\n", results.BranchPredictions)
	label.Printf("  Mispredictions: %d\n", results.BranchMispredictions)
	label.Printf("  Accuracy:       %.2f%%\n", results.BranchAccuracy*100)

	fmt.Println()
	header.Println("Caches")
	label.Printf("  I-cache: %d accesses, %d hits (%s)\n",
		results.ICacheAccesses, results.ICacheHits,
		hitRate(results.ICacheHits, results.ICacheAccesses))
	label.Printf("  D-cache: %d accesses, %d hits (%s)\n",
		results.DCacheAccesses, results.DCacheHits,
		hitRate(results.DCacheHits, results.DCacheAccesses))

	fmt.Println()
	header.Println("Stalls by cause")
	for _, cause := range sortedKeys(results.StallsByCause) {
		label.Printf("  %-12s %d\n", cause, results.StallsByCause[cause])
	}

	fmt.Println()
	header.Println("Functional unit utilization")
	for _, name := range sortedKeys(results.FUUtilization) {
		busy := results.FUUtilization[name]
		pct := 0.0
		if results.Cycles > 0 {
			pct = 100 * float64(busy) / float64(results.Cycles)
		}
		label.Printf("  %-6s %8d busy cycles (%5.1f%%)\n", name, busy, pct)
	}
}

func hitRate(hits, accesses uint64) string {
	if accesses == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(hits)/float64(accesses))
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
