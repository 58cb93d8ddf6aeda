// Package main provides the mipssim command line interface.
// mipssim is a cycle-accurate superscalar out-of-order MIPS-style CPU
// simulator.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/mipssim/config"
	"github.com/sarchlab/mipssim/loader"
	"github.com/sarchlab/mipssim/timing/core"
)

var (
	configPath = flag.String("config", "", "Path to configuration JSON file")
	predType   = flag.String("predictor", "", "Branch predictor override (always_taken, bimodal, gshare)")
	maxCycles  = flag.Uint64("max-cycles", 0, "Cycle limit override (0 keeps the configured limit)")
	jsonOut    = flag.Bool("json", false, "Emit the results record as JSON")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: mipssim [options] <program.s>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		atexit.Exit(1)
	}

	programPath := flag.Arg(0)

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fail("Error loading config: %v", err)
		}
	}
	if *predType != "" {
		cfg.BranchPredictor.Type = *predType
	}
	if *maxCycles > 0 {
		cfg.Simulation.MaxCycles = *maxCycles
	}

	prog, err := loader.LoadFile(programPath)
	if err != nil {
		fail("Error loading program: %v", err)
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Entry point: 0x%X\n", prog.Entry)
		fmt.Printf("Instructions: %d\n", len(prog.Instructions))
		fmt.Printf("Data segment: %d bytes at 0x%X\n", len(prog.Data), prog.DataBase)
		fmt.Printf("Predictor: %s\n", cfg.BranchPredictor.Type)
	}

	engine, err := core.NewEngine(cfg, prog)
	if err != nil {
		fail("Error building engine: %v", err)
	}

	results, runErr := engine.Run()

	if *jsonOut {
		printJSON(results)
	} else {
		printReport(programPath, results, engine)
	}

	if runErr != nil {
		if errors.Is(runErr, core.ErrFault) {
			fail("Runtime fault: %v", runErr)
		}
		fail("Simulation error: %v", runErr)
	}

	atexit.Exit(0)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	atexit.Exit(1)
}
