package benchmarks

import (
	"fmt"
	"io"
	"sort"

	"github.com/sarchlab/mipssim/config"
	"github.com/sarchlab/mipssim/loader"
	"github.com/sarchlab/mipssim/timing/core"
)

// RunResult pairs a benchmark with its simulation outcome.
type RunResult struct {
	Name    string
	Results *core.Results
	Engine  *core.Engine
	Program *loader.Program
}

// Run assembles and simulates one program under the given configuration.
func Run(name, source string, cfg *config.Config) (*RunResult, error) {
	prog, err := loader.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	engine, err := core.NewEngine(cfg, prog)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	results, err := engine.Run()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return &RunResult{
		Name:    name,
		Results: results,
		Engine:  engine,
		Program: prog,
	}, nil
}

// RunAll simulates every microbenchmark with the given configuration.
func RunAll(cfg *config.Config) ([]*RunResult, error) {
	var out []*RunResult
	for _, b := range All {
		r, err := Run(b.Name, b.Source, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// PrintResults writes a comparison table of benchmark results.
func PrintResults(w io.Writer, results []*RunResult) {
	fmt.Fprintf(w, "%-22s %10s %10s %6s %9s %9s\n",
		"benchmark", "cycles", "committed", "ipc", "br.acc", "dc.hits")
	for _, r := range results {
		fmt.Fprintf(w, "%-22s %10d %10d %6.2f %9.3f %9d\n",
			r.Name,
			r.Results.Cycles,
			r.Results.InstructionsCommitted,
			r.Results.IPC,
			r.Results.BranchAccuracy,
			r.Results.DCacheHits)
	}
}

// PrintCSV writes results as CSV for offline comparison.
func PrintCSV(w io.Writer, results []*RunResult) {
	fmt.Fprintln(w, "benchmark,cycles,committed,ipc,branch_accuracy,"+
		"icache_hits,dcache_hits,stall_causes")
	for _, r := range results {
		causes := make([]string, 0, len(r.Results.StallsByCause))
		for cause, n := range r.Results.StallsByCause {
			if n > 0 {
				causes = append(causes, fmt.Sprintf("%s=%d", cause, n))
			}
		}
		sort.Strings(causes)
		fmt.Fprintf(w, "%s,%d,%d,%.4f,%.4f,%d,%d,%v\n",
			r.Name,
			r.Results.Cycles,
			r.Results.InstructionsCommitted,
			r.Results.IPC,
			r.Results.BranchAccuracy,
			r.Results.ICacheHits,
			r.Results.DCacheHits,
			causes)
	}
}
