// Package config provides the simulator configuration surface.
//
// Configuration is loaded from a JSON file; missing fields take the
// defaults returned by DefaultConfig. Validate rejects shapes the
// hardware model cannot represent before any simulation starts.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Predictor type names accepted in the branch_predictor.type field.
const (
	PredictorAlwaysTaken = "always_taken"
	PredictorBimodal     = "bimodal"
	PredictorGshare      = "gshare"
)

// UnitConfig sizes one functional unit class.
type UnitConfig struct {
	// Count is the number of units of this class.
	Count int `json:"count"`
	// Latency is the execution latency in cycles.
	Latency uint64 `json:"latency"`
}

// PipelineConfig holds the per-cycle widths and structure capacities.
type PipelineConfig struct {
	// FetchWidth is the maximum instructions fetched per cycle.
	FetchWidth int `json:"fetch_width"`
	// IssueWidth is the maximum instructions issued per cycle.
	IssueWidth int `json:"issue_width"`
	// CommitWidth is the maximum instructions committed per cycle.
	CommitWidth int `json:"commit_width"`
	// ROBCapacity is the reorder buffer size.
	ROBCapacity int `json:"rob_capacity"`
	// RSCapacityPerClass is the reservation station size per FU class.
	RSCapacityPerClass int `json:"rs_capacity_per_class"`
	// LSQCapacity is the load/store queue size.
	LSQCapacity int `json:"lsq_capacity"`
}

// PredictorConfig selects and sizes the branch predictor.
type PredictorConfig struct {
	// Type is one of always_taken, bimodal, gshare.
	Type string `json:"type"`
	// NumEntries is the pattern table size (power of two).
	NumEntries int `json:"num_entries"`
	// HistoryLength is the global history length in bits (gshare).
	HistoryLength int `json:"history_length"`
	// BTBEntries is the branch target buffer size (power of two).
	BTBEntries int `json:"btb_entries"`
}

// CacheConfig shapes one cache.
type CacheConfig struct {
	// Size in bytes.
	Size int `json:"size"`
	// BlockSize in bytes (cache line size).
	BlockSize int `json:"block_size"`
	// Associativity (number of ways, 1 = direct mapped).
	Associativity int `json:"associativity"`
	// MissPenalty is the miss latency in cycles.
	MissPenalty uint64 `json:"miss_penalty"`
}

// SimulationConfig bounds the run.
type SimulationConfig struct {
	// MaxCycles is the wall limit; 0 means no limit.
	MaxCycles uint64 `json:"max_cycles"`
}

// Config is the full simulator configuration.
type Config struct {
	Pipeline        PipelineConfig        `json:"pipeline"`
	ExecuteUnits    map[string]UnitConfig `json:"execute_units"`
	BranchPredictor PredictorConfig       `json:"branch_predictor"`
	ICache          CacheConfig           `json:"cache_i"`
	DCache          CacheConfig           `json:"cache_d"`
	// MemorySize is the flat memory size in bytes.
	MemorySize int              `json:"memory_size"`
	Simulation  SimulationConfig `json:"simulation"`
}

// DefaultConfig returns the default configuration: a 4-wide machine with
// two ALUs, one FPU, one LSU, a gshare predictor, and 32KB 4-way caches.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			FetchWidth:         4,
			IssueWidth:         4,
			CommitWidth:        4,
			ROBCapacity:        32,
			RSCapacityPerClass: 8,
			LSQCapacity:        16,
		},
		ExecuteUnits: map[string]UnitConfig{
			"ALU": {Count: 2, Latency: 1},
			"FPU": {Count: 1, Latency: 3},
			"LSU": {Count: 1, Latency: 2},
		},
		BranchPredictor: PredictorConfig{
			Type:          PredictorGshare,
			NumEntries:    1024,
			HistoryLength: 8,
			BTBEntries:    256,
		},
		ICache: CacheConfig{
			Size:          32 * 1024,
			BlockSize:     64,
			Associativity: 4,
			MissPenalty:   10,
		},
		DCache: CacheConfig{
			Size:          32 * 1024,
			BlockSize:     64,
			Associativity: 4,
			MissPenalty:   10,
		},
		MemorySize: 1 << 20,
		Simulation: SimulationConfig{MaxCycles: 1_000_000},
	}
}

// Load reads a Config from a JSON file. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save writes the Config to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for shapes the model cannot
// represent. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Pipeline.FetchWidth <= 0 {
		return fmt.Errorf("fetch_width must be > 0")
	}
	if c.Pipeline.IssueWidth <= 0 {
		return fmt.Errorf("issue_width must be > 0")
	}
	if c.Pipeline.CommitWidth <= 0 {
		return fmt.Errorf("commit_width must be > 0")
	}
	if c.Pipeline.ROBCapacity <= 0 {
		return fmt.Errorf("rob_capacity must be > 0")
	}
	if c.Pipeline.RSCapacityPerClass <= 0 {
		return fmt.Errorf("rs_capacity_per_class must be > 0")
	}
	if c.Pipeline.LSQCapacity <= 0 {
		return fmt.Errorf("lsq_capacity must be > 0")
	}

	for _, class := range []string{"ALU", "FPU", "LSU"} {
		unit, ok := c.ExecuteUnits[class]
		if !ok {
			return fmt.Errorf("execute_units missing class %s", class)
		}
		if unit.Count <= 0 {
			return fmt.Errorf("execute_units.%s.count must be > 0", class)
		}
		if unit.Latency == 0 {
			return fmt.Errorf("execute_units.%s.latency must be > 0", class)
		}
	}

	switch c.BranchPredictor.Type {
	case PredictorAlwaysTaken, PredictorBimodal, PredictorGshare:
	default:
		return fmt.Errorf("unknown branch predictor type %q",
			c.BranchPredictor.Type)
	}
	if !isPowerOfTwo(c.BranchPredictor.NumEntries) {
		return fmt.Errorf("branch_predictor.num_entries must be a power of two")
	}
	if !isPowerOfTwo(c.BranchPredictor.BTBEntries) {
		return fmt.Errorf("branch_predictor.btb_entries must be a power of two")
	}
	if c.BranchPredictor.HistoryLength < 1 || c.BranchPredictor.HistoryLength > 32 {
		return fmt.Errorf("branch_predictor.history_length must be in [1, 32]")
	}

	if err := validateCache("cache_i", c.ICache); err != nil {
		return err
	}
	if err := validateCache("cache_d", c.DCache); err != nil {
		return err
	}

	if c.MemorySize <= 0 {
		return fmt.Errorf("memory_size must be > 0")
	}

	return nil
}

func validateCache(name string, cc CacheConfig) error {
	if !isPowerOfTwo(cc.Size) {
		return fmt.Errorf("%s.size must be a power of two", name)
	}
	if !isPowerOfTwo(cc.BlockSize) {
		return fmt.Errorf("%s.block_size must be a power of two", name)
	}
	if !isPowerOfTwo(cc.Associativity) {
		return fmt.Errorf("%s.associativity must be a power of two", name)
	}
	if cc.BlockSize*cc.Associativity > cc.Size {
		return fmt.Errorf("%s: block_size*associativity exceeds size", name)
	}
	if cc.MissPenalty == 0 {
		return fmt.Errorf("%s.miss_penalty must be > 0", name)
	}
	return nil
}

func isPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}
