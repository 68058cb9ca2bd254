// Package config holds the simulator's configuration record: structural
// widths and capacities, memory sizing, the wall-clock pacing frequency,
// and the per-stage trace gates.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// TraceConfig gates which pipeline stages emit trace events
// (trace.{decode,issue,dispatch,execute,retire,cycle}).
type TraceConfig struct {
	Decode   bool `json:"decode"`
	Issue    bool `json:"issue"`
	Dispatch bool `json:"dispatch"`
	Execute  bool `json:"execute"`
	Retire   bool `json:"retire"`
	Cycle    bool `json:"cycle"`
}

// Config is the full simulator configuration.
type Config struct {
	// PhysRegCount is the PRF size.
	PhysRegCount int `json:"phys_reg_count"`

	// FrontendNWide, IssueNWide, DispatchNWide and RetireNWide are the
	// per-cycle widths of their respective pipeline stages.
	FrontendNWide int `json:"frontend_n_wide"`
	IssueNWide    int `json:"issue_n_wide"`
	DispatchNWide int `json:"dispatch_n_wide"`
	RetireNWide   int `json:"retire_n_wide"`

	InstrQueueCapacity int `json:"instr_queue_capacity"`
	RSCount            int `json:"rs_count"`
	ROBCapacity        int `json:"rob_capacity"`
	EUCount            int `json:"eu_count"`
	SBCapacity         int `json:"sb_capacity"`
	LFBCount           int `json:"lfb_count"`

	// MemorySize and StackCapacity are in machine words.
	MemorySize    uint64 `json:"memory_size"`
	StackCapacity uint64 `json:"stack_capacity"`

	// FrequencyHz affects only wall-clock pacing of trace emission, never
	// simulation semantics.
	FrequencyHz uint64 `json:"frequency_hz"`

	Trace TraceConfig `json:"trace"`

	// MaxInstructions caps the instruction count the simulator will run
	// to before giving up, rather than running unconditionally to
	// completion.
	MaxInstructions uint64 `json:"max_instructions"`
}

// Default returns a Config with sensible design defaults: enough
// parallelism and buffering to exercise out-of-order execution without
// requiring a config file for simple runs and tests.
func Default() *Config {
	return &Config{
		PhysRegCount:       64,
		FrontendNWide:      2,
		IssueNWide:         2,
		DispatchNWide:      2,
		RetireNWide:        2,
		InstrQueueCapacity: 16,
		RSCount:            16,
		ROBCapacity:        32,
		EUCount:            4,
		SBCapacity:         8,
		LFBCount:           1,
		MemorySize:         1 << 16,
		StackCapacity:      1 << 12,
		FrequencyHz:        10,
		Trace:              TraceConfig{},
		MaxInstructions:    1_000_000,
	}
}

// Load reads a Config from a JSON file, starting from Default() so that
// omitted fields keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that every structural field is usable, catching
// configuration mistakes before the CPU is constructed.
func (c *Config) Validate() error {
	if c.PhysRegCount <= 0 {
		return fmt.Errorf("phys_reg_count must be > 0")
	}
	if c.PhysRegCount < int(minArchRegs) {
		return fmt.Errorf("phys_reg_count must be >= %d (one per architectural register)", minArchRegs)
	}
	if c.FrontendNWide <= 0 || c.IssueNWide <= 0 || c.DispatchNWide <= 0 || c.RetireNWide <= 0 {
		return fmt.Errorf("all per-cycle widths must be > 0")
	}
	if c.InstrQueueCapacity <= 0 {
		return fmt.Errorf("instr_queue_capacity must be > 0")
	}
	if c.RSCount <= 0 {
		return fmt.Errorf("rs_count must be > 0")
	}
	if c.ROBCapacity <= 0 {
		return fmt.Errorf("rob_capacity must be > 0")
	}
	if c.EUCount <= 0 {
		return fmt.Errorf("eu_count must be > 0")
	}
	if c.SBCapacity <= 0 {
		return fmt.Errorf("sb_capacity must be > 0")
	}
	if c.LFBCount <= 0 {
		return fmt.Errorf("lfb_count must be > 0")
	}
	if c.MemorySize == 0 {
		return fmt.Errorf("memory_size must be > 0")
	}
	return nil
}

// minArchRegs mirrors isa.NumRegs without importing the isa package,
// keeping config dependency-free of the instruction set definitions.
const minArchRegs = 18

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
