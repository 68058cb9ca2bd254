// Package main provides the entry point for oocpu, a cycle-driven
// out-of-order ARM-subset CPU simulator.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/arm-ooo/oocpu/asmload"
	"github.com/arm-ooo/oocpu/config"
	"github.com/arm-ooo/oocpu/cpu"
	"github.com/arm-ooo/oocpu/isa"
	"github.com/arm-ooo/oocpu/trace"
)

var (
	configPath = flag.String("config", "", "path to a JSON configuration file (defaults to built-in defaults)")
	verbose    = flag.Bool("v", false, "print per-cycle retirement progress and final register state")
	traceAll   = flag.Bool("trace", false, "enable every trace stage, overriding config.trace")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: oocpu [options] <program.s>\n\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	programPath := flag.Arg(0)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Trace.Retire = true
	}

	src, err := os.ReadFile(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading program: %v\n", err)
		os.Exit(1)
	}

	prog, err := asmload.Parse(string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error assembling program: %v\n", err)
		os.Exit(1)
	}

	recorder := trace.NewRecorder()
	machine, err := cpu.New(cfg, prog, cpu.WithTracer(recorder))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring CPU: %v\n", err)
		os.Exit(1)
	}

	runErr := machine.Run()

	if *verbose || *traceAll {
		printTrace(recorder)
	}
	printSummary(machine, programPath)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
	if machine.Halted() {
		fmt.Fprintf(os.Stderr, "Error: %v\n", machine.Err())
		os.Exit(1)
	}
	os.Exit(0)
}

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		cfg := config.Default()
		if *traceAll {
			cfg.Trace = config.TraceConfig{Decode: true, Issue: true, Dispatch: true, Execute: true, Retire: true, Cycle: true}
		}
		return cfg, nil
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if *traceAll {
		cfg.Trace = config.TraceConfig{Decode: true, Issue: true, Dispatch: true, Execute: true, Retire: true, Cycle: true}
	}
	return cfg, cfg.Validate()
}

func printTrace(r *trace.Recorder) {
	for _, ev := range r.Events {
		fmt.Printf("cycle=%-6d stage=%-8s rob_seq=%-4d op=%-5s %s\n",
			ev.Cycle, ev.Stage, ev.RobSeq, ev.Op, ev.Operand)
	}
}

func printSummary(m *cpu.CPU, programPath string) {
	fmt.Printf("\nProgram: %s\n", programPath)
	fmt.Printf("Cycles: %d\n", m.Cycle())
	fmt.Printf("Retired: %d\n", m.Retired())
	fmt.Println("Registers:")
	names := []struct {
		name string
		reg  isa.Reg
	}{
		{"r0", isa.R0}, {"r1", isa.R1}, {"r2", isa.R2}, {"r3", isa.R3},
		{"r4", isa.R4}, {"r5", isa.R5}, {"r6", isa.R6}, {"r7", isa.R7},
		{"r8", isa.R8}, {"r9", isa.R9}, {"r10", isa.R10}, {"r11", isa.R11},
		{"r12", isa.R12}, {"sp", isa.SP}, {"lr", isa.LR}, {"fp", isa.FP},
	}
	for _, n := range names {
		fmt.Printf("  %-4s = %d\n", n.name, m.Register(n.reg))
	}
}
