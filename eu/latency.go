// Package eu implements Execution Units: latency-parameterised functional
// units that compute results and broadcast them on writeback.
package eu

import "github.com/arm-ooo/oocpu/isa"

// LatencyTable holds the per-opcode latency values used to size an EU's
// busy duration: a flat lookup table rather than a per-opcode method,
// so tests can swap in arbitrary timings.
type LatencyTable struct {
	ALU      uint64 // integer data-processing ops: mov, add, sub, cmp
	Load     uint64 // ldr, pop
	Store    uint64 // str, push
	Branch   uint64 // b, beq, bne, blt, bgt, bl
	Multiply uint64 // mul
}

// DefaultLatencyTable returns the simulator's design-default latencies.
func DefaultLatencyTable() LatencyTable {
	return LatencyTable{
		ALU:      1,
		Load:     3,
		Store:    1,
		Branch:   1,
		Multiply: 3,
	}
}

// Lookup returns the latency in cycles for the given opcode.
func (t LatencyTable) Lookup(op isa.Op) uint64 {
	switch op {
	case isa.OpMov, isa.OpAdd, isa.OpSub, isa.OpCmp:
		return t.ALU
	case isa.OpLdr:
		return t.Load
	case isa.OpStr:
		return t.Store
	case isa.OpB, isa.OpBeq, isa.OpBne, isa.OpBlt, isa.OpBgt, isa.OpBl:
		return t.Branch
	case isa.OpMul:
		return t.Multiply
	default:
		return 1
	}
}
