// Package frontend implements Fetch/Decode: it walks the static decoded
// program and places up to frontend_n_wide µops per cycle into the
// Instruction Queue, using static not-taken branch prediction.
package frontend

import (
	"github.com/arm-ooo/oocpu/iq"
	"github.com/arm-ooo/oocpu/isa"
)

// Program is the already-decoded, label-resolved instruction stream the
// core consumes. Producing this from assembly text is the external
// assembler's job (package asmload), not the frontend's.
type Program struct {
	Instructions []isa.Instruction

	// DataImage is the .data section's initial words, loaded into memory
	// starting at word address 0 before the first cycle.
	DataImage []uint64
}

// Frontend owns the architectural program counter and feeds the
// Instruction Queue.
type Frontend struct {
	program *Program
	pc      int
	width   int
}

// New creates a Frontend over prog with the given per-cycle fetch width.
func New(prog *Program, width int) *Frontend {
	return &Frontend{program: prog, width: width}
}

// PC returns the current fetch program counter (an instruction index).
func (f *Frontend) PC() int {
	return f.pc
}

// SetPC redirects the fetch PC, used by retire on a branch squash.
func (f *Frontend) SetPC(pc int) {
	f.pc = pc
}

// Done reports whether the frontend has no more instructions to fetch.
func (f *Frontend) Done() bool {
	return f.pc >= len(f.program.Instructions)
}

// Fetch places up to frontend_n_wide decoded µops into q, stopping early
// if q lacks free slots or the program ends. Every
// fetched instruction is stamped with its Index; branches are treated as
// statically not-taken, so PC always advances to the sequential
// fallthrough (issue records PredictedTaken=false on the ROB entry).
func (f *Frontend) Fetch(q *iq.Queue) []isa.Instruction {
	free := q.FreeSlots()
	n := f.width
	if free < n {
		n = free
	}
	var fetched []isa.Instruction
	for i := 0; i < n; i++ {
		if f.Done() {
			return fetched
		}
		inst := f.program.Instructions[f.pc]
		inst.Index = f.pc
		q.Push(inst)
		fetched = append(fetched, inst)
		f.pc++
	}
	return fetched
}
