// Package isa defines the decoded instruction representation for the
// ARM-subset ISA this simulator executes: data movement, integer
// arithmetic, compare, branches and the stack instructions.
//
// The encoding here is not a bit-packed machine-code format; instructions
// arrive already decoded from the external assembler (package asmload).
// The core never parses text or machine words, only this tagged variant.
package isa

// Reg identifies an architectural register: r0..r15, sp, lr, pc, fp.
type Reg uint8

// Architectural registers. There are no separate R13/R14/R15 constants:
// the assembler accepts r13/r14/r15 as aliases and maps them to SP/LR/PC.
const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP
	LR
	PC
	FP
	// FLAGS is not an addressable architectural register in the ARM
	// subset's assembly surface, but it is renamed exactly like one: cmp
	// writes it, the conditional branches read it. Modelling it as a
	// 18th architectural register lets the RAT/PRF renaming machinery
	// handle flag RAW hazards for free instead of needing a special case.
	FLAGS
	NumRegs
)

// RegNone marks an operand slot that is not used by an instruction.
const RegNone Reg = 0xFF

// Op is an opcode identifying an instruction's operation.
type Op uint8

// Opcodes. The minimum ARM-subset instruction set this core executes.
const (
	OpUnknown Op = iota
	OpMov
	OpLdr
	OpStr
	OpAdd
	OpSub
	OpMul
	OpCmp
	OpB
	OpBeq
	OpBne
	OpBlt
	OpBgt
	OpBl
	// OpPush and OpPop are recognised by the assembler (package asmload)
	// but never reach the core: a single push/pop macro-instruction
	// writes two architectural registers (the stack pointer and the
	// pushed/popped register), which does not fit this ISA's
	// single-destination-per-µop model. The assembler expands each into
	// two µops built from the opcodes above (e.g. "push r1" becomes
	// "sub sp, sp, #1" + "str r1, [sp]"), mirroring how real superscalar
	// cores crack stack macro-ops into simpler µops at decode. They are
	// kept here only as assembler-facing mnemonics.
	OpPush
	OpPop
)

// String renders the opcode mnemonic, primarily for trace formatting.
func (o Op) String() string {
	switch o {
	case OpMov:
		return "mov"
	case OpLdr:
		return "ldr"
	case OpStr:
		return "str"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpCmp:
		return "cmp"
	case OpB:
		return "b"
	case OpBeq:
		return "beq"
	case OpBne:
		return "bne"
	case OpBlt:
		return "blt"
	case OpBgt:
		return "bgt"
	case OpBl:
		return "bl"
	case OpPush:
		return "push"
	case OpPop:
		return "pop"
	default:
		return "unknown"
	}
}

// IsBranch reports whether op is one of the conditional/unconditional
// branch opcodes that the frontend predicts statically not-taken.
func (o Op) IsBranch() bool {
	switch o {
	case OpB, OpBeq, OpBne, OpBlt, OpBgt, OpBl:
		return true
	default:
		return false
	}
}

// WritesDest reports whether op writes an architectural destination
// register (and therefore needs a fresh physical register at issue).
// OpPush/OpPop never reach the core (see their doc comment) so they are
// not cased here.
func (o Op) WritesDest() bool {
	switch o {
	case OpMov, OpLdr, OpAdd, OpSub, OpMul:
		return true
	case OpBl:
		// bl writes lr with the return address.
		return true
	default:
		return false
	}
}

// WritesFlags reports whether op updates the comparison flags.
func (o Op) WritesFlags() bool {
	return o == OpCmp
}

// ReadsFlags reports whether op consumes the comparison flags as an
// implicit source operand.
func (o Op) ReadsFlags() bool {
	switch o {
	case OpBeq, OpBne, OpBlt, OpBgt:
		return true
	default:
		return false
	}
}

// IsStore reports whether op commits a value to memory through the store
// buffer rather than writing a physical register.
func (o Op) IsStore() bool {
	return o == OpStr
}

// IsLoad reports whether op reads memory into dest.
func (o Op) IsLoad() bool {
	return o == OpLdr
}

// Instruction is a decoded, label-resolved µop as produced by the
// assembler (package asmload) and consumed by the frontend. Source
// registers follow a uniform convention so the renaming machinery (3
// sources, 1 destination) never special-cases an opcode:
//
//   - mov/add/sub/mul/cmp: Src1, Src2 are the operands (Src2 unused when
//     HasImm is set — "add r2,r1,#3" reads only Src1).
//   - ldr: Src1 is the address base register; Src2 is the offset
//     register for "[reg, reg]" addressing (HasSrc2), or Imm is the
//     offset for "[reg, #imm]" addressing (HasImm). Dest receives the
//     loaded value.
//   - str: Src1 is the address base register, Src2 the optional offset
//     register (as for ldr), and Src3 is the value register being
//     stored.
//   - b/beq/bne/blt/bgt/bl: no explicit sources; the conditional forms
//     implicitly read FLAGS (isa.Op.ReadsFlags).
type Instruction struct {
	Op Op

	Dest Reg
	Src1 Reg
	Src2 Reg
	Src3 Reg

	HasDest bool
	HasSrc1 bool
	HasSrc2 bool
	HasSrc3 bool

	HasImm bool
	Imm    int64

	// BranchTarget is the absolute instruction index the branch targets,
	// pre-resolved by the loader from a label reference.
	BranchTarget int

	// Index is this instruction's position in the static program, used by
	// the frontend as the fetch address.
	Index int
}
