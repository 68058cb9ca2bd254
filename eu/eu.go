package eu

import (
	"fmt"

	"github.com/arm-ooo/oocpu/isa"
	"github.com/arm-ooo/oocpu/prf"
)

// UndefinedOpcodeError is a program error raised when an instruction
// carries an opcode the execution units do not recognise.
type UndefinedOpcodeError struct {
	Op isa.Op
}

func (e *UndefinedOpcodeError) Error() string {
	return fmt.Sprintf("undefined opcode: %v", e.Op)
}

// Flag bits packed into the value written to the FLAGS physical register
// by cmp, and read back by the conditional branches.
const (
	FlagZ uint64 = 1 << 0 // zero
	FlagN uint64 = 1 << 1 // negative
)

// Operands is the pure input to Execute: everything an EU needs to
// compute a result, already resolved from the RS entry. Execute is a
// pure execute(operands) -> result function per opcode; there is no
// polymorphic class hierarchy.
type Operands struct {
	Src1   uint64
	Src2   uint64
	Src3   uint64 // store value register, for str only
	Imm    int64
	HasImm bool
}

// Result is the pure output of Execute.
type Result struct {
	Value        uint64
	IsMemOp      bool
	MemAddr      uint64
	MemIsStore   bool
	StoreVal     uint64
	BranchTaken  bool
	BranchTarget int
}

// Execute computes the result of an instruction given its operands. It
// performs no side effects on memory or the PRF; the caller (an EU slot,
// driven by the CPU's writeback phase) is responsible for committing the
// result. An undefined opcode is a program error: Execute
// returns it rather than panicking so the caller can attach it to the
// ROB entry and defer raising it until retire.
func Execute(op isa.Op, inst isa.Instruction, o Operands) (Result, error) {
	switch op {
	case isa.OpMov:
		if o.HasImm {
			return Result{Value: uint64(o.Imm)}, nil
		}
		return Result{Value: o.Src1}, nil

	case isa.OpAdd:
		if o.HasImm {
			return Result{Value: o.Src1 + uint64(o.Imm)}, nil
		}
		return Result{Value: o.Src1 + o.Src2}, nil

	case isa.OpSub:
		if o.HasImm {
			return Result{Value: o.Src1 - uint64(o.Imm)}, nil
		}
		return Result{Value: o.Src1 - o.Src2}, nil

	case isa.OpMul:
		if o.HasImm {
			return Result{Value: o.Src1 * uint64(o.Imm)}, nil
		}
		return Result{Value: o.Src1 * o.Src2}, nil

	case isa.OpCmp:
		var rhs uint64
		if o.HasImm {
			rhs = uint64(o.Imm)
		} else {
			rhs = o.Src2
		}
		diff := int64(o.Src1) - int64(rhs)
		var flags uint64
		if diff == 0 {
			flags |= FlagZ
		}
		if diff < 0 {
			flags |= FlagN
		}
		return Result{Value: flags}, nil

	case isa.OpLdr:
		addr := o.Src1
		if o.HasImm {
			addr += uint64(o.Imm)
		} else {
			addr += o.Src2
		}
		return Result{IsMemOp: true, MemAddr: addr}, nil

	case isa.OpStr:
		addr := o.Src1
		if o.HasImm {
			addr += uint64(o.Imm)
		} else {
			addr += o.Src2
		}
		return Result{IsMemOp: true, MemAddr: addr, MemIsStore: true, StoreVal: o.Src3}, nil

	case isa.OpB:
		return Result{BranchTaken: true, BranchTarget: inst.BranchTarget}, nil

	case isa.OpBl:
		// Writes lr = return address (next sequential instruction) as its
		// register result, and unconditionally redirects control flow.
		return Result{Value: uint64(inst.Index + 1), BranchTaken: true, BranchTarget: inst.BranchTarget}, nil

	case isa.OpBeq:
		taken := o.Src1&FlagZ != 0
		return branchResult(taken, inst.BranchTarget), nil

	case isa.OpBne:
		taken := o.Src1&FlagZ == 0
		return branchResult(taken, inst.BranchTarget), nil

	case isa.OpBlt:
		taken := o.Src1&FlagN != 0
		return branchResult(taken, inst.BranchTarget), nil

	case isa.OpBgt:
		taken := o.Src1&FlagN == 0 && o.Src1&FlagZ == 0
		return branchResult(taken, inst.BranchTarget), nil

	default:
		return Result{}, &UndefinedOpcodeError{Op: op}
	}
}

func branchResult(taken bool, target int) Result {
	return Result{BranchTaken: taken, BranchTarget: target}
}

// Slot is one Execution Unit: busy for the opcode's latency, then it
// writes back and broadcasts.
type Slot struct {
	Busy      bool
	Remaining uint64

	// StartedThisCycle is set by Start and cleared at the end of Tick, so
	// that the same EU tick which dispatches an instruction never also
	// counts down its first cycle: EU tick only advances EUs that began
	// before the current cycle.
	StartedThisCycle bool

	RobSeq   uint64
	Op       isa.Op
	Inst     isa.Instruction
	Operands Operands

	DestPhys  prf.ID
	HasDest   bool
	IsBranch  bool
	Predicted bool

	// Forwarded/ForwardedVal carry a load's store-to-load-forwarded value,
	// resolved at dispatch time against the store buffer, so writeback
	// never has to re-touch memory for a forwarded load.
	Forwarded    bool
	ForwardedVal uint64
}

// Pool is the fixed pool of Execution Units.
type Pool struct {
	slots []Slot
}

// NewPool creates a Pool with the given number of EU slots.
func NewPool(count int) *Pool {
	return &Pool{slots: make([]Slot, count)}
}

// Count returns the number of EU slots.
func (p *Pool) Count() int {
	return len(p.slots)
}

// FreeSlot finds a free EU, returning its index and true, or (-1, false).
func (p *Pool) FreeSlot() (int, bool) {
	for i := range p.slots {
		if !p.slots[i].Busy {
			return i, true
		}
	}
	return -1, false
}

// Start occupies slot idx with a dispatched instruction for the given
// number of cycles.
func (p *Pool) Start(idx int, s Slot, latency uint64) {
	s.Busy = true
	s.Remaining = latency
	s.StartedThisCycle = true
	p.slots[idx] = s
}

// Slots exposes the backing slice, e.g. for writeback scanning.
func (p *Pool) Slots() []Slot {
	return p.slots
}

// SlotAt returns a pointer to the slot at idx.
func (p *Pool) SlotAt(idx int) *Slot {
	return &p.slots[idx]
}

// Tick decrements remaining_cycles for every busy slot that was already
// executing before this cycle: an instruction dispatched this same
// cycle gets its first tick next cycle, not this one.
func (p *Pool) Tick() {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.Busy {
			continue
		}
		if s.StartedThisCycle {
			s.StartedThisCycle = false
			continue
		}
		if s.Remaining > 0 {
			s.Remaining--
		}
	}
}

// Release frees a slot, e.g. after writeback has broadcast its result.
func (p *Pool) Release(idx int) {
	p.slots[idx] = Slot{}
}

// FlushYoungerThan clears every busy slot whose ROB sequence number is
// greater than seq, for squash handling.
func (p *Pool) FlushYoungerThan(seq uint64) {
	for i := range p.slots {
		if p.slots[i].Busy && p.slots[i].RobSeq > seq {
			p.slots[i] = Slot{}
		}
	}
}
