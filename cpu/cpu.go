// Package cpu wires Memory, PRF, RAT, ROB, RS, EUs, SB, IQ and the
// frontend together and drives them through the fixed seven-phase cycle
// order: retire, writeback, dispatch, issue, fetch, SB
// drain, EU tick.
package cpu

import (
	"fmt"
	"sort"

	"github.com/arm-ooo/oocpu/config"
	"github.com/arm-ooo/oocpu/eu"
	"github.com/arm-ooo/oocpu/frontend"
	"github.com/arm-ooo/oocpu/iq"
	"github.com/arm-ooo/oocpu/isa"
	"github.com/arm-ooo/oocpu/mem"
	"github.com/arm-ooo/oocpu/prf"
	"github.com/arm-ooo/oocpu/rat"
	"github.com/arm-ooo/oocpu/rob"
	"github.com/arm-ooo/oocpu/rs"
	"github.com/arm-ooo/oocpu/sbuf"
	"github.com/arm-ooo/oocpu/trace"
)

// Option configures a CPU at construction time.
type Option func(*CPU)

// WithTracer installs an Emitter that receives every trace event the
// core's config-gated stages produce. The default is trace.Discard{}.
func WithTracer(t trace.Emitter) Option {
	return func(c *CPU) { c.tracer = t }
}

// WithLatencyTable overrides the default per-opcode EU latencies.
func WithLatencyTable(t eu.LatencyTable) Option {
	return func(c *CPU) { c.lat = t }
}

// CPU owns every microarchitectural structure and every pipeline stage
// that mutates them (no process-wide singletons, no
// wall-clock parallelism — the CPU record is the single owner).
type CPU struct {
	cfg   *config.Config
	mem   *mem.Memory
	stack mem.Stack

	prf *prf.File
	rat *rat.Table
	rob *rob.Buffer
	rs  *rs.Station
	eus *eu.Pool
	sb  *sbuf.Buffer
	iq  *iq.Queue
	fe  *frontend.Frontend

	lat    eu.LatencyTable
	tracer trace.Emitter

	cycle   uint64
	retired uint64
	halted  bool
	err     error
}

// New constructs a CPU around a decoded program, ready to run from cycle
// zero. It validates cfg first so a misconfiguration fails before any
// structure is built.
func New(cfg *config.Config, prog *frontend.Program, opts ...Option) (*CPU, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m := mem.New(cfg.MemorySize)
	if len(prog.DataImage) > 0 {
		if err := m.LoadImage(prog.DataImage); err != nil {
			return nil, fmt.Errorf("loading data image: %w", err)
		}
	}
	stack := mem.NewStack(cfg.MemorySize, cfg.StackCapacity)

	pf := prf.New(cfg.PhysRegCount)
	rt := rat.New(pf)
	pf.Seed(rt.Lookup(isa.SP), stack.Top)

	c := &CPU{
		cfg:    cfg,
		mem:    m,
		stack:  stack,
		prf:    pf,
		rat:    rt,
		rob:    rob.New(cfg.ROBCapacity),
		rs:     rs.New(cfg.RSCount),
		eus:    eu.NewPool(cfg.EUCount),
		sb:     sbuf.New(cfg.SBCapacity),
		iq:     iq.New(cfg.InstrQueueCapacity),
		fe:     frontend.New(prog, cfg.FrontendNWide),
		lat:    eu.DefaultLatencyTable(),
		tracer: trace.Discard{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Cycle returns the number of cycles executed so far.
func (c *CPU) Cycle() uint64 { return c.cycle }

// Retired returns the number of instructions retired so far.
func (c *CPU) Retired() uint64 { return c.retired }

// Halted reports whether a program error stopped the simulation.
func (c *CPU) Halted() bool { return c.halted }

// Err returns the program error that halted the simulation, if any.
func (c *CPU) Err() error { return c.err }

// Memory exposes the backing memory, e.g. for a CLI to dump final state.
func (c *CPU) Memory() *mem.Memory { return c.mem }

// FreePhysRegs returns the number of currently-unreferenced physical
// registers, exposed so property tests can check PR conservation:
// FreePhysRegs() plus one PR per architectural register must always
// equal PhysRegCount once the ROB is empty, since no in-flight entry
// holds an extra reference at that point.
func (c *CPU) FreePhysRegs() int { return c.prf.FreeCount() }

// Register returns the architectural value of r by following the RAT to
// its current physical register.
func (c *CPU) Register(r isa.Reg) uint64 {
	return c.prf.Value(c.rat.Lookup(r))
}

// Finished reports whether the simulation has run to completion: no
// in-flight ROB entries, an empty instruction queue, nothing left to
// fetch, and a fully drained store buffer.
func (c *CPU) Finished() bool {
	return !c.halted && c.rob.Empty() && c.iq.Len() == 0 && c.fe.Done() && c.sb.Len() == 0
}

// Run ticks the CPU until it finishes, halts on a program error, or
// exceeds max_instructions.
func (c *CPU) Run() error {
	for !c.Finished() && !c.halted {
		if c.cfg.MaxInstructions > 0 && c.retired >= c.cfg.MaxInstructions {
			return fmt.Errorf("exceeded max_instructions (%d) at cycle %d", c.cfg.MaxInstructions, c.cycle)
		}
		c.Tick()
	}
	return c.err
}

// Tick advances the CPU by exactly one cycle, running every phase in the
// fixed order the model requires: retire, writeback, dispatch, issue,
// fetch/decode, SB drain, EU tick.
func (c *CPU) Tick() {
	if c.halted {
		return
	}
	c.cycle++
	if c.cfg.Trace.Cycle {
		c.emit(trace.StageCycle, 0, isa.OpUnknown, "")
	}

	c.retire()
	if c.halted {
		return
	}
	c.writeback()
	c.dispatch()
	c.issue()
	c.fetch()
	c.sbDrain()
	c.eus.Tick()
}

// retire commits up to retire_n_wide ROB entries from the head, stopping
// at the first entry not yet Executed, at a raised exception, or after a
// branch squash.
func (c *CPU) retire() {
	for i := 0; i < c.cfg.RetireNWide; i++ {
		e := c.rob.Head()
		if e == nil || e.State != rob.Executed {
			return
		}

		if e.Exception != nil {
			c.err = e.Exception.Err
			c.halted = true
			return
		}

		c.emit(trace.StageRetire, e.Seq, e.Op, "")

		if e.HasDest {
			c.prf.Release(e.PrevPhys)
		}
		if e.IsStore {
			c.sb.Commit(e.Seq)
		}

		mispredict := e.IsBranch && e.ActualTaken != e.PredictedTaken
		seq, target := e.Seq, e.Target

		c.rob.RetireHead()
		c.retired++

		if mispredict {
			c.squash(seq, target)
			return
		}
	}
}

// squash discards every ROB/RS/EU/SB entry younger than the mispredicted
// branch, restores the RAT, and redirects the frontend. The branch itself has already retired normally by the time
// squash runs.
func (c *CPU) squash(branchSeq uint64, target int) {
	discarded := c.rob.TruncateAfter(branchSeq)
	for _, de := range discarded {
		if de.HasDest {
			c.rat.Restore(de.DestArch, de.PrevPhys)
			c.prf.Release(de.DestPhys)
		}
	}
	c.iq.Flush()
	c.rs.FlushYoungerThan(branchSeq)
	c.eus.FlushYoungerThan(branchSeq)
	c.sb.DiscardUncommittedAfter(branchSeq)
	c.fe.SetPC(target)
}

// writeback processes every EU slot whose latency has elapsed: it
// computes the result, commits it to the PRF and broadcasts it on the
// common data bus, records store/branch outcomes on the ROB entry, and
// releases the EU. Running before dispatch in the same
// cycle means an EU freed here can be reused by dispatch this same
// cycle.
func (c *CPU) writeback() {
	for i := range c.eus.Slots() {
		slot := c.eus.SlotAt(i)
		if !slot.Busy || slot.Remaining > 0 {
			continue
		}

		entry := c.rob.Get(slot.RobSeq)
		result, err := eu.Execute(slot.Op, slot.Inst, slot.Operands)

		switch {
		case err != nil:
			entry.Exception = &rob.Exception{Err: err}

		case slot.Op.IsLoad():
			c.writebackLoad(entry, slot, result)

		case slot.Op.IsStore():
			c.writebackStore(entry, result)

		case entry.IsBranch:
			entry.ActualTaken = result.BranchTaken
			entry.Target = result.BranchTarget
			if entry.HasDest { // bl also writes lr
				c.commitResult(entry, result.Value)
			}

		default:
			c.writebackArith(entry, result)
		}

		entry.State = rob.Executed
		c.emit(trace.StageExecute, slot.RobSeq, slot.Op, "")
		c.eus.Release(i)
	}
}

func (c *CPU) writebackLoad(entry *rob.Entry, slot *eu.Slot, result eu.Result) {
	var value uint64
	switch {
	case slot.Forwarded:
		value = slot.ForwardedVal
	case result.MemAddr >= c.mem.Size():
		entry.Exception = &rob.Exception{Err: &mem.OutOfRangeError{Addr: result.MemAddr, Size: 1}}
		return
	default:
		v, err := c.mem.Read(result.MemAddr)
		if err != nil {
			entry.Exception = &rob.Exception{Err: err}
			return
		}
		value = v
	}
	c.commitResult(entry, value)
}

func (c *CPU) writebackStore(entry *rob.Entry, result eu.Result) {
	entry.HasAddr = true
	entry.StoreAddr = result.MemAddr
	entry.StoreVal = result.StoreVal
	if result.MemAddr >= c.mem.Size() {
		entry.Exception = &rob.Exception{Err: &mem.OutOfRangeError{Addr: result.MemAddr, Size: 1}}
		return
	}
	c.sb.Insert(sbuf.Entry{RobSeq: entry.Seq, Addr: result.MemAddr, Value: result.StoreVal})
}

func (c *CPU) writebackArith(entry *rob.Entry, result eu.Result) {
	if !entry.HasDest {
		return
	}
	if entry.DestArch == isa.SP && c.stack.Overflowed(result.Value) {
		entry.Exception = &rob.Exception{Err: &mem.StackOverflowError{SP: result.Value}}
		return
	}
	c.commitResult(entry, result.Value)
}

// commitResult writes a computed value into the destination physical
// register and broadcasts it on the common data bus this same cycle.
func (c *CPU) commitResult(entry *rob.Entry, value uint64) {
	c.prf.Write(entry.DestPhys, value)
	c.rs.Broadcast(entry.DestPhys, value)
}

// dispatch selects up to dispatch_n_wide ready RS entries, oldest
// rob_seq first, and starts them on free EUs. A load
// checks SB forwarding against its already-resolved address and stalls
// behind any older store whose address is not yet known.
func (c *CPU) dispatch() {
	type candidate struct {
		idx int
		seq uint64
	}
	var ready []candidate
	for i, e := range c.rs.Entries() {
		if e.Busy && !e.Dispatched && e.Ready() {
			ready = append(ready, candidate{i, e.RobSeq})
		}
	}
	sort.Slice(ready, func(a, b int) bool { return ready[a].seq < ready[b].seq })

	dispatched := 0
	for _, cand := range ready {
		if dispatched >= c.cfg.DispatchNWide {
			return
		}
		entry := c.rs.EntryAt(cand.idx)

		if entry.Op.IsLoad() && c.hasOlderUnresolvedStore(entry.RobSeq) {
			continue
		}

		euIdx, ok := c.eus.FreeSlot()
		if !ok {
			return
		}

		robEntry := c.rob.Get(entry.RobSeq)
		robEntry.State = rob.Executing
		slot := eu.Slot{
			RobSeq:   entry.RobSeq,
			Op:       entry.Op,
			Inst:     entry.Inst,
			IsBranch: entry.Op.IsBranch(),
			HasDest:  robEntry.HasDest,
			DestPhys: robEntry.DestPhys,
			Operands: eu.Operands{
				Src1:   entry.Src1Val,
				Src2:   entry.Src2Val,
				Src3:   entry.Src3Val,
				Imm:    entry.Imm,
				HasImm: entry.HasImm,
			},
		}

		if entry.Op.IsLoad() {
			addr := entry.Src1Val
			if entry.HasImm {
				addr += uint64(entry.Imm)
			} else {
				addr += entry.Src2Val
			}
			if val, found := c.sb.Forward(entry.RobSeq, addr); found {
				slot.Forwarded = true
				slot.ForwardedVal = val
			}
		}

		c.eus.Start(euIdx, slot, c.lat.Lookup(entry.Op))
		c.rs.Release(cand.idx)
		dispatched++
		c.emit(trace.StageDispatch, entry.RobSeq, entry.Op, "")
	}
}

// hasOlderUnresolvedStore reports whether an older, not-yet-written-back
// store is still sitting in the RS or an EU — its address is not yet
// known to the store buffer, so a younger load must not dispatch ahead
// of it.
func (c *CPU) hasOlderUnresolvedStore(loadSeq uint64) bool {
	for _, e := range c.rs.Entries() {
		if e.Busy && e.Op.IsStore() && e.RobSeq < loadSeq {
			return true
		}
	}
	for _, s := range c.eus.Slots() {
		if s.Busy && s.Op.IsStore() && s.RobSeq < loadSeq {
			return true
		}
	}
	return false
}

// issue renames and allocates ROB/RS resources for up to issue_n_wide
// µops at the IQ head. It is strictly order-preserving:
// the first µop that cannot issue stops the stage for this cycle.
func (c *CPU) issue() {
	for i := 0; i < c.cfg.IssueNWide; i++ {
		inst, ok := c.iq.Peek()
		if !ok {
			return
		}
		if c.rob.Full() {
			return
		}
		rsIdx, ok := c.rs.FreeSlot()
		if !ok {
			return
		}
		needsPR := inst.Op.WritesDest() || inst.Op.WritesFlags()
		if needsPR && c.prf.FreeCount() == 0 {
			return
		}
		if inst.Op.IsStore() && c.sb.Full() {
			return
		}

		c.iq.Pop()
		entry, seq := c.rob.Allocate()
		entry.Op = inst.Op
		entry.Inst = inst
		entry.IsStore = inst.Op.IsStore()
		entry.IsBranch = inst.Op.IsBranch()
		entry.PredictedTaken = false
		entry.State = rob.Issued

		var destArch isa.Reg
		hasDest := false
		switch {
		case inst.Op.WritesDest():
			hasDest = true
			destArch = inst.Dest
		case inst.Op.WritesFlags():
			hasDest = true
			destArch = isa.FLAGS
		}

		destPhys, prevPhys := prf.None, prf.None
		if hasDest {
			destPhys = c.prf.Alloc()
			prevPhys = c.rat.Lookup(destArch)
			c.rat.Rename(destArch, destPhys)
		}
		entry.HasDest = hasDest
		entry.DestArch = destArch
		entry.DestPhys = destPhys
		entry.PrevPhys = prevPhys

		rse := rs.Entry{RobSeq: seq, Op: inst.Op, Inst: inst, Imm: inst.Imm, HasImm: inst.HasImm}
		c.resolveSource(&rse, inst)
		c.rs.Allocate(rsIdx, rse)

		c.emit(trace.StageIssue, seq, inst.Op, "")
	}
}

// resolveSource fills an RS entry's source slots from the current RAT
// mapping, capturing a value immediately when the backing PR is already
// ready. Conditional branches have no explicit source in
// the decoded instruction but implicitly read FLAGS, so Src1 is
// special-cased to that register for them.
func (c *CPU) resolveSource(rse *rs.Entry, inst isa.Instruction) {
	switch {
	case inst.Op.ReadsFlags():
		c.fillSource(&rse.Src1Phys, &rse.Src1Ready, &rse.Src1Val, &rse.HasSrc1, isa.FLAGS)
	case inst.HasSrc1:
		c.fillSource(&rse.Src1Phys, &rse.Src1Ready, &rse.Src1Val, &rse.HasSrc1, inst.Src1)
	}
	if inst.HasSrc2 {
		c.fillSource(&rse.Src2Phys, &rse.Src2Ready, &rse.Src2Val, &rse.HasSrc2, inst.Src2)
	}
	if inst.HasSrc3 {
		c.fillSource(&rse.Src3Phys, &rse.Src3Ready, &rse.Src3Val, &rse.HasSrc3, inst.Src3)
	}
}

func (c *CPU) fillSource(phys *prf.ID, ready *bool, val *uint64, has *bool, reg isa.Reg) {
	*has = true
	*phys = c.rat.Lookup(reg)
	if c.prf.Ready(*phys) {
		*val = c.prf.Value(*phys)
		*ready = true
	}
}

// fetch places up to frontend_n_wide decoded µops into the IQ, run
// last among the structures that advance state so a squash earlier in
// the cycle redirects it correctly.
func (c *CPU) fetch() {
	fetched := c.fe.Fetch(c.iq)
	for _, inst := range fetched {
		c.emit(trace.StageDecode, 0, inst.Op, "")
	}
}

// sbDrain writes up to lfb_count committed store buffer entries into
// memory in order. Addresses were already bounds-checked
// before the entry was admitted to the SB, so a drain error here would
// indicate an invariant violation rather than a program error.
func (c *CPU) sbDrain() {
	drained := c.sb.Drain(c.cfg.LFBCount)
	for _, e := range drained {
		if err := c.mem.Write(e.Addr, e.Value); err != nil {
			panic(fmt.Sprintf("cpu: store buffer drain wrote an address that writeback already validated: %v", err))
		}
	}
}

func (c *CPU) emit(stage trace.Stage, seq uint64, op isa.Op, operand string) {
	if !c.traceEnabled(stage) {
		return
	}
	c.tracer.Emit(trace.Event{Cycle: c.cycle, Stage: stage, RobSeq: seq, Op: op, Operand: operand})
}

func (c *CPU) traceEnabled(stage trace.Stage) bool {
	switch stage {
	case trace.StageDecode:
		return c.cfg.Trace.Decode
	case trace.StageIssue:
		return c.cfg.Trace.Issue
	case trace.StageDispatch:
		return c.cfg.Trace.Dispatch
	case trace.StageExecute:
		return c.cfg.Trace.Execute
	case trace.StageRetire:
		return c.cfg.Trace.Retire
	case trace.StageCycle:
		return c.cfg.Trace.Cycle
	default:
		return false
	}
}
