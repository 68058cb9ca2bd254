// Package rob implements the Reorder Buffer: in-order bookkeeping,
// retirement and squash on branch misprediction.
package rob

import (
	"github.com/arm-ooo/oocpu/isa"
	"github.com/arm-ooo/oocpu/prf"
)

// State is a ROB entry's lifecycle stage.
type State uint8

const (
	// Issued means the entry has been allocated but its instruction has
	// not yet finished execution.
	Issued State = iota
	// Executing means an EU holds the instruction but has not written
	// back yet. Present for clarity; the ROB does not currently branch on
	// it separately from Issued, since writeback flips straight to
	// Executed.
	Executing
	// Executed means the instruction's result (or store address/value, or
	// branch outcome) is final and the entry is eligible to retire.
	Executed
)

// Exception records a program error attached to a ROB entry at execute
// time and only raised when the entry retires (precise
// exceptions — speculative faults on squashed paths never surface).
type Exception struct {
	Err error
}

// Entry is one Reorder Buffer slot.
type Entry struct {
	Seq  uint64
	Op   isa.Op
	Inst isa.Instruction

	DestArch isa.Reg
	HasDest  bool
	DestPhys prf.ID
	PrevPhys prf.ID

	State State

	Exception *Exception

	IsStore   bool
	StoreAddr uint64
	StoreVal  uint64
	HasAddr   bool

	IsBranch       bool
	PredictedTaken bool
	ActualTaken    bool
	Target         int

	valid bool
}

// Buffer is the Reorder Buffer: a fixed-capacity ring of Entry, indexed by
// sequence number modulo capacity. Sequence numbers are strictly
// increasing and contiguous; retirement only ever removes from the head.
type Buffer struct {
	entries []Entry
	head    int    // ring index of the oldest live entry
	count   int    // number of live entries
	nextSeq uint64 // next sequence number to assign
}

// New creates a Buffer with the given capacity.
func New(capacity int) *Buffer {
	return &Buffer{entries: make([]Entry, capacity)}
}

// Capacity returns the ROB's total number of slots.
func (b *Buffer) Capacity() int {
	return len(b.entries)
}

// Count returns the number of live (issued, not yet retired) entries.
func (b *Buffer) Count() int {
	return b.count
}

// Full reports whether the ROB has no free slot for a new issue.
func (b *Buffer) Full() bool {
	return b.count == len(b.entries)
}

// Empty reports whether the ROB holds no live entries.
func (b *Buffer) Empty() bool {
	return b.count == 0
}

// Allocate reserves the next ROB slot for a newly issued instruction and
// returns a pointer to it for the issue stage to populate, along with the
// sequence number assigned. Callers must check Full() first.
func (b *Buffer) Allocate() (*Entry, uint64) {
	idx := (b.head + b.count) % len(b.entries)
	seq := b.nextSeq
	b.nextSeq++
	b.count++
	b.entries[idx] = Entry{Seq: seq, valid: true}
	return &b.entries[idx], seq
}

// slotOf returns the ring index for a given sequence number. The caller
// must know the entry is live.
func (b *Buffer) slotOf(seq uint64) int {
	offset := int(seq - b.entries[b.head].Seq)
	return (b.head + offset) % len(b.entries)
}

// Get returns the entry with the given sequence number, which must
// currently be live.
func (b *Buffer) Get(seq uint64) *Entry {
	return &b.entries[b.slotOf(seq)]
}

// Head returns the oldest live entry, or nil if the ROB is empty.
func (b *Buffer) Head() *Entry {
	if b.count == 0 {
		return nil
	}
	return &b.entries[b.head]
}

// At returns the i-th live entry counting from the head (0 = head), or
// nil if i is out of range, for scanning live entries in age order.
func (b *Buffer) At(i int) *Entry {
	if i < 0 || i >= b.count {
		return nil
	}
	return &b.entries[(b.head+i)%len(b.entries)]
}

// RetireHead pops the head entry. The caller must have already performed
// every side effect of retirement (freeing prev_phys, committing the SB
// entry, etc.) before calling this.
func (b *Buffer) RetireHead() {
	b.entries[b.head].valid = false
	b.head = (b.head + 1) % len(b.entries)
	b.count--
}

// TruncateAfter discards every live entry younger than (i.e. with a
// higher sequence number than) the given sequence, for squash handling.
// It returns the discarded entries youngest-first, which is exactly
// "reverse program order": restoring RAT[dest_arch] = prev_phys in this
// order unwinds chained renames to the same architectural register
// correctly, since a later rename's prev_phys is the PR an earlier
// rename just installed.
func (b *Buffer) TruncateAfter(seq uint64) []Entry {
	var discarded []Entry
	for b.count > 0 {
		idx := (b.head + b.count - 1) % len(b.entries)
		e := b.entries[idx]
		if e.Seq <= seq {
			break
		}
		discarded = append(discarded, e)
		b.entries[idx].valid = false
		b.count--
	}
	return discarded
}
