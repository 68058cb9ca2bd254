// Package sbuf implements the Store Buffer: an ordered sequence of
// committed-but-not-drained stores that feeds memory under a per-cycle
// drain limit. There is no cache in this simulator: the drain limit
// alone, modelling a fixed count of line-fill-buffer-like slots, rate-
// limits how many stores commit to memory per cycle.
package sbuf

// Entry is one Store Buffer slot.
type Entry struct {
	RobSeq    uint64
	Addr      uint64
	Value     uint64
	Committed bool
}

// Buffer is the ordered (by RobSeq) Store Buffer.
type Buffer struct {
	entries  []Entry
	capacity int
}

// New creates a Buffer with the given capacity.
func New(capacity int) *Buffer {
	return &Buffer{capacity: capacity}
}

// Capacity returns the SB's slot count.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Full reports whether the SB has no room for another speculative store.
// Issue stalls a store if the SB is full.
func (b *Buffer) Full() bool {
	return len(b.entries) >= b.capacity
}

// Insert adds an uncommitted store entry, inserted at execute time by an
// EU. Stores may execute out of program order, so insertion order only
// approximates ROB sequence order; Drain sorts entries by RobSeq first.
func (b *Buffer) Insert(e Entry) {
	b.entries = append(b.entries, e)
}

// Commit marks the entry with the given ROB sequence number committed,
// called at retire.
func (b *Buffer) Commit(seq uint64) {
	for i := range b.entries {
		if b.entries[i].RobSeq == seq {
			b.entries[i].Committed = true
			return
		}
	}
}

// Forward scans SB entries older than loadSeq with a matching address and
// returns the youngest matching store's value. Every store's address is
// already known by the time it lands in the SB, so there is no separate
// unresolved-address stall to model here; dispatch enforces that older
// stores resolve first via program-order store ordering.
func (b *Buffer) Forward(loadSeq uint64, addr uint64) (value uint64, found bool) {
	var bestSeq uint64
	for _, e := range b.entries {
		if e.RobSeq >= loadSeq {
			continue
		}
		if e.Addr != addr {
			continue
		}
		if !found || e.RobSeq > bestSeq {
			value = e.Value
			bestSeq = e.RobSeq
			found = true
		}
	}
	return value, found
}

// Drain removes up to n committed entries from the head (oldest
// RobSeq first) and returns them for writing to memory.
func (b *Buffer) Drain(n int) []Entry {
	b.sortByAge()
	drained := make([]Entry, 0, n)
	for len(drained) < n && len(b.entries) > 0 && b.entries[0].Committed {
		drained = append(drained, b.entries[0])
		b.entries = b.entries[1:]
	}
	return drained
}

// DiscardUncommittedAfter removes every uncommitted entry with a ROB
// sequence number greater than seq, for squash handling.
func (b *Buffer) DiscardUncommittedAfter(seq uint64) {
	kept := b.entries[:0]
	for _, e := range b.entries {
		if e.RobSeq > seq && !e.Committed {
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
}

// Len returns the number of live SB entries.
func (b *Buffer) Len() int {
	return len(b.entries)
}

func (b *Buffer) sortByAge() {
	// Insertion sort: the entry count is capacity-bounded and small, and
	// insertion order already tracks age almost exactly, so this stays
	// effectively linear in practice.
	for i := 1; i < len(b.entries); i++ {
		for j := i; j > 0 && b.entries[j].RobSeq < b.entries[j-1].RobSeq; j-- {
			b.entries[j], b.entries[j-1] = b.entries[j-1], b.entries[j]
		}
	}
}
