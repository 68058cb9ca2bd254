// Package rat implements the Register Alias Table: the architectural to
// physical register mapping that makes renaming possible.
package rat

import (
	"github.com/arm-ooo/oocpu/isa"
	"github.com/arm-ooo/oocpu/prf"
)

// Table maps each architectural register to the physical register
// currently holding its value. Exactly one PR per architectural register
// at any cycle boundary.
type Table struct {
	mapping [isa.NumRegs]prf.ID
}

// New creates a Table with every architectural register mapped to a
// distinct physical register drawn from f. The caller is expected to do
// this once at boot, before any instruction issues.
func New(f *prf.File) *Table {
	t := &Table{}
	for r := isa.Reg(0); r < isa.NumRegs; r++ {
		id := f.Alloc()
		f.Write(id, 0)
		t.mapping[r] = id
	}
	return t
}

// Lookup returns the physical register currently backing an architectural
// register.
func (t *Table) Lookup(r isa.Reg) prf.ID {
	return t.mapping[r]
}

// Rename installs a new physical register as the backing store for an
// architectural register and returns the physical register it replaces
// (the instruction's prev_phys, freed at retire or restored on squash).
func (t *Table) Rename(r isa.Reg, newID prf.ID) prf.ID {
	old := t.mapping[r]
	t.mapping[r] = newID
	return old
}

// Restore points an architectural register back at a physical register,
// used during squash to unwind renames in reverse program order.
func (t *Table) Restore(r isa.Reg, id prf.ID) {
	t.mapping[r] = id
}

// Snapshot returns a copy of the full mapping, useful for tests asserting
// architectural state after a sequence of retires.
func (t *Table) Snapshot() [isa.NumRegs]prf.ID {
	return t.mapping
}
