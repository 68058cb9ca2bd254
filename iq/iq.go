// Package iq implements the Instruction Queue: the bounded FIFO between
// the frontend and the issue stage.
package iq

import "github.com/arm-ooo/oocpu/isa"

// Queue is a bounded ordered sequence of decoded µops with program-order
// sequence numbers, carrying instructions from fetch to issue.
type Queue struct {
	buf      []isa.Instruction
	capacity int
}

// New creates a Queue with the given capacity.
func New(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// Capacity returns the queue's capacity.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Len returns the number of instructions currently queued.
func (q *Queue) Len() int {
	return len(q.buf)
}

// FreeSlots returns how many more instructions can be appended this
// cycle before the queue is full.
func (q *Queue) FreeSlots() int {
	return q.capacity - len(q.buf)
}

// Push appends a µop at the tail. The caller must check FreeSlots first.
func (q *Queue) Push(inst isa.Instruction) {
	q.buf = append(q.buf, inst)
}

// Peek returns the instruction at the head without removing it, or false
// if the queue is empty.
func (q *Queue) Peek() (isa.Instruction, bool) {
	if len(q.buf) == 0 {
		return isa.Instruction{}, false
	}
	return q.buf[0], true
}

// Pop removes the head instruction (use Peek to read it first). It does
// nothing on an empty queue.
func (q *Queue) Pop() {
	if len(q.buf) == 0 {
		return
	}
	q.buf = q.buf[1:]
}

// Flush empties the queue entirely, for squash handling.
func (q *Queue) Flush() {
	q.buf = nil
}
