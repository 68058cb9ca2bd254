package iq_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/arm-ooo/oocpu/iq"
	"github.com/arm-ooo/oocpu/isa"
)

func TestIQ(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Instruction Queue Suite")
}

var _ = Describe("Queue", func() {
	var q *iq.Queue

	BeforeEach(func() {
		q = iq.New(2)
	})

	It("is FIFO", func() {
		q.Push(isa.Instruction{Op: isa.OpMov})
		q.Push(isa.Instruction{Op: isa.OpAdd})
		head, _ := q.Peek()
		Expect(head.Op).To(Equal(isa.OpMov))
		q.Pop()
		head, _ = q.Peek()
		Expect(head.Op).To(Equal(isa.OpAdd))
	})

	It("reports FreeSlots against capacity", func() {
		Expect(q.FreeSlots()).To(Equal(2))
		q.Push(isa.Instruction{})
		Expect(q.FreeSlots()).To(Equal(1))
	})

	It("Flush empties the queue", func() {
		q.Push(isa.Instruction{})
		q.Flush()
		Expect(q.Len()).To(Equal(0))
	})
})
