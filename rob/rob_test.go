package rob_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/arm-ooo/oocpu/isa"
	"github.com/arm-ooo/oocpu/rob"
)

func TestROB(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ROB Suite")
}

var _ = Describe("Buffer", func() {
	var b *rob.Buffer

	BeforeEach(func() {
		b = rob.New(4)
	})

	It("assigns strictly increasing, contiguous sequence numbers", func() {
		_, s0 := b.Allocate()
		_, s1 := b.Allocate()
		_, s2 := b.Allocate()
		Expect(s0).To(Equal(uint64(0)))
		Expect(s1).To(Equal(uint64(1)))
		Expect(s2).To(Equal(uint64(2)))
	})

	It("reports Full once capacity is reached", func() {
		for i := 0; i < 4; i++ {
			b.Allocate()
		}
		Expect(b.Full()).To(BeTrue())
	})

	It("retires from the head in order", func() {
		_, s0 := b.Allocate()
		b.Allocate()
		Expect(b.Head().Seq).To(Equal(s0))
		b.RetireHead()
		Expect(b.Head().Seq).To(Equal(uint64(1)))
	})

	It("frees a slot on retire, allowing a new allocation", func() {
		for i := 0; i < 4; i++ {
			b.Allocate()
		}
		b.RetireHead()
		Expect(b.Full()).To(BeFalse())
		_, seq := b.Allocate()
		Expect(seq).To(Equal(uint64(4)))
	})

	It("TruncateAfter discards younger entries youngest-first", func() {
		e0, s0 := b.Allocate()
		e0.DestArch = isa.R1
		e1, _ := b.Allocate()
		e1.DestArch = isa.R2
		e2, _ := b.Allocate()
		e2.DestArch = isa.R1 // renames r1 again, chained

		discarded := b.TruncateAfter(s0)
		Expect(discarded).To(HaveLen(2))
		Expect(discarded[0].DestArch).To(Equal(isa.R1)) // e2, youngest first
		Expect(discarded[1].DestArch).To(Equal(isa.R2)) // e1
		Expect(b.Count()).To(Equal(1))
	})

	It("At accesses live entries in age order from the head", func() {
		b.Allocate()
		b.RetireHead()
		_, s1 := b.Allocate()
		_, s2 := b.Allocate()
		Expect(b.At(0).Seq).To(Equal(s1))
		Expect(b.At(1).Seq).To(Equal(s2))
		Expect(b.At(2)).To(BeNil())
	})
})
