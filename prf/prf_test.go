package prf_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/arm-ooo/oocpu/prf"
)

func TestPRF(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "PRF Suite")
}

var _ = Describe("File", func() {
	var f *prf.File

	BeforeEach(func() {
		f = prf.New(4)
	})

	It("starts with every register free", func() {
		Expect(f.FreeCount()).To(Equal(4))
	})

	It("allocates distinct ids and shrinks the free list", func() {
		a := f.Alloc()
		b := f.Alloc()
		Expect(a).NotTo(Equal(b))
		Expect(f.FreeCount()).To(Equal(2))
	})

	It("returns None when exhausted", func() {
		for i := 0; i < 4; i++ {
			f.Alloc()
		}
		Expect(f.Alloc()).To(Equal(prf.None))
	})

	It("is not ready until written", func() {
		id := f.Alloc()
		Expect(f.Ready(id)).To(BeFalse())
		f.Write(id, 42)
		Expect(f.Ready(id)).To(BeTrue())
		Expect(f.Value(id)).To(Equal(uint64(42)))
	})

	It("panics on a second write to the same register", func() {
		id := f.Alloc()
		f.Write(id, 1)
		Expect(func() { f.Write(id, 2) }).To(Panic())
	})

	It("returns a released register to the free list", func() {
		id := f.Alloc()
		f.Write(id, 1)
		before := f.FreeCount()
		f.Release(id)
		Expect(f.FreeCount()).To(Equal(before + 1))
	})

	It("panics when releasing a register that is not live", func() {
		id := f.Alloc()
		f.Write(id, 1)
		f.Release(id)
		Expect(func() { f.Release(id) }).To(Panic())
	})

	It("Seed sets value and readiness without enforcing the write invariant", func() {
		id := f.Alloc()
		f.Seed(id, 7)
		Expect(f.Ready(id)).To(BeTrue())
		Expect(f.Value(id)).To(Equal(uint64(7)))
		f.Seed(id, 8) // a second Seed is legal, unlike Write
		Expect(f.Value(id)).To(Equal(uint64(8)))
	})
})
