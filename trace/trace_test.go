package trace_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/arm-ooo/oocpu/isa"
	"github.com/arm-ooo/oocpu/trace"
)

func TestTrace(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Trace Suite")
}

var _ = Describe("Recorder", func() {
	It("buffers every event emitted, in order", func() {
		r := trace.NewRecorder()
		r.Emit(trace.Event{Cycle: 1, Stage: trace.StageIssue, RobSeq: 0, Op: isa.OpMov})
		r.Emit(trace.Event{Cycle: 1, Stage: trace.StageDispatch, RobSeq: 0, Op: isa.OpMov})
		Expect(r.Events).To(HaveLen(2))
		Expect(r.Events[0].Stage).To(Equal(trace.StageIssue))
		Expect(r.Events[1].Stage).To(Equal(trace.StageDispatch))
	})
})

var _ = Describe("Discard", func() {
	It("drops every event without panicking", func() {
		var e trace.Emitter = trace.Discard{}
		Expect(func() { e.Emit(trace.Event{}) }).NotTo(Panic())
	})
})

var _ = Describe("Stage", func() {
	It("renders every named stage", func() {
		Expect(trace.StageCycle.String()).To(Equal("cycle"))
		Expect(trace.StageDecode.String()).To(Equal("decode"))
		Expect(trace.StageIssue.String()).To(Equal("issue"))
		Expect(trace.StageDispatch.String()).To(Equal("dispatch"))
		Expect(trace.StageExecute.String()).To(Equal("execute"))
		Expect(trace.StageRetire.String()).To(Equal("retire"))
	})
})
