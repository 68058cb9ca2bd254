// Package trace defines the structured trace event stream the core
// emits; pretty-printing is external. Each event is gated
// by the corresponding config.TraceConfig boolean before it is ever
// constructed, so a disabled stage costs nothing.
package trace

import "github.com/arm-ooo/oocpu/isa"

// Stage identifies which pipeline phase produced an event.
type Stage uint8

const (
	StageCycle Stage = iota
	StageDecode
	StageIssue
	StageDispatch
	StageExecute
	StageRetire
)

// String renders the stage name for external formatters.
func (s Stage) String() string {
	switch s {
	case StageCycle:
		return "cycle"
	case StageDecode:
		return "decode"
	case StageIssue:
		return "issue"
	case StageDispatch:
		return "dispatch"
	case StageExecute:
		return "execute"
	case StageRetire:
		return "retire"
	default:
		return "unknown"
	}
}

// Event is one structured trace record:
// (cycle, stage, rob_seq, opcode, operand_state).
type Event struct {
	Cycle   uint64
	Stage   Stage
	RobSeq  uint64
	Op      isa.Op
	Operand string
}

// Emitter receives trace events as the core produces them. The core only
// calls Emit when the corresponding config.TraceConfig gate is enabled.
type Emitter interface {
	Emit(Event)
}

// Recorder is an in-memory Emitter that buffers every event it receives,
// for tests and for CLI consumers that want to format the whole run at
// the end rather than stream it.
type Recorder struct {
	Events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit appends ev to the recorder's buffer.
func (r *Recorder) Emit(ev Event) {
	r.Events = append(r.Events, ev)
}

// Discard is an Emitter that drops every event; used when no trace gate
// is enabled, so the CPU always has a non-nil Emitter to call.
type Discard struct{}

// Emit does nothing.
func (Discard) Emit(Event) {}
