package session

import "sync/atomic"

// Phase is the transport lifecycle state. PhaseClosed is terminal: nothing is
// read or written afterwards, and repeated shutdown calls are no-ops.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseListening
	PhaseDraining
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseDraining:
		return "draining"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// lifecycle is the phase holder shared by both bridges.
type lifecycle struct {
	phase atomic.Int32
}

func (l *lifecycle) current() Phase {
	return Phase(l.phase.Load())
}

func (l *lifecycle) transition(from, to Phase) bool {
	return l.phase.CompareAndSwap(int32(from), int32(to))
}

func (l *lifecycle) close() {
	l.phase.Store(int32(PhaseClosed))
}

func (l *lifecycle) closed() bool {
	return l.current() == PhaseClosed
}
