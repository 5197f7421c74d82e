package engine

import "sync/atomic"

// runState is the engine's lifecycle state, a direct rename of the
// teacher's LoopState enum (eventloop's state.go) restricted to the
// three states this domain needs: there is no Sleeping (this engine
// never polls I/O) and no Terminating (shutdown here completes
// synchronously within a tick, not asynchronously across goroutines).
type runState uint64

const (
	stateIdle runState = iota
	stateRunning
	stateTerminated
)

// fastState is a lock-free CAS state machine, the same shape as the
// teacher's FastState but sized for three states instead of five.
type fastState struct {
	v atomic.Uint64
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint64(stateIdle))
	return s
}

func (s *fastState) Load() runState { return runState(s.v.Load()) }

func (s *fastState) Store(state runState) { s.v.Store(uint64(state)) }

func (s *fastState) TryTransition(from, to runState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}
