// Package scheduler implements the CPU dispatch strategies (FCFS, SJF,
// Round-Robin, Priority) that select the next process from a snapshot of
// the Ready queue. Realized as a small tagged-variant, each holding only
// its own state, rather than a deep interface hierarchy.
package scheduler

import "github.com/tickkernel/oskernelsim/internal/process"

// Policy selects the next process to dispatch from an ordered snapshot of
// the Ready queue. Implementations must not mutate the snapshot, and are
// stateless across ticks except where noted (Round-Robin's quantum).
type Policy interface {
	// SelectNext returns the process to dispatch next, or nil if ready is
	// empty. ready is insertion-ordered; ties are broken by position.
	SelectNext(ready []*process.Process) *process.Process

	// Name identifies the policy, used in logging and diagnostics.
	Name() string
}

// Kind enumerates the four canonical realizations named by the spec.
type Kind int

const (
	FCFS Kind = iota
	SJF
	RoundRobin
	Priority
)

func (k Kind) String() string {
	switch k {
	case FCFS:
		return "FCFS"
	case SJF:
		return "SJF"
	case RoundRobin:
		return "RR"
	case Priority:
		return "Priority"
	default:
		return "unknown"
	}
}

// New constructs the Policy for the given kind. quantum is only consulted
// (and only stored) by RoundRobin; it is the engine, not the policy, that
// enforces it during dispatch (spec §4.1).
func New(kind Kind, quantum int) Policy {
	switch kind {
	case FCFS:
		return fcfsPolicy{}
	case SJF:
		return sjfPolicy{}
	case RoundRobin:
		if quantum < 1 {
			quantum = 1
		}
		return roundRobinPolicy{quantum: quantum}
	case Priority:
		return priorityPolicy{}
	default:
		return fcfsPolicy{}
	}
}

type fcfsPolicy struct{}

func (fcfsPolicy) Name() string { return FCFS.String() }

func (fcfsPolicy) SelectNext(ready []*process.Process) *process.Process {
	if len(ready) == 0 {
		return nil
	}
	return ready[0]
}

type sjfPolicy struct{}

func (sjfPolicy) Name() string { return SJF.String() }

func (sjfPolicy) SelectNext(ready []*process.Process) *process.Process {
	return selectMin(ready, func(p *process.Process) int { return p.TotalCPUTimeNeeded })
}

type priorityPolicy struct{}

func (priorityPolicy) Name() string { return Priority.String() }

func (priorityPolicy) SelectNext(ready []*process.Process) *process.Process {
	return selectMin(ready, func(p *process.Process) int { return p.Priority })
}

// roundRobinPolicy dispatches FCFS-style; the engine owns quantum
// enforcement and preemption. Quantum is carried only so callers can read
// back the configured value (e.g. for logging).
type roundRobinPolicy struct {
	quantum int
}

func (roundRobinPolicy) Name() string { return RoundRobin.String() }

func (p roundRobinPolicy) Quantum() int { return p.quantum }

func (roundRobinPolicy) SelectNext(ready []*process.Process) *process.Process {
	if len(ready) == 0 {
		return nil
	}
	return ready[0]
}

// selectMin returns the element of ready minimizing key, breaking ties by
// earliest position (first occurrence wins, since we only replace on a
// strictly smaller key).
func selectMin(ready []*process.Process, key func(*process.Process) int) *process.Process {
	if len(ready) == 0 {
		return nil
	}
	best := ready[0]
	bestKey := key(best)
	for _, p := range ready[1:] {
		if k := key(p); k < bestKey {
			best = p
			bestKey = k
		}
	}
	return best
}
