// Package replacement implements the page-replacement strategies (FIFO,
// LRU, Optimal-fallback) that the memory manager consults when a page
// fault occurs and the physical pool is full.
package replacement

import "github.com/tickkernel/oskernelsim/internal/process"

// Policy observes frame allocation, access, and freeing, and on demand
// names a victim frame. Implementations must be robust to being asked to
// free a frame they never saw allocated (a no-op).
type Policy interface {
	PageAccessed(frame int, proc *process.Process, page int, t int)
	// SelectVictim returns a frame currently present in frameToPage, or -1
	// if no victim can be named. frameToPage maps resident frame index to
	// the page number it holds.
	SelectVictim(frameToPage map[int]int, t int) int
	FrameAllocated(frame int, proc *process.Process, page int)
	FrameFreed(frame int)
	Name() string
}

// Kind enumerates the canonical realizations named by the spec.
type Kind int

const (
	FIFO Kind = iota
	LRU
	Optimal
)

func (k Kind) String() string {
	switch k {
	case FIFO:
		return "FIFO"
	case LRU:
		return "LRU"
	case Optimal:
		return "Optimal"
	default:
		return "unknown"
	}
}

// New constructs the Policy for the given kind.
func New(kind Kind) Policy {
	switch kind {
	case FIFO:
		return newFIFOPolicy()
	case LRU:
		return newLRUPolicy()
	case Optimal:
		return newOptimalPolicy()
	default:
		return newFIFOPolicy()
	}
}

// fifoPolicy evicts the longest-resident frame. Grounded on spec §4.2:
// a queue of resident frames in allocation order; select_victim skips and
// removes stale entries before returning the first surviving one.
type fifoPolicy struct {
	order []int
}

func newFIFOPolicy() *fifoPolicy { return &fifoPolicy{} }

func (*fifoPolicy) Name() string { return FIFO.String() }

func (p *fifoPolicy) PageAccessed(int, *process.Process, int, int) {}

func (p *fifoPolicy) FrameAllocated(frame int, _ *process.Process, _ int) {
	p.order = append(p.order, frame)
}

func (p *fifoPolicy) FrameFreed(frame int) {
	p.order = removeAll(p.order, frame)
}

func (p *fifoPolicy) SelectVictim(frameToPage map[int]int, _ int) int {
	for len(p.order) > 0 {
		candidate := p.order[0]
		p.order = p.order[1:]
		if _, ok := frameToPage[candidate]; ok {
			return candidate
		}
	}
	return -1
}

// lruPolicy evicts the frame with the oldest last-access timestamp.
// Newly allocated frames are seeded with a sentinel older than any real
// tick, so an unaccessed page is evicted first (spec §9(ii)).
type lruPolicy struct {
	lastAccess map[int]int
}

const neverAccessedSentinel = -1

func newLRUPolicy() *lruPolicy {
	return &lruPolicy{lastAccess: make(map[int]int)}
}

func (*lruPolicy) Name() string { return LRU.String() }

func (p *lruPolicy) FrameAllocated(frame int, _ *process.Process, _ int) {
	p.lastAccess[frame] = neverAccessedSentinel
}

func (p *lruPolicy) FrameFreed(frame int) {
	delete(p.lastAccess, frame)
}

func (p *lruPolicy) PageAccessed(frame int, _ *process.Process, _ int, t int) {
	if _, ok := p.lastAccess[frame]; ok {
		p.lastAccess[frame] = t
	}
}

func (p *lruPolicy) SelectVictim(frameToPage map[int]int, _ int) int {
	victim := -1
	victimTime := 0
	for frame := range frameToPage {
		ts, ok := p.lastAccess[frame]
		if !ok {
			ts = neverAccessedSentinel
		}
		if victim == -1 || ts < victimTime || (ts == victimTime && frame < victim) {
			victim = frame
			victimTime = ts
		}
	}
	return victim
}

// optimalPolicy is the mandatory deterministic fallback: since the
// engine cannot see the future reference string at decision time, it
// evicts the largest-indexed resident frame (spec §4.2, §9(iii)).
type optimalPolicy struct{}

func newOptimalPolicy() *optimalPolicy { return &optimalPolicy{} }

func (*optimalPolicy) Name() string { return Optimal.String() }

func (*optimalPolicy) PageAccessed(int, *process.Process, int, int) {}
func (*optimalPolicy) FrameAllocated(int, *process.Process, int)    {}
func (*optimalPolicy) FrameFreed(int)                               {}

func (*optimalPolicy) SelectVictim(frameToPage map[int]int, _ int) int {
	victim := -1
	for frame := range frameToPage {
		if frame > victim {
			victim = frame
		}
	}
	return victim
}

func removeAll(s []int, v int) []int {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
