package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tickkernel/oskernelsim/internal/process"
	"github.com/tickkernel/oskernelsim/internal/replacement"
)

func newProc(pid string, pages int) *process.Process {
	return process.NewProcess(pid, 0, []process.Burst{{Type: process.BurstCPU, Duration: 1}}, 1, pages)
}

func TestTryLoadInitialPageIsIdempotent(t *testing.T) {
	m := New(2, replacement.New(replacement.FIFO), false, nil)
	p := newProc("P1", 1)

	require.True(t, m.TryLoadInitialPage(p))
	require.Equal(t, 1, m.FreeFrames()) // one frame consumed out of 2
	require.True(t, m.TryLoadInitialPage(p))
	require.Equal(t, 1, m.FreeFrames()) // still exactly one frame consumed
}

func TestTryLoadInitialPageSkipsProcessesWithNoPages(t *testing.T) {
	m := New(1, replacement.New(replacement.FIFO), false, nil)
	p := newProc("P1", 0)

	require.True(t, m.TryLoadInitialPage(p))
	require.Equal(t, 1, m.FreeFrames())
}

func TestTryLoadInitialPageNeverEvicts(t *testing.T) {
	m := New(1, replacement.New(replacement.FIFO), false, nil)
	p1 := newProc("P1", 1)
	p2 := newProc("P2", 1)

	require.True(t, m.TryLoadInitialPage(p1))
	require.False(t, m.TryLoadInitialPage(p2))
	require.Equal(t, 0, m.Replacements())
	require.Equal(t, 0, m.FreeFrames())

	m.UnloadProcess(p1)
	require.True(t, m.TryLoadInitialPage(p2))
}

func TestAccessPageHitDoesNotFault(t *testing.T) {
	m := New(2, replacement.New(replacement.FIFO), false, nil)
	p := newProc("P1", 1)
	require.True(t, m.TryLoadInitialPage(p))

	require.Equal(t, 1, m.PageFaults())
	m.AccessPage(p, 0)
	require.Equal(t, 1, m.PageFaults())
	require.Equal(t, 0, p.LastAccessTime)
}

// TestLRUForcedEvictionScenario reproduces spec scenario 3: frames=2,
// LRU, a single 3-page process referencing 0,1,2,0,1,2. Faults=6,
// replacements=4, with the final victim being page 0.
func TestLRUForcedEvictionScenario(t *testing.T) {
	m := New(2, replacement.New(replacement.LRU), false, nil)
	p := newProc("P1", 3)

	require.True(t, m.TryLoadInitialPage(p)) // loads page 0, fault 1
	refs := []int{1, 2, 0, 1, 2}
	for i, page := range refs {
		m.SetCurrentTime(i + 1)
		m.AccessPage(p, page)
	}

	require.Equal(t, 6, m.PageFaults())
	require.Equal(t, 4, m.Replacements())
}

// TestFIFOForcedEvictionScenario reproduces spec scenario 4: same setup
// as scenario 3 but FIFO, same fault/replacement counts.
func TestFIFOForcedEvictionScenario(t *testing.T) {
	m := New(2, replacement.New(replacement.FIFO), false, nil)
	p := newProc("P1", 3)

	require.True(t, m.TryLoadInitialPage(p))
	refs := []int{1, 2, 0, 1, 2}
	for i, page := range refs {
		m.SetCurrentTime(i + 1)
		m.AccessPage(p, page)
	}

	require.Equal(t, 6, m.PageFaults())
	require.Equal(t, 4, m.Replacements())
}

func TestAccessPageEvictsWhenPoolFull(t *testing.T) {
	m := New(1, replacement.New(replacement.FIFO), false, nil)
	p := newProc("P1", 2)
	require.True(t, m.TryLoadInitialPage(p))

	before := m.PageFaults()
	m.AccessPage(p, 1)
	require.Equal(t, before+1, m.PageFaults())
	require.Equal(t, 1, m.Replacements())
}

func TestUnloadProcessFreesFramesAndIsIdempotent(t *testing.T) {
	m := New(2, replacement.New(replacement.FIFO), false, nil)
	p := newProc("P1", 1)
	require.True(t, m.TryLoadInitialPage(p))
	require.Equal(t, 1, m.FreeFrames())

	m.UnloadProcess(p)
	require.Equal(t, 2, m.FreeFrames())

	require.NotPanics(t, func() { m.UnloadProcess(p) })
	require.Equal(t, 2, m.FreeFrames())
}

func TestUnloadProcessOnNeverLoadedProcessIsNoOp(t *testing.T) {
	m := New(1, replacement.New(replacement.FIFO), false, nil)
	p := newProc("P1", 1)
	require.NotPanics(t, func() { m.UnloadProcess(p) })
	require.Equal(t, 0, m.MaxAccessSequence())
}

func TestUnloadProcessPreservesFramesForVisualizationWhenConfigured(t *testing.T) {
	m := New(1, replacement.New(replacement.FIFO), true, nil)
	p := newProc("P1", 1)
	require.True(t, m.TryLoadInitialPage(p))

	m.UnloadProcess(p)
	require.Equal(t, 1, m.FreeFrames()) // frame is free for allocation again
	snap := m.FrameToPageSnapshot()
	require.Equal(t, FrameOwner{Pid: "P1", Page: 0}, snap[0])
}

func TestOnUpdateCallbackPanicIsSuppressed(t *testing.T) {
	m := New(1, replacement.New(replacement.FIFO), false, nil)
	m.SetOnUpdate(func() { panic("boom") })
	p := newProc("P1", 1)

	require.NotPanics(t, func() { m.TryLoadInitialPage(p) })
}

func TestFrameAccessHistorySharesSequenceAcrossSubEvents(t *testing.T) {
	m := New(1, replacement.New(replacement.FIFO), false, nil)
	p1 := newProc("P1", 1)
	p2 := newProc("P2", 1)
	require.True(t, m.TryLoadInitialPage(p1))

	m.AccessPage(p2, 0) // forces an eviction of p1's frame and a load for p2

	hist := m.FrameAccessHistorySnapshot()
	events := hist[0]
	require.Len(t, events, 3) // load(p1), evict(p1), load(p2)
	require.Equal(t, events[1].Seq, events[2].Seq)
}
