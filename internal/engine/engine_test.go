package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tickkernel/oskernelsim/internal/process"
	"github.com/tickkernel/oskernelsim/internal/replacement"
	"github.com/tickkernel/oskernelsim/internal/scheduler"
)

func cpuOnly(d int) []process.Burst {
	return []process.Burst{{Type: process.BurstCPU, Duration: d}}
}

func findProc(procs []ProcessSummary, pid string) ProcessSummary {
	for _, p := range procs {
		if p.Pid == pid {
			return p
		}
	}
	panic("pid not found: " + pid)
}

// Scenario 1: single CPU-bound process, FCFS, 1 frame, 1 page.
// Expect CPU[0,3), page_faults=1, replacements=0, end_time=2, and the
// cpu+idle invariant.
func TestScenarioSingleProcessFCFS(t *testing.T) {
	p1 := process.NewProcess("P1", 0, cpuOnly(3), 0, 1)
	e, err := NewEngine(
		WithProcesses([]*process.Process{p1}),
		WithScheduler(scheduler.FCFS),
		WithReplacement(replacement.FIFO),
		WithTotalFrames(1),
	)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	s := e.Snapshot()
	require.True(t, s.Done)
	require.Equal(t, 1, s.PageFaults)
	require.Equal(t, 0, s.Replacements)
	require.Equal(t, s.TotalCPUTime+s.TotalIdleTime, s.Tick+1)

	ps := findProc(s.Processes, "P1")
	require.Equal(t, 2, ps.EndTime)
	require.Len(t, ps.CPUIntervals, 1)
	require.Equal(t, process.Interval{Start: 0, End: 3}, ps.CPUIntervals[0])
}

// Scenario 2: two CPU-bound processes under Round-Robin, quantum=2.
// P1 needs 5, P2 needs 3. Dispatch order: P1[0,2) P2[2,4) P1[4,6)
// P2[6,7) P1[7,8).
func TestScenarioRoundRobinTwoProcesses(t *testing.T) {
	p1 := process.NewProcess("P1", 0, cpuOnly(5), 0, 0)
	p2 := process.NewProcess("P2", 0, cpuOnly(3), 0, 0)
	e, err := NewEngine(
		WithProcesses([]*process.Process{p1, p2}),
		WithScheduler(scheduler.RoundRobin),
		WithQuantum(2),
		WithTotalFrames(1),
	)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	s := e.Snapshot()
	require.True(t, s.Done)
	require.Equal(t, s.TotalCPUTime+s.TotalIdleTime, s.Tick+1)

	sp1 := findProc(s.Processes, "P1")
	sp2 := findProc(s.Processes, "P2")
	require.Equal(t, []process.Interval{{Start: 0, End: 2}, {Start: 4, End: 6}, {Start: 7, End: 8}}, sp1.CPUIntervals)
	require.Equal(t, []process.Interval{{Start: 2, End: 4}, {Start: 6, End: 7}}, sp2.CPUIntervals)
	require.Equal(t, 7, sp1.EndTime)
	require.Equal(t, 6, sp2.EndTime)
}

// Scenario 3: single process, 3 pages, LRU, 2 frames, a burst long
// enough to reference 0,1,2,0,1,2 in sequence (CPU time 6, one page
// touched per tick via CPUTimeUsed % PageCount). Expect page_faults=6,
// replacements=4.
func TestScenarioLRUForcedEviction(t *testing.T) {
	p1 := process.NewProcess("P1", 0, cpuOnly(6), 0, 3)
	e, err := NewEngine(
		WithProcesses([]*process.Process{p1}),
		WithScheduler(scheduler.FCFS),
		WithReplacement(replacement.LRU),
		WithTotalFrames(2),
	)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	s := e.Snapshot()
	require.Equal(t, 6, s.PageFaults)
	require.Equal(t, 4, s.Replacements)
}

// Scenario 4: same as scenario 3 but FIFO; same fault/replacement
// counts.
func TestScenarioFIFOForcedEviction(t *testing.T) {
	p1 := process.NewProcess("P1", 0, cpuOnly(6), 0, 3)
	e, err := NewEngine(
		WithProcesses([]*process.Process{p1}),
		WithScheduler(scheduler.FCFS),
		WithReplacement(replacement.FIFO),
		WithTotalFrames(2),
	)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	s := e.Snapshot()
	require.Equal(t, 6, s.PageFaults)
	require.Equal(t, 4, s.Replacements)
}

// Scenario 5: a CPU(1)->IO(1)->CPU(1) process. IO completion at tick 1
// must not be visible to dispatch until tick 2, producing CPU[0,1),
// IO[1,2), CPU[2,3).
func TestScenarioIOCompletionDeferredOneTick(t *testing.T) {
	p1 := process.NewProcess("P1", 0, []process.Burst{
		{Type: process.BurstCPU, Duration: 1},
		{Type: process.BurstIO, Duration: 1},
		{Type: process.BurstCPU, Duration: 1},
	}, 0, 0)
	e, err := NewEngine(
		WithProcesses([]*process.Process{p1}),
		WithScheduler(scheduler.FCFS),
		WithTotalFrames(1),
	)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	s := e.Snapshot()
	ps := findProc(s.Processes, "P1")
	require.Equal(t, []process.Interval{{Start: 0, End: 1}, {Start: 2, End: 3}}, ps.CPUIntervals)
	require.Equal(t, []process.Interval{{Start: 1, End: 2}}, ps.IOIntervals)
	require.Equal(t, 2, ps.EndTime)
}

// Scenario 6: two single-page, one-tick processes arriving at tick 0
// with only one physical frame. P1 is admitted and runs to completion
// at tick 0, freeing its frame; P2 is admission-blocked at tick 0 and
// reclaimed at tick 1, then runs to completion. No eviction ever
// occurs: replacements stays 0, page_faults is 2 (one load per
// process).
func TestScenarioMemoryBlockedReclaim(t *testing.T) {
	p1 := process.NewProcess("P1", 0, cpuOnly(1), 0, 1)
	p2 := process.NewProcess("P2", 0, cpuOnly(1), 0, 1)
	e, err := NewEngine(
		WithProcesses([]*process.Process{p1, p2}),
		WithScheduler(scheduler.FCFS),
		WithTotalFrames(1),
	)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	s := e.Snapshot()
	require.Equal(t, 2, s.PageFaults)
	require.Equal(t, 0, s.Replacements)

	sp1 := findProc(s.Processes, "P1")
	sp2 := findProc(s.Processes, "P2")
	require.Equal(t, 0, sp1.EndTime)
	require.Equal(t, 1, sp2.EndTime)
}

func TestRunAfterCompletionReturnsErrEngineTerminated(t *testing.T) {
	p1 := process.NewProcess("P1", 0, cpuOnly(2), 0, 0)
	e, err := NewEngine(WithProcesses([]*process.Process{p1}), WithTotalFrames(1))
	require.NoError(t, err)

	require.NoError(t, e.Run(context.Background()))
	require.ErrorIs(t, e.Run(context.Background()), ErrEngineTerminated)
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	_, err := NewEngine(WithTotalFrames(0))
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNewEngineWithNoProcessesTerminatesImmediately(t *testing.T) {
	e, err := NewEngine(WithTotalFrames(1))
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))
	require.True(t, e.Snapshot().Done)
}

func TestOnTickCallbackObservesEveryTick(t *testing.T) {
	p1 := process.NewProcess("P1", 0, cpuOnly(2), 0, 0)
	var ticks []int
	e, err := NewEngine(
		WithProcesses([]*process.Process{p1}),
		WithTotalFrames(1),
		WithOnTick(func(s Summary) { ticks = append(ticks, s.Tick) }),
	)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, []int{0, 1}, ticks)
}

func TestStopHaltsAtNextTickBoundary(t *testing.T) {
	p1 := process.NewProcess("P1", 0, cpuOnly(100), 0, 0)
	var e *Engine
	var stoppedAt int
	var err error
	e, err = NewEngine(
		WithProcesses([]*process.Process{p1}),
		WithTotalFrames(1),
		WithOnTick(func(s Summary) {
			if s.Tick == 2 {
				stoppedAt = s.Tick
				require.NoError(t, e.Stop())
			}
		}),
	)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	s := e.Snapshot()
	require.False(t, s.Done)
	require.Equal(t, 2, stoppedAt)
}
