// Package engine implements the tick-level coordination core: the
// state machine that every tick admits arrivals, advances I/O, retries
// memory-blocked jobs, dispatches the CPU under the configured
// scheduling policy, executes one CPU tick against the memory manager,
// and drains the deferred-ready queue, in the exact phase order of
// SPEC_FULL.md §4.4.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tickkernel/oskernelsim/internal/memory"
	"github.com/tickkernel/oskernelsim/internal/process"
	"github.com/tickkernel/oskernelsim/internal/replacement"
	"github.com/tickkernel/oskernelsim/internal/scheduler"
	"github.com/tickkernel/oskernelsim/internal/telemetry"
)

// Engine owns the clock, the Ready/IO/MemoryBlocked queues, the
// deferred-ready staging queue, and the single Running slot. It is the
// exclusive owner of all of those plus the aggregate metrics; the
// memory manager it holds is the exclusive owner of the frame table,
// resident sets, access history, and fault/replacement counters (spec
// §3's ownership split).
type Engine struct {
	mu sync.Mutex

	state         *fastState
	stopRequested atomic.Bool
	inCallback    atomic.Bool

	processes     []*process.Process
	ready         []*process.Process
	io            []*process.Process
	memBlocked    []*process.Process
	readyNextTick []*process.Process
	running       *process.Process

	quantumRemaining int
	clock            int
	contextSwitches  int
	totalCPUTime     int
	totalIdleTime    int

	schedulerKind   scheduler.Kind
	schedulerPolicy scheduler.Policy
	quantum         int
	tickDelay       time.Duration

	memory *memory.Manager
	logger *telemetry.Logger
	onTick func(Summary)
}

// NewEngine validates opts and constructs an Engine. It never starts
// the tick loop; call Run to do that. Invalid configuration (spec §7)
// returns a *ConfigError and no Engine.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	cfg, err := resolveEngineOptions(opts)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		state:           newFastState(),
		processes:       cfg.processes,
		schedulerKind:   cfg.schedulerKind,
		schedulerPolicy: scheduler.New(cfg.schedulerKind, cfg.quantum),
		quantum:         cfg.quantum,
		tickDelay:       cfg.tickDelay,
		memory:          memory.New(cfg.totalFrames, replacement.New(cfg.replacementKind), cfg.preserveFrames, cfg.logger),
		logger:          cfg.logger,
		onTick:          cfg.onTick,
	}
	for _, p := range e.processes {
		p.Reset()
	}
	return e, nil
}

// Run advances the simulation tick by tick until every process is
// Terminated, the context is cancelled, or Stop is called. It blocks
// until one of those happens. Calling Run while it is already running
// returns ErrEngineAlreadyRunning; calling it again after completion
// returns ErrEngineTerminated; calling it from inside the OnTick
// callback returns ErrReentrantRun.
func (e *Engine) Run(ctx context.Context) error {
	if e.inCallback.Load() {
		return ErrReentrantRun
	}
	if !e.state.TryTransition(stateIdle, stateRunning) {
		if e.state.Load() == stateTerminated {
			return ErrEngineTerminated
		}
		return ErrEngineAlreadyRunning
	}
	defer e.state.Store(stateTerminated)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if e.stopRequested.Load() {
			return nil
		}

		done := e.tick()
		if done {
			return nil
		}

		if e.tickDelay > 0 {
			select {
			case <-time.After(e.tickDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Stop requests that the run loop exit at the next tick boundary. Safe
// to call from any goroutine; no partial tick is ever observed
// externally (spec §5).
func (e *Engine) Stop() error {
	if e.state.Load() == stateIdle {
		return ErrEngineNotRunning
	}
	e.stopRequested.Store(true)
	return nil
}

// Snapshot returns the current run summary without advancing the
// clock.
func (e *Engine) Snapshot() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.clock, e.allTerminatedLocked())
}

// FrameStatusSnapshot, FrameToPageSnapshot, FrameAccessHistorySnapshot,
// MaxAccessSequence, PageFaults and Replacements delegate to the memory
// manager (spec §6's "snapshot getters").
func (e *Engine) FrameStatusSnapshot() map[int]bool           { return e.memory.FrameStatusSnapshot() }
func (e *Engine) FrameToPageSnapshot() map[int]memory.FrameOwner {
	return e.memory.FrameToPageSnapshot()
}
func (e *Engine) FrameAccessHistorySnapshot() map[int][]memory.AccessEvent {
	return e.memory.FrameAccessHistorySnapshot()
}
func (e *Engine) MaxAccessSequence() int { return e.memory.MaxAccessSequence() }
func (e *Engine) PageFaults() int        { return e.memory.PageFaults() }
func (e *Engine) Replacements() int      { return e.memory.Replacements() }

// tick runs exactly one pass of the nine phases in SPEC_FULL.md §4.4 and
// reports whether every process has now terminated.
func (e *Engine) tick() bool {
	e.mu.Lock()
	t := e.clock
	e.memory.SetCurrentTime(t)

	e.admitArrivals(t)
	e.advanceIO(t)
	e.reclaimMemory()
	e.dispatchIfIdle(t)
	e.executeCPUTick(t)
	e.drainDeferred()

	done := e.allTerminatedLocked()
	summary := e.snapshotLocked(t, done)
	if !done {
		e.clock++
	}
	e.mu.Unlock()

	e.notifyTick(summary)
	return done
}

// admitArrivals is phase 2.
func (e *Engine) admitArrivals(t int) {
	for _, p := range e.processes {
		if p.State != process.StateNew || p.Arrival != t {
			continue
		}
		if e.memory.TryLoadInitialPage(p) {
			p.State = process.StateReady
			e.ready = append(e.ready, p)
			e.logTransition(t, p.Pid, "New", "Ready", "arrival")
		} else {
			p.State = process.StateBlockedMemory
			e.memBlocked = append(e.memBlocked, p)
			e.logTransition(t, p.Pid, "New", "BlockedMemory", "arrival, pool full")
		}
	}
}

// advanceIO is phase 3. It iterates a snapshot of the I/O queue and
// rebuilds e.io from the processes still blocked, so removal is safe
// mid-iteration.
func (e *Engine) advanceIO(t int) {
	snapshot := e.io
	e.io = e.io[:0]
	for _, p := range snapshot {
		p.DecrementCurrentBurstTime(1, false)
		if p.BurstTimeRemaining > 0 {
			e.io = append(e.io, p)
			continue
		}

		p.EndIOInterval(t + 1)
		if p.MoveToNextBurst() {
			p.State = process.StateReady
			e.readyNextTick = append(e.readyNextTick, p)
			e.logTransition(t, p.Pid, "BlockedIO", "Ready", "io complete, deferred")
		} else {
			p.State = process.StateTerminated
			p.EndTime = t
			p.CloseOpenIntervalsAtTermination(t + 1)
			e.memory.UnloadProcess(p)
			e.logTransition(t, p.Pid, "BlockedIO", "Terminated", "no next burst")
		}
	}
}

// reclaimMemory is phase 4.
func (e *Engine) reclaimMemory() {
	snapshot := e.memBlocked
	e.memBlocked = e.memBlocked[:0]
	for _, p := range snapshot {
		if e.memory.TryLoadInitialPage(p) {
			p.State = process.StateReady
			e.ready = append(e.ready, p)
			e.logTransition(e.clock, p.Pid, "BlockedMemory", "Ready", "memory reclaimed")
		} else {
			e.memBlocked = append(e.memBlocked, p)
		}
	}
}

// dispatchIfIdle is phase 5.
func (e *Engine) dispatchIfIdle(t int) {
	if e.running != nil {
		return
	}
	candidate := e.schedulerPolicy.SelectNext(e.ready)
	if candidate == nil {
		return
	}
	e.ready = removeProcess(e.ready, candidate)

	if !e.memory.TryLoadInitialPage(candidate) {
		candidate.State = process.StateBlockedMemory
		e.memBlocked = append(e.memBlocked, candidate)
		e.logTransition(t, candidate.Pid, "Ready", "BlockedMemory", "dispatch memory check failed")
		return
	}

	if candidate.StartTime == -1 {
		candidate.StartTime = t
	}
	candidate.State = process.StateRunning
	candidate.StartCPUInterval(t)
	e.contextSwitches++
	candidate.ContextSwitches++
	e.running = candidate

	if e.schedulerKind == scheduler.RoundRobin {
		q := e.quantum
		if q < 1 {
			q = 1
		}
		e.quantumRemaining = q
	} else {
		e.quantumRemaining = candidate.CurrentBurst().Duration
	}
	e.logTransition(t, candidate.Pid, "Ready", "Running", e.schedulerPolicy.Name())
}

// executeCPUTick is phase 6.
func (e *Engine) executeCPUTick(t int) {
	p := e.running
	if p == nil {
		e.totalIdleTime++
		return
	}

	if p.PageCount > 0 {
		page := p.CPUTimeUsed % p.PageCount
		e.memory.AccessPage(p, page)
	}
	p.DecrementCurrentBurstTime(1, true)
	e.quantumRemaining--
	e.totalCPUTime++

	switch {
	case p.BurstTimeRemaining <= 0:
		p.EndCPUInterval(t + 1)
		if p.MoveToNextBurst() {
			if p.CurrentBurst().Type == process.BurstIO {
				p.State = process.StateBlockedIO
				p.StartIOInterval(t + 1)
				e.io = append(e.io, p)
				e.logTransition(t, p.Pid, "Running", "BlockedIO", "burst advances to io")
			} else {
				p.State = process.StateReady
				e.ready = append(e.ready, p)
				e.logTransition(t, p.Pid, "Running", "Ready", "burst complete, cpu follows")
			}
		} else {
			p.State = process.StateTerminated
			p.EndTime = t
			p.CloseOpenIntervalsAtTermination(t + 1)
			e.memory.UnloadProcess(p)
			e.logTransition(t, p.Pid, "Running", "Terminated", "no next burst")
		}
		e.running = nil

	case e.schedulerKind == scheduler.RoundRobin && e.quantumRemaining <= 0:
		p.EndCPUInterval(t + 1)
		p.State = process.StateReady
		e.ready = append(e.ready, p)
		e.running = nil
		e.logTransition(t, p.Pid, "Running", "Ready", "quantum expired")
	}
}

// drainDeferred is phase 7.
func (e *Engine) drainDeferred() {
	if len(e.readyNextTick) == 0 {
		return
	}
	e.ready = append(e.ready, e.readyNextTick...)
	e.readyNextTick = e.readyNextTick[:0]
}

func (e *Engine) allTerminatedLocked() bool {
	for _, p := range e.processes {
		if p.State != process.StateTerminated {
			return false
		}
	}
	return true
}

func (e *Engine) snapshotLocked(t int, done bool) Summary {
	procs := make([]ProcessSummary, len(e.processes))
	for i, p := range e.processes {
		procs[i] = summarizeProcess(p)
	}
	return Summary{
		Tick:            t,
		TotalCPUTime:    e.totalCPUTime,
		TotalIdleTime:   e.totalIdleTime,
		ContextSwitches: e.contextSwitches,
		PageFaults:      e.memory.PageFaults(),
		Replacements:    e.memory.Replacements(),
		Done:            done,
		Processes:       procs,
	}
}

// notifyTick invokes the OnTick callback, if any, without the engine
// lock held. A panic inside it is recovered and logged, never
// propagated (spec §7).
func (e *Engine) notifyTick(summary Summary) {
	if e.onTick == nil {
		return
	}
	e.inCallback.Store(true)
	defer e.inCallback.Store(false)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Err().Any("recovered", r).Log("engine OnTick callback panicked")
		}
	}()
	e.onTick(summary)
}

func (e *Engine) logTransition(t int, pid, from, to, reason string) {
	e.logger.Debug().
		Int("tick", t).
		Str("pid", pid).
		Str("from", from).
		Str("to", to).
		Str("reason", reason).
		Log("state transition")
}

func removeProcess(list []*process.Process, target *process.Process) []*process.Process {
	for i, p := range list {
		if p == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
