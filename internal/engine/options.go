package engine

import (
	"time"

	"github.com/tickkernel/oskernelsim/internal/process"
	"github.com/tickkernel/oskernelsim/internal/replacement"
	"github.com/tickkernel/oskernelsim/internal/scheduler"
	"github.com/tickkernel/oskernelsim/internal/telemetry"
)

// engineOptions holds configuration gathered from EngineOption values
// before NewEngine validates and freezes them into an Engine. Mirrors
// the teacher's loopOptions / resolveLoopOptions split (eventloop's
// options.go).
type engineOptions struct {
	processes []*process.Process

	schedulerKind   scheduler.Kind
	replacementKind replacement.Kind
	totalFrames     int
	quantum         int
	tickDelay       time.Duration
	preserveFrames  bool

	logger *telemetry.Logger
	onTick func(Summary)
}

// EngineOption configures an Engine at construction.
type EngineOption interface {
	applyEngine(*engineOptions) error
}

type engineOptionFunc func(*engineOptions) error

func (f engineOptionFunc) applyEngine(o *engineOptions) error { return f(o) }

// WithProcesses supplies the fixed job set the engine advances to
// completion. Without it the engine has no processes, which is
// degenerate but not invalid (it terminates immediately on the first
// tick).
func WithProcesses(procs []*process.Process) EngineOption {
	return engineOptionFunc(func(o *engineOptions) error {
		o.processes = procs
		return nil
	})
}

// WithScheduler selects the CPU dispatch policy (spec §4.1 / §6).
func WithScheduler(kind scheduler.Kind) EngineOption {
	return engineOptionFunc(func(o *engineOptions) error {
		o.schedulerKind = kind
		return nil
	})
}

// WithReplacement selects the page-replacement policy (spec §4.2 / §6).
func WithReplacement(kind replacement.Kind) EngineOption {
	return engineOptionFunc(func(o *engineOptions) error {
		o.replacementKind = kind
		return nil
	})
}

// WithTotalFrames sets the physical frame pool size. Must be >= 1.
func WithTotalFrames(n int) EngineOption {
	return engineOptionFunc(func(o *engineOptions) error {
		o.totalFrames = n
		return nil
	})
}

// WithQuantum sets the Round-Robin quantum. Must be >= 1; ignored by
// every scheduler other than RoundRobin.
func WithQuantum(n int) EngineOption {
	return engineOptionFunc(func(o *engineOptions) error {
		o.quantum = n
		return nil
	})
}

// WithTickDelay sets the wall-clock delay between ticks. 0 (the
// default) runs as fast as possible.
func WithTickDelay(d time.Duration) EngineOption {
	return engineOptionFunc(func(o *engineOptions) error {
		o.tickDelay = d
		return nil
	})
}

// WithPreserveFramesOnTermination controls whether a terminated
// process's last-resident frames remain visible in snapshot getters
// (spec §6's preserve_frames_on_termination).
func WithPreserveFramesOnTermination(preserve bool) EngineOption {
	return engineOptionFunc(func(o *engineOptions) error {
		o.preserveFrames = preserve
		return nil
	})
}

// WithLogger attaches the structured logger used for every phase
// transition, fault, eviction, and dispatch decision (§2.1 of
// SPEC_FULL.md). Defaults to a discarding logger.
func WithLogger(logger *telemetry.Logger) EngineOption {
	return engineOptionFunc(func(o *engineOptions) error {
		o.logger = logger
		return nil
	})
}

// WithOnTick installs the per-tick completion callback (spec §6's
// "completion callback", generalized to fire every tick so observers can
// drive a Gantt/memory view). A panic inside it is recovered and logged,
// never propagated (spec §7).
func WithOnTick(fn func(Summary)) EngineOption {
	return engineOptionFunc(func(o *engineOptions) error {
		o.onTick = fn
		return nil
	})
}

// resolveEngineOptions applies every option atop the defaults and
// validates the result, rejecting invalid configuration before any
// Engine value is constructed (spec §7).
func resolveEngineOptions(opts []EngineOption) (*engineOptions, error) {
	cfg := &engineOptions{
		schedulerKind:   scheduler.FCFS,
		replacementKind: replacement.FIFO,
		totalFrames:     0,
		quantum:         1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyEngine(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.totalFrames < 1 {
		return nil, &ConfigError{Field: "total_frames", Message: "must be >= 1"}
	}
	if cfg.quantum < 1 {
		return nil, &ConfigError{Field: "quantum", Message: "must be >= 1"}
	}
	if cfg.logger == nil {
		cfg.logger = telemetry.Discard()
	}
	return cfg, nil
}
