// Command oskernelsim is a thin CLI wrapper around the simulation
// engine: it parses a process-definition file, configures the engine
// from flags, runs it to completion, and prints the resulting summary.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tickkernel/oskernelsim/internal/engine"
	"github.com/tickkernel/oskernelsim/internal/loader"
	"github.com/tickkernel/oskernelsim/internal/replacement"
	"github.com/tickkernel/oskernelsim/internal/scheduler"
	"github.com/tickkernel/oskernelsim/internal/telemetry"
)

type opts struct {
	scheduler   string
	replacement string
	totalFrames int
	quantum     int
	tickDelay   time.Duration
	preserve    bool
	logLevel    string
	jsonOut     string
	quiet       bool
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "oskernelsim FILE",
		Short: "Tick-driven CPU scheduling and paged virtual memory simulator",
		Long: `oskernelsim runs a deterministic, tick-driven simulation coupling CPU
scheduling with paged virtual memory management. It reads a process
definition file (one job per line: PID ARRIVAL BURSTS PRIORITY
PAGE_COUNT), drives the engine to completion, and reports the
resulting timeline and memory-access metrics.

Example:
  oskernelsim --scheduler rr --quantum 2 --replacement lru --frames 4 jobs.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, args[0])
		},
	}

	root.Flags().StringVar(&o.scheduler, "scheduler", "fcfs", "CPU scheduling policy: fcfs, sjf, rr, priority")
	root.Flags().StringVar(&o.replacement, "replacement", "fifo", "page replacement policy: fifo, lru, optimal")
	root.Flags().IntVar(&o.totalFrames, "frames", 4, "physical frame pool size")
	root.Flags().IntVar(&o.quantum, "quantum", 2, "Round-Robin quantum (ticks)")
	root.Flags().DurationVar(&o.tickDelay, "tick-delay", 0, "wall-clock delay between ticks (0 = as fast as possible)")
	root.Flags().BoolVar(&o.preserve, "preserve-frames", false, "keep terminated processes' last-resident frames visible in snapshots")
	root.Flags().StringVar(&o.logLevel, "log-level", "warning", "structured log level: debug, info, warning, error")
	root.Flags().StringVar(&o.jsonOut, "json", "", "write the final summary as JSON to this path")
	root.Flags().BoolVar(&o.quiet, "quiet", false, "suppress the per-tick table")

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts, path string) error {
	schedKind, err := parseSchedulerKind(o.scheduler)
	if err != nil {
		return err
	}
	replKind, err := parseReplacementKind(o.replacement)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	procs, err := loader.Load(f)
	if err != nil {
		return err
	}
	if len(procs) == 0 {
		return fmt.Errorf("%s: no process definitions found", path)
	}

	logger := telemetry.New(os.Stderr, parseLogLevel(o.logLevel))

	var tw *tabwriter.Writer
	if !o.quiet {
		tw = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TICK\tCPU\tIDLE\tSWITCHES\tFAULTS\tREPLACEMENTS\tDONE")
	}

	eng, err := engine.NewEngine(
		engine.WithProcesses(procs),
		engine.WithScheduler(schedKind),
		engine.WithReplacement(replKind),
		engine.WithTotalFrames(o.totalFrames),
		engine.WithQuantum(o.quantum),
		engine.WithTickDelay(o.tickDelay),
		engine.WithPreserveFramesOnTermination(o.preserve),
		engine.WithLogger(logger),
		engine.WithOnTick(func(s engine.Summary) {
			if tw != nil {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%t\n",
					s.Tick, s.TotalCPUTime, s.TotalIdleTime, s.ContextSwitches,
					s.PageFaults, s.Replacements, s.Done)
				tw.Flush()
			}
		}),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx); err != nil {
		return err
	}

	summary := eng.Snapshot()
	if o.jsonOut != "" {
		b, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.jsonOut, b, 0o644); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Printf("total_cpu_time=%d total_idle_time=%d context_switches=%d page_faults=%d replacements=%d\n",
		summary.TotalCPUTime, summary.TotalIdleTime, summary.ContextSwitches, summary.PageFaults, summary.Replacements)
	return nil
}

func parseSchedulerKind(s string) (scheduler.Kind, error) {
	switch s {
	case "fcfs":
		return scheduler.FCFS, nil
	case "sjf":
		return scheduler.SJF, nil
	case "rr", "round-robin":
		return scheduler.RoundRobin, nil
	case "priority":
		return scheduler.Priority, nil
	default:
		return 0, fmt.Errorf("unknown scheduler %q", s)
	}
}

func parseReplacementKind(s string) (replacement.Kind, error) {
	switch s {
	case "fifo":
		return replacement.FIFO, nil
	case "lru":
		return replacement.LRU, nil
	case "optimal":
		return replacement.Optimal, nil
	default:
		return 0, fmt.Errorf("unknown replacement policy %q", s)
	}
}

func parseLogLevel(s string) telemetry.Level {
	switch s {
	case "debug":
		return telemetry.LevelDebug
	case "info":
		return telemetry.LevelInfo
	case "warning":
		return telemetry.LevelWarning
	case "error":
		return telemetry.LevelError
	default:
		return telemetry.LevelWarning
	}
}
