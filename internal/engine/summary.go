package engine

import "github.com/tickkernel/oskernelsim/internal/process"

// ProcessSummary is the JSON-serializable timeline and bookkeeping view
// of a single process, as it stood the moment Summary was produced.
type ProcessSummary struct {
	Pid             string             `json:"pid"`
	Arrival         int                `json:"arrival_time"`
	Priority        int                `json:"priority"`
	PageCount       int                `json:"page_count"`
	State           string             `json:"state"`
	StartTime       int                `json:"start_time"`
	EndTime         int                `json:"end_time"`
	CPUTimeUsed     int                `json:"cpu_time_used"`
	ContextSwitches int                `json:"context_switches"`
	CPUIntervals    []process.Interval `json:"cpu_intervals"`
	IOIntervals     []process.Interval `json:"io_intervals"`
}

// Summary is the run-level snapshot handed to the completion callback
// and marshaled by cmd/oskernelsim (SPEC_FULL.md §3.1's "Run summary").
type Summary struct {
	Tick            int              `json:"tick"`
	TotalCPUTime    int              `json:"total_cpu_time"`
	TotalIdleTime   int              `json:"total_idle_time"`
	ContextSwitches int              `json:"context_switches"`
	PageFaults      int              `json:"page_faults"`
	Replacements    int              `json:"replacements"`
	Done            bool             `json:"done"`
	Processes       []ProcessSummary `json:"processes"`
}

func summarizeProcess(p *process.Process) ProcessSummary {
	return ProcessSummary{
		Pid:             p.Pid,
		Arrival:         p.Arrival,
		Priority:        p.Priority,
		PageCount:       p.PageCount,
		State:           p.State.String(),
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
		CPUTimeUsed:     p.CPUTimeUsed,
		ContextSwitches: p.ContextSwitches,
		CPUIntervals:    p.CPUIntervals(),
		IOIntervals:     p.IOIntervals(),
	}
}
