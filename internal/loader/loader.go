// Package loader parses the process-definition file format described
// in SPEC_FULL.md §6: one process per non-blank, non-comment line,
// fields separated by runs of spaces/tabs. It is deliberately the only
// package in this module that touches file content directly — the
// engine never imports it, mirroring the teacher's separation of the
// pure scheduling core from its thin outer adapters. No third-party
// parsing library in the pack targets this line grammar, so this
// package is stdlib-only by design (see DESIGN.md).
package loader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tickkernel/oskernelsim/internal/process"
)

// Load reads process definitions from r. Lines that are blank or start
// with '#' are ignored. A line with the wrong number of whitespace-
// separated fields is skipped (and logged by the caller, if it wants
// to); a numeric or burst-grammar parse failure on an otherwise
// well-shaped line aborts the whole load with an error, per spec §7.
func Load(r io.Reader) ([]*process.Process, error) {
	var procs []*process.Process

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 5 {
			continue
		}

		p, err := parseLine(fields)
		if err != nil {
			return nil, fmt.Errorf("loader: line %d: %w", lineNo, err)
		}
		procs = append(procs, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	return procs, nil
}

func parseLine(fields []string) (*process.Process, error) {
	pid := fields[0]

	arrival, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("arrival_time: %w", err)
	}

	bursts, err := parseBursts(fields[2])
	if err != nil {
		return nil, fmt.Errorf("bursts: %w", err)
	}

	priority, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("priority: %w", err)
	}

	pageCount, err := strconv.Atoi(fields[4])
	if err != nil {
		return nil, fmt.Errorf("page_count: %w", err)
	}

	return process.NewProcess(pid, arrival, bursts, priority, pageCount), nil
}

// parseBursts parses a comma-separated list of CPU(n) or E/S(n) tokens.
func parseBursts(field string) ([]process.Burst, error) {
	tokens := strings.Split(field, ",")
	bursts := make([]process.Burst, 0, len(tokens))
	for _, tok := range tokens {
		b, err := parseBurst(tok)
		if err != nil {
			return nil, err
		}
		bursts = append(bursts, b)
	}
	return bursts, nil
}

func parseBurst(tok string) (process.Burst, error) {
	open := strings.IndexByte(tok, '(')
	if open < 0 || !strings.HasSuffix(tok, ")") {
		return process.Burst{}, fmt.Errorf("malformed burst token %q", tok)
	}
	kind := tok[:open]
	durStr := tok[open+1 : len(tok)-1]

	var burstType process.BurstType
	switch kind {
	case "CPU":
		burstType = process.BurstCPU
	case "E/S":
		burstType = process.BurstIO
	default:
		return process.Burst{}, fmt.Errorf("unknown burst kind %q", kind)
	}

	dur, err := strconv.Atoi(durStr)
	if err != nil {
		return process.Burst{}, fmt.Errorf("burst duration %q: %w", durStr, err)
	}
	if dur < 1 {
		return process.Burst{}, fmt.Errorf("burst duration must be >= 1, got %d", dur)
	}

	return process.Burst{Type: burstType, Duration: dur}, nil
}
