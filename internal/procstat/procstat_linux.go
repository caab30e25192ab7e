//go:build linux

// Package procstat parses the /proc/<pid>/stat and /proc/<pid>/status
// fields the supervisor samples on its monitoring loop: CPU ticks, page
// fault counts, and peak virtual memory.
package procstat

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Sample is one reading of a process's cumulative counters. Counters are
// cumulative since process start, not deltas; the caller computes rates
// by diffing consecutive samples.
type Sample struct {
	UtimeTicks uint64
	StimeTicks uint64
	MinFlt     uint64
	MajFlt     uint64
}

// Read parses /proc/<pid>/stat. The comm field can itself contain
// spaces or parentheses, so the original launcher's approach of
// scanning from the last ')' rather than splitting on spaces is kept
// here.
func Read(pid int) (Sample, error) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return Sample{}, err
	}
	return parseStat(string(b))
}

func parseStat(line string) (Sample, error) {
	i := strings.LastIndexByte(line, ')')
	if i < 0 || i+2 >= len(line) {
		return Sample{}, fmt.Errorf("malformed /proc/<pid>/stat: %q", line)
	}
	fields := strings.Fields(line[i+2:])
	// Fields after ")  " are: state(0) ppid(1) pgrp(2) session(3) tty_nr(4)
	// tpgid(5) flags(6) minflt(7) cminflt(8) majflt(9) cmajflt(10)
	// utime(11) stime(12) ...
	const minFields = 13
	if len(fields) < minFields {
		return Sample{}, fmt.Errorf("too few fields in /proc/<pid>/stat: %d", len(fields))
	}
	minflt, err := strconv.ParseUint(fields[7], 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("parse minflt: %w", err)
	}
	cminflt, err := strconv.ParseUint(fields[8], 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("parse cminflt: %w", err)
	}
	majflt, err := strconv.ParseUint(fields[9], 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("parse majflt: %w", err)
	}
	cmajflt, err := strconv.ParseUint(fields[10], 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("parse cmajflt: %w", err)
	}
	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("parse utime: %w", err)
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("parse stime: %w", err)
	}

	return Sample{
		UtimeTicks: utime,
		StimeTicks: stime,
		MinFlt:     minflt + cminflt,
		MajFlt:     majflt + cmajflt,
	}, nil
}

// VmPeakKB parses /proc/<pid>/status for the VmPeak line (the process's
// high-water-mark virtual memory size, in KiB).
func VmPeakKB(pid int) (int64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "VmPeak:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "VmPeak:"))
		if len(fields) == 0 {
			return 0, fmt.Errorf("malformed VmPeak line: %q", line)
		}
		return strconv.ParseInt(fields[0], 10, 64)
	}
	return 0, nil // process has no VmPeak line (e.g. already exited)
}
