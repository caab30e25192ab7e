// Package telemetry accumulates the per-run sample timeline and writes
// the post-mortem JSON log the launcher's external interface promises:
// logs/run_<unix_seconds>.json.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// MaxSamples caps the timeline buffer at 1000 entries (100 seconds at
// the supervisor's 100ms sampling cadence), matching the original
// launcher's MAX_SAMPLES. Once full, Recorder stops appending new
// samples rather than growing or evicting; the summary is still built
// from whatever was collected.
const MaxSamples = 1000

// Sample is one point on the timeline.
type Sample struct {
	TimeMS       int64 `json:"time_ms"`
	CPUPercent   int   `json:"cpu_percent"`
	MemoryKB     int64 `json:"memory_kb"`
}

// Summary is the run's post-mortem record.
type Summary struct {
	Program              string  `json:"program"`
	Profile              string  `json:"profile"`
	RuntimeMS            int64   `json:"runtime_ms"`
	CPUUsagePercent      int     `json:"cpu_usage_percent"`
	MemoryPeakKB         int64   `json:"memory_peak_kb"`
	VmPeakKB             int64   `json:"vm_peak_kb"`
	PageFaultsMinor      uint64  `json:"page_faults_minor"`
	PageFaultsMajor      uint64  `json:"page_faults_major"`
	TerminationSignal    string  `json:"termination_signal"`
	BlockedSyscall       string  `json:"blocked_syscall"`
	ExitReason           string  `json:"exit_reason"`
	MemoryGrowthRateKBPS float64 `json:"memory_growth_rate_kb_per_sec"`
}

// Log is the full on-disk record: the summary plus the sampled timeline,
// shaped as parallel arrays so the schema matches the external log
// interface exactly.
type Log struct {
	Pid       int     `json:"pid"`
	Program   string  `json:"program"`
	Profile   string  `json:"profile"`
	Summary   Summary `json:"summary"`
	Timeline  struct {
		TimeMS     []int64 `json:"time_ms"`
		CPUPercent []int   `json:"cpu_percent"`
		MemoryKB   []int64 `json:"memory_kb"`
	} `json:"timeline"`
}

// Recorder accumulates samples for a single run.
type Recorder struct {
	pid     int
	program string
	profile string
	samples []Sample
}

// NewRecorder starts a fresh recorder for one run.
func NewRecorder(pid int, program, profile string) *Recorder {
	return &Recorder{pid: pid, program: program, profile: profile}
}

// Add appends a sample to the timeline, silently dropping samples past
// MaxSamples rather than erroring — a run that outlives the buffer still
// gets a log, just with a truncated timeline.
func (r *Recorder) Add(s Sample) {
	if len(r.samples) >= MaxSamples {
		return
	}
	r.samples = append(r.samples, s)
}

// Samples returns the collected timeline (read-only use expected).
func (r *Recorder) Samples() []Sample {
	return r.samples
}

// MemoryGrowthRateKBPerSec fits a least-squares slope over the memory
// timeline, following the reference dashboard's
// get_memory_growth_rate: a flat timeline yields 0.
func (r *Recorder) MemoryGrowthRateKBPerSec() float64 {
	n := len(r.samples)
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, s := range r.samples {
		x := float64(i)
		y := float64(s.MemoryKB)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slopePerSample := (fn*sumXY - sumX*sumY) / denom
	if math.IsNaN(slopePerSample) || math.IsInf(slopePerSample, 0) {
		return 0
	}

	// Samples are taken on a fixed ~100ms cadence; convert per-sample
	// slope to per-second.
	intervalSec := 0.1
	if len(r.samples) >= 2 {
		span := float64(r.samples[n-1].TimeMS-r.samples[0].TimeMS) / 1000.0
		if span > 0 {
			intervalSec = span / float64(n-1)
		}
	}
	if intervalSec <= 0 {
		return slopePerSample
	}
	return slopePerSample / intervalSec
}

// BuildLog assembles the final Log from the accumulated timeline and a
// caller-supplied summary (the supervisor fills in exit classification
// fields that the recorder itself has no visibility into).
func (r *Recorder) BuildLog(summary Summary) Log {
	summary.Program = r.program
	summary.Profile = r.profile
	summary.MemoryGrowthRateKBPS = r.MemoryGrowthRateKBPerSec()

	log := Log{Pid: r.pid, Program: r.program, Profile: r.profile, Summary: summary}
	for _, s := range r.samples {
		log.Timeline.TimeMS = append(log.Timeline.TimeMS, s.TimeMS)
		log.Timeline.CPUPercent = append(log.Timeline.CPUPercent, s.CPUPercent)
		log.Timeline.MemoryKB = append(log.Timeline.MemoryKB, s.MemoryKB)
	}
	return log
}

// Write serializes log to logDir/run_<unixSeconds>.json, creating logDir
// if needed. It returns the path written.
func Write(logDir string, unixSeconds int64, log Log) (string, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure log directory: %w", err)
	}
	path := filepath.Join(logDir, fmt.Sprintf("run_%d.json", unixSeconds))

	b, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal telemetry log: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write telemetry log: %w", err)
	}
	return path, nil
}
