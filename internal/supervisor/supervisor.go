//go:build linux

// Package supervisor drives the two-process state machine described by
// the launcher's design: it starts cmd/sandbox-childinit (which enters
// the new namespaces, finishes isolation setup, and execs the untrusted
// target), samples /proc and the run's cgroup on a fixed cadence while
// the child runs, reaps it, and classifies how it ended.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/agentsh/agentsh/internal/cgroup"
	"github.com/agentsh/agentsh/internal/isolate"
	"github.com/agentsh/agentsh/internal/policy"
	"github.com/agentsh/agentsh/internal/procstat"
	"github.com/agentsh/agentsh/internal/telemetry"
	"golang.org/x/sys/unix"
)

// clkTck is USER_HZ, the kernel's jiffies-per-second rate that
// /proc/<pid>/stat's utime/stime fields are expressed in. 100 is the
// value on every mainstream Linux distribution; a host that configures
// a different HZ would need this made configurable, but none of the
// corpus this launcher is grounded on does so.
const clkTck = 100

// SampleInterval is the supervisor's monitoring loop cadence.
const SampleInterval = 100 * time.Millisecond

// ExitReason classifies how a run ended, per the launcher's
// termination table.
type ExitReason string

const (
	ReasonExited            ExitReason = "EXITED"
	ReasonSecurityViolation ExitReason = "SECURITY_VIOLATION"
	ReasonKilledByOS        ExitReason = "KILLED_BY_OS"
	ReasonSignaled          ExitReason = "SIGNALED"
)

// RunConfig describes one launch.
type RunConfig struct {
	Profile       policy.Table
	ChildInitPath string // absolute path to the sandbox-childinit binary
	Executable    string
	Args          []string
	CgroupLimits  cgroup.Limits
	CgroupParent  string   // empty uses the supervisor's own cgroup
	RunName       string   // used as the cgroup leaf name
	WritablePaths []string // paths to bind-remount read-write inside the sandbox
	Logger        *slog.Logger
}

// Result is what the supervisor returns once the run has fully exited
// and its log has been written.
type Result struct {
	ExitCode   int
	ExitReason ExitReason
	LogPath    string
}

// Run executes cfg.Executable under the configured profile, samples its
// resource usage at SampleInterval, and writes a telemetry log to
// logDir/run_<unixSeconds>.json once it exits.
func Run(ctx context.Context, logDir string, cfg RunConfig) (Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policyJSON, err := json.Marshal(cfg.Profile)
	if err != nil {
		return Result{}, fmt.Errorf("marshal policy for child-init: %w", err)
	}

	cmd := exec.CommandContext(ctx, cfg.ChildInitPath, append([]string{"--", cfg.Executable}, cfg.Args...)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), "SANDBOX_POLICY="+string(policyJSON))
	if len(cfg.WritablePaths) > 0 {
		cmd.Env = append(cmd.Env, "SANDBOX_WRITABLE_PATHS="+strings.Join(cfg.WritablePaths, ":"))
	}
	cmd.SysProcAttr = isolate.BuildSysProcAttr(cfg.Profile)

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start child-init: %w", err)
	}
	pid := cmd.Process.Pid
	logger.Info("sandbox run started", "pid", pid, "executable", cfg.Executable, "profile", cfg.Profile.Profile)

	cg, cgErr := cgroup.Create(cfg.CgroupParent, cfg.RunName, pid, cfg.CgroupLimits)
	if cgErr != nil {
		// Cgroups are the resource backstop, not a hard prerequisite for
		// running at all: a host without delegated cgroup v2 access still
		// gets rlimit-based containment from the child-init side.
		logger.Warn("cgroup setup failed, continuing with rlimits only", "error", cgErr)
	}

	rec := telemetry.NewRecorder(pid, cfg.Executable, string(cfg.Profile.Profile))
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	start := time.Now()
	var lastSample procstat.Sample
	var haveLastSample bool
	var lastSampleAt time.Time
	var cgViolation *cgroup.Violation
	var vmPeakKB int64

	ticker := time.NewTicker(SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case waitErr := <-waitCh:
			if cg != nil && cgViolation == nil {
				cgViolation, _ = cg.CheckViolation()
			}
			cl := classify(waitErr)
			if cgViolation != nil && cl.ExitReason == ReasonSignaled {
				cl.ExitReason = ReasonKilledByOS
			}
			summary := buildSummary(rec, start, lastSample, cl)
			summary.VmPeakKB = vmPeakKB
			path, werr := telemetry.Write(logDir, time.Now().Unix(), rec.BuildLog(summary))
			if cg != nil {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := cg.Close(closeCtx); err != nil {
					logger.Warn("cgroup cleanup failed", "error", err)
				}
				cancel()
			}
			result := Result{ExitCode: cl.ExitCode, ExitReason: cl.ExitReason}
			if werr != nil {
				return result, werr
			}
			result.LogPath = path
			logger.Info("sandbox run finished", "pid", pid, "exit_reason", result.ExitReason, "exit_code", result.ExitCode, "log", path)
			return result, nil

		case <-ticker.C:
			sample, sampleErr := procstat.Read(pid)
			if sampleErr != nil {
				// The process may have exited between the tick and the
				// read; the waitCh case above will fire shortly.
				continue
			}
			now := time.Now()
			cpuPct := 0
			if haveLastSample {
				cpuPct = cpuPercent(lastSample, sample, now.Sub(lastSampleAt))
			}
			memKB := memoryKB(cg, pid)
			if kb, err := procstat.VmPeakKB(pid); err == nil && kb > vmPeakKB {
				vmPeakKB = kb
			}
			rec.Add(telemetry.Sample{
				TimeMS:     now.Sub(start).Milliseconds(),
				CPUPercent: cpuPct,
				MemoryKB:   memKB,
			})
			lastSample, haveLastSample, lastSampleAt = sample, true, now

			if cg != nil {
				if v, _ := cg.CheckViolation(); v != nil {
					cgViolation = v
				}
			}

		case <-ctx.Done():
			_ = cmd.Process.Signal(syscall.SIGKILL)
		}
	}
}

// memoryKB reads the run's current memory footprint, preferring the
// cgroup's memory.current (covers every process in the tree) and
// falling back to the child-init process's own /proc/<pid>/status
// VmPeak when no cgroup was created.
func memoryKB(cg *cgroup.Cgroup, pid int) int64 {
	if cg != nil {
		if kb, err := cg.MemoryCurrentKB(); err == nil {
			return kb
		}
	}
	if kb, err := procstat.VmPeakKB(pid); err == nil {
		return kb
	}
	return 0
}

func cpuPercent(prev, cur procstat.Sample, elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	curTicks := cur.UtimeTicks + cur.StimeTicks
	prevTicks := prev.UtimeTicks + prev.StimeTicks
	if curTicks < prevTicks {
		return 0
	}
	deltaTicks := curTicks - prevTicks
	deltaSec := float64(deltaTicks) / float64(clkTck)
	pct := (deltaSec / elapsed.Seconds()) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100*1000 {
		return 100 * 1000 // clamp runaway values from clock jitter rather than overflow int
	}
	return int(pct)
}

type classified struct {
	ExitCode   int
	ExitReason ExitReason
	Signal     string
}

func classify(waitErr error) classified {
	if waitErr == nil {
		return classified{ExitCode: 0, ExitReason: ReasonExited}
	}
	exitErr, ok := waitErr.(*exec.ExitError)
	if !ok {
		return classified{ExitCode: -1, ExitReason: ReasonSignaled}
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return classified{ExitCode: exitErr.ExitCode(), ExitReason: ReasonExited}
	}
	if status.Exited() {
		return classified{ExitCode: status.ExitStatus(), ExitReason: ReasonExited}
	}
	if status.Signaled() {
		sig := status.Signal()
		sigName := fmt.Sprintf("SIG%d", int(sig))
		if sig == syscall.Signal(unix.SIGSYS) {
			return classified{ExitCode: -1, ExitReason: ReasonSecurityViolation, Signal: sigName}
		}
		if sig == syscall.SIGKILL {
			return classified{ExitCode: -1, ExitReason: ReasonKilledByOS, Signal: sigName}
		}
		return classified{ExitCode: -1, ExitReason: ReasonSignaled, Signal: sigName}
	}
	return classified{ExitCode: -1, ExitReason: ReasonSignaled}
}

func buildSummary(rec *telemetry.Recorder, start time.Time, last procstat.Sample, result classified) telemetry.Summary {
	s := telemetry.Summary{
		RuntimeMS:         time.Since(start).Milliseconds(),
		PageFaultsMinor:   last.MinFlt,
		PageFaultsMajor:   last.MajFlt,
		TerminationSignal: result.Signal,
		ExitReason:        string(result.ExitReason),
	}
	if result.ExitReason == ReasonSecurityViolation {
		s.BlockedSyscall = "unknown" // the kernel does not report which syscall tripped SIGSYS without PTRACE_O_TRACESECCOMP
	}
	var peak int64
	for _, sample := range rec.Samples() {
		if sample.MemoryKB > peak {
			peak = sample.MemoryKB
		}
	}
	s.MemoryPeakKB = peak
	var totalCPU int
	for _, sample := range rec.Samples() {
		totalCPU += sample.CPUPercent
	}
	if n := len(rec.Samples()); n > 0 {
		s.CPUUsagePercent = totalCPU / n
	}
	return s
}

// Result.ExitCode mirrors the process's own exit status once classified.
func (r Result) String() string {
	return fmt.Sprintf("%s (exit=%d)", r.ExitReason, r.ExitCode)
}
