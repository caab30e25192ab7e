//go:build linux

package supervisor

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/agentsh/agentsh/internal/procstat"
	"github.com/agentsh/agentsh/internal/telemetry"
	"github.com/stretchr/testify/require"
)

func TestCpuPercentZeroElapsedIsZero(t *testing.T) {
	require.Zero(t, cpuPercent(procstat.Sample{}, procstat.Sample{}, 0))
}

func TestCpuPercentComputesFromTickDelta(t *testing.T) {
	prev := procstat.Sample{UtimeTicks: 0, StimeTicks: 0}
	cur := procstat.Sample{UtimeTicks: 50, StimeTicks: 0} // 0.5s of CPU time at clkTck=100
	pct := cpuPercent(prev, cur, 500*time.Millisecond)    // over 0.5s wall clock => 100%
	require.InDelta(t, 100, pct, 1)
}

func TestCpuPercentNeverNegative(t *testing.T) {
	prev := procstat.Sample{UtimeTicks: 100}
	cur := procstat.Sample{UtimeTicks: 10} // clock went "backwards" (process restarted pid reuse)
	require.Zero(t, cpuPercent(prev, cur, time.Second))
}

func TestClassifyNilErrorIsExited(t *testing.T) {
	cl := classify(nil)
	require.Equal(t, ReasonExited, cl.ExitReason)
	require.Equal(t, 0, cl.ExitCode)
}

func TestClassifyNonExitErrorIsSignaled(t *testing.T) {
	cl := classify(&exec.Error{Name: "x", Err: syscall.ENOENT})
	require.Equal(t, ReasonSignaled, cl.ExitReason)
}

func TestClassifySigkillIsKilledByOS(t *testing.T) {
	cmd := exec.Command("sh", "-c", "kill -KILL $$")
	waitErr := cmd.Run()
	require.Error(t, waitErr)

	cl := classify(waitErr)
	require.Equal(t, ReasonKilledByOS, cl.ExitReason)
	require.Equal(t, "SIG9", cl.Signal)
}

func TestClassifySigsysIsSecurityViolationWithNumericSignalName(t *testing.T) {
	cmd := exec.Command("sh", "-c", "kill -SYS $$")
	waitErr := cmd.Run()
	require.Error(t, waitErr)

	cl := classify(waitErr)
	require.Equal(t, ReasonSecurityViolation, cl.ExitReason)
	require.Equal(t, "SIG31", cl.Signal)
}

func TestBuildSummaryComputesPeakAndAverageCPU(t *testing.T) {
	rec := telemetry.NewRecorder(1234, "/bin/true", "STRICT")
	rec.Add(telemetry.Sample{TimeMS: 0, CPUPercent: 10, MemoryKB: 1000})
	rec.Add(telemetry.Sample{TimeMS: 100, CPUPercent: 20, MemoryKB: 3000})

	summary := buildSummary(rec, time.Now(), procstat.Sample{MinFlt: 4, MajFlt: 1}, classified{ExitCode: 0, ExitReason: ReasonExited})
	require.Equal(t, int64(3000), summary.MemoryPeakKB)
	require.Equal(t, 15, summary.CPUUsagePercent)
	require.Equal(t, uint64(4), summary.PageFaultsMinor)
	require.Equal(t, uint64(1), summary.PageFaultsMajor)
	require.Equal(t, "EXITED", summary.ExitReason)
}

func TestBuildSummaryMarksUnknownBlockedSyscallOnViolation(t *testing.T) {
	rec := telemetry.NewRecorder(1234, "/bin/true", "STRICT")
	summary := buildSummary(rec, time.Now(), procstat.Sample{}, classified{ExitReason: ReasonSecurityViolation, Signal: "SIGSYS"})
	require.Equal(t, "unknown", summary.BlockedSyscall)
	require.Equal(t, "SIGSYS", summary.TerminationSignal)
}

func TestMemoryKBFallsBackWhenNoCgroup(t *testing.T) {
	// With no cgroup and an unreadable pid, memoryKB degrades to zero
	// rather than erroring — it backstops telemetry collection, not the run.
	require.Zero(t, memoryKB(nil, 1<<30))
}
