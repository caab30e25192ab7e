//go:build linux

// Package cgroup is the outer resource backstop: it creates a transient
// cgroup v2 leaf for each run, applies memory/cpu/pids ceilings, and lets
// the supervisor poll for OOM kills and pids-max kills so they can be
// classified precisely instead of folded into a generic signaled exit.
package cgroup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Limits configures the ceilings written into the cgroup before the run's
// pid is attached.
type Limits struct {
	MaxMemoryBytes int64
	CPUQuotaPct    int // percentage of one core; 0 disables the ceiling
	PidsMax        int
}

// Cgroup is a handle to a created cgroup v2 directory.
type Cgroup struct {
	Path string
}

// DetectV2 reports whether the host mounts the unified cgroup v2
// hierarchy.
func DetectV2() bool {
	_, err := os.Stat("/sys/fs/cgroup/cgroup.controllers")
	return err == nil
}

// CurrentDir returns the cgroup v2 directory for the current process.
func CurrentDir() (string, error) {
	b, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(b))
	if line == "" {
		return "", fmt.Errorf("empty /proc/self/cgroup")
	}
	// v2 unified format: "0::/path"
	parts := strings.Split(line, ":")
	if len(parts) < 3 {
		return "", fmt.Errorf("unexpected /proc/self/cgroup: %q", line)
	}
	p := parts[len(parts)-1]
	if p == "" {
		p = "/"
	}
	return filepath.Join("/sys/fs/cgroup", strings.TrimPrefix(p, "/")), nil
}

// Create makes a new cgroup directory named after the run, writes the
// given limits, and attaches pid to it. parentDir defaults to the
// current process's own cgroup when empty.
func Create(parentDir, name string, pid int, lim Limits) (*Cgroup, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	if !DetectV2() {
		return nil, fmt.Errorf("cgroup v2 not available")
	}

	if parentDir == "" {
		cur, err := CurrentDir()
		if err != nil {
			return nil, fmt.Errorf("current cgroup: %w", err)
		}
		parentDir = cur
	}

	dir := filepath.Join(parentDir, sanitizeName(name))

	// Best-effort: the parent must delegate the controllers to its
	// children before a child cgroup can set them itself.
	_ = enableControllers(parentDir, []string{"cpu", "memory", "pids"})

	if err := os.Mkdir(dir, 0o755); err != nil && !errors.Is(err, syscall.EEXIST) {
		return nil, fmt.Errorf("mkdir cgroup: %w", err)
	}

	// Limits are written before the pid is attached so the run is never
	// briefly unconstrained.
	if lim.MaxMemoryBytes > 0 {
		if err := os.WriteFile(filepath.Join(dir, "memory.max"), []byte(strconv.FormatInt(lim.MaxMemoryBytes, 10)), 0o644); err != nil {
			return nil, fmt.Errorf("set memory.max: %w", err)
		}
	}
	if lim.PidsMax > 0 {
		if err := os.WriteFile(filepath.Join(dir, "pids.max"), []byte(strconv.Itoa(lim.PidsMax)), 0o644); err != nil {
			return nil, fmt.Errorf("set pids.max: %w", err)
		}
	}
	if lim.CPUQuotaPct > 0 {
		q, p := cpuMaxFromPct(lim.CPUQuotaPct)
		if err := os.WriteFile(filepath.Join(dir, "cpu.max"), []byte(fmt.Sprintf("%d %d", q, p)), 0o644); err != nil {
			return nil, fmt.Errorf("set cpu.max: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "cgroup.procs"), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return nil, fmt.Errorf("attach pid: %w", err)
	}

	return &Cgroup{Path: dir}, nil
}

// MemoryCurrentKB reads memory.current and converts to KiB, for
// telemetry sampling.
func (c *Cgroup) MemoryCurrentKB() (int64, error) {
	b, err := os.ReadFile(filepath.Join(c.Path, "memory.current"))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, err
	}
	return v / 1024, nil
}

// Violation describes which cgroup-enforced ceiling killed the run.
type Violation struct {
	Resource string // "memory" or "pids"
}

// CheckViolation inspects memory.events/pids.events for a kill the
// kernel already carried out, so the supervisor can classify the exit
// as KILLED_BY_OS instead of a generic signal.
func (c *Cgroup) CheckViolation() (*Violation, error) {
	if count, err := readEventCount(filepath.Join(c.Path, "memory.events"), "oom_kill"); err == nil && count > 0 {
		return &Violation{Resource: "memory"}, nil
	}
	if count, err := readEventCount(filepath.Join(c.Path, "pids.events"), "max"); err == nil && count > 0 {
		return &Violation{Resource: "pids"}, nil
	}
	return nil, nil
}

func readEventCount(path, key string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	sc := bufio.NewScanner(strings.NewReader(string(b)))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 2 && fields[0] == key {
			return strconv.Atoi(fields[1])
		}
	}
	return 0, nil
}

// Close waits briefly for the cgroup to drain and removes it.
func (c *Cgroup) Close(ctx context.Context) error {
	if c == nil || c.Path == "" {
		return nil
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ok, _ := unpopulated(c.Path); ok {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, syscall.ENOENT) {
		return err
	}
	return nil
}

func cpuMaxFromPct(pct int) (quota, period int) {
	period = 100000 // 100ms
	if pct <= 0 {
		return 0, period
	}
	if pct > 100 {
		pct = 100
	}
	quota = period * pct / 100
	if quota < 1000 {
		quota = 1000
	}
	return quota, period
}

func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "sandboxctl"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._-")
	if out == "" {
		return "sandboxctl"
	}
	return out
}

func enableControllers(parentDir string, ctrls []string) error {
	path := filepath.Join(parentDir, "cgroup.subtree_control")
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, c := range ctrls {
		if _, err := f.WriteString("+" + c); err != nil {
			continue // best effort; a controller may already be enabled or unavailable
		}
	}
	return nil
}

func unpopulated(dir string) (bool, error) {
	b, err := os.ReadFile(filepath.Join(dir, "cgroup.events"))
	if err != nil {
		return false, err
	}
	sc := bufio.NewScanner(strings.NewReader(string(b)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "populated ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "populated ")) == "0", nil
		}
	}
	return false, nil
}
