//go:build linux

// Package isolate performs the namespace-side setup steps that must run
// after clone() enters the new namespaces but before the untrusted image
// replaces the child-init process: mount privatization, a read-only
// rootfs remount, and rlimit application. It is imported by
// cmd/sandbox-childinit, never by the supervisor.
package isolate

import (
	"fmt"
	"os"
	"syscall"

	"github.com/agentsh/agentsh/internal/policy"
	"github.com/gobwas/glob"
	"golang.org/x/sys/unix"
)

// PrivatizeMounts detaches the mount namespace from its parent's
// propagation group so that later mount/remount calls never leak back
// to the host, mirroring launcher.c's first child_fn step
// (mount(NULL, "/", NULL, MS_PRIVATE|MS_REC, NULL)).
func PrivatizeMounts() error {
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("privatize mount namespace: %w", err)
	}
	return nil
}

// RemountRootReadOnly bind-remounts root read-only. A plain remount of "/"
// with MS_RDONLY fails with EINVAL unless "/" is already a bind mount, so
// this first bind-mounts root onto itself (a no-op for the filesystem,
// but it makes the mount a bind mount) and then remounts that bind mount
// read-only.
func RemountRootReadOnly() error {
	if err := unix.Mount("/", "/", "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind-mount root: %w", err)
	}
	if err := unix.Mount("", "/", "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("remount root read-only: %w", err)
	}
	return nil
}

// ApplyRLimits sets RLIMIT_STACK, RLIMIT_NOFILE, RLIMIT_AS, and
// RLIMIT_NPROC from the profile's RLimits vector. A zero field leaves
// the corresponding limit untouched.
func ApplyRLimits(lim policy.RLimits) error {
	if lim.StackBytes > 0 {
		if err := setRlimit(unix.RLIMIT_STACK, lim.StackBytes); err != nil {
			return fmt.Errorf("set RLIMIT_STACK: %w", err)
		}
	}
	if lim.MaxOpenFiles > 0 {
		if err := setRlimit(unix.RLIMIT_NOFILE, lim.MaxOpenFiles); err != nil {
			return fmt.Errorf("set RLIMIT_NOFILE: %w", err)
		}
	}
	if lim.AddressSpace > 0 {
		if err := setRlimit(unix.RLIMIT_AS, lim.AddressSpace); err != nil {
			return fmt.Errorf("set RLIMIT_AS: %w", err)
		}
	}
	if lim.MaxProcesses > 0 {
		if err := setRlimit(unix.RLIMIT_NPROC, lim.MaxProcesses); err != nil {
			return fmt.Errorf("set RLIMIT_NPROC: %w", err)
		}
	}
	return nil
}

func setRlimit(which int, value uint64) error {
	rl := unix.Rlimit{Cur: value, Max: value}
	return unix.Setrlimit(which, &rl)
}

// BuildSysProcAttr constructs the SysProcAttr the supervisor passes to
// exec.Cmd when starting cmd/sandbox-childinit: the profile's clone flags
// plus a single-entry uid/gid mapping so the sandboxed root inside the
// user namespace maps to the invoking user outside it, the same scheme
// used for unprivileged namespace isolation elsewhere in the corpus.
func BuildSysProcAttr(tbl policy.Table) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Cloneflags: uintptr(tbl.CloneFlags),
	}
	if tbl.CloneFlags&unix.CLONE_NEWUSER != 0 {
		attr.UidMappings = []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getuid(), Size: 1},
		}
		attr.GidMappings = []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getgid(), Size: 1},
		}
	}
	return attr
}

// MakePathsWritable bind-remounts each requested path read-write, but
// only when it matches at least one of allowedGlobs. Paths requested
// but not covered by the profile are left read-only and reported back
// so the caller can warn rather than silently ignore them. Called after
// RemountRootReadOnly, once the whole tree is already read-only.
func MakePathsWritable(paths []string, allowedGlobs []string) (denied []string, err error) {
	compiled := make([]glob.Glob, 0, len(allowedGlobs))
	for _, pattern := range allowedGlobs {
		g, compileErr := glob.Compile(pattern, '/')
		if compileErr != nil {
			return nil, fmt.Errorf("compile writable-path glob %q: %w", pattern, compileErr)
		}
		compiled = append(compiled, g)
	}

	for _, path := range paths {
		if !matchesAny(compiled, path) {
			denied = append(denied, path)
			continue
		}
		if err := unix.Mount(path, path, "", unix.MS_BIND, ""); err != nil {
			return denied, fmt.Errorf("bind-mount %s: %w", path, err)
		}
		if err := unix.Mount("", path, "", unix.MS_BIND|unix.MS_REMOUNT, ""); err != nil {
			return denied, fmt.Errorf("remount %s read-write: %w", path, err)
		}
	}
	return denied, nil
}

func matchesAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}
