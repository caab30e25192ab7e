//go:build linux && cgo

// Package seccomp builds and loads the default-kill seccomp-bpf program
// that enforces a profile's syscall allow-list on the isolated child.
package seccomp

import (
	"fmt"

	libseccomp "github.com/seccomp/libseccomp-golang"
)

// FilterConfig describes the allow-list filter to install.
type FilterConfig struct {
	// AllowedSyscalls are permitted; everything else triggers the
	// default action (SCMP_ACT_KILL).
	AllowedSyscalls []string
}

// Filter wraps a loaded seccomp-bpf program. Once Load succeeds the
// filter is live in the kernel for the calling process; there is no way
// to unload it short of exiting the process (which execve preserves).
type Filter struct {
	scmp *libseccomp.ScmpFilter
}

// Install resolves cfg.AllowedSyscalls, builds a default-kill filter with
// one ALLOW rule per resolved syscall, and loads it into the kernel.
// Unknown syscall names are skipped with a descriptive error list rather
// than failing the whole install, since allow-lists are expected to be
// portable across kernel versions that may lack a given syscall number.
func Install(cfg FilterConfig) (*Filter, []string, error) {
	numbers, resolved, skipped := ResolveSyscalls(cfg.AllowedSyscalls)

	filt, err := libseccomp.NewFilter(libseccomp.ActKill)
	if err != nil {
		return nil, skipped, fmt.Errorf("new seccomp filter: %w", err)
	}

	for i, nr := range numbers {
		if err := filt.AddRule(libseccomp.ScmpSyscall(nr), libseccomp.ActAllow); err != nil {
			filt.Release()
			return nil, skipped, fmt.Errorf("add rule for %q: %w", resolved[i], err)
		}
	}

	if err := filt.Load(); err != nil {
		filt.Release()
		return nil, skipped, fmt.Errorf("load seccomp filter: %w", err)
	}

	return &Filter{scmp: filt}, skipped, nil
}

// Release frees the filter's in-process bookkeeping. It does not and
// cannot remove the program from the kernel once loaded.
func (f *Filter) Release() {
	if f == nil || f.scmp == nil {
		return
	}
	f.scmp.Release()
	f.scmp = nil
}
