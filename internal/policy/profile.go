// Package policy holds the static profile tables that drive isolation
// setup: per-profile syscall allow-lists, rlimit vectors, and namespace
// masks. Nothing here touches the kernel; it only describes what the
// isolate and seccomp packages should apply.
package policy

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Profile names a sandbox policy tier.
type Profile string

const (
	ProfileStrict       Profile = "STRICT"
	ProfileResourceAware Profile = "RESOURCE-AWARE"
	ProfileLearning      Profile = "LEARNING"
)

// ParseProfile validates a profile name from the CLI or config file.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileStrict, ProfileResourceAware, ProfileLearning:
		return Profile(s), nil
	default:
		return "", fmt.Errorf("unknown profile %q (want STRICT, RESOURCE-AWARE, or LEARNING)", s)
	}
}

// RLimits is the rlimit vector applied to the child before image
// replacement. Zero fields are left untouched (process retains its
// inherited limit).
type RLimits struct {
	StackBytes   uint64
	MaxOpenFiles uint64
	AddressSpace uint64
	MaxProcesses uint64
}

// Table is everything the isolation setup and syscall filter installer
// need for one profile: the allow-listed syscalls, the rlimit vector,
// and the namespace clone flags.
type Table struct {
	Profile         Profile
	AllowedSyscalls []string
	RLimits         RLimits
	CloneFlags      uintptr
	// AllowDescendantForks records whether the profile's AllowedSyscalls
	// include the fork/clone family. Nothing reads it during setup: the
	// seccomp allow-list alone decides whether the child can fork, and
	// STRICT denies it by omitting fork/clone/vfork from AllowedSyscalls.
	AllowDescendantForks bool
	// WritablePathGlobs are glob patterns (gobwas/glob syntax) matched
	// against a run's requested --writable-path entries after the
	// rootfs is remounted read-only. A requested path that matches none
	// of these is left read-only rather than bind-remounted RW.
	WritablePathGlobs []string
}

// baseSyscalls is the minimal set a dynamically linked ELF binary needs
// to reach main() and exit cleanly, lifted from the original launcher's
// seccomp allow-list.
var baseSyscalls = []string{
	"execve", "brk", "mmap", "munmap", "mprotect",
	"exit_group", "exit", "arch_prctl",
	"write", "writev", "read", "fstat", "lseek", "close",
	"openat", "readlink", "getrandom",
}

var forkSyscalls = []string{"fork", "vfork", "clone", "clone3", "wait4", "execveat"}

var resourceAwareExtras = []string{
	"mmap2", "madvise", "sigaltstack", "rt_sigaction", "rt_sigprocmask",
	"getpid", "gettid", "set_robust_list", "futex", "clock_gettime",
	"clock_nanosleep", "nanosleep", "sched_yield", "getcwd", "stat", "newfstatat",
}

var learningExtras = append(append([]string{}, resourceAwareExtras...),
	"ioctl", "pread64", "pwrite64", "fcntl", "dup", "dup2", "pipe", "pipe2",
	"socket", "connect", "getsockname", "setsockopt", "getsockopt",
)

// Tables is the fixed set of profile tables the launcher ships with.
// Namespace masks match the original launcher.c clone() flags exactly;
// RESOURCE-AWARE and LEARNING additionally permit fork/clone so that
// interpreters (Python, Node) that spawn worker threads or helper
// processes don't fall over immediately under STRICT's single-threaded
// assumption.
var Tables = map[Profile]Table{
	ProfileStrict: {
		Profile:         ProfileStrict,
		AllowedSyscalls: baseSyscalls,
		RLimits: RLimits{
			StackBytes:   8 * 1024 * 1024,
			MaxOpenFiles: 64,
			AddressSpace: 128 * 1024 * 1024,
			MaxProcesses: 20,
		},
		CloneFlags: unix.CLONE_NEWNS | unix.CLONE_NEWPID | unix.CLONE_NEWIPC |
			unix.CLONE_NEWUTS | unix.CLONE_NEWUSER,
		AllowDescendantForks: false,
		WritablePathGlobs:    nil,
	},
	ProfileResourceAware: {
		Profile:         ProfileResourceAware,
		AllowedSyscalls: append(append(append([]string{}, baseSyscalls...), resourceAwareExtras...), forkSyscalls...),
		RLimits: RLimits{
			StackBytes:   16 * 1024 * 1024,
			MaxOpenFiles: 256,
			AddressSpace: 512 * 1024 * 1024,
			MaxProcesses: 64,
		},
		CloneFlags: unix.CLONE_NEWNS | unix.CLONE_NEWPID | unix.CLONE_NEWIPC |
			unix.CLONE_NEWUTS | unix.CLONE_NEWUSER,
		AllowDescendantForks: true,
		WritablePathGlobs:    []string{"/tmp", "/tmp/**", "/var/tmp", "/var/tmp/**"},
	},
	ProfileLearning: {
		Profile:         ProfileLearning,
		AllowedSyscalls: append(append(append([]string{}, baseSyscalls...), learningExtras...), forkSyscalls...),
		RLimits: RLimits{
			StackBytes:   32 * 1024 * 1024,
			MaxOpenFiles: 512,
			AddressSpace: 0, // unbounded: LEARNING exists to observe real usage
			MaxProcesses: 128,
		},
		CloneFlags: unix.CLONE_NEWNS | unix.CLONE_NEWPID | unix.CLONE_NEWIPC |
			unix.CLONE_NEWUTS | unix.CLONE_NEWUSER,
		AllowDescendantForks: true,
		WritablePathGlobs:    []string{"/tmp", "/tmp/**", "/var/tmp", "/var/tmp/**", "/home", "/home/**"},
	},
}

// Lookup returns the table for a profile, erroring on anything not in
// Tables (ParseProfile should normally be called first, but Lookup
// re-validates so callers that build a Profile value by hand can't
// silently get a zero Table).
func Lookup(p Profile) (Table, error) {
	t, ok := Tables[p]
	if !ok {
		return Table{}, fmt.Errorf("no policy table for profile %q", p)
	}
	return t, nil
}
