//go:build linux && cgo

package seccomp

import (
	"fmt"

	libseccomp "github.com/seccomp/libseccomp-golang"
)

// ResolveSyscall converts a syscall name to its number for the current arch.
func ResolveSyscall(name string) (int, error) {
	nr, err := libseccomp.GetSyscallFromName(name)
	if err != nil {
		return 0, fmt.Errorf("unknown syscall %q: %w", name, err)
	}
	return int(nr), nil
}

// ResolveSyscalls converts syscall names to numbers, skipping unknown ones.
// resolved is parallel to numbers (resolved[i] is the name that produced
// numbers[i]), so callers can report a resolution failure against the
// right name rather than indexing back into the original, unfiltered list.
func ResolveSyscalls(names []string) (numbers []int, resolved []string, skipped []string) {
	for _, name := range names {
		nr, err := ResolveSyscall(name)
		if err != nil {
			skipped = append(skipped, name)
			continue
		}
		numbers = append(numbers, nr)
		resolved = append(resolved, name)
	}
	return numbers, resolved, skipped
}
