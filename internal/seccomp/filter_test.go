//go:build linux && cgo

package seccomp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveSyscallNumbers(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"execve", true},
		{"openat", true},
		{"not_a_real_syscall", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nr, err := ResolveSyscall(tc.name)
			if tc.want {
				require.NoError(t, err)
				require.GreaterOrEqual(t, nr, 0)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestResolveSyscalls(t *testing.T) {
	t.Run("mixed valid and invalid input", func(t *testing.T) {
		names := []string{"read", "not_real", "write", "fake_syscall"}
		numbers, resolved, skipped := ResolveSyscalls(names)
		require.Len(t, numbers, 2)
		require.Equal(t, []string{"read", "write"}, resolved)
		require.Len(t, skipped, 2)
		require.Contains(t, skipped, "not_real")
		require.Contains(t, skipped, "fake_syscall")
	})
}

func TestResolveSyscallsForInstallAllowList(t *testing.T) {
	// Building and loading a real filter would change this test process's
	// own syscall surface for the rest of the run, which would break every
	// later test in the binary; exercise only the resolution step here and
	// leave Install's end-to-end behavior to the child-init integration path.
	numbers, resolved, skipped := ResolveSyscalls([]string{"execve", "brk", "mmap", "bogus_syscall"})
	require.Len(t, numbers, 3)
	require.Equal(t, []string{"execve", "brk", "mmap"}, resolved)
	require.Equal(t, []string{"bogus_syscall"}, skipped)
}
