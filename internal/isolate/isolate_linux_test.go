//go:build linux

package isolate

import (
	"testing"

	"github.com/agentsh/agentsh/internal/policy"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBuildSysProcAttrSetsUserNamespaceMapping(t *testing.T) {
	tbl, err := policy.Lookup(policy.ProfileStrict)
	require.NoError(t, err)

	attr := BuildSysProcAttr(tbl)
	require.Equal(t, uintptr(tbl.CloneFlags), attr.Cloneflags)
	require.NotEmpty(t, attr.UidMappings)
	require.NotEmpty(t, attr.GidMappings)
	require.Equal(t, 0, attr.UidMappings[0].ContainerID)
}

func TestBuildSysProcAttrSkipsMappingWithoutUserNamespace(t *testing.T) {
	tbl := policy.Table{CloneFlags: unix.CLONE_NEWNS}
	attr := BuildSysProcAttr(tbl)
	require.Empty(t, attr.UidMappings)
	require.Empty(t, attr.GidMappings)
}

func TestApplyRLimitsSkipsZeroFields(t *testing.T) {
	// Zero fields must be no-ops; applying an all-zero vector should never
	// fail regardless of privilege level.
	require.NoError(t, ApplyRLimits(policy.RLimits{}))
}

func TestMakePathsWritableDeniesUnmatchedPaths(t *testing.T) {
	// None of these paths match the glob, so MakePathsWritable returns
	// before issuing any mount syscall and needs no privilege to test.
	denied, err := MakePathsWritable([]string{"/etc/passwd", "/root/secrets"}, []string{"/tmp/**"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"/etc/passwd", "/root/secrets"}, denied)
}

func TestMakePathsWritableRejectsInvalidGlob(t *testing.T) {
	_, err := MakePathsWritable([]string{"/tmp/x"}, []string{"["})
	require.Error(t, err)
}
