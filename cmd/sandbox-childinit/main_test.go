//go:build linux && cgo

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadPolicyMissingEnv(t *testing.T) {
	t.Setenv("SANDBOX_POLICY", "")
	_, err := loadPolicy()
	require.Error(t, err)
}

func TestLoadPolicyInvalidJSON(t *testing.T) {
	t.Setenv("SANDBOX_POLICY", "{not json")
	_, err := loadPolicy()
	require.Error(t, err)
}

func TestLoadPolicyRoundTrips(t *testing.T) {
	t.Setenv("SANDBOX_POLICY", `{"Profile":"STRICT","AllowedSyscalls":["read","write"],"RLimits":{"StackBytes":1048576},"CloneFlags":131072}`)
	table, err := loadPolicy()
	require.NoError(t, err)
	require.Equal(t, "STRICT", string(table.Profile))
	require.Equal(t, []string{"read", "write"}, table.AllowedSyscalls)
	require.Equal(t, uint64(1048576), table.RLimits.StackBytes)
}
