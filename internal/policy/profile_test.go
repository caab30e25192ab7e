package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	cases := []struct {
		in      string
		want    Profile
		wantErr bool
	}{
		{"STRICT", ProfileStrict, false},
		{"RESOURCE-AWARE", ProfileResourceAware, false},
		{"LEARNING", ProfileLearning, false},
		{"strict", "", true},
		{"", "", true},
		{"BOGUS", "", true},
	}
	for _, tc := range cases {
		got, err := ParseProfile(tc.in)
		if tc.wantErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
}

func TestTablesCoverEveryProfile(t *testing.T) {
	for _, p := range []Profile{ProfileStrict, ProfileResourceAware, ProfileLearning} {
		tbl, err := Lookup(p)
		require.NoError(t, err)
		require.Equal(t, p, tbl.Profile)
		require.NotEmpty(t, tbl.AllowedSyscalls)
		require.Contains(t, tbl.AllowedSyscalls, "execve")
	}
}

func TestStrictDeniesFork(t *testing.T) {
	tbl, err := Lookup(ProfileStrict)
	require.NoError(t, err)
	require.False(t, tbl.AllowDescendantForks)
	require.NotContains(t, tbl.AllowedSyscalls, "fork")
	require.NotContains(t, tbl.AllowedSyscalls, "clone")
}

func TestLearningHasNoAddressSpaceCeiling(t *testing.T) {
	tbl, err := Lookup(ProfileLearning)
	require.NoError(t, err)
	require.Zero(t, tbl.RLimits.AddressSpace)
}

func TestLookupRejectsUnknownProfile(t *testing.T) {
	_, err := Lookup(Profile("nonsense"))
	require.Error(t, err)
}

func TestStrictHasNoWritablePaths(t *testing.T) {
	tbl, err := Lookup(ProfileStrict)
	require.NoError(t, err)
	require.Empty(t, tbl.WritablePathGlobs)
}

func TestLearningWritablePathsIncludeHome(t *testing.T) {
	tbl, err := Lookup(ProfileLearning)
	require.NoError(t, err)
	require.Contains(t, tbl.WritablePathGlobs, "/home/**")
}
