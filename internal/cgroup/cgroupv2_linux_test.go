//go:build linux

package cgroup

import "testing"

func TestCpuMaxFromPct(t *testing.T) {
	cases := []struct {
		pct        int
		wantQuota  int
		wantPeriod int
	}{
		{0, 0, 100000},
		{50, 50000, 100000},
		{1, 1000, 100000},
		{2000, 100000, 100000},
	}
	for _, tc := range cases {
		q, p := cpuMaxFromPct(tc.pct)
		if q != tc.wantQuota || p != tc.wantPeriod {
			t.Errorf("cpuMaxFromPct(%d) = (%d, %d), want (%d, %d)", tc.pct, q, p, tc.wantQuota, tc.wantPeriod)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"":              "sandboxctl",
		"run-123":       "run-123",
		"../../escape":  "escape",
		"...":           "sandboxctl",
		"weird name!!!": "weird_name",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
