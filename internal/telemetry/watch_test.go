package telemetry

import (
	"testing"
)

func TestIsRunLog(t *testing.T) {
	cases := map[string]bool{
		"/logs/run_1700000000.json": true,
		"/logs/run_1700000000.txt":  false,
		"/logs/other.json":          false,
		"/logs/run_.json":           true,
	}
	for path, want := range cases {
		if got := isRunLog(path); got != want {
			t.Errorf("isRunLog(%q) = %v, want %v", path, got, want)
		}
	}
}
