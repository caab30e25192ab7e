//go:build linux

package procstat

import "testing"

func TestParseStat(t *testing.T) {
	// A synthetic line with a comm field containing spaces and a
	// trailing paren, to exercise the last-')' scan.
	line := "1234 (my weird (proc)) S 1 1234 1234 0 -1 4194560 10 5 3 2 100 50 0 0 20 0 1 0"
	s, err := parseStat(line)
	if err != nil {
		t.Fatalf("parseStat: %v", err)
	}
	if s.MinFlt != 15 { // minflt(10) + cminflt(5)
		t.Errorf("MinFlt = %d, want 15", s.MinFlt)
	}
	if s.MajFlt != 5 { // majflt(3) + cmajflt(2)
		t.Errorf("MajFlt = %d, want 5", s.MajFlt)
	}
	if s.UtimeTicks != 100 {
		t.Errorf("UtimeTicks = %d, want 100", s.UtimeTicks)
	}
	if s.StimeTicks != 50 {
		t.Errorf("StimeTicks = %d, want 50", s.StimeTicks)
	}
}

func TestParseStatTooShort(t *testing.T) {
	if _, err := parseStat("1234 (sh) S 1"); err == nil {
		t.Error("expected error for truncated stat line")
	}
}

func TestParseStatMalformed(t *testing.T) {
	if _, err := parseStat("no closing paren here"); err == nil {
		t.Error("expected error for missing ')'")
	}
}

func TestReadMissingProcess(t *testing.T) {
	if _, err := Read(1 << 30); err == nil {
		t.Error("expected error reading stat of nonexistent pid")
	}
}

func TestVmPeakKBMissingProcess(t *testing.T) {
	if _, err := VmPeakKB(1 << 30); err == nil {
		t.Error("expected error reading status of nonexistent pid")
	}
}
