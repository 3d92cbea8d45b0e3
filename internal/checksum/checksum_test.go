package checksum

import (
	"strings"
	"testing"
)

func TestSumKnownVector(t *testing.T) {
	got := Sum([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Sum = %s, want %s", got, want)
	}
}

func TestSumReaderMatchesSum(t *testing.T) {
	data := strings.Repeat("cadence", 1000)
	got, err := SumReader(strings.NewReader(data))
	if err != nil {
		t.Fatalf("SumReader: %v", err)
	}
	if got != Sum([]byte(data)) {
		t.Errorf("SumReader and Sum disagree")
	}
}

func TestActivityIDStable(t *testing.T) {
	fp := Sum([]byte("same bytes"))
	a, b := ActivityID(fp), ActivityID(Sum([]byte("same bytes")))
	if a != b {
		t.Fatalf("ids differ: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "act_") || len(a) != 4+activityIDLen {
		t.Errorf("unexpected id shape %q", a)
	}
	if ActivityID(Sum([]byte("other bytes"))) == a {
		t.Error("different content produced the same id")
	}
}
