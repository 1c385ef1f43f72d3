package models

import "testing"

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  Severity
	}{
		{"single event is low", 1, SeverityLow},
		{"second event escalates to medium", 2, SeverityMedium},
		{"below high stays medium", 4, SeverityMedium},
		{"fifth event escalates to high", 5, SeverityHigh},
		{"beyond high stays high", 50, SeverityHigh},
		{"zero count is low", 0, SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeverityFor(tt.count, DefaultThresholds); got != tt.want {
				t.Errorf("SeverityFor(%d) = %q, want %q", tt.count, got, tt.want)
			}
		})
	}
}

func TestSeverityFor_CustomThresholds(t *testing.T) {
	th := Thresholds{Medium: 10, High: 100}

	if got := SeverityFor(9, th); got != SeverityLow {
		t.Errorf("SeverityFor(9) = %q, want Low", got)
	}
	if got := SeverityFor(10, th); got != SeverityMedium {
		t.Errorf("SeverityFor(10) = %q, want Medium", got)
	}
	if got := SeverityFor(100, th); got != SeverityHigh {
		t.Errorf("SeverityFor(100) = %q, want High", got)
	}
}

func TestSeverityFor_Monotonic(t *testing.T) {
	rank := map[Severity]int{SeverityLow: 0, SeverityMedium: 1, SeverityHigh: 2}

	prev := SeverityFor(1, DefaultThresholds)
	for count := 2; count <= 20; count++ {
		cur := SeverityFor(count, DefaultThresholds)
		if rank[cur] < rank[prev] {
			t.Fatalf("severity decreased from %q to %q at count %d", prev, cur, count)
		}
		prev = cur
	}
}
