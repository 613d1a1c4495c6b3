package jsonld

import "testing"

func TestParseDurationMinutes(t *testing.T) {
	tests := []struct {
		input   string
		minutes int
		ok      bool
	}{
		{"PT1H30M", 90, true},
		{"PT30M", 30, true},
		{"PT2H", 120, true},
		{"P1DT2H30M", 1590, true},
		{"P2D", 2880, true},
		{"PT45S", 1, true},
		{"PT29S", 1, true},
		{"PT1M29S", 1, true},
		{"PT1M30S", 2, true},
		{"PT0H0M", 0, false},
		{"PT0S", 0, false},
		{"P", 0, false},
		{"PT", 0, false},
		{"", 0, false},
		{"90 minutes", 0, false},
		{"P1Y", 0, false},
		{"PT1.5H", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			minutes, ok := parseDurationMinutes(tt.input)
			if ok != tt.ok {
				t.Fatalf("parseDurationMinutes(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if minutes != tt.minutes {
				t.Errorf("parseDurationMinutes(%q) = %d, want %d", tt.input, minutes, tt.minutes)
			}
		})
	}
}
