package tokens

import "testing"

func TestEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"hello world, this is a test", 7},
	}
	for _, tt := range tests {
		if got := Estimate(tt.text); got != tt.want {
			t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestCountText_KnownModel(t *testing.T) {
	counter := NewCounter()

	n := counter.CountText("gpt-4o", "hello world")
	if n <= 0 {
		t.Errorf("CountText() = %d, want > 0", n)
	}
	// Same text, same model: counting is deterministic.
	if again := counter.CountText("gpt-4o", "hello world"); again != n {
		t.Errorf("CountText() not stable: %d then %d", n, again)
	}
}

func TestCountText_UnknownModelFallsBack(t *testing.T) {
	counter := NewCounter()

	// Unknown models resolve to the default encoding and still count.
	if n := counter.CountText("some-future-model", "hello world"); n <= 0 {
		t.Errorf("CountText() = %d, want > 0", n)
	}
}
