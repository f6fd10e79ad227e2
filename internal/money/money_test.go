package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRound2_HalfUp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1.00"},
		{"232.6", "232.60"},
		{"-1.005", "-1.01"},
		{"0.125", "0.13"},
	}

	for _, tt := range tests {
		got := Round2(MustParse(tt.in))
		if got.StringFixed(2) != tt.want {
			t.Errorf("Round2(%s) = %s, want %s", tt.in, got.StringFixed(2), tt.want)
		}
	}
}

func TestRound4_HalfUp(t *testing.T) {
	got := Round4(MustParse("0.33335"))
	if !got.Equal(MustParse("0.3334")) {
		t.Errorf("Round4(0.33335) = %s, want 0.3334", got)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"whole", "100", "100", true},
		{"fraction", "1.50", "1.5", true},
		{"negative", "-3.25", "-3.25", true},
		{"empty", "", "0", true},
		{"padded", "  42.1 ", "42.1", true},
		{"letters", "abc", "0", false},
		{"exponent", "1e3", "0", false},
		{"two dots", "1.2.3", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			if ok != tt.ok {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if !got.Equal(MustParse(tt.want)) {
				t.Errorf("Parse(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestMustParse_PanicsOnGarbage(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustParse("not-a-number")
}

func TestClamp(t *testing.T) {
	lo, hi := decimal.Zero, MustParse("1.5")
	if got := Clamp(MustParse("9.99"), lo, hi); !got.Equal(hi) {
		t.Errorf("Clamp above = %s", got)
	}
	if got := Clamp(MustParse("-2"), lo, hi); !got.Equal(lo) {
		t.Errorf("Clamp below = %s", got)
	}
	if got := Clamp(MustParse("1.163"), lo, hi); !got.Equal(MustParse("1.163")) {
		t.Errorf("Clamp inside = %s", got)
	}
}

func TestFormatAndSum(t *testing.T) {
	total := Sum(MustParse("116.30"), MustParse("46.52"), MustParse("69.78"))
	if Format(total, 2) != "232.60" {
		t.Errorf("Format(Sum) = %s, want 232.60", Format(total, 2))
	}
	if !Sum().IsZero() {
		t.Error("empty Sum should be zero")
	}
}
