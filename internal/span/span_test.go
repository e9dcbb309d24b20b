package span

import (
	"errors"
	"testing"
)

func TestParseValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Span
	}{
		{"1h", New(0, 1, 0)},
		{"30m", New(0, 0, 30)},
		{"1h30m", New(0, 1, 30)},
		{"1d 7:0", New(1, 7, 0)},
		{"1d7:04", New(1, 7, 4)},
		{"1d 7:04", New(1, 7, 4)},
		{"1d 7h 04m", New(1, 7, 4)},
		{"1d 7h 04min", New(1, 7, 4)},
		{"7:4", New(0, 7, 4)},
		{"07:04", New(0, 7, 4)},
		{"90m", New(0, 1, 30)},
		{"1d2h5m", New(1, 2, 5)},
		{"1hr", New(0, 1, 0)},
		{"45", New(0, 0, 45)},
		{"60m", New(0, 1, 0)},
		{"1h 60m", New(0, 2, 0)},
		{"2h", New(0, 2, 0)},
		{"1d 0:59", New(1, 0, 59)},
		{"1H30M", New(0, 1, 30)},
		{"1 hour 5 minutes", New(0, 1, 5)},
		{"2hours", New(0, 2, 0)},
		{"15mins", New(0, 0, 15)},
		{"1d2h", New(1, 2, 0)},
		{"2h  5m", New(0, 2, 5)},
		{"\t 2h\n5m ", New(0, 2, 5)},
		{"0m", New(0, 0, 0)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %v (%dm), want %v (%dm)", tt.in, got, got.Minutes(), tt.want, tt.want.Minutes())
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	for _, bad := range []string{
		"",
		"   ",
		"abc",
		"1d 7:64",
		"7:99",
		"007:04",
		"1m30",
		"4 8",
	} {
		bad := bad
		t.Run(bad, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse(bad); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Parse(%q) = %v, want ErrInvalid", bad, err)
			}
		})
	}
}

func TestParseZeroIsNotFailure(t *testing.T) {
	t.Parallel()
	got, err := Parse("0m")
	if err != nil {
		t.Fatalf("Parse(0m) error: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("Parse(0m) = %v, want zero span", got)
	}
}

func TestParseFoldsMinutesButNotHours(t *testing.T) {
	t.Parallel()
	a, err := Parse("1h 60m")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	b, err := Parse("2h")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if a != b || a.Minutes() != 120 {
		t.Fatalf("1h 60m = %dm, 2h = %dm; want both 120", a.Minutes(), b.Minutes())
	}

	// 48h stays 48h; hours are never folded into days.
	c, err := Parse("48h")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if c.String() != "2d" {
		// Formatting normalizes by total minutes, so 48h renders as 2d.
		t.Fatalf("48h renders as %q, want 2d", c.String())
	}
}

func TestString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s    Span
		want string
	}{
		{New(0, 0, 0), "0m"},
		{New(0, 0, 5), "5m"},
		{New(0, 2, 0), "2h"},
		{New(0, 1, 30), "1h 30m"},
		{New(1, 7, 4), "1d 7h 4m"},
		{New(1, 0, 59), "1d 59m"},
		{New(2, 0, 0), "2d"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Fatalf("String(%dm) = %q, want %q", tt.s.Minutes(), got, tt.want)
		}
	}
}

// Formatting then parsing must preserve the total-minutes value for every
// normalized day/hour/minute combination.
func TestFormatParseRoundTrip(t *testing.T) {
	t.Parallel()
	for d := 0; d <= 2; d++ {
		for h := 0; h < 24; h++ {
			for m := 0; m < 60; m++ {
				s := New(d, h, m)
				got, err := Parse(s.String())
				if err != nil {
					t.Fatalf("Parse(%q) error: %v", s.String(), err)
				}
				if got != s {
					t.Fatalf("round trip %q: got %dm, want %dm", s.String(), got.Minutes(), s.Minutes())
				}
			}
		}
	}
}
