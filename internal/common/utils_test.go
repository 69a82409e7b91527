package common

import (
	"testing"
	"time"
)

func TestContentHash(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := ContentHash([]byte("abc")); got != want {
		t.Errorf("ContentHash(abc) = %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestDaysInRange(t *testing.T) {
	start := time.Date(2024, 2, 27, 15, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	days := DaysInRange(start, end)
	if len(days) != 5 {
		t.Fatalf("got %d days, want 5 (leap year)", len(days))
	}
	if got := days[2].Format(DayLayout); got != "2024-02-29" {
		t.Errorf("days[2] = %s, want 2024-02-29", got)
	}
	if len(DaysInRange(end, start)) != 0 {
		t.Error("reversed range should be empty")
	}
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2023-12-31")
	if err != nil {
		t.Fatalf("ParseDay failed: %v", err)
	}
	if d.Year() != 2023 || d.Month() != time.December || d.Day() != 31 {
		t.Errorf("ParseDay = %v", d)
	}
	if _, err := ParseDay("12/31/2023"); err == nil {
		t.Error("expected error for wrong layout")
	}
}
