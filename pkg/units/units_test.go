package units

import (
	"math"
	"testing"
	"time"
)

func TestKelvinToFahrenheit(t *testing.T) {
	t.Parallel()
	cases := []struct {
		k    float64
		want float64
	}{
		{273.15, 32},
		{373.15, 212},
		{255.372, 0.0196},
		{300, 80.33},
	}
	for _, tc := range cases {
		got := KelvinToFahrenheit(tc.k)
		if math.Abs(got-tc.want) > 0.01 {
			t.Errorf("KelvinToFahrenheit(%v) = %v, want %v", tc.k, got, tc.want)
		}
	}
}

func TestRoundTenth(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   float64
		want float64
	}{
		{45.44, 45.4},
		{45.45, 45.5},
		{45.449, 45.4},
		{-45.45, -45.5},
		{45.0, 45.0},
	}
	for _, tc := range cases {
		if got := RoundTenth(tc.in); got != tc.want {
			t.Errorf("RoundTenth(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRoundHalfUpWhole(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   float64
		want float64
	}{
		{45.5, 46},
		{45.49, 45},
		{45.51, 46},
		{-45.5, -45}, // half-up, not half-away-from-zero
		{-45.51, -46},
		{46.0, 46},
	}
	for _, tc := range cases {
		if got := RoundHalfUpWhole(tc.in); got != tc.want {
			t.Errorf("RoundHalfUpWhole(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDayWindowDST(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	// Standard time: local midnight is 05:00 UTC.
	start, err := DayWindow("2026-01-15", ny)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 1, 15, 5, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("winter window start = %v, want %v", start, want)
	}

	// Daylight time: local midnight is 04:00 UTC.
	start, err = DayWindow("2026-07-15", ny)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 7, 15, 4, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("summer window start = %v, want %v", start, want)
	}
}

func TestLocalDayCrossesMidnight(t *testing.T) {
	t.Parallel()
	ny, _ := time.LoadLocation("America/New_York")

	// 03:00 UTC is still the previous evening in New York.
	utc := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	if got := LocalDay(utc, ny); got != "2026-03-09" {
		t.Errorf("LocalDay = %q, want 2026-03-09", got)
	}
	if got := LocalDay(utc, time.UTC); got != "2026-03-10" {
		t.Errorf("LocalDay UTC = %q, want 2026-03-10", got)
	}
}

func TestNextLocalMidnight(t *testing.T) {
	t.Parallel()
	ny, _ := time.LoadLocation("America/New_York")

	at := time.Date(2026, 1, 15, 18, 30, 0, 0, ny)
	next := NextLocalMidnight(at, ny)
	if want := time.Date(2026, 1, 16, 0, 0, 0, 0, ny).UTC(); !next.Equal(want) {
		t.Errorf("NextLocalMidnight = %v, want %v", next, want)
	}
}

func TestParseDayRejectsBadInput(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"2026-1-5", "20260105", "yesterday", ""} {
		if _, err := ParseDay(s); err == nil {
			t.Errorf("ParseDay(%q) should fail", s)
		}
	}
}
