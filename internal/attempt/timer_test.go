package attempt

import (
	"testing"
	"time"
)

var baseStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func TestDeadline(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		wantOK  bool
		want    time.Time
	}{
		{name: "timed", minutes: 30, wantOK: true, want: baseStart.Add(30 * time.Minute)},
		{name: "untimed zero", minutes: 0, wantOK: false},
		{name: "untimed negative", minutes: -5, wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Deadline(baseStart, tc.minutes)
			if ok != tc.wantOK {
				t.Fatalf("expected ok=%v, got=%v", tc.wantOK, ok)
			}
			if ok && !got.Equal(tc.want) {
				t.Fatalf("expected deadline=%v, got=%v", tc.want, got)
			}
		})
	}
}

func TestRemainingSeconds(t *testing.T) {
	tests := []struct {
		name        string
		minutes     int
		now         time.Time
		want        int64
		wantLimited bool
	}{
		{name: "at start", minutes: 30, now: baseStart, want: 1800, wantLimited: true},
		{name: "midway", minutes: 30, now: baseStart.Add(10 * time.Minute), want: 1200, wantLimited: true},
		{name: "at deadline", minutes: 30, now: baseStart.Add(30 * time.Minute), want: 0, wantLimited: true},
		{name: "past deadline clamped", minutes: 30, now: baseStart.Add(45 * time.Minute), want: 0, wantLimited: true},
		{name: "untimed", minutes: 0, now: baseStart.Add(time.Hour), want: 0, wantLimited: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, limited := RemainingSeconds(baseStart, tc.minutes, tc.now)
			if limited != tc.wantLimited {
				t.Fatalf("expected limited=%v, got=%v", tc.wantLimited, limited)
			}
			if got != tc.want {
				t.Fatalf("expected remaining=%d, got=%d", tc.want, got)
			}
		})
	}
}

func TestExpired(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		now     time.Time
		want    bool
	}{
		{name: "before deadline", minutes: 30, now: baseStart.Add(29 * time.Minute), want: false},
		{name: "exactly at deadline", minutes: 30, now: baseStart.Add(30 * time.Minute), want: false},
		{name: "one second past", minutes: 30, now: baseStart.Add(30*time.Minute + time.Second), want: true},
		{name: "untimed never expires", minutes: 0, now: baseStart.Add(1000 * time.Hour), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Expired(baseStart, tc.minutes, tc.now); got != tc.want {
				t.Fatalf("expected expired=%v, got=%v", tc.want, got)
			}
		})
	}
}

func TestElapsedSeconds(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		now     time.Time
		want    int64
	}{
		{name: "within limit", minutes: 30, now: baseStart.Add(10 * time.Minute), want: 600},
		{name: "clamped to limit", minutes: 30, now: baseStart.Add(90 * time.Minute), want: 1800},
		{name: "untimed not clamped", minutes: 0, now: baseStart.Add(90 * time.Minute), want: 5400},
		{name: "clock skew before start", minutes: 30, now: baseStart.Add(-time.Minute), want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ElapsedSeconds(baseStart, tc.minutes, tc.now); got != tc.want {
				t.Fatalf("expected elapsed=%d, got=%d", tc.want, got)
			}
		})
	}
}
