package meeting

import (
	"testing"
	"time"
)

func TestDeriveStatus(t *testing.T) {
	start := time.Date(2021, 6, 1, 14, 0, 0, 0, time.UTC)
	duration := 60 // ends at 15:00

	tests := []struct {
		name   string
		now    time.Time
		stored Status
		want   Status
	}{
		{name: "before start", now: start.Add(-time.Hour), stored: StatusScheduled, want: StatusScheduled},
		{name: "just before start", now: start.Add(-time.Second), stored: StatusScheduled, want: StatusScheduled},
		{name: "at start", now: start, stored: StatusScheduled, want: StatusLive},
		{name: "mid window", now: start.Add(30 * time.Minute), stored: StatusScheduled, want: StatusLive},
		{name: "at end", now: start.Add(60 * time.Minute), stored: StatusScheduled, want: StatusLive},
		{name: "past end", now: start.Add(61 * time.Minute), stored: StatusScheduled, want: StatusCompleted},
		{name: "long past end", now: start.Add(24 * time.Hour), stored: StatusLive, want: StatusCompleted},
		{name: "stored live before end", now: start.Add(45 * time.Minute), stored: StatusLive, want: StatusLive},
		{name: "cancelled is terminal", now: start.Add(30 * time.Minute), stored: StatusCancelled, want: StatusCancelled},
		{name: "cancelled stays past end", now: start.Add(2 * time.Hour), stored: StatusCancelled, want: StatusCancelled},
		{name: "completed is terminal", now: start.Add(-time.Hour), stored: StatusCompleted, want: StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(tt.now, start, duration, tt.stored); got != tt.want {
				t.Errorf("DeriveStatus() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusScheduled: false,
		StatusLive:      false,
		StatusCompleted: true,
		StatusCancelled: true,
	} {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v; want %v", status, got, want)
		}
	}
}
