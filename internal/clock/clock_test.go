package clock

import (
	"testing"
	"time"
)

// steppedNow returns a now func whose value is controlled through *cur.
func steppedNow(cur *time.Time) func() time.Time {
	return func() time.Time { return *cur }
}

func TestClockUnsyncedBeforeFloor(t *testing.T) {
	cur := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(steppedNow(&cur), time.Time{})

	cur = cur.Add(90 * time.Second)
	ts := c.Now()
	if ts.Synced {
		t.Fatal("expected unsynced timestamp before floor")
	}
	if ts.Uptime != 90*time.Second {
		t.Errorf("uptime: got %v, want 90s", ts.Uptime)
	}
	if ts.String() != "UPTIME+90s" {
		t.Errorf("string: got %q", ts.String())
	}
}

func TestClockSyncedAfterFloor(t *testing.T) {
	cur := time.Date(2026, 2, 19, 10, 0, 0, 0, time.UTC)
	c := New(steppedNow(&cur), time.Time{})
	if !c.Synced() {
		t.Error("expected synced when system clock is past floor")
	}
}

func TestClockOperatorSync(t *testing.T) {
	cur := time.Date(1970, 1, 1, 0, 5, 0, 0, time.UTC)
	c := New(steppedNow(&cur), time.Time{})

	wall := time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC)
	c.Sync(wall)

	cur = cur.Add(10 * time.Second)
	ts := c.Now()
	if !ts.Synced {
		t.Fatal("expected synced after Sync")
	}
	if !ts.Wall.Equal(wall.Add(10 * time.Second)) {
		t.Errorf("wall: got %v, want %v", ts.Wall, wall.Add(10*time.Second))
	}
	if ts.DateKey() != "20260219" {
		t.Errorf("date key: got %q", ts.DateKey())
	}
	if c.Uptime() != 10*time.Second {
		t.Errorf("uptime: got %v, want 10s", c.Uptime())
	}
}
