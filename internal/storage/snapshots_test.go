package storage

import (
	"errors"
	"testing"
	"time"
)

func TestSnapshotStoreLatestEmpty(t *testing.T) {
	store := NewSnapshotStore(openTestDB(t))

	if _, err := store.Latest(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}
}

func TestSnapshotStoreSaveAndLatest(t *testing.T) {
	store := NewSnapshotStore(openTestDB(t))
	taken := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	first := &Snapshot{TakenAt: taken, TotalAttempts: 1, Phase: "idle", AdaptiveMultiplier: 1}
	if err := store.Save(first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	second := &Snapshot{
		TakenAt:                 taken.Add(time.Minute),
		TotalAttempts:           7,
		SuccessfulReconnections: 2,
		FailedAttempts:          5,
		AverageReconnectionTime: 1500 * time.Millisecond,
		LastSuccessAt:           taken.Add(30 * time.Second),
		CumulativeUptime:        10 * time.Minute,
		Phase:                   "scheduled",
		Reconnecting:            true,
		CircuitOpen:             true,
		FallbackActive:          true,
		AdaptiveMultiplier:      1.21,
	}
	if err := store.Save(second); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Latest()
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("ID = %d, want %d", got.ID, second.ID)
	}
	if !got.TakenAt.Equal(second.TakenAt) || !got.LastSuccessAt.Equal(second.LastSuccessAt) {
		t.Errorf("times = %v/%v, want %v/%v", got.TakenAt, got.LastSuccessAt, second.TakenAt, second.LastSuccessAt)
	}
	if got.AverageReconnectionTime != second.AverageReconnectionTime || got.CumulativeUptime != second.CumulativeUptime {
		t.Errorf("durations = %v/%v", got.AverageReconnectionTime, got.CumulativeUptime)
	}
	if !got.Reconnecting || !got.CircuitOpen || !got.FallbackActive || got.Phase != "scheduled" {
		t.Errorf("flags = %+v", got)
	}
	if got.TotalAttempts != 7 || got.FailedAttempts != 5 || got.SuccessfulReconnections != 2 {
		t.Errorf("counters = %+v", got)
	}
}

func TestSnapshotStoreList(t *testing.T) {
	store := NewSnapshotStore(openTestDB(t))
	for i := 0; i < 5; i++ {
		if err := store.Save(&Snapshot{TotalAttempts: i, Phase: "idle"}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	got, err := store.List(3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].TotalAttempts != 4 {
		t.Errorf("newest total_attempts = %d, want 4", got[0].TotalAttempts)
	}
	if !got[0].LastSuccessAt.IsZero() {
		t.Errorf("zero last success should stay zero, got %v", got[0].LastSuccessAt)
	}
}

func TestSnapshotStorePrune(t *testing.T) {
	store := NewSnapshotStore(openTestDB(t))
	now := time.Now().UTC()
	_ = store.Save(&Snapshot{TakenAt: now.Add(-time.Hour), Phase: "idle"})
	_ = store.Save(&Snapshot{TakenAt: now, Phase: "idle"})

	n, err := store.Prune(now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
}
