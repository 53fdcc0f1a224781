package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coti-io/coti-explorer-api-sub000/index"
)

type fakeStore struct {
	samples  map[time.Time]int64
	inserted []index.ConfirmationTimeStats
	failAt   time.Time
}

func (f *fakeStore) QueryConfirmationTimeStatsAt(ctx context.Context, at time.Time, window time.Duration) (index.ConfirmationTimeStats, error) {
	if at.Equal(f.failAt) {
		return index.ConfirmationTimeStats{}, errors.New("query canceled")
	}
	return index.ConfirmationTimeStats{SampleSize: f.samples[at], CreateTime: at}, nil
}

func (f *fakeStore) InsertConfirmationTimeSnapshot(ctx context.Context, stats index.ConfirmationTimeStats) error {
	f.inserted = append(f.inserted, stats)
	return nil
}

func TestSnapshotTimes(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 25, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	times := snapshotTimes(start, end, time.Hour)
	if len(times) != 3 {
		t.Fatalf("expected 3 snapshots, got %v", times)
	}
	if !times[0].Equal(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)) || !times[2].Equal(end) {
		t.Errorf("unexpected snapshot times %v", times)
	}
	if len(snapshotTimes(end, start, time.Hour)) != 0 {
		t.Error("empty range must give no snapshots")
	}
}

func TestBackfillSkipsEmptyWindows(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	times := []time.Time{t0, t0.Add(time.Hour), t0.Add(2 * time.Hour)}
	store := &fakeStore{samples: map[time.Time]int64{t0: 4, t0.Add(2 * time.Hour): 1}}

	written, err := backfill(context.Background(), store, times, 24*time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	if written != 2 || len(store.inserted) != 2 {
		t.Errorf("expected 2 snapshots, got %d", written)
	}
	if !store.inserted[1].CreateTime.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("snapshot must carry its instant, got %v", store.inserted[1].CreateTime)
	}

	store = &fakeStore{samples: map[time.Time]int64{t0: 4}, failAt: t0.Add(time.Hour)}
	written, err = backfill(context.Background(), store, times, 24*time.Hour, nil)
	if err == nil || written != 1 {
		t.Errorf("expected failure after 1 snapshot, got %d, %v", written, err)
	}
}
