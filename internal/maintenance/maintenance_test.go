package maintenance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeSessions struct {
	maxIdle time.Duration
	pruned  int
}

func (f *fakeSessions) PruneIdle(maxIdle time.Duration) int {
	f.maxIdle = maxIdle
	return f.pruned
}

type fakeStore struct {
	jobCutoff   time.Time
	eventCutoff time.Time
}

func (f *fakeStore) PruneFinishedJobs(_ context.Context, before time.Time) (int64, error) {
	f.jobCutoff = before
	return 2, nil
}

func (f *fakeStore) PruneAnalyticsEvents(_ context.Context, before time.Time) (int64, error) {
	f.eventCutoff = before
	return 3, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepSessionsUsesConfiguredIdle(t *testing.T) {
	sessions := &fakeSessions{pruned: 4}
	service := New(Config{SessionIdle: 30 * time.Minute}, sessions, nil, testLogger())

	service.SweepSessions()
	if sessions.maxIdle != 30*time.Minute {
		t.Fatalf("unexpected idle cutoff %s", sessions.maxIdle)
	}
}

func TestSweepRetentionCutoffs(t *testing.T) {
	store := &fakeStore{}
	service := New(Config{
		JobRetention:       24 * time.Hour,
		AnalyticsRetention: 48 * time.Hour,
	}, nil, store, testLogger())
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	service.SweepRetention(context.Background())
	if !store.jobCutoff.Equal(fixed.Add(-24 * time.Hour)) {
		t.Fatalf("unexpected job cutoff %s", store.jobCutoff)
	}
	if !store.eventCutoff.Equal(fixed.Add(-48 * time.Hour)) {
		t.Fatalf("unexpected event cutoff %s", store.eventCutoff)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	service := New(Config{}, &fakeSessions{}, &fakeStore{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- service.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop on cancel")
	}
}
