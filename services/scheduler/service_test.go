package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"metabattery/models"
)

type fakeRefresher struct {
	mu        sync.Mutex
	stale     []models.Item
	refreshed []string
	failIDs   map[string]bool
}

func (f *fakeRefresher) StaleItems() ([]models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale, nil
}

func (f *fakeRefresher) RefreshItem(ctx context.Context, imdbID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[imdbID] {
		return errors.New("upstream down")
	}
	f.refreshed = append(f.refreshed, imdbID)
	return nil
}

func (f *fakeRefresher) refreshedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refreshed...)
}

func TestRunOnceRefreshesStaleItems(t *testing.T) {
	refresher := &fakeRefresher{
		stale: []models.Item{
			{IMDBID: "tt0000001"},
			{IMDBID: "tt0000002"},
			{IMDBID: "tt0000003"},
		},
	}
	svc := NewService(refresher, time.Hour)

	svc.RunOnce(context.Background())

	got := refresher.refreshedIDs()
	if len(got) != 3 {
		t.Fatalf("refreshed %d items, want 3: %v", len(got), got)
	}
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	refresher := &fakeRefresher{
		stale: []models.Item{
			{IMDBID: "tt0000001"},
			{IMDBID: "tt0000002"},
			{IMDBID: "tt0000003"},
		},
		failIDs: map[string]bool{"tt0000002": true},
	}
	svc := NewService(refresher, time.Hour)

	svc.RunOnce(context.Background())

	got := refresher.refreshedIDs()
	if len(got) != 2 {
		t.Fatalf("refreshed %d items, want 2 despite one failure: %v", len(got), got)
	}
}

func TestStartRunsInitialSweepAndStops(t *testing.T) {
	refresher := &fakeRefresher{stale: []models.Item{{IMDBID: "tt0000001"}}}
	svc := NewService(refresher, time.Hour)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(refresher.refreshedIDs()) == 0 {
		select {
		case <-deadline:
			t.Fatal("initial sweep never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Stop is idempotent.
	if err := svc.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestStartTwiceIsNoOp(t *testing.T) {
	refresher := &fakeRefresher{}
	svc := NewService(refresher, time.Hour)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
