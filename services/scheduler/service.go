package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"metabattery/models"
)

// maxConcurrentRefreshes bounds how many items are refreshed at once so a
// large stale backlog cannot hammer the upstream.
const maxConcurrentRefreshes = 4

// Refresher is the slice of the metadata service the scheduler drives.
type Refresher interface {
	StaleItems() ([]models.Item, error)
	RefreshItem(ctx context.Context, imdbID string) error
}

// Service periodically walks the store and refreshes items whose metadata
// has gone stale.
type Service struct {
	refresher Refresher
	interval  time.Duration

	// Runtime state
	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a refresh scheduler running every interval.
func NewService(refresher Refresher, interval time.Duration) *Service {
	return &Service{refresher: refresher, interval: interval}
}

// Start begins the background refresh loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.refreshLoop()

	log.Printf("[scheduler] started interval=%s", s.interval)
	return nil
}

// Stop cancels the loop and waits for any in-progress refreshes, bounded by
// ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[scheduler] stopped")
	case <-ctx.Done():
		log.Println("[scheduler] stopped (timeout)")
	}

	s.running = false
	return nil
}

func (s *Service) refreshLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First sweep runs immediately on start.
	s.RunOnce(s.ctx)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(s.ctx)
		}
	}
}

// RunOnce performs a single sweep: list stale items and refresh them with
// bounded concurrency. Individual failures are logged and do not stop the
// sweep.
func (s *Service) RunOnce(ctx context.Context) {
	items, err := s.refresher.StaleItems()
	if err != nil {
		log.Printf("[scheduler] stale scan failed: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}
	log.Printf("[scheduler] refreshing %d stale items", len(items))

	p := pool.New().WithMaxGoroutines(maxConcurrentRefreshes)
	refreshed := 0
	var mu sync.Mutex
	for _, item := range items {
		imdbID := item.IMDBID
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			if err := s.refresher.RefreshItem(ctx, imdbID); err != nil {
				log.Printf("[scheduler] refresh failed imdb=%s err=%v", imdbID, err)
				return
			}
			mu.Lock()
			refreshed++
			mu.Unlock()
		})
	}
	p.Wait()

	log.Printf("[scheduler] sweep complete refreshed=%d of %d", refreshed, len(items))
}
