package errtrack

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Defaults for the dedupe window and the cache eviction sweep.
const (
	DefaultWindow        = 60 * time.Second
	DefaultSweepInterval = 5 * time.Minute
)

// cacheEntry tracks one error hash inside the dedupe window.
type cacheEntry struct {
	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// Deduplicator decides whether an error hash is a repeat within the sliding
// window. The map is shared by every concurrent unit of work and guarded by
// a mutex held only for the in-memory update, never across I/O.
type Deduplicator struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*cacheEntry
	now     func() time.Time
}

// NewDeduplicator creates a deduplicator. A zero window selects the default.
func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Deduplicator{
		window:  window,
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

// IsDuplicate reports whether the hash was already seen inside the window,
// along with the running occurrence count. A fresh hash, or one whose last
// occurrence fell out of the window, resets the count to 1 and is not a
// duplicate.
func (d *Deduplicator) IsDuplicate(hash string) (bool, int) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[hash]
	if !ok || now.Sub(e.lastSeen) > d.window {
		d.entries[hash] = &cacheEntry{count: 1, firstSeen: now, lastSeen: now}
		return false, 1
	}
	e.count++
	e.lastSeen = now
	return true, e.count
}

// Evict removes entries whose last occurrence fell out of the window,
// bounding memory growth. Returns the number of evicted entries.
func (d *Deduplicator) Evict() int {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	var evicted int
	for hash, e := range d.entries {
		if now.Sub(e.lastSeen) > d.window {
			delete(d.entries, hash)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of cached hashes.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// EvictionService periodically evicts stale dedupe cache entries.
type EvictionService struct {
	dedupe   *Deduplicator
	logger   *slog.Logger
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewEvictionService creates the eviction sweep service. A zero interval
// selects the default.
func NewEvictionService(dedupe *Deduplicator, logger *slog.Logger, interval time.Duration) *EvictionService {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &EvictionService{
		dedupe:   dedupe,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the eviction loop in a background goroutine.
func (s *EvictionService) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop gracefully stops the service and waits for the loop to exit.
func (s *EvictionService) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

func (s *EvictionService) run(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if evicted := s.dedupe.Evict(); evicted > 0 {
				s.logger.Debug("evicted stale error cache entries",
					slog.Int("evicted", evicted),
					slog.Int("remaining", s.dedupe.Len()))
			}
		}
	}
}
