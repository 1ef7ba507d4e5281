package logstore

import (
	"context"
	"log/slog"
	"time"
)

// RetentionService periodically sweeps the store for partition files older
// than the retention horizon. This keeps disk usage bounded without any
// per-entry bookkeeping.
type RetentionService struct {
	store    *Store
	logger   *slog.Logger
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// DefaultRetentionInterval is how often the sweep runs.
const DefaultRetentionInterval = 24 * time.Hour

// NewRetentionService creates a retention sweep service. A zero interval
// selects the default.
func NewRetentionService(store *Store, logger *slog.Logger, interval time.Duration) *RetentionService {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}
	return &RetentionService{
		store:    store,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *RetentionService) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop gracefully stops the service and waits for the loop to exit.
func (s *RetentionService) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

func (s *RetentionService) run(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("retention service started",
		slog.Int("retention_days", s.store.RetentionDays()),
		slog.Duration("interval", s.interval))

	// Run an initial sweep immediately so a long-stopped process catches up.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention service stopping due to context cancellation")
			return
		case <-s.stopChan:
			s.logger.Info("retention service stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *RetentionService) sweep(ctx context.Context) {
	result := s.store.Cleanup(ctx)
	for _, err := range result.Errors {
		s.logger.Error("retention sweep error", slog.String("error", err.Error()))
	}
	if result.Deleted > 0 || len(result.Errors) > 0 {
		s.logger.Info("retention sweep completed",
			slog.Int("deleted", result.Deleted),
			slog.Int("errors", len(result.Errors)))
	}
}
