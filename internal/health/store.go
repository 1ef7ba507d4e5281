// Package health provides health check implementations for the server's dependencies.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Checker is the interface health check targets implement.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// StoreChecker verifies that the log directory exists and is writable.
// A log service that cannot append to its own files is not healthy.
type StoreChecker struct {
	baseDir string
}

// NewStoreChecker creates a health checker for the log store directory.
func NewStoreChecker(baseDir string) *StoreChecker {
	return &StoreChecker{baseDir: baseDir}
}

// HealthCheck probes the base directory with a create-write-remove cycle.
func (s *StoreChecker) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("log directory unavailable: %w", err)
	}

	probe := filepath.Join(s.baseDir, ".healthcheck")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("log directory not writable: %w", err)
	}
	if _, err := f.WriteString("ok"); err != nil {
		f.Close()
		return fmt.Errorf("log directory write failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(probe)
}
