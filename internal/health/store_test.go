package health

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestStoreChecker_HealthyDir(t *testing.T) {
	checker := NewStoreChecker(t.TempDir())
	if err := checker.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() on writable dir = %v", err)
	}
}

func TestStoreChecker_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "nested")
	checker := NewStoreChecker(dir)
	if err := checker.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() should create missing dir, got %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("dir not created: %v", err)
	}
}

func TestStoreChecker_RemovesProbeFile(t *testing.T) {
	dir := t.TempDir()
	checker := NewStoreChecker(dir)
	if err := checker.HealthCheck(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".healthcheck")); !os.IsNotExist(err) {
		t.Error("probe file left behind")
	}
}

func TestStoreChecker_ReadOnlyDir(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission checks are unreliable on this platform")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0o755)

	checker := NewStoreChecker(dir)
	if err := checker.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on read-only dir should fail")
	}
}

func TestStoreChecker_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	checker := NewStoreChecker(t.TempDir())
	if err := checker.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() with expired context should fail")
	}
}
