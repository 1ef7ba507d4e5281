package logstore

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestRetentionService_StartStop(t *testing.T) {
	store := newTestStore(t, 7)

	old := store.now().UTC().AddDate(0, 0, -30).Format(DateLayout)
	writeDatedFile(t, store, TypeApp, old)

	svc := NewRetentionService(store, nil, time.Hour)
	svc.Start(context.Background())

	// The initial sweep runs before the first tick.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(store.FilePath(TypeApp, old)); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial sweep did not delete expired file")
		}
		time.Sleep(10 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}
}

func TestRetentionService_ContextCancellation(t *testing.T) {
	store := newTestStore(t, 7)
	svc := NewRetentionService(store, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	cancel()

	select {
	case <-svc.doneChan:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not exit on context cancellation")
	}
}
