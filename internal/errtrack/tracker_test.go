package errtrack

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/pinstack/internal/logging"
	"github.com/onnwee/pinstack/internal/logstore"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) write(_ logstore.FileType, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	return nil
}

func (r *lineRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func newTrackerForTest(t *testing.T) (*Tracker, *lineRecorder, *logging.Logger) {
	t.Helper()
	rec := &lineRecorder{}
	logger := logging.New(logging.Config{
		MinLevel: logging.LevelDebug,
		File:     true,
		ErrOut:   &bytes.Buffer{},
	}, rec.write)
	return NewTracker(logger, time.Minute, nil), rec, logger
}

func TestTracker_FirstOccurrenceFullyLogged(t *testing.T) {
	tracker, rec, logger := newTrackerForTest(t)

	tracker.Capture(errors.New("boom"), logging.Context{"bookmark": "b1"})
	logger.Close()

	lines := rec.all()
	if len(lines) != 1 {
		t.Fatalf("wrote %d entries, want 1", len(lines))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["message"] != "boom" {
		t.Errorf("message = %v, want boom", entry["message"])
	}
	ctx := entry["context"].(map[string]any)
	if ctx["category"] != string(CategoryUnknown) {
		t.Errorf("category = %v, want UNKNOWN", ctx["category"])
	}
	if hash, _ := ctx["errorHash"].(string); len(hash) != 16 {
		t.Errorf("errorHash = %v, want 16 hex chars", ctx["errorHash"])
	}
	if ctx["bookmark"] != "b1" {
		t.Errorf("caller context lost: %v", ctx)
	}
}

func TestTracker_SuppressesDuplicatesWithSummaries(t *testing.T) {
	tracker, rec, logger := newTrackerForTest(t)

	err := errors.New("boom")
	for i := 0; i < 25; i++ {
		tracker.Capture(err, nil)
	}
	logger.Close()

	// First occurrence is fully logged. Every call originates from the same
	// line, so repeats share the hash; summaries fire at counts 10 and 20.
	lines := rec.all()
	if len(lines) != 3 {
		t.Fatalf("wrote %d entries for 25 identical errors, want 3 (1 full + 2 summaries)", len(lines))
	}

	var summary map[string]any
	if err := json.Unmarshal([]byte(lines[2]), &summary); err != nil {
		t.Fatal(err)
	}
	ctx := summary["context"].(map[string]any)
	if ctx["count"] != float64(20) {
		t.Errorf("second summary count = %v, want 20", ctx["count"])
	}
}

func TestTracker_NilErrorIgnored(t *testing.T) {
	tracker, rec, logger := newTrackerForTest(t)
	tracker.Capture(nil, nil)
	logger.Close()
	if len(rec.all()) != 0 {
		t.Error("Capture(nil) produced log entries")
	}
}
