package errtrack

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/onnwee/pinstack/internal/logging"
)

// summaryInterval is how often a suppressed repeat is still logged, as a
// "repeated error" summary carrying the running count.
const summaryInterval = 10

// Tracker is the write path for application errors: it hashes, categorizes
// and deduplicates each error before handing it to the logger, so identical
// failures inside the window cost one full entry plus periodic summaries.
type Tracker struct {
	logger  *logging.Logger
	dedupe  *Deduplicator
	metrics *Metrics
}

// NewTracker creates a tracker logging through logger. A zero window selects
// the default. Metrics may be nil.
func NewTracker(logger *logging.Logger, window time.Duration, metrics *Metrics) *Tracker {
	return &Tracker{
		logger:  logger.Child("errors"),
		dedupe:  NewDeduplicator(window),
		metrics: metrics,
	}
}

// Dedupe exposes the underlying cache for the eviction service.
func (t *Tracker) Dedupe() *Deduplicator {
	return t.dedupe
}

// Capture records one error occurrence. Non-duplicates are fully logged;
// duplicates within the window are suppressed except for every
// summaryInterval-th repeat.
func (t *Tracker) Capture(err error, ctx logging.Context) {
	if err == nil {
		return
	}

	name := fmt.Sprintf("%T", err)
	message := err.Error()
	stack := captureStack(2)

	hash := Hash(name, message, stack)
	category := Categorize(name, message)
	duplicate, count := t.dedupe.IsDuplicate(hash)

	if t.metrics != nil {
		t.metrics.ObserveCapture(category, duplicate)
	}

	if !duplicate {
		fields := logging.Context{
			"errorHash": hash,
			"errorName": name,
			"category":  string(category),
			"stack":     stack,
		}
		for k, v := range ctx {
			fields[k] = v
		}
		t.logger.Error(message, fields)
		return
	}

	if count%summaryInterval == 0 {
		t.logger.Error("repeated error: "+message, logging.Context{
			"errorHash": hash,
			"category":  string(category),
			"count":     count,
		})
	}
}

// captureStack renders the caller's stack without the goroutine header or
// the errtrack frames, so identical call sites hash identically across
// goroutines.
func captureStack(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
