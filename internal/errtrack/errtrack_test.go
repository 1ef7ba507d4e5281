package errtrack

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHash_Deterministic(t *testing.T) {
	first := Hash("errors.errorString", "boom", "stack")
	second := Hash("errors.errorString", "boom", "stack")
	if first != second {
		t.Errorf("Hash() not deterministic: %q vs %q", first, second)
	}
	if !regexp.MustCompile(`^[0-9a-f]{16}$`).MatchString(first) {
		t.Errorf("Hash() = %q, want 16 lowercase hex chars", first)
	}
}

func TestHash_DifferentMessagesDiffer(t *testing.T) {
	if Hash("e", "boom", "") == Hash("e", "bang", "") {
		t.Error("different messages produced the same hash")
	}
	if Hash("a", "boom", "") == Hash("b", "boom", "") {
		t.Error("different names produced the same hash")
	}
}

func TestHash_OnlyStackPrefixMatters(t *testing.T) {
	prefix := strings.Repeat("x", stackHashPrefix)
	if Hash("e", "m", prefix+"tail1") != Hash("e", "m", prefix+"tail2") {
		t.Error("stack content beyond the prefix changed the hash")
	}
}

func TestHashError_SameErrorTwice(t *testing.T) {
	err := errors.New("boom")
	if HashError(err) != HashError(err) {
		t.Error("HashError() differs for the same error value")
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Category
	}{
		{"ValidationError", "field is required", CategoryValidation},
		{"errorString", "invalid bookmark URL", CategoryValidation},
		{"pq.Error", "duplicate key value violates unique constraint", CategoryDatabase},
		{"errorString", "sql: no rows in result set", CategoryDatabase},
		{"net.OpError", "dial tcp: connection refused", CategoryNetwork},
		{"errorString", "request timed out", CategoryNetwork},
		{"errorString", "unauthorized: bad session", CategoryAuth},
		{"errorString", "token signature mismatch", CategoryAuth},
		{"errorString", "something odd happened", CategoryUnknown},
		{"", "", CategoryUnknown},
	}

	for _, tt := range tests {
		got := Categorize(tt.name, tt.message)
		if got != tt.want {
			t.Errorf("Categorize(%q, %q) = %s, want %s", tt.name, tt.message, got, tt.want)
		}
		// Deterministic: a second run yields the same category.
		if again := Categorize(tt.name, tt.message); again != got {
			t.Errorf("Categorize(%q, %q) unstable: %s then %s", tt.name, tt.message, got, again)
		}
	}
}

func TestCategorize_OrderedRules(t *testing.T) {
	// "invalid token" matches both VALIDATION and AUTH keywords; the
	// earlier group wins.
	if got := Categorize("e", "invalid token"); got != CategoryValidation {
		t.Errorf("Categorize(invalid token) = %s, want VALIDATION (first matching group)", got)
	}
}

func TestDeduplicator_WindowSemantics(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	dup, count := d.IsDuplicate("abc")
	if dup || count != 1 {
		t.Fatalf("first occurrence: dup=%v count=%d, want false/1", dup, count)
	}

	// N repeats inside the window: duplicate with count N+1.
	for i := 0; i < 5; i++ {
		clock = clock.Add(time.Second)
		dup, count = d.IsDuplicate("abc")
		if !dup {
			t.Fatalf("repeat %d inside window not flagged as duplicate", i+1)
		}
	}
	if count != 6 {
		t.Errorf("count after 5 repeats = %d, want 6", count)
	}

	// After the window elapses the next call is fresh again.
	clock = clock.Add(2 * time.Minute)
	dup, count = d.IsDuplicate("abc")
	if dup || count != 1 {
		t.Errorf("post-window occurrence: dup=%v count=%d, want false/1", dup, count)
	}
}

func TestDeduplicator_DistinctHashesIndependent(t *testing.T) {
	d := NewDeduplicator(time.Minute)

	if dup, _ := d.IsDuplicate("aaa"); dup {
		t.Error("fresh hash aaa flagged as duplicate")
	}
	if dup, _ := d.IsDuplicate("bbb"); dup {
		t.Error("fresh hash bbb flagged as duplicate")
	}
	if dup, _ := d.IsDuplicate("aaa"); !dup {
		t.Error("second aaa not flagged as duplicate")
	}
}

func TestDeduplicator_Evict(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	d.IsDuplicate("old")
	clock = clock.Add(30 * time.Second)
	d.IsDuplicate("fresh")

	clock = clock.Add(45 * time.Second) // "old" is now 75s stale, "fresh" 45s
	if evicted := d.Evict(); evicted != 1 {
		t.Errorf("Evict() = %d, want 1", evicted)
	}
	if d.Len() != 1 {
		t.Errorf("Len() after evict = %d, want 1", d.Len())
	}
	if dup, _ := d.IsDuplicate("fresh"); !dup {
		t.Error("surviving entry lost its history")
	}
}

func TestDeduplicator_ConcurrentIncrements(t *testing.T) {
	d := NewDeduplicator(time.Minute)

	const goroutines = 16
	const perGoroutine = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				d.IsDuplicate("shared")
			}
		}()
	}
	wg.Wait()

	_, count := d.IsDuplicate("shared")
	if count != goroutines*perGoroutine+1 {
		t.Errorf("count = %d, want %d", count, goroutines*perGoroutine+1)
	}
}

func TestCaptureStack_NoGoroutineHeader(t *testing.T) {
	stack := captureStack(0)
	if strings.HasPrefix(stack, "goroutine") {
		t.Errorf("stack carries goroutine header, breaking hash determinism: %q", stack)
	}
	if !strings.Contains(stack, "errtrack.TestCaptureStack_NoGoroutineHeader") {
		t.Errorf("stack missing caller frame: %q", stack)
	}
}

func TestCategorizeError_NilSafe(t *testing.T) {
	if got := CategorizeError(nil); got != CategoryUnknown {
		t.Errorf("CategorizeError(nil) = %s, want UNKNOWN", got)
	}
	if got := CategorizeError(fmt.Errorf("dial tcp: timeout")); got != CategoryNetwork {
		t.Errorf("CategorizeError(net) = %s, want NETWORK", got)
	}
}
