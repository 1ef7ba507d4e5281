package audit

import (
	"fmt"
	"sort"
	"time"

	"github.com/onnwee/pinstack/internal/logging"
	"github.com/onnwee/pinstack/internal/logstore"
)

// Query defaults.
const (
	DefaultQueryWindow = 7 * 24 * time.Hour
	DefaultQueryLimit  = 100
)

// Trail is the audit write and query path. Writes go through the logger's
// asynchronous writer to the audit partition, with a summary entry in the
// general log stream; queries read the partition files directly.
type Trail struct {
	store  *logstore.Store
	logger *logging.Logger
	now    func() time.Time
}

// NewTrail creates the audit trail.
func NewTrail(store *logstore.Store, logger *logging.Logger) *Trail {
	return &Trail{
		store:  store,
		logger: logger.Child("audit"),
		now:    time.Now,
	}
}

// Log stamps and records one audit event. The durable write is
// fire-and-forget; a summary is also emitted through the logger at INFO for
// successes and WARN for failures so audit events stay visible in the
// general stream.
func (t *Trail) Log(e Entry) {
	e.Timestamp = t.now().UTC().Format(time.RFC3339Nano)

	line, err := e.Encode()
	if err != nil {
		t.logger.Error("failed to encode audit entry", logging.Context{"error": err.Error()})
		return
	}
	t.logger.Persist(logstore.TypeAudit, line)

	summary := logging.Context{
		"action":   string(e.Action),
		"resource": e.Resource,
		"success":  e.Success,
	}
	if e.UserID != nil {
		summary["userId"] = *e.UserID
	}
	if e.ResourceID != "" {
		summary["resourceId"] = e.ResourceID
	}
	if e.Success {
		t.logger.Info(fmt.Sprintf("audit: %s %s", e.Action, e.Resource), summary)
		return
	}
	if e.ErrorMessage != "" {
		summary["error"] = e.ErrorMessage
	}
	t.logger.Warn(fmt.Sprintf("audit: %s %s failed", e.Action, e.Resource), summary)
}

// Filter selects audit entries; all set fields must match (AND).
type Filter struct {
	// UserID matches entries whose actor is that user.
	UserID string
	// Action matches one action kind.
	Action Action
	// Resource matches the free-form resource type tag.
	Resource string
	// Success, when set, matches the outcome.
	Success *bool
	// StartTime/EndTime bound the entry timestamp. Zero values select the
	// last DefaultQueryWindow ending now.
	StartTime time.Time
	EndTime   time.Time
	// Limit caps results after sorting; <= 0 selects DefaultQueryLimit.
	Limit int
	// Offset skips results after sorting.
	Offset int
}

// Query returns matching entries sorted newest-first, then paginated.
// Unparsable lines in the partition files are skipped.
func (t *Trail) Query(f Filter) ([]Entry, error) {
	entries, _, err := t.queryAll(f)
	if err != nil {
		return nil, err
	}
	return paginateEntries(entries, f), nil
}

// QueryWithTotal is Query plus the total match count before pagination, for
// API responses that report hasMore.
func (t *Trail) QueryWithTotal(f Filter) ([]Entry, int, error) {
	entries, total, err := t.queryAll(f)
	if err != nil {
		return nil, 0, err
	}

	return paginateEntries(entries, f), total, nil
}

func paginateEntries(entries []Entry, f Filter) []Entry {
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return []Entry{}
	}
	entries = entries[offset:]

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// queryAll returns every match, sorted newest-first, with the total count.
func (t *Trail) queryAll(f Filter) ([]Entry, int, error) {
	end := f.EndTime
	if end.IsZero() {
		end = t.now().UTC()
	}
	start := f.StartTime
	if start.IsZero() {
		start = end.Add(-DefaultQueryWindow)
	}

	lines, err := t.store.ReadRange(
		logstore.TypeAudit,
		start.UTC().Format(logstore.DateLayout),
		end.UTC().Format(logstore.DateLayout),
		logstore.ReadOptions{},
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read audit partition: %w", err)
	}

	var matches []Entry
	for _, line := range lines {
		entry, err := ParseEntry(line)
		if err != nil {
			// Malformed persisted lines never abort a query.
			continue
		}
		if !t.matches(entry, f, start, end) {
			continue
		}
		matches = append(matches, entry)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Time().After(matches[j].Time())
	})
	return matches, len(matches), nil
}

func (t *Trail) matches(e Entry, f Filter, start, end time.Time) bool {
	ts := e.Time()
	if ts.IsZero() || ts.Before(start) || ts.After(end) {
		return false
	}
	if f.UserID != "" && (e.UserID == nil || *e.UserID != f.UserID) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	return true
}

// UserLogs returns the most recent entries for one user.
func (t *Trail) UserLogs(userID string, limit int) ([]Entry, error) {
	return t.Query(Filter{UserID: userID, Limit: limit})
}

// ResourceLogs returns the most recent entries for one resource type.
func (t *Trail) ResourceLogs(resource string, limit int) ([]Entry, error) {
	return t.Query(Filter{Resource: resource, Limit: limit})
}
