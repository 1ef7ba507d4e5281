package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/pinstack/internal/logging"
	"github.com/onnwee/pinstack/internal/logstore"
)

func newTestTrail(t *testing.T) (*Trail, *logstore.Store, *logging.Logger) {
	t.Helper()
	store, err := logstore.New(logstore.Config{BaseDir: t.TempDir(), RetentionDays: 30})
	if err != nil {
		t.Fatal(err)
	}
	logger := logging.New(logging.Config{
		MinLevel: logging.LevelDebug,
		File:     true,
		ErrOut:   &bytes.Buffer{},
	}, store.Write)
	return NewTrail(store, logger), store, logger
}

func strPtr(s string) *string { return &s }

func TestTrail_LogPersistsToAuditPartition(t *testing.T) {
	trail, store, logger := newTestTrail(t)

	trail.Log(Entry{
		UserID:    strPtr("user-1"),
		Action:    ActionLogin,
		Resource:  "session",
		IP:        "10.0.0.1",
		UserAgent: "test-agent",
		Success:   true,
	})
	logger.Flush()

	lines, err := store.Read(logstore.TypeAudit, store.Today(), logstore.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Fatalf("audit partition holds %d lines, want 1", len(lines))
	}

	entry, err := ParseEntry(lines[0])
	if err != nil {
		t.Fatalf("ParseEntry() error = %v", err)
	}
	if entry.Timestamp == "" {
		t.Error("Log() did not stamp a timestamp")
	}
	if entry.UserID == nil || *entry.UserID != "user-1" {
		t.Errorf("userId = %v, want user-1", entry.UserID)
	}
	if entry.Action != ActionLogin {
		t.Errorf("action = %s, want LOGIN", entry.Action)
	}

	// The summary entry lands in the general app partition.
	appLines, err := store.Read(logstore.TypeApp, store.Today(), logstore.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(appLines) != 1 || !strings.Contains(appLines[0], "audit: LOGIN session") {
		t.Errorf("app partition summary = %v", appLines)
	}
	logger.Close()
}

func TestTrail_FailureSummaryAtWarn(t *testing.T) {
	trail, store, logger := newTestTrail(t)

	trail.Log(Entry{
		Action:       ActionLoginFailed,
		Resource:     "session",
		Success:      false,
		ErrorMessage: "bad password",
	})
	logger.Flush()

	appLines, err := store.Read(logstore.TypeApp, store.Today(), logstore.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(appLines) != 1 {
		t.Fatalf("app partition holds %d lines, want 1", len(appLines))
	}
	summary, err := logging.ParseEntry(appLines[0])
	if err != nil {
		t.Fatal(err)
	}
	if summary.Level != logging.LevelWarn {
		t.Errorf("failure summary level = %s, want WARN", summary.LevelName)
	}

	// Unauthenticated actor round-trips as JSON null.
	auditLines, _ := store.Read(logstore.TypeAudit, store.Today(), logstore.ReadOptions{})
	if !strings.Contains(auditLines[0], `"userId":null`) {
		t.Errorf("unauthenticated entry missing null userId: %s", auditLines[0])
	}
	logger.Close()
}

// writeBackdated injects an audit line with an explicit timestamp into the
// matching partition-day file.
func writeBackdated(t *testing.T, store *logstore.Store, e Entry, ts time.Time) {
	t.Helper()
	e.Timestamp = ts.UTC().Format(time.RFC3339Nano)
	line, err := e.Encode()
	if err != nil {
		t.Fatal(err)
	}
	path := store.FilePath(logstore.TypeAudit, ts.UTC().Format(logstore.DateLayout))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatal(err)
	}
}

func TestTrail_QueryFiltersAreConjunctive(t *testing.T) {
	trail, store, logger := newTestTrail(t)
	defer logger.Close()
	now := time.Now().UTC()

	entries := []Entry{
		{UserID: strPtr("alice"), Action: ActionCreate, Resource: "bookmark", Success: true},
		{UserID: strPtr("alice"), Action: ActionDelete, Resource: "bookmark", Success: true},
		{UserID: strPtr("bob"), Action: ActionCreate, Resource: "bookmark", Success: true},
		{UserID: strPtr("alice"), Action: ActionCreate, Resource: "tag", Success: false, ErrorMessage: "nope"},
	}
	for i, e := range entries {
		writeBackdated(t, store, e, now.Add(-time.Duration(i)*time.Minute))
	}

	got, err := trail.Query(Filter{UserID: "alice", Action: ActionCreate, Resource: "bookmark"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query() returned %d entries, want 1", len(got))
	}
	if *got[0].UserID != "alice" || got[0].Action != ActionCreate || got[0].Resource != "bookmark" {
		t.Errorf("Query() returned wrong entry: %+v", got[0])
	}

	success := false
	failed, err := trail.Query(Filter{Success: &success})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].Resource != "tag" {
		t.Errorf("success=false filter returned %+v", failed)
	}
}

func TestTrail_QuerySortsNewestFirst(t *testing.T) {
	trail, store, logger := newTestTrail(t)
	defer logger.Close()
	now := time.Now().UTC()

	// Written oldest-first across two days; query must return newest-first.
	for i := 0; i < 4; i++ {
		writeBackdated(t, store, Entry{
			UserID:     strPtr("alice"),
			Action:     ActionUpdate,
			Resource:   "bookmark",
			ResourceID: fmt.Sprintf("b%d", i),
			Success:    true,
		}, now.Add(-time.Duration(3-i)*13*time.Hour))
	}

	got, err := trail.Query(Filter{UserID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("Query() returned %d entries, want 4", len(got))
	}
	for i := 0; i < len(got)-1; i++ {
		if got[i].Time().Before(got[i+1].Time()) {
			t.Errorf("results not newest-first at index %d", i)
		}
	}
	if got[0].ResourceID != "b3" {
		t.Errorf("newest entry = %s, want b3", got[0].ResourceID)
	}
}

func TestTrail_QuerySkipsMalformedLines(t *testing.T) {
	trail, store, logger := newTestTrail(t)
	defer logger.Close()
	now := time.Now().UTC()

	writeBackdated(t, store, Entry{UserID: strPtr("alice"), Action: ActionLogin, Resource: "session", Success: true}, now)

	// Corrupt line in the same partition day.
	path := store.FilePath(logstore.TypeAudit, now.Format(logstore.DateLayout))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := trail.Query(Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v (malformed lines must not abort)", err)
	}
	if len(got) != 1 {
		t.Errorf("Query() returned %d entries, want 1 valid", len(got))
	}
}

func TestTrail_QueryDefaultWindowExcludesOldEntries(t *testing.T) {
	trail, store, logger := newTestTrail(t)
	defer logger.Close()
	now := time.Now().UTC()

	writeBackdated(t, store, Entry{Action: ActionLogin, Resource: "session", Success: true}, now.Add(-time.Hour))
	writeBackdated(t, store, Entry{Action: ActionLogin, Resource: "session", Success: true}, now.AddDate(0, 0, -10))

	got, err := trail.Query(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("default 7-day window returned %d entries, want 1", len(got))
	}
}

func TestTrail_QueryPaginationComposes(t *testing.T) {
	trail, store, logger := newTestTrail(t)
	defer logger.Close()
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		writeBackdated(t, store, Entry{
			UserID:     strPtr("alice"),
			Action:     ActionCreate,
			Resource:   "bookmark",
			ResourceID: fmt.Sprintf("b%d", i),
			Success:    true,
		}, now.Add(-time.Duration(i)*time.Minute))
	}

	const limit = 3
	pageOne, err := trail.Query(Filter{UserID: "alice", Limit: limit, Offset: 0})
	if err != nil {
		t.Fatal(err)
	}
	pageTwo, err := trail.Query(Filter{UserID: "alice", Limit: limit, Offset: limit})
	if err != nil {
		t.Fatal(err)
	}
	both, err := trail.Query(Filter{UserID: "alice", Limit: 2 * limit, Offset: 0})
	if err != nil {
		t.Fatal(err)
	}

	combined := append(append([]Entry{}, pageOne...), pageTwo...)
	if !reflect.DeepEqual(combined, both) {
		t.Errorf("page(L,0)+page(L,L) != page(2L,0):\n%+v\nvs\n%+v", combined, both)
	}
}

func TestTrail_QueryWithTotal(t *testing.T) {
	trail, store, logger := newTestTrail(t)
	defer logger.Close()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		writeBackdated(t, store, Entry{Action: ActionExport, Resource: "bookmarks", Success: true},
			now.Add(-time.Duration(i)*time.Minute))
	}

	page, total, err := trail.QueryWithTotal(Filter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Errorf("page size = %d, want 2", len(page))
	}
}

func TestTrail_ConvenienceWrappers(t *testing.T) {
	trail, store, logger := newTestTrail(t)
	defer logger.Close()
	now := time.Now().UTC()

	writeBackdated(t, store, Entry{UserID: strPtr("alice"), Action: ActionLogin, Resource: "session", Success: true}, now)
	writeBackdated(t, store, Entry{UserID: strPtr("bob"), Action: ActionUpdate, Resource: "settings", Success: true}, now)

	userLogs, err := trail.UserLogs("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(userLogs) != 1 || *userLogs[0].UserID != "alice" {
		t.Errorf("UserLogs() = %+v", userLogs)
	}

	resourceLogs, err := trail.ResourceLogs("settings", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(resourceLogs) != 1 || resourceLogs[0].Resource != "settings" {
		t.Errorf("ResourceLogs() = %+v", resourceLogs)
	}
}

func TestParseAction(t *testing.T) {
	if _, err := ParseAction("LOGIN"); err != nil {
		t.Errorf("ParseAction(LOGIN) error = %v", err)
	}
	if _, err := ParseAction("SELF_DESTRUCT"); err == nil {
		t.Error("ParseAction(SELF_DESTRUCT) should fail")
	}
}

func TestEntry_JSONRoundTrip(t *testing.T) {
	in := Entry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     strPtr("alice"),
		Action:     ActionSettingsChange,
		Resource:   "settings",
		ResourceID: "theme",
		Details:    map[string]any{"from": "light", "to": "dark"},
		IP:         "10.1.2.3",
		UserAgent:  "test",
		Success:    true,
	}

	line, err := in.Encode()
	if err != nil {
		t.Fatal(err)
	}
	out, err := ParseEntry(line)
	if err != nil {
		t.Fatal(err)
	}

	wantJSON, _ := json.Marshal(in)
	gotJSON, _ := json.Marshal(out)
	if string(wantJSON) != string(gotJSON) {
		t.Errorf("round trip changed entry:\n got %s\nwant %s", gotJSON, wantJSON)
	}
}
