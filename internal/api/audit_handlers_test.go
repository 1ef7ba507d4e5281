package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/pinstack/internal/audit"
	"github.com/onnwee/pinstack/internal/logging"
)

func newTestTrail(t *testing.T) (*audit.Trail, *logging.Logger) {
	t.Helper()
	store := newTestStore(t)
	logger := logging.New(logging.Config{
		MinLevel: logging.LevelDebug,
		File:     true,
		ErrOut:   &bytes.Buffer{},
	}, store.Write)
	t.Cleanup(func() { logger.Close() })
	return audit.NewTrail(store, logger), logger
}

func seedAudit(t *testing.T, trail *audit.Trail, logger *logging.Logger, entries ...audit.Entry) {
	t.Helper()
	for _, e := range entries {
		trail.Log(e)
	}
	logger.Flush()
}

func auditUser(s string) *string { return &s }

func TestAuditQuery(t *testing.T) {
	trail, logger := newTestTrail(t)
	seedAudit(t, trail, logger,
		audit.Entry{UserID: auditUser("alice"), Action: audit.ActionLogin, Resource: "session", Success: true},
		audit.Entry{UserID: auditUser("alice"), Action: audit.ActionCreate, Resource: "bookmark", Success: true},
		audit.Entry{UserID: auditUser("bob"), Action: audit.ActionLogin, Resource: "session", Success: false, ErrorMessage: "bad password"},
	)
	h := NewAuditHandlers(trail)

	rec := httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodGet, "/api/audit?action=login", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp AuditQueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2 login entries", resp.Total)
	}

	rec = httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodGet, "/api/audit?success=false", nil))
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || *resp.Items[0].UserID != "bob" {
		t.Errorf("success=false returned %+v", resp.Items)
	}
}

func TestAuditQuery_Validation(t *testing.T) {
	trail, _ := newTestTrail(t)
	h := NewAuditHandlers(trail)

	tests := []struct {
		name   string
		target string
	}{
		{"unknown action", "/api/audit?action=explode"},
		{"bad success", "/api/audit?success=maybe"},
		{"bad limit", "/api/audit?limit=0"},
		{"bad time", "/api/audit?startTime=lastweek"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Query(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestAuditUserLogs(t *testing.T) {
	trail, logger := newTestTrail(t)
	seedAudit(t, trail, logger,
		audit.Entry{UserID: auditUser("alice"), Action: audit.ActionUpdate, Resource: "settings", Success: true},
		audit.Entry{UserID: auditUser("bob"), Action: audit.ActionUpdate, Resource: "settings", Success: true},
	)
	h := NewAuditHandlers(trail)

	rec := httptest.NewRecorder()
	h.UserLogs(rec, httptest.NewRequest(http.MethodGet, "/api/audit/users/alice", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp AuditQueryResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || *resp.Items[0].UserID != "alice" {
		t.Errorf("UserLogs returned %+v", resp.Items)
	}
}

func TestAuditUserLogs_BadPath(t *testing.T) {
	trail, _ := newTestTrail(t)
	h := NewAuditHandlers(trail)

	for _, target := range []string{"/api/audit/users/", "/api/audit/users/a/b"} {
		rec := httptest.NewRecorder()
		h.UserLogs(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, rec.Code)
		}
	}
}

func TestAuditResourceLogs(t *testing.T) {
	trail, logger := newTestTrail(t)
	seedAudit(t, trail, logger,
		audit.Entry{UserID: auditUser("alice"), Action: audit.ActionDelete, Resource: "bookmark", Success: true},
		audit.Entry{UserID: auditUser("alice"), Action: audit.ActionUpdate, Resource: "settings", Success: true},
	)
	h := NewAuditHandlers(trail)

	rec := httptest.NewRecorder()
	h.ResourceLogs(rec, httptest.NewRequest(http.MethodGet, "/api/audit/resources/bookmark", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp AuditQueryResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Items[0].Resource != "bookmark" {
		t.Errorf("ResourceLogs returned %+v", resp.Items)
	}
}
