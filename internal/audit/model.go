// Package audit records security-relevant events to their own durable
// partition and exposes a filtered query over them, for compliance and
// incident response.
package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is the kind of security-relevant event being recorded.
type Action string

const (
	ActionLogin          Action = "LOGIN"
	ActionLogout         Action = "LOGOUT"
	ActionLoginFailed    Action = "LOGIN_FAILED"
	ActionRegister       Action = "REGISTER"
	ActionCreate         Action = "CREATE"
	ActionUpdate         Action = "UPDATE"
	ActionDelete         Action = "DELETE"
	ActionExport         Action = "EXPORT"
	ActionSettingsChange Action = "SETTINGS_CHANGE"
)

// validActions is the closed set of recordable actions.
var validActions = map[Action]bool{
	ActionLogin:          true,
	ActionLogout:         true,
	ActionLoginFailed:    true,
	ActionRegister:       true,
	ActionCreate:         true,
	ActionUpdate:         true,
	ActionDelete:         true,
	ActionExport:         true,
	ActionSettingsChange: true,
}

// Valid reports whether the action belongs to the closed set.
func (a Action) Valid() bool {
	return validActions[a]
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("invalid audit action: %q", s)
	}
	return a, nil
}

// Entry is one audit event. A nil UserID means the actor was
// unauthenticated (e.g. a failed login attempt). Entries are immutable once
// written; their only destruction path is whole-file retention deletion.
type Entry struct {
	Timestamp    string         `json:"timestamp"`
	UserID       *string        `json:"userId"`
	Action       Action         `json:"action"`
	Resource     string         `json:"resource"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IP           string         `json:"ip"`
	UserAgent    string         `json:"userAgent"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// Encode serializes the entry to a single JSON line.
func (e Entry) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode audit entry: %w", err)
	}
	return string(data), nil
}

// ParseEntry decodes one JSON line back into an Entry. Query skips lines for
// which this returns an error.
func ParseEntry(line string) (Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return Entry{}, fmt.Errorf("failed to parse audit entry: %w", err)
	}
	return e, nil
}

// Time parses the entry timestamp. A zero return signals an unparsable
// timestamp.
func (e Entry) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}
