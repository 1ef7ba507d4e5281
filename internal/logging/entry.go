package logging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Context carries structured fields attached to an entry. Values should be
// strings, numbers, bools, nil, nested map[string]any values, or slices of
// those; anything else is stringified during encoding so a context can never
// make an entry unserializable.
type Context map[string]any

// Entry is one structured, timestamped unit of log data. Entries are
// immutable once constructed; a JSON round-trip reproduces an equivalent
// value.
type Entry struct {
	Timestamp string  `json:"timestamp"`
	Level     Level   `json:"level"`
	LevelName string  `json:"levelName"`
	Message   string  `json:"message"`
	Context   Context `json:"context,omitempty"`
	RequestID string  `json:"requestId,omitempty"`
	UserID    string  `json:"userId,omitempty"`
	Source    string  `json:"source"`
}

// NewEntry constructs an entry stamped with the current time.
func NewEntry(level Level, message, source string, ctx Context) Entry {
	return Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		LevelName: level.String(),
		Message:   message,
		Context:   sanitizeContext(ctx),
		Source:    source,
	}
}

// sanitizeContext coerces unsupported value types to strings so that
// json.Marshal on the entry cannot fail for an arbitrary context bag.
func sanitizeContext(ctx Context) Context {
	if ctx == nil {
		return nil
	}
	out := make(Context, len(ctx))
	for k, v := range ctx {
		out[k] = coerceValue(v)
	}
	return out
}

func coerceValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = coerceValue(inner)
		}
		return out
	case Context:
		return coerceValue(map[string]any(val))
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = coerceValue(inner)
		}
		return out
	case error:
		return val.Error()
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Encode serializes the entry to a single JSON line. json.Marshal escapes
// control characters, so an encoded entry can never split the line-oriented
// partition files.
func (e Entry) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode log entry: %w", err)
	}
	return string(data), nil
}

// ParseEntry decodes one JSON line back into an Entry. Callers reading
// partition files skip lines for which this returns an error.
func ParseEntry(line string) (Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return Entry{}, fmt.Errorf("failed to parse log entry: %w", err)
	}
	return e, nil
}
