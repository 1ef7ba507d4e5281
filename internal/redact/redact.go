// Package redact sanitizes structured data before it is logged or persisted.
// Values under sensitive keys are replaced with a fixed marker, oversized
// strings are truncated, and recursion is depth-bounded so pathological or
// cyclic inputs always terminate.
package redact

import (
	"fmt"
	"strings"
)

// Marker replaces the value of any field whose key matches the sensitive
// heuristic.
const Marker = "[REDACTED]"

// DepthMarker replaces any value nested deeper than the configured maximum.
const DepthMarker = "[MAX_DEPTH_EXCEEDED]"

// Default limits applied when Options fields are zero.
const (
	DefaultMaxDepth     = 10
	DefaultMaxStringLen = 1000
)

// truncationTag appears in strings the sanitizer has already shortened.
// Strings carrying it are passed through unchanged to keep Sanitize idempotent.
const truncationTag = "...[truncated, "

// exactKeys are matched against the normalized key form (lowercased, with
// "-" and "_" stripped).
var exactKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"pwd":           true,
	"secret":        true,
	"token":         true,
	"apikey":        true,
	"authorization": true,
	"auth":          true,
	"cookie":        true,
	"setcookie":     true,
	"sessionid":     true,
	"session":       true,
	"csrf":          true,
	"jwt":           true,
	"privatekey":    true,
	"accesskey":     true,
	"secretkey":     true,
	"credentials":   true,
	"creditcard":    true,
	"cardnumber":    true,
	"cvv":           true,
	"ssn":           true,
}

// substringKeys match anywhere in the normalized key.
var substringKeys = []string{"password", "secret", "credential"}

// suffixKeys match only at the end of the normalized key, so "refreshtoken"
// is sensitive while "tokens" (a count) is not.
var suffixKeys = []string{"token", "key"}

// Options configures sanitization limits. Zero values select the defaults.
type Options struct {
	// MaxDepth bounds recursion into nested maps and slices.
	MaxDepth int
	// MaxStringLen bounds string values; longer strings are truncated with a
	// suffix recording the original length.
	MaxStringLen int
}

// Sanitize returns a copy of v with sensitive fields redacted using default
// limits. The input is never modified.
func Sanitize(v any) any {
	return SanitizeWith(v, Options{})
}

// SanitizeWith is Sanitize with explicit limits.
func SanitizeWith(v any, opts Options) any {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxStringLen <= 0 {
		opts.MaxStringLen = DefaultMaxStringLen
	}
	return sanitizeValue(v, opts, 0)
}

// SensitiveKey reports whether a field name matches the sensitive-key
// heuristic.
func SensitiveKey(key string) bool {
	norm := normalizeKey(key)
	if norm == "" {
		return false
	}
	if exactKeys[norm] {
		return true
	}
	for _, sub := range substringKeys {
		if strings.Contains(norm, sub) {
			return true
		}
	}
	for _, suffix := range suffixKeys {
		if strings.HasSuffix(norm, suffix) {
			return true
		}
	}
	return false
}

// normalizeKey lowercases the key and strips separator characters so that
// "Api-Key", "api_key" and "apikey" all compare equal.
func normalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		if r == '-' || r == '_' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func sanitizeValue(v any, opts Options, depth int) any {
	// A value at depth N sits inside N containers; MaxDepth containers is
	// the most a kept value may be wrapped in.
	if depth >= opts.MaxDepth {
		return DepthMarker
	}

	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return truncateString(val, opts.MaxStringLen)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if SensitiveKey(k) {
				out[k] = Marker
				continue
			}
			out[k] = sanitizeValue(inner, opts, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = sanitizeValue(inner, opts, depth+1)
		}
		return out
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return val
	default:
		// Non-JSON-like values are stringified so nothing un-serializable
		// reaches the log encoder.
		return truncateString(fmt.Sprintf("%v", val), opts.MaxStringLen)
	}
}

// truncateString shortens s beyond max runes, recording the original length.
// Cutting on rune boundaries keeps the output valid UTF-8. Already-truncated
// strings are returned unchanged.
func truncateString(s string, max int) string {
	if len(s) <= max || strings.Contains(s, truncationTag) {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + fmt.Sprintf("...[truncated, %d chars]", len(runes))
}
