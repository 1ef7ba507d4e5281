// Package errtrack classifies errors and suppresses repeats within a time
// window, so error storms cannot flood the log store while the magnitude of
// the storm stays visible.
package errtrack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Category buckets an error by its likely origin. Categorization is a
// keyword heuristic: total, deterministic, never failing.
type Category string

const (
	CategoryValidation Category = "VALIDATION"
	CategoryDatabase   Category = "DATABASE"
	CategoryNetwork    Category = "NETWORK"
	CategoryAuth       Category = "AUTH"
	CategoryUnknown    Category = "UNKNOWN"
)

// categoryRules are evaluated in order; the first group with a matching
// keyword wins.
var categoryRules = []struct {
	category Category
	keywords []string
}{
	{CategoryValidation, []string{
		"validation", "invalid", "required", "must be", "malformed",
		"bad request", "out of range", "parse error",
	}},
	{CategoryDatabase, []string{
		"sql", "database", "constraint", "duplicate key", "deadlock",
		"transaction", "no rows", "connection pool",
	}},
	{CategoryNetwork, []string{
		"network", "timeout", "timed out", "connection refused", "dial",
		"dns", "unreachable", "broken pipe", "reset by peer", "eof",
	}},
	{CategoryAuth, []string{
		"auth", "unauthorized", "forbidden", "token", "permission",
		"credential", "signature",
	}},
}

// stackHashPrefix is how much of the stack participates in the identity
// hash. Deep below that frame traces stop adding discriminating power.
const stackHashPrefix = 500

// hashLength is the hex-digit length of an error hash.
const hashLength = 16

// Hash returns the identity hash of an error: a deterministic function of
// its name, message and stack prefix, as a lowercase 16-hex-character string.
func Hash(name, message, stack string) string {
	if len(stack) > stackHashPrefix {
		stack = stack[:stackHashPrefix]
	}
	sum := sha256.Sum256([]byte(name + ":" + message + ":" + stack))
	return hex.EncodeToString(sum[:])[:hashLength]
}

// HashError hashes a Go error using its dynamic type as the name. The stack
// is not part of the identity here; call sites that want per-site identity
// pass a captured stack to Hash directly.
func HashError(err error) string {
	if err == nil {
		return Hash("", "", "")
	}
	return Hash(fmt.Sprintf("%T", err), err.Error(), "")
}

// Categorize buckets an error by case-insensitive keyword match over its
// name and message. Unmatched errors land in CategoryUnknown.
func Categorize(name, message string) Category {
	haystack := strings.ToLower(name + " " + message)
	for _, rule := range categoryRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(haystack, keyword) {
				return rule.category
			}
		}
	}
	return CategoryUnknown
}

// CategorizeError categorizes a Go error by its dynamic type and message.
func CategorizeError(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	return Categorize(fmt.Sprintf("%T", err), err.Error())
}
