// Package logging implements the structured application logger. Entries are
// level-filtered, printed to the console, and forwarded as JSON lines to the
// partitioned file store through an injected writer.
package logging

import (
	"fmt"
	"strings"
)

// Level is the severity of a log entry. The ordinal order is significant:
// an entry is emitted iff its level is >= the logger's minimum.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// ANSI color codes per level for console output.
var levelColors = [...]string{
	"\033[90m", // debug: gray
	"\033[32m", // info: green
	"\033[33m", // warn: yellow
	"\033[31m", // error: red
	"\033[35m", // fatal: magenta
}

const colorReset = "\033[0m"

// String returns the canonical upper-case level name.
func (l Level) String() string {
	if l < LevelDebug || l > LevelFatal {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l]
}

func (l Level) color() string {
	if l < LevelDebug || l > LevelFatal {
		return ""
	}
	return levelColors[l]
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	}
	return 0, fmt.Errorf("unknown log level: %q", s)
}
