package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/onnwee/pinstack/internal/logstore"
)

// WriteFunc persists one encoded line to a partition. The store's Write
// method satisfies this signature.
type WriteFunc func(fileType logstore.FileType, line string) error

// DefaultQueueSize bounds the asynchronous write queue. When the queue is
// full, entries are dropped and the drop reported to the error stream, so
// logging can never block request handling.
const DefaultQueueSize = 1024

// Config holds logger settings.
type Config struct {
	// MinLevel filters out entries below it before any side effect.
	MinLevel Level
	// Console enables the human-readable console sink.
	Console bool
	// File enables forwarding encoded entries to the writer.
	File bool
	// QueueSize overrides DefaultQueueSize when > 0.
	QueueSize int
	// ConsoleOut receives DEBUG and INFO console lines. Default: os.Stdout.
	ConsoleOut io.Writer
	// ErrOut receives WARN and above console lines, plus out-of-band write
	// failures. Default: os.Stderr.
	ErrOut io.Writer
	// NoColor disables ANSI colors on the console sink.
	NoColor bool
}

// core is the sink state shared by a logger and all its children.
type core struct {
	minLevel Level
	console  bool
	file     bool
	noColor  bool
	stdout   io.Writer
	errOut   io.Writer
	write    WriteFunc

	queue     chan record
	done      chan struct{}
	closeOnce sync.Once

	// closeMu orders late enqueues against Close: a send holds the read
	// lock, so the queue can only be closed while no send is in flight.
	closeMu sync.RWMutex
	closed  bool
}

type record struct {
	fileType logstore.FileType
	line     string
	// ack, when set, marks a flush barrier instead of a write.
	ack chan struct{}
}

// Logger produces structured entries bound to a source label. A Logger value
// holds immutable sink configuration plus a small mutable ambient context;
// Child performs a shallow copy with a new label.
type Logger struct {
	core   *core
	source string

	mu        sync.Mutex
	requestID string
	userID    string
}

// New creates the root logger. The writer may be nil when file output is
// disabled.
func New(cfg Config, write WriteFunc) *Logger {
	c := &core{
		minLevel: cfg.MinLevel,
		console:  cfg.Console,
		file:     cfg.File && write != nil,
		noColor:  cfg.NoColor,
		stdout:   cfg.ConsoleOut,
		errOut:   cfg.ErrOut,
		write:    write,
	}
	if c.stdout == nil {
		c.stdout = os.Stdout
	}
	if c.errOut == nil {
		c.errOut = os.Stderr
	}
	if c.file {
		size := cfg.QueueSize
		if size <= 0 {
			size = DefaultQueueSize
		}
		c.queue = make(chan record, size)
		c.done = make(chan struct{})
		go c.run()
	}
	return &Logger{core: c, source: "app"}
}

// Child returns a logger with a new source label sharing the same sinks. The
// ambient request/user context is copied at call time, not referenced.
func (l *Logger) Child(source string) *Logger {
	l.mu.Lock()
	requestID, userID := l.requestID, l.userID
	l.mu.Unlock()
	return &Logger{
		core:      l.core,
		source:    source,
		requestID: requestID,
		userID:    userID,
	}
}

// SetRequestContext binds a request and user ID to this logger's subsequent
// entries. It affects only the receiver, never parents or children.
func (l *Logger) SetRequestContext(requestID, userID string) {
	l.mu.Lock()
	l.requestID = requestID
	l.userID = userID
	l.mu.Unlock()
}

// ClearRequestContext resets the ambient context.
func (l *Logger) ClearRequestContext() {
	l.SetRequestContext("", "")
}

// Log emits one entry. Below the minimum level the call has no side effect
// at all.
func (l *Logger) Log(level Level, message string, ctx Context) {
	if level < l.core.minLevel {
		return
	}

	l.mu.Lock()
	requestID, userID := l.requestID, l.userID
	l.mu.Unlock()

	entry := NewEntry(level, message, l.source, ctx)
	entry.RequestID = requestID
	entry.UserID = userID

	if l.core.console {
		l.core.writeConsole(entry)
	}
	if l.core.file {
		line, err := entry.Encode()
		if err != nil {
			fmt.Fprintf(l.core.errOut, "log encode error: %v\n", err)
			return
		}
		l.core.enqueue(record{fileType: fileTypeFor(level), line: line})
	}
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(message string, ctx ...Context) { l.Log(LevelDebug, message, first(ctx)) }

// Info logs at INFO level.
func (l *Logger) Info(message string, ctx ...Context) { l.Log(LevelInfo, message, first(ctx)) }

// Warn logs at WARN level.
func (l *Logger) Warn(message string, ctx ...Context) { l.Log(LevelWarn, message, first(ctx)) }

// Error logs at ERROR level.
func (l *Logger) Error(message string, ctx ...Context) { l.Log(LevelError, message, first(ctx)) }

// Fatal logs at FATAL level. It does not exit; the caller owns process
// shutdown and the final Flush.
func (l *Logger) Fatal(message string, ctx ...Context) { l.Log(LevelFatal, message, first(ctx)) }

func first(ctx []Context) Context {
	if len(ctx) == 0 {
		return nil
	}
	return ctx[0]
}

// Persist forwards an already-encoded line to an explicit partition through
// the asynchronous writer, bypassing level filtering and the console sink.
// The request correlator and audit trail use this for their own partitions.
func (l *Logger) Persist(fileType logstore.FileType, line string) {
	if !l.core.file {
		return
	}
	l.core.enqueue(record{fileType: fileType, line: line})
}

// Flush blocks until every entry queued before the call has been handed to
// the writer.
func (l *Logger) Flush() {
	if !l.core.file {
		return
	}
	c := l.core
	ack := make(chan struct{})
	c.closeMu.RLock()
	if c.closed {
		c.closeMu.RUnlock()
		return
	}
	select {
	case c.queue <- record{ack: ack}:
		c.closeMu.RUnlock()
		<-ack
	case <-c.done:
		c.closeMu.RUnlock()
	}
}

// Close flushes and stops the writer goroutine. The logger must not be used
// afterwards.
func (l *Logger) Close() {
	if !l.core.file {
		return
	}
	l.core.closeOnce.Do(func() {
		l.core.closeMu.Lock()
		l.core.closed = true
		l.core.closeMu.Unlock()
		close(l.core.queue)
	})
	<-l.core.done
}

func (c *core) run() {
	defer close(c.done)
	for rec := range c.queue {
		if rec.ack != nil {
			close(rec.ack)
			continue
		}
		if err := c.write(rec.fileType, rec.line); err != nil {
			// A write failure must never reach request-handling code.
			fmt.Fprintf(c.errOut, "log write error: %v\n", err)
		}
	}
}

func (c *core) enqueue(rec record) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		fmt.Fprintf(c.errOut, "log queue closed, dropping %s entry\n", rec.fileType)
		return
	}
	select {
	case c.queue <- rec:
	default:
		fmt.Fprintf(c.errOut, "log queue full, dropping %s entry\n", rec.fileType)
	}
}

func (c *core) writeConsole(e Entry) {
	out := c.stdout
	if e.Level >= LevelWarn {
		out = c.errOut
	}

	suffix := ""
	if len(e.Context) > 0 {
		if data, err := json.Marshal(e.Context); err == nil {
			suffix = " " + string(data)
		}
	}

	if c.noColor {
		fmt.Fprintf(out, "%s [%-5s] %s: %s%s\n", e.Timestamp, e.LevelName, e.Source, e.Message, suffix)
		return
	}
	fmt.Fprintf(out, "%s %s[%-5s]%s %s: %s%s\n",
		e.Timestamp, e.Level.color(), e.LevelName, colorReset, e.Source, e.Message, suffix)
}

// fileTypeFor routes ERROR and FATAL entries to the error partition and
// everything else to the app partition.
func fileTypeFor(level Level) logstore.FileType {
	if level >= LevelError {
		return logstore.TypeError
	}
	return logstore.TypeApp
}
