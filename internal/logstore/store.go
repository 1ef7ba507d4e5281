// Package logstore implements date-partitioned append-only file storage for
// log and audit entries. Each category writes to its own directory, one
// newline-delimited JSON file per calendar day, so retention is a directory
// scan and range reads are a date walk.
package logstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileType identifies a log partition. The set is closed; every entry lives
// in exactly one partition.
type FileType string

const (
	// TypeApp holds general application entries (DEBUG..WARN).
	TypeApp FileType = "app"
	// TypeRequest holds request start/complete entries.
	TypeRequest FileType = "request"
	// TypeError holds ERROR and FATAL entries.
	TypeError FileType = "error"
	// TypeAudit holds security-relevant audit entries.
	TypeAudit FileType = "audit"
)

// FileTypes lists every partition, in stable order.
var FileTypes = []FileType{TypeApp, TypeRequest, TypeError, TypeAudit}

// DateLayout is the calendar-date format used for partition file names.
const DateLayout = "2006-01-02"

// Validation errors.
var (
	ErrInvalidFileType  = errors.New("invalid log file type")
	ErrInvalidDate      = errors.New("date must be in YYYY-MM-DD format")
	ErrMissingBaseDir   = errors.New("base directory is required")
	ErrInvalidRetention = errors.New("retention days must be > 0")
)

// ParseFileType validates a partition name. The empty string maps to TypeApp.
func ParseFileType(s string) (FileType, error) {
	switch FileType(strings.ToLower(s)) {
	case "":
		return TypeApp, nil
	case TypeApp:
		return TypeApp, nil
	case TypeRequest:
		return TypeRequest, nil
	case TypeError:
		return TypeError, nil
	case TypeAudit:
		return TypeAudit, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFileType, s)
}

// Archiver copies a partition file to long-term storage before retention
// deletes it. Implementations must be safe for concurrent use.
type Archiver interface {
	Archive(ctx context.Context, fileType FileType, path string) error
}

// Config holds storage settings.
type Config struct {
	// BaseDir is the root directory holding one subdirectory per partition.
	BaseDir string
	// RetentionDays is the age beyond which partition files are deleted.
	// Must be > 0.
	RetentionDays int
	// MaxFileSize is advisory only; writes are never rejected for size.
	MaxFileSize int64
	// Archiver, when set, receives each expired file before deletion.
	// An archive failure keeps the file on disk for the next sweep.
	Archiver Archiver
	// Metrics, when set, records write and cleanup counters.
	Metrics *Metrics
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store is a date-partitioned append-only file store.
type Store struct {
	baseDir       string
	retentionDays int
	maxFileSize   int64
	archiver      Archiver
	metrics       *Metrics
	now           func() time.Time
}

// New creates a Store and its base directory.
func New(cfg Config) (*Store, error) {
	if cfg.BaseDir == "" {
		return nil, ErrMissingBaseDir
	}
	if cfg.RetentionDays <= 0 {
		return nil, ErrInvalidRetention
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		baseDir:       cfg.BaseDir,
		retentionDays: cfg.RetentionDays,
		maxFileSize:   cfg.MaxFileSize,
		archiver:      cfg.Archiver,
		metrics:       cfg.Metrics,
		now:           now,
	}, nil
}

// RetentionDays returns the configured retention horizon in days.
func (s *Store) RetentionDays() int {
	return s.retentionDays
}

// FilePath returns the partition file for a (type, date) pair. It is a pure
// function of its inputs: no other location ever holds that pair's entries.
func (s *Store) FilePath(fileType FileType, date string) string {
	return filepath.Join(s.baseDir, string(fileType), date+".log")
}

// Today returns the current date in partition-file format.
func (s *Store) Today() string {
	return s.now().UTC().Format(DateLayout)
}

// Write appends one line to today's file for the partition. A missing
// partition directory is created and the append retried once; any other I/O
// failure is returned to the caller, which is expected to absorb it.
func (s *Store) Write(fileType FileType, line string) error {
	path := s.FilePath(fileType, s.Today())

	err := appendLine(path, line)
	if err != nil && os.IsNotExist(err) {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			err = fmt.Errorf("failed to create partition directory: %w", mkErr)
		} else {
			err = appendLine(path, line)
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveWrite(fileType, err)
	}
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return nil
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadOptions controls filtering and pagination of reads.
type ReadOptions struct {
	// Limit caps the number of returned lines. <= 0 means no limit.
	Limit int
	// Offset skips lines of the filtered result.
	Offset int
	// Filter keeps only lines containing the substring, case-insensitively.
	Filter string
}

// Read returns the lines of one partition day. A missing file yields an
// empty slice, not an error. The filter applies before pagination.
func (s *Store) Read(fileType FileType, date string, opts ReadOptions) ([]string, error) {
	lines, err := s.readDay(fileType, date, opts.Filter)
	if err != nil {
		return nil, err
	}
	return paginate(lines, opts.Limit, opts.Offset), nil
}

// ReadRange concatenates the filtered lines of every calendar day from
// startDate to endDate inclusive, in date order, then paginates over the
// aggregate rather than per day.
func (s *Store) ReadRange(fileType FileType, startDate, endDate string, opts ReadOptions) ([]string, error) {
	start, err := time.Parse(DateLayout, startDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, startDate)
	}
	end, err := time.Parse(DateLayout, endDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, endDate)
	}

	var all []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		lines, err := s.readDay(fileType, d.Format(DateLayout), opts.Filter)
		if err != nil {
			return nil, err
		}
		all = append(all, lines...)
	}
	return paginate(all, opts.Limit, opts.Offset), nil
}

// readDay returns the non-blank, filter-matching lines of one day's file.
func (s *Store) readDay(fileType FileType, date, filter string) ([]string, error) {
	data, err := os.ReadFile(s.FilePath(fileType, date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", fileType, date, err)
	}

	lowerFilter := strings.ToLower(filter)
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if lowerFilter != "" && !strings.Contains(strings.ToLower(line), lowerFilter) {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func paginate(lines []string, limit, offset int) []string {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(lines) {
		return []string{}
	}
	lines = lines[offset:]
	if limit > 0 && len(lines) > limit {
		lines = lines[:limit]
	}
	return lines
}

// CleanupResult reports the outcome of one retention sweep.
type CleanupResult struct {
	// Deleted is the number of files removed.
	Deleted int
	// Errors collects per-file failures; a failed file does not abort the
	// sweep for the remaining ones.
	Errors []error
}

// Cleanup deletes every partition file whose date is strictly earlier than
// the retention horizon. When an archiver is configured, each expired file is
// archived first; an archive failure keeps the file for the next sweep.
func (s *Store) Cleanup(ctx context.Context) CleanupResult {
	var result CleanupResult
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays).Truncate(24 * time.Hour)

	for _, fileType := range FileTypes {
		dir := filepath.Join(s.baseDir, string(fileType))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			result.Errors = append(result.Errors, fmt.Errorf("failed to list %s: %w", dir, err))
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
				continue
			}
			date, err := time.Parse(DateLayout, strings.TrimSuffix(entry.Name(), ".log"))
			if err != nil {
				// Not one of ours; leave unrecognized files alone.
				continue
			}
			if !date.Before(cutoff) {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			if s.archiver != nil {
				if err := s.archiver.Archive(ctx, fileType, path); err != nil {
					result.Errors = append(result.Errors, fmt.Errorf("failed to archive %s: %w", path, err))
					continue
				}
			}
			if err := os.Remove(path); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("failed to delete %s: %w", path, err))
				continue
			}
			result.Deleted++
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveCleanup(result)
	}
	return result
}

// Stats aggregates size and date bounds across all partitions.
type Stats struct {
	TotalSizeBytes int64  `json:"totalSizeBytes"`
	FileCount      int    `json:"fileCount"`
	OldestDate     string `json:"oldestDate,omitempty"`
	NewestDate     string `json:"newestDate,omitempty"`
}

// Stats scans every partition and returns aggregate file statistics.
func (s *Store) Stats() (Stats, error) {
	var stats Stats

	for _, fileType := range FileTypes {
		dir := filepath.Join(s.baseDir, string(fileType))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Stats{}, fmt.Errorf("failed to list %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
				continue
			}
			date := strings.TrimSuffix(entry.Name(), ".log")
			if _, err := time.Parse(DateLayout, date); err != nil {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				return Stats{}, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
			}

			stats.FileCount++
			stats.TotalSizeBytes += info.Size()
			if stats.OldestDate == "" || date < stats.OldestDate {
				stats.OldestDate = date
			}
			if stats.NewestDate == "" || date > stats.NewestDate {
				stats.NewestDate = date
			}
		}
	}
	return stats, nil
}
