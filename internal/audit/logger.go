// Package audit implements the append-only audit trail (SPEC_FULL.md
// §4.6): one self-contained JSON record per attempted action, organized
// as daily files, plus a rolling per-plan summary file and restore
// bundles sufficient to reverse a session.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/catherinevee/integration-auditor/internal/apperrors"
	"github.com/catherinevee/integration-auditor/internal/model"
)

const (
	dailyDateFormat = "2006-01-02"
	summaryFileName = "summary.log"
	restoreDirName  = "restore-bundles"
)

// Logger is the session's audit sink. It implements internal/planner's
// AuditSink interface by duck typing, the same pattern internal/safety
// uses for SafetyGate, so planner never imports this package
// (SPEC_FULL.md §9's "explicitly constructed collaborators" note).
//
// Daily files are kept open for append across a session rather than
// reopened per write, grounded on the teacher's FileLogger
// (internal/audit/audit.go) holding one *os.File and writing
// newline-delimited JSON directly; the teacher's background-flush
// buffering is dropped here because spec.md §5 requires every LogAction
// call to append atomically per line, not batch behind a ticker.
type Logger struct {
	mu          sync.Mutex
	baseDir     string
	currentDate string
	currentFile *os.File
	clock       func() time.Time
}

// New builds a Logger writing under baseDir/daily/YYYY-MM-DD.log.
func New(baseDir string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "daily"), 0o755); err != nil {
		return nil, apperrors.New(apperrors.KindAudit, "", fmt.Errorf("creating audit directory: %w", err))
	}
	if err := os.MkdirAll(filepath.Join(baseDir, restoreDirName), 0o755); err != nil {
		return nil, apperrors.New(apperrors.KindAudit, "", fmt.Errorf("creating restore bundle directory: %w", err))
	}
	return &Logger{baseDir: baseDir}, nil
}

// WithClock overrides the logger's time source for deterministic tests.
func (l *Logger) WithClock(clock func() time.Time) *Logger {
	l.clock = clock
	return l
}

func (l *Logger) now() time.Time {
	if l.clock != nil {
		return l.clock()
	}
	return time.Now()
}

func (l *Logger) dailyFilePath(date string) string {
	return filepath.Join(l.baseDir, "daily", date+".log")
}

// fileFor returns the currently open daily file for date, rotating to a
// new file when the date changes. Caller must hold l.mu.
func (l *Logger) fileFor(date string) (*os.File, error) {
	if l.currentFile != nil && l.currentDate == date {
		return l.currentFile, nil
	}
	if l.currentFile != nil {
		l.currentFile.Close()
	}
	f, err := os.OpenFile(l.dailyFilePath(date), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l.currentFile = f
	l.currentDate = date
	return f, nil
}

// LogAction appends one self-contained entry for an attempted action
// (spec.md §4.6: "called for every attempted action, including dry-run").
// Audit write failures are retried once and, on a second failure, only
// logged to stderr, never aborting execution (spec.md §7(h)).
func (l *Logger) LogAction(entry model.AuditLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: marshal entry %s: %v\n", entry.ID, err)
		return
	}

	date := entry.Timestamp.UTC().Format(dailyDateFormat)
	if err := l.appendLine(date, line); err != nil {
		if err := l.appendLine(date, line); err != nil {
			fmt.Fprintf(os.Stderr, "audit: write entry %s failed twice: %v\n", entry.ID, err)
		}
	}
}

// appendLine writes line to the daily file for date, retried once by the
// caller on failure per spec.md §7(h).
func (l *Logger) appendLine(date string, line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.fileFor(date)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// executionResultLine is the rolling summary file's per-plan record.
type executionResultLine struct {
	Timestamp time.Time             `json:"timestamp"`
	Result    model.ExecutionResult `json:"result"`
}

// LogExecutionResult appends a per-plan summary line to the rolling
// summary file (spec.md §4.6).
func (l *Logger) LogExecutionResult(result model.ExecutionResult) {
	line, err := json.Marshal(executionResultLine{Timestamp: l.now(), Result: result})
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: marshal execution result %s: %v\n", result.PlanID, err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(l.baseDir, summaryFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: open summary file: %v\n", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "audit: write summary line: %v\n", err)
	}
}

// Close flushes and closes the currently open daily file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.currentFile == nil {
		return nil
	}
	err := l.currentFile.Close()
	l.currentFile = nil
	return err
}

// readEntries reads every line of path, skipping malformed JSON lines
// rather than aborting (spec.md §4.6's query contract).
func readEntries(path string) ([]model.AuditLogEntry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []model.AuditLogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry model.AuditLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
