package audit

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/catherinevee/integration-auditor/internal/model"
)

// QueryFilter selects a subset of audit entries. Zero values are
// wildcards except Limit, which defaults to no cap when <= 0.
type QueryFilter struct {
	IntegrationID string
	OperatorID    string
	SessionID     string
	PlanID        string
	ActionType    model.ActionType
	Status        string
	StartTime     time.Time
	EndTime       time.Time
	Limit         int
	Offset        int
}

// QueryLogs scans the minimum relevant set of daily files (derived from
// StartTime/EndTime, or all files if unset), filters by predicate, and
// returns matching entries in chronological order. Malformed lines are
// skipped, never aborting the query (spec.md §4.6).
func (l *Logger) QueryLogs(filter QueryFilter) ([]model.AuditLogEntry, error) {
	dates, err := l.relevantDates(filter)
	if err != nil {
		return nil, err
	}

	var matched []model.AuditLogEntry
	for _, date := range dates {
		entries, err := readEntries(l.dailyFilePath(date))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if matches(e, filter) {
				matched = append(matched, e)
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.Before(matched[j].Timestamp) })

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// relevantDates lists the daily-file dates a query needs to open: the
// StartTime..EndTime span if given, otherwise every file present.
func (l *Logger) relevantDates(filter QueryFilter) ([]string, error) {
	if filter.StartTime.IsZero() && filter.EndTime.IsZero() {
		return l.allDates()
	}

	start := filter.StartTime
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	end := filter.EndTime
	if end.IsZero() {
		end = l.now()
	}

	var dates []string
	for d := start.UTC().Truncate(24 * time.Hour); !d.After(end.UTC()); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dailyDateFormat))
	}
	return dates, nil
}

func (l *Logger) allDates() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.baseDir, "daily"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dates []string
	for _, e := range entries {
		name := e.Name()
		dates = append(dates, name[:len(name)-len(filepath.Ext(name))])
	}
	sort.Strings(dates)
	return dates, nil
}

func matches(e model.AuditLogEntry, f QueryFilter) bool {
	if f.IntegrationID != "" && e.IntegrationID != f.IntegrationID {
		return false
	}
	if f.OperatorID != "" && e.OperatorID != f.OperatorID {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.PlanID != "" && e.Execution.PlanID != f.PlanID {
		return false
	}
	if f.ActionType != "" && e.Action.Type != f.ActionType {
		return false
	}
	if f.Status != "" && e.Execution.Status != f.Status {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}
