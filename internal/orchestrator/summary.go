package orchestrator

import "github.com/catherinevee/integration-auditor/internal/apperrors"

// IntegrationError is one integration's terminal failure, kept small enough
// to print in the run summary table; full detail lives in the audit log
// (spec.md §7's "Failures reference the integration id and error kind").
type IntegrationError struct {
	IntegrationID string         `json:"integrationId"`
	Kind          apperrors.Kind `json:"kind"`
	Message       string         `json:"message"`
}

// Summary is the orchestrator's end-of-run record, rendered by the CLI as
// the run summary table (spec.md §7).
type Summary struct {
	IntegrationsProcessed int              `json:"integrationsProcessed"`
	IntegrationsSkipped   int              `json:"integrationsSkipped"`
	EventsByType          map[string]int   `json:"eventsByType"`
	EventsBySeverity      map[string]int   `json:"eventsBySeverity"`
	ActionsPlanned        int              `json:"actionsPlanned"`
	ActionsExecuted       int              `json:"actionsExecuted"`
	ActionsFailed         int              `json:"actionsFailed"`
	ActionsSkipped        int              `json:"actionsSkipped"`
	ErrorsByKind          map[apperrors.Kind]int `json:"errorsByKind"`
	Errors                []IntegrationError     `json:"errors,omitempty"`
	RestoreBundleID       string           `json:"restoreBundleId,omitempty"`
	SessionDir            string           `json:"sessionDir"`
}

func newSummary(sessionDir string) Summary {
	return Summary{
		EventsByType:     make(map[string]int),
		EventsBySeverity: make(map[string]int),
		ErrorsByKind:     make(map[apperrors.Kind]int),
		SessionDir:       sessionDir,
	}
}

// recordError tallies err by its apperrors.Kind (falling back to kind if err
// isn't a classified *apperrors.Error, e.g. the ingest header-mismatch path)
// and appends an IntegrationError for the summary table.
func (s *Summary) recordError(integrationID string, fallback apperrors.Kind, err error) {
	kind, ok := apperrors.KindOf(err)
	if !ok {
		kind = fallback
	}
	s.ErrorsByKind[kind]++
	s.Errors = append(s.Errors, IntegrationError{
		IntegrationID: integrationID,
		Kind:          kind,
		Message:       err.Error(),
	})
}

// Failed reports whether the run should exit non-zero (spec.md §6: exit 1
// on any failed action or blocker).
func (s Summary) Failed() bool {
	return s.ActionsFailed > 0 || len(s.Errors) > 0
}
