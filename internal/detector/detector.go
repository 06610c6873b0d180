package detector

import (
	"fmt"

	"github.com/catherinevee/integration-auditor/internal/apperrors"
	"github.com/catherinevee/integration-auditor/internal/model"
)

// Detector evaluates a compiled rule pipeline against snapshots. It holds
// no per-snapshot state and is safe for concurrent use by multiple
// workers.
type Detector struct {
	rules []Rule
}

// New compiles rules into a Detector.
func New(rules *model.BusinessRules) *Detector {
	return &Detector{rules: Compile(rules)}
}

// Detect runs the full rule pipeline against one snapshot. It never
// returns a nil events slice's worth of surprises: a clean snapshot
// yields AuditResult{CorruptionEvents: nil, OverallSeverity: SeverityLow}.
func (d *Detector) Detect(s *model.IntegrationSnapshot) (result model.AuditResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.KindDetector, s.ID, fmt.Errorf("%w: %v", apperrors.ErrDetectorPanic, r))
		}
	}()

	var events []model.CorruptionEvent
	for _, rule := range d.rules {
		events = append(events, rule.Evaluate(s)...)
	}

	for _, warning := range s.Warnings {
		events = append(events, model.CorruptionEvent{
			IntegrationID: s.ID,
			Params:        model.EventParams{CorruptionType: model.CorruptionIngestWarning},
			Severity:      model.SeverityLow,
			Evidence:      map[string]interface{}{"warning": warning},
		})
	}

	return model.AuditResult{
		IntegrationID:    s.ID,
		CorruptionEvents: events,
		OverallSeverity:  model.HighestSeverity(events),
	}, nil
}
