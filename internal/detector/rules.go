// Package detector implements the data-driven corruption detector
// (SPEC_FULL.md §4.2). Rule categories are compiled once per session into
// a closed set of tagged Rule implementations (per the Design Note in
// spec.md §9): the hot path dispatches on a Go interface, never on a rule
// name string.
package detector

import (
	"strings"

	"github.com/catherinevee/integration-auditor/internal/model"
)

// Rule evaluates one corruption category against a snapshot. Evaluate
// must be side-effect-free and may emit zero or more events.
type Rule interface {
	Evaluate(s *model.IntegrationSnapshot) []model.CorruptionEvent
}

// Compile turns a BusinessRules document into the fixed, ordered pipeline
// of rule categories named in spec.md §4.2. The order here is the
// evaluation order.
func Compile(rules *model.BusinessRules) []Rule {
	return []Rule{
		licenseRule{cfg: rules.LicenseValidation},
		requiredPropertyRule{cfg: rules.RequiredProperties},
		countRule{editions: rules.EditionRequirements, tolerance: rules.Tolerances.ResourceCountTolerance},
		requiredResourceRule{editions: rules.EditionRequirements},
		connectionStateRule{},
		updateStateRule{},
	}
}

// licenseRule checks edition validity, settings size, and the
// connector-edition/license-edition match.
type licenseRule struct {
	cfg model.LicenseValidationRules
}

func (r licenseRule) Evaluate(s *model.IntegrationSnapshot) []model.CorruptionEvent {
	var events []model.CorruptionEvent

	if !editionIn(string(s.LicenseEdition), r.cfg.ValidEditions, r.cfg.CaseSensitive) {
		events = append(events, model.CorruptionEvent{
			IntegrationID: s.ID,
			Params:        model.EventParams{CorruptionType: model.CorruptionInvalidLicenseEdition},
			Severity:      model.SeverityCritical,
			Evidence: map[string]interface{}{
				"licenseEdition": s.LicenseEdition,
				"validEditions":  r.cfg.ValidEditions,
			},
		})
	}

	if r.cfg.MaxSettingsSize > 0 && int64(s.Settings.SizeBytes) > r.cfg.MaxSettingsSize {
		events = append(events, model.CorruptionEvent{
			IntegrationID: s.ID,
			Params:        model.EventParams{CorruptionType: model.CorruptionSettingsTooLarge},
			Severity:      model.SeverityMedium,
			Evidence: map[string]interface{}{
				"sizeBytes": s.Settings.SizeBytes,
				"maxBytes":  r.cfg.MaxSettingsSize,
			},
		})
	}

	if !r.editionsMatch(s.Settings.ConnectorEdition, string(s.LicenseEdition)) {
		events = append(events, model.CorruptionEvent{
			IntegrationID: s.ID,
			Params:        model.EventParams{CorruptionType: model.CorruptionLicenseEditionMismatch},
			Severity:      model.SeverityHigh,
			Evidence: map[string]interface{}{
				"connectorEdition": s.Settings.ConnectorEdition,
				"licenseEdition":   s.LicenseEdition,
			},
			SuggestedActions: []string{"patch-connector-edition"},
		})
	}

	return events
}

func (r licenseRule) editionsMatch(connectorEdition, licenseEdition string) bool {
	a, b := connectorEdition, licenseEdition
	if r.cfg.TrimWhitespace {
		a = strings.TrimSpace(a)
		b = strings.TrimSpace(b)
	}
	if !r.cfg.CaseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	return a == b
}

func editionIn(edition string, valid []string, caseSensitive bool) bool {
	for _, v := range valid {
		if v == edition || (!caseSensitive && strings.EqualFold(v, edition)) {
			return true
		}
	}
	return false
}

// requiredPropertyRule checks the three required-properties levels.
type requiredPropertyRule struct {
	cfg model.RequiredPropertiesRules
}

func (r requiredPropertyRule) Evaluate(s *model.IntegrationSnapshot) []model.CorruptionEvent {
	var events []model.CorruptionEvent

	for _, key := range r.cfg.TopLevel {
		if !hasKey(s.Raw, key) {
			events = append(events, missingPropertyEvent(s.ID, "topLevel", key, -1))
		}
	}
	for _, key := range r.cfg.SettingsLevel {
		if !hasKey(s.Settings.Raw, key) {
			events = append(events, missingPropertyEvent(s.ID, "settingsLevel", key, -1))
		}
	}
	for idx, section := range s.Settings.Sections {
		for _, key := range r.cfg.SectionProperties {
			if !hasKey(section.Raw, key) {
				events = append(events, missingPropertyEvent(s.ID, "sectionProperties", key, idx))
			}
		}
	}

	return events
}

func hasKey(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	_, ok := m[key]
	return ok
}

func missingPropertyEvent(integrationID, level, key string, sectionIndex int) model.CorruptionEvent {
	evidence := map[string]interface{}{"level": level, "key": key}
	if sectionIndex >= 0 {
		evidence["sectionIndex"] = sectionIndex
	}
	return model.CorruptionEvent{
		IntegrationID: integrationID,
		Params:        model.EventParams{CorruptionType: model.CorruptionMissingRequiredProp},
		Severity:      model.SeverityMedium,
		Evidence:      evidence,
	}
}

// countRule checks observed resource counts against edition-scaled
// expectations within a configured tolerance.
type countRule struct {
	editions  map[model.LicenseEdition]model.EditionRequirement
	tolerance int
}

func (r countRule) Evaluate(s *model.IntegrationSnapshot) []model.CorruptionEvent {
	req, ok := r.editions[s.LicenseEdition]
	if !ok {
		return nil
	}

	var events []model.CorruptionEvent
	if e := r.checkCount(s.ID, model.CorruptionImportsCountMismatch, req.ImportsPerStore, len(s.Imports), s.StoreCount); e != nil {
		events = append(events, *e)
	}
	if e := r.checkCount(s.ID, model.CorruptionExportsCountMismatch, req.ExportsPerStore, len(s.Exports), s.StoreCount); e != nil {
		events = append(events, *e)
	}
	if e := r.checkCount(s.ID, model.CorruptionFlowsCountMismatch, req.FlowsPerStore, len(s.Flows), s.StoreCount); e != nil {
		events = append(events, *e)
	}
	return events
}

func (r countRule) checkCount(integrationID, corruptionType string, perStore, observed, storeCount int) *model.CorruptionEvent {
	expected := perStore * storeCount
	delta := observed - expected
	if abs(delta) <= r.tolerance {
		return nil
	}

	severity := model.SeverityMedium
	if delta < 0 {
		severity = model.SeverityHigh
	}

	return &model.CorruptionEvent{
		IntegrationID: integrationID,
		Params:        model.EventParams{CorruptionType: corruptionType},
		Severity:      severity,
		Evidence: map[string]interface{}{
			"expected": expected,
			"observed": observed,
			"delta":    delta,
		},
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// requiredResourceRule checks that every named required resource exists.
type requiredResourceRule struct {
	editions map[model.LicenseEdition]model.EditionRequirement
}

func (r requiredResourceRule) Evaluate(s *model.IntegrationSnapshot) []model.CorruptionEvent {
	req, ok := r.editions[s.LicenseEdition]
	if !ok {
		return nil
	}

	var events []model.CorruptionEvent
	events = append(events, r.checkResources(s.ID, "import", req.RequiredImports, s.Imports)...)
	events = append(events, r.checkResources(s.ID, "export", req.RequiredExports, s.Exports)...)
	events = append(events, r.checkResources(s.ID, "flow", req.RequiredFlows, s.Flows)...)
	return events
}

func (r requiredResourceRule) checkResources(integrationID, resourceKind string, required []string, observed []model.Resource) []model.CorruptionEvent {
	if len(required) == 0 {
		return nil
	}
	present := make(map[string]bool, len(observed))
	for _, res := range observed {
		present[res.ExternalID] = true
	}

	var missing []string
	for _, name := range required {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	return []model.CorruptionEvent{{
		IntegrationID: integrationID,
		Params:        model.EventParams{CorruptionType: model.CorruptionMissingRequiredResource},
		Severity:      model.SeverityHigh,
		Evidence: map[string]interface{}{
			"resourceKind": resourceKind,
			"missing":      missing,
		},
	}}
}

// connectionStateRule flags offline connections.
type connectionStateRule struct{}

func (connectionStateRule) Evaluate(s *model.IntegrationSnapshot) []model.CorruptionEvent {
	var events []model.CorruptionEvent
	for _, conn := range s.Connections {
		if conn.Offline {
			events = append(events, model.CorruptionEvent{
				IntegrationID: s.ID,
				Params:        model.EventParams{CorruptionType: model.CorruptionOfflineConnection},
				Severity:      model.SeverityMedium,
				Evidence: map[string]interface{}{
					"connectionId": conn.ExternalID,
					"target":       conn.Target,
				},
			})
		}
	}
	return events
}

// updateStateRule flags integrations stuck mid-update.
type updateStateRule struct{}

func (updateStateRule) Evaluate(s *model.IntegrationSnapshot) []model.CorruptionEvent {
	if !s.UpdateInProgress {
		return nil
	}
	return []model.CorruptionEvent{{
		IntegrationID: s.ID,
		Params:        model.EventParams{CorruptionType: model.CorruptionStuckInUpdateProcess},
		Severity:      model.SeverityHigh,
	}}
}

