// Package remediation turns detector events into concrete execution
// actions (SPEC_FULL.md §4.3), following the same "compile once, no
// per-event re-parsing" approach the detector package uses for rules.
package remediation

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/catherinevee/integration-auditor/internal/apperrors"
	"github.com/catherinevee/integration-auditor/internal/model"
)

// Context carries the per-integration values available to every template
// under the "ctx" root.
type Context struct {
	IntegrationID         string
	Email                 string
	StoreCount            int
	Edition               model.LicenseEdition
	OperatorID            string
	DryRun                bool
	MaxOpsPerIntegration  int
}

// Analysis summarizes remediation-generation outcomes that don't map to a
// concrete action: truncation and per-template substitution failures.
type Analysis struct {
	Truncated bool     `json:"truncated"`
	Notes     []string `json:"notes,omitempty"`
}

// Result is the remediation engine's output for one integration.
type Result struct {
	Actions  []model.ExecutionAction `json:"actions"`
	Analysis Analysis                `json:"analysis"`
}

// Engine generates ExecutionActions from CorruptionEvents using a
// pre-compiled RemediationLogic document.
type Engine struct {
	compiled map[string][]compiledTemplate
}

// New compiles logic into an Engine.
func New(logic model.RemediationLogic) *Engine {
	return &Engine{compiled: compile(logic)}
}

// GenerateActions evaluates every event against its corruption type's
// compiled templates, expands repeatFor templates, orders the combined
// action set (tier, then priority, then emission order), detects
// dependency cycles, and truncates to ctx.MaxOpsPerIntegration.
func (e *Engine) GenerateActions(events []model.CorruptionEvent, ctx Context) (Result, error) {
	roots := buildCtxRoot(ctx)

	var actions []model.ExecutionAction
	var notes []string

	for _, ev := range events {
		templates := e.compiled[ev.Params.CorruptionType]
		for _, tmpl := range templates {
			generated, templateNotes, err := e.expandTemplate(tmpl, ev, roots)
			// A single undefined token drops that one action rather than
			// aborting the whole integration's remediation generation; the
			// note is recorded in Result.Analysis.Notes.
			if err != nil {
				notes = append(notes, fmt.Sprintf("remediation-template-error: template %s for %s: %v", tmpl.TemplateID, ev.Params.CorruptionType, err))
				continue
			}
			actions = append(actions, generated...)
			notes = append(notes, templateNotes...)
		}
	}

	if err := checkCycles(actions); err != nil {
		return Result{}, apperrors.New(apperrors.KindRemediation, ctx.IntegrationID, fmt.Errorf("%w: %v", apperrors.ErrCircularDependency, err))
	}

	orderActions(actions)

	truncated := false
	if ctx.MaxOpsPerIntegration > 0 && len(actions) > ctx.MaxOpsPerIntegration {
		actions = actions[:ctx.MaxOpsPerIntegration]
		truncated = true
		notes = append(notes, fmt.Sprintf("truncated to maxOpsPerIntegration=%d", ctx.MaxOpsPerIntegration))
	}

	return Result{
		Actions:  actions,
		Analysis: Analysis{Truncated: truncated, Notes: notes},
	}, nil
}

// expandTemplate renders one ActionTemplate against one event, producing
// one action (or, when RepeatFor is set, one per element of the named
// evidence list).
func (e *Engine) expandTemplate(tmpl compiledTemplate, ev model.CorruptionEvent, ctxRoot map[string]interface{}) ([]model.ExecutionAction, []string, error) {
	evidenceRoot := ev.Evidence
	if evidenceRoot == nil {
		evidenceRoot = map[string]interface{}{}
	}

	if tmpl.RepeatFor == "" {
		action, err := e.renderOne(tmpl, ev, ctxRoot, evidenceRoot, nil)
		if err != nil {
			return nil, nil, err
		}
		return []model.ExecutionAction{action}, nil, nil
	}

	items, ok := evidenceRoot[tmpl.RepeatFor].([]string)
	if !ok {
		if raw, ok2 := evidenceRoot[tmpl.RepeatFor].([]interface{}); ok2 {
			items = make([]string, 0, len(raw))
			for _, v := range raw {
				items = append(items, fmt.Sprintf("%v", v))
			}
		}
	}

	var actions []model.ExecutionAction
	for _, item := range items {
		action, err := e.renderOne(tmpl, ev, ctxRoot, evidenceRoot, item)
		if err != nil {
			return nil, nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil, nil
}

func (e *Engine) renderOne(tmpl compiledTemplate, ev model.CorruptionEvent, ctxRoot map[string]interface{}, evidence map[string]interface{}, item interface{}) (model.ExecutionAction, error) {
	roots := map[string]interface{}{
		"ctx":      ctxRoot,
		"evidence": evidence,
	}
	if item != nil {
		roots["item"] = item
	}

	payload, err := resolveValue(tmpl.payload, roots)
	if err != nil {
		return model.ExecutionAction{}, fmt.Errorf("%w: %v", apperrors.ErrTemplateUndefined, err)
	}

	after, err := json.Marshal(payload)
	if err != nil {
		return model.ExecutionAction{}, err
	}

	target := model.ActionTarget{
		Type:         tmpl.Target.Type,
		ResourceType: tmpl.Target.ResourceType,
		ResourceID:   resolveTargetResourceID(tmpl.Target.ResourceID, roots),
	}

	action := model.ExecutionAction{
		ID:   uuid.NewString(),
		Type: tmpl.ActionType,
		Target: target,
		Payload: model.ActionPayload{
			After: after,
		},
		Metadata: model.ActionMetadata{
			Reason:       ev.Params.CorruptionType,
			Priority:     tmpl.Priority,
			Rollbackable: tmpl.Rollbackable,
			Dependencies: tmpl.Dependencies,
		},
		CorruptionType: ev.Params.CorruptionType,
	}.WithSourceTemplateID(tmpl.TemplateID)

	return action, nil
}

// resolveTargetResourceID substitutes a single {{...}} token in a target's
// resourceId, if present; a literal resourceId passes through unchanged.
func resolveTargetResourceID(raw string, roots map[string]interface{}) string {
	if raw == "" {
		return ""
	}
	segments := compileString(raw)
	v, err := resolveString(segments, roots)
	if err != nil {
		return raw
	}
	return fmt.Sprintf("%v", v)
}

func buildCtxRoot(ctx Context) map[string]interface{} {
	return map[string]interface{}{
		"integrationId":        ctx.IntegrationID,
		"email":                ctx.Email,
		"storeCount":           ctx.StoreCount,
		"edition":              string(ctx.Edition),
		"operatorId":           ctx.OperatorID,
		"dryRun":               ctx.DryRun,
		"maxOpsPerIntegration": ctx.MaxOpsPerIntegration,
	}
}

// orderActions sorts actions by tier (reconnect -> patch -> create ->
// update -> delete), then by ascending priority, stable on emission order
// for ties, per SPEC_FULL.md §4.3.
func orderActions(actions []model.ExecutionAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		ti, tj := actions[i].Type.Tier(), actions[j].Type.Tier()
		if ti != tj {
			return ti < tj
		}
		return actions[i].Metadata.Priority < actions[j].Metadata.Priority
	})
}

// checkCycles validates that the Dependencies graph expressed via
// sourceTemplateID references contains no cycle.
func checkCycles(actions []model.ExecutionAction) error {
	byTemplate := make(map[string]model.ExecutionAction, len(actions))
	for _, a := range actions {
		if id := a.SourceTemplateID(); id != "" {
			byTemplate[id] = a
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(byTemplate))

	var visit func(id string, stack []string) error
	visit = func(id string, stack []string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("cycle: %v -> %s", stack, id)
		}
		color[id] = gray
		a, ok := byTemplate[id]
		if ok {
			for _, dep := range a.Metadata.Dependencies {
				if _, exists := byTemplate[dep]; !exists {
					continue
				}
				if err := visit(dep, append(stack, id)); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	ids := make([]string, 0, len(byTemplate))
	for id := range byTemplate {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return err
		}
	}
	return nil
}
