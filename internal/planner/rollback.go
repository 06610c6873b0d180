package planner

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/catherinevee/integration-auditor/internal/model"
)

// buildRollbackPlan computes the reverse-ordered sequence of inverse
// actions per the forward/inverse table in SPEC_FULL.md §4.4. Non-
// rollbackable actions, and rollbackable actions this package cannot
// invert (e.g. a delete with no captured before-state), are skipped and
// mark the plan Partial.
func buildRollbackPlan(actions []model.ExecutionAction) model.RollbackPlan {
	partial := false
	inverses := make([]model.ExecutionAction, 0, len(actions))

	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		if !a.Metadata.Rollbackable {
			partial = true
			continue
		}
		inv, ok := InvertAction(a)
		if !ok {
			partial = true
			continue
		}
		inverses = append(inverses, inv)
	}

	return model.RollbackPlan{Actions: inverses, Partial: partial}
}

// InvertAction computes the inverse of a single executed action per the
// forward/inverse table in SPEC_FULL.md §4.4. It is exported so
// internal/audit's generateRollbackActions can replay the same inversion
// over actions reconstructed from audit log entries.
func InvertAction(a model.ExecutionAction) (model.ExecutionAction, bool) {
	base := model.ExecutionAction{
		ID:             uuid.NewString(),
		Target:         a.Target,
		CorruptionType: a.CorruptionType,
		Metadata: model.ActionMetadata{
			Reason:       "rollback of " + a.ID,
			Priority:     a.Metadata.Priority,
			Rollbackable: false,
		},
	}

	switch a.Type {
	case model.ActionCreate:
		base.Type = model.ActionDelete
		base.Payload = model.ActionPayload{Before: a.Payload.After}
		return base, true

	case model.ActionDelete:
		if len(a.Payload.Before) == 0 {
			return model.ExecutionAction{}, false
		}
		base.Type = model.ActionCreate
		base.Payload = model.ActionPayload{After: a.Payload.Before}
		return base, true

	case model.ActionPatch, model.ActionUpdate:
		base.Type = model.ActionPatch
		base.Payload = model.ActionPayload{
			Before: a.Payload.After,
			After:  a.Payload.Before,
			Diff:   InvertDiff(a.Payload.Diff, a.Payload.Before),
		}
		return base, true

	case model.ActionReconnect:
		base.Type = model.ActionReconnect
		base.Payload = model.ActionPayload{Before: a.Payload.After, After: a.Payload.Before}
		return base, true

	case model.ActionAdjust:
		negated, ok := negateAdjustPayload(a.Payload.After)
		if !ok {
			return model.ExecutionAction{}, false
		}
		base.Type = model.ActionAdjust
		base.Payload = model.ActionPayload{After: negated}
		return base, true
	}

	return model.ExecutionAction{}, false
}

// InvertDiff reverses an RFC 6902 patch in application order: add<->remove
// swap, replace swaps its value for the one captured in before (looked up
// by JSON pointer), move swaps path<->from.
func InvertDiff(diff []model.JSONPatchOp, before json.RawMessage) []model.JSONPatchOp {
	if len(diff) == 0 {
		return nil
	}

	var beforeDoc interface{}
	if len(before) > 0 {
		_ = json.Unmarshal(before, &beforeDoc)
	}

	out := make([]model.JSONPatchOp, 0, len(diff))
	for i := len(diff) - 1; i >= 0; i-- {
		op := diff[i]
		switch op.Op {
		case "add":
			out = append(out, model.JSONPatchOp{Op: "remove", Path: op.Path})
		case "remove":
			out = append(out, model.JSONPatchOp{Op: "add", Path: op.Path, Value: jsonPointerGet(beforeDoc, op.Path)})
		case "replace":
			out = append(out, model.JSONPatchOp{Op: "replace", Path: op.Path, Value: jsonPointerGet(beforeDoc, op.Path)})
		case "move":
			out = append(out, model.JSONPatchOp{Op: "move", Path: op.From, From: op.Path})
		default:
			out = append(out, op)
		}
	}
	return out
}

// jsonPointerGet resolves an RFC 6901 JSON pointer against a decoded
// document. It returns nil if the pointer doesn't resolve.
func jsonPointerGet(doc interface{}, pointer string) interface{} {
	if pointer == "" || pointer == "/" {
		return doc
	}
	tokens := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	cur := doc
	for _, tok := range tokens {
		tok = strings.ReplaceAll(tok, "~1", "/")
		tok = strings.ReplaceAll(tok, "~0", "~")

		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[tok]
			if !ok {
				return nil
			}
			cur = v
		case []interface{}:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	return cur
}

// negateAdjustPayload flips the sign of an adjust action's numeric "delta"
// field, per SPEC_FULL.md §4.4's "adjust -> adjust: negated delta".
func negateAdjustPayload(after json.RawMessage) (json.RawMessage, bool) {
	if len(after) == 0 {
		return nil, false
	}
	var m map[string]interface{}
	if err := json.Unmarshal(after, &m); err != nil {
		return nil, false
	}
	delta, ok := m["delta"].(float64)
	if !ok {
		return nil, false
	}
	m["delta"] = -delta

	negated, err := json.Marshal(m)
	if err != nil {
		return nil, false
	}
	return negated, true
}
