package planner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/integration-auditor/internal/model"
)

func TestCreateExecutionPlan_RiskEscalatesWithDelete(t *testing.T) {
	actions := []model.ExecutionAction{
		{ID: "a1", Type: model.ActionReconnect, Metadata: model.ActionMetadata{Rollbackable: true}, Payload: model.ActionPayload{After: json.RawMessage(`{}`)}},
	}
	low := CreateExecutionPlan("int-1", actions, 10, false)
	assert.Equal(t, model.RiskLow, low.Summary.RiskLevel)

	actions = append(actions, model.ExecutionAction{ID: "a2", Type: model.ActionDelete, Payload: model.ActionPayload{Before: json.RawMessage(`{"x":1}`)}, Metadata: model.ActionMetadata{Rollbackable: true}})
	high := CreateExecutionPlan("int-1", actions, 10, false)
	assert.Equal(t, model.RiskCritical, high.Summary.RiskLevel)
}

func TestCreateExecutionPlan_RollbackPartialWhenActionNotRollbackable(t *testing.T) {
	actions := []model.ExecutionAction{
		{ID: "a1", Type: model.ActionCreate, Payload: model.ActionPayload{After: json.RawMessage(`{"x":1}`)}, Metadata: model.ActionMetadata{Rollbackable: true}},
		{ID: "a2", Type: model.ActionDelete, Metadata: model.ActionMetadata{Rollbackable: false}},
	}
	plan := CreateExecutionPlan("int-1", actions, 10, false)
	assert.True(t, plan.Safety.RollbackPlan.Partial)
	require.Len(t, plan.Safety.RollbackPlan.Actions, 1)
	assert.Equal(t, model.ActionDelete, plan.Safety.RollbackPlan.Actions[0].Type)
}

func TestInvertDiff_ReplaceUsesBeforeValue(t *testing.T) {
	before := json.RawMessage(`{"connectorEdition":"starter"}`)
	diff := []model.JSONPatchOp{{Op: "replace", Path: "/connectorEdition", Value: "premium"}}

	inverted := InvertDiff(diff, before)
	require.Len(t, inverted, 1)
	assert.Equal(t, "replace", inverted[0].Op)
	assert.Equal(t, "starter", inverted[0].Value)
}

func TestNegateAdjustPayload(t *testing.T) {
	after := json.RawMessage(`{"delta":5}`)
	negated, ok := negateAdjustPayload(after)
	require.True(t, ok)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(negated, &m))
	assert.Equal(t, -5.0, m["delta"])
}

type stubExecutor struct {
	fail int
	err  error
	n    int
}

func (s *stubExecutor) ExecuteAction(ctx context.Context, action model.ExecutionAction) error {
	s.n++
	if s.n <= s.fail {
		return s.err
	}
	return nil
}

type stubSafety struct {
	successes, failures int
}

func (s *stubSafety) Allow(ctx context.Context) error { return nil }
func (s *stubSafety) OnSuccess()                       { s.successes++ }
func (s *stubSafety) OnFailure()                       { s.failures++ }

type stubAudit struct {
	entries []model.AuditLogEntry
}

func (s *stubAudit) LogAction(entry model.AuditLogEntry) {
	s.entries = append(s.entries, entry)
}

func TestExecutePlan_AllSucceed(t *testing.T) {
	plan := model.ExecutionPlan{
		PlanID:        "p1",
		IntegrationID: "int-1",
		Actions: []model.ExecutionAction{
			{ID: "a1", Type: model.ActionPatch},
			{ID: "a2", Type: model.ActionCreate},
		},
	}
	exec := &stubExecutor{}
	safety := &stubSafety{}
	audit := &stubAudit{}

	result := ExecutePlan(context.Background(), plan, exec, safety, audit, Options{MaxAttempts: 1})
	assert.Equal(t, model.StatusSuccess, result.Status)
	assert.Len(t, result.Actions.Executed, 2)
	assert.Equal(t, 2, safety.successes)
	assert.Len(t, audit.entries, 2)
}

func TestExecutePlan_StopOnFailureSkipsRemaining(t *testing.T) {
	plan := model.ExecutionPlan{
		PlanID:        "p1",
		IntegrationID: "int-1",
		Actions: []model.ExecutionAction{
			{ID: "a1", Type: model.ActionPatch},
			{ID: "a2", Type: model.ActionCreate},
			{ID: "a3", Type: model.ActionUpdate},
		},
	}
	exec := &stubExecutor{fail: 10, err: errors.New("boom")}
	safety := &stubSafety{}

	result := ExecutePlan(context.Background(), plan, exec, safety, nil, Options{MaxAttempts: 1, StopOnFailure: true, BaseDelay: 0})
	assert.Equal(t, model.StatusFailed, result.Status)
	assert.Len(t, result.Actions.Failed, 1)
	assert.Len(t, result.Actions.Skipped, 2)
}

func TestExecutePlan_RetrySucceedsOnSecondAttempt(t *testing.T) {
	plan := model.ExecutionPlan{
		PlanID:        "p1",
		IntegrationID: "int-1",
		Actions:       []model.ExecutionAction{{ID: "a1", Type: model.ActionPatch}},
	}
	exec := &stubExecutor{fail: 1, err: errors.New("transient")}
	safety := &stubSafety{}

	result := ExecutePlan(context.Background(), plan, exec, safety, nil, Options{MaxAttempts: 3, BaseDelay: 0})
	assert.Equal(t, model.StatusSuccess, result.Status)
	require.Len(t, result.Actions.Executed, 1)
	assert.Equal(t, 2, result.Actions.Executed[0].Attempts)
}

func TestExecutePlan_DryRunBypassesExecutor(t *testing.T) {
	plan := model.ExecutionPlan{
		PlanID:        "p1",
		IntegrationID: "int-1",
		Actions:       []model.ExecutionAction{{ID: "a1", Type: model.ActionPatch}},
	}
	exec := &stubExecutor{fail: 99, err: errors.New("would fail")}
	safety := &stubSafety{}
	audit := &stubAudit{}

	result := ExecutePlan(context.Background(), plan, exec, safety, audit, Options{DryRun: true})
	assert.Equal(t, model.StatusSuccess, result.Status)
	assert.Equal(t, 0, exec.n)
	assert.Equal(t, 0, safety.successes+safety.failures)
	require.Len(t, audit.entries, 1)
	assert.True(t, audit.entries[0].Context.DryRun)
}
