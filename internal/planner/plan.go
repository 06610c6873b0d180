// Package planner builds ExecutionPlans from remediation actions and runs
// them against an injected Executor under Safety gating (SPEC_FULL.md
// §4.4). It owns no business rules of its own: ordering and bounds are
// already applied by the remediation engine; the planner adds the
// rollback plan and the retry/safety harness around execution.
package planner

import (
	"time"

	"github.com/google/uuid"

	"github.com/catherinevee/integration-auditor/internal/model"
)

// riskWeight scores each action type's contribution to a plan's overall
// risk, mirroring the teacher's RiskAnalyzer weighting approach
// (internal/remediation/planner.go's AnalyzePlan) adapted to this spec's
// six action types.
var riskWeight = map[model.ActionType]float64{
	model.ActionReconnect: 0.1,
	model.ActionPatch:     0.2,
	model.ActionCreate:    0.3,
	model.ActionAdjust:    0.3,
	model.ActionUpdate:    0.5,
	model.ActionDelete:    0.8,
}

// perActionDuration estimates wall-clock cost per action type for
// PlanSummary.EstimatedDuration; it is a rough operator-facing figure, not
// a scheduling guarantee.
var perActionDuration = map[model.ActionType]time.Duration{
	model.ActionReconnect: 2 * time.Second,
	model.ActionPatch:     1 * time.Second,
	model.ActionCreate:    3 * time.Second,
	model.ActionUpdate:    3 * time.Second,
	model.ActionAdjust:    1 * time.Second,
	model.ActionDelete:    2 * time.Second,
}

// CreateExecutionPlan combines a remediation engine's actions with a
// computed rollback plan into one ExecutionPlan, per SPEC_FULL.md §4.4.
func CreateExecutionPlan(integrationID string, actions []model.ExecutionAction, maxOpsPerIntegration int, abortOnFirstFailure bool) model.ExecutionPlan {
	rollback := buildRollbackPlan(actions)

	return model.ExecutionPlan{
		PlanID:        uuid.NewString(),
		IntegrationID: integrationID,
		Actions:       actions,
		Summary:       summarize(actions),
		Safety: model.PlanSafety{
			MaxOpsPerIntegration: maxOpsPerIntegration,
			AbortOnFirstFailure:  abortOnFirstFailure,
			RollbackPlan:         rollback,
		},
		CreatedAt: time.Now(),
	}
}

func summarize(actions []model.ExecutionAction) model.PlanSummary {
	byType := make(map[model.ActionType]int, len(actions))
	var totalRisk, maxWeight float64
	var duration time.Duration

	for _, a := range actions {
		byType[a.Type]++
		duration += perActionDuration[a.Type]
		w := riskWeight[a.Type]
		totalRisk += w
		if w > maxWeight {
			maxWeight = w
		}
	}

	return model.PlanSummary{
		ActionsByType:     byType,
		RiskLevel:         riskLevel(maxWeight, totalRisk, len(actions)),
		EstimatedDuration: duration,
	}
}

func riskLevel(maxWeight, totalRisk float64, count int) model.RiskLevel {
	if count == 0 {
		return model.RiskLow
	}
	avg := totalRisk / float64(count)

	switch {
	case maxWeight >= riskWeight[model.ActionDelete] || avg > 0.6:
		return model.RiskCritical
	case maxWeight >= riskWeight[model.ActionUpdate] || avg > 0.4:
		return model.RiskHigh
	case maxWeight >= riskWeight[model.ActionCreate] || avg > 0.2:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}
