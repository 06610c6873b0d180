package safety

import (
	"fmt"
	"time"

	"github.com/catherinevee/integration-auditor/internal/model"
)

// PreflightRequest is the input to one performPreflightCheck call.
type PreflightRequest struct {
	IntegrationIDs    []string
	Plans             []model.ExecutionPlan
	OperatorID        string
	ForceConfirmation bool
}

// PerformPreflightCheck evaluates, in order, the circuit breaker state,
// allowlist membership, maintenance window, per-integration/total/
// concurrent caps, and confirmation thresholds (spec.md §4.5). Any
// failing check adds a blocker; a count within 80% of its limit adds a
// warning instead.
func (c *Controller) PerformPreflightCheck(req PreflightRequest) model.PreflightResult {
	result := model.PreflightResult{Allowed: true, Scope: req.IntegrationIDs}

	if state, _ := c.breaker.State(); state == model.CircuitOpen {
		result.Blockers = append(result.Blockers, "circuit breaker is OPEN")
	}

	if c.cfg.AllowlistEnabled {
		for _, id := range req.IntegrationIDs {
			if !c.cfg.allows(id) {
				result.Blockers = append(result.Blockers, fmt.Sprintf("integration %s is not in the allowlist", id))
			}
		}
	}

	if c.cfg.MaintenanceWindow != nil && !c.cfg.MaintenanceWindow.Contains(c.now()) {
		result.Blockers = append(result.Blockers, "current time is outside the configured maintenance window")
		result.Recommendations = append(result.Recommendations, "run during the configured maintenance window")
	}

	for _, plan := range req.Plans {
		if c.cfg.MaxOpsPerIntegration > 0 && len(plan.Actions) > c.cfg.MaxOpsPerIntegration {
			result.Blockers = append(result.Blockers, fmt.Sprintf("plan for %s exceeds maxOpsPerIntegration (%d > %d)", plan.IntegrationID, len(plan.Actions), c.cfg.MaxOpsPerIntegration))
		}
	}

	totalOps, destructive, highRisk := summarizePlans(req.Plans)

	addCapCheck(&result, "total operations", totalOps, c.cfg.MaxTotalOps)
	addCapCheck(&result, "concurrent integrations", len(req.IntegrationIDs), c.cfg.MaxConcurrentIntegrations)

	if !req.ForceConfirmation {
		addConfirmationCheck(&result, "destructive actions", destructive, c.cfg.Confirmation.Destructive)
		addConfirmationCheck(&result, "total actions", totalOps, c.cfg.Confirmation.Total)
		addConfirmationCheck(&result, "high-risk plans", highRisk, c.cfg.Confirmation.HighRisk)
	}

	if len(req.IntegrationIDs) > 1 {
		result.Recommendations = append(result.Recommendations, "consider a smaller batch or --dry-run first")
	}

	result.Allowed = len(result.Blockers) == 0
	return result
}

func summarizePlans(plans []model.ExecutionPlan) (totalOps, destructive, highRisk int) {
	for _, p := range plans {
		totalOps += len(p.Actions)
		for _, a := range p.Actions {
			if a.Type == model.ActionDelete {
				destructive++
			}
		}
		if p.Summary.RiskLevel == model.RiskCritical || p.Summary.RiskLevel == model.RiskHigh {
			highRisk++
		}
	}
	return totalOps, destructive, highRisk
}

// addCapCheck blocks when count exceeds limit, warns at 80% of it.
func addCapCheck(result *model.PreflightResult, label string, count, limit int) {
	if limit <= 0 {
		return
	}
	if count > limit {
		result.Blockers = append(result.Blockers, fmt.Sprintf("%s exceed cap (%d > %d)", label, count, limit))
		return
	}
	if float64(count) >= 0.8*float64(limit) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s are at %d of %d (80%% threshold)", label, count, limit))
	}
}

// addConfirmationCheck blocks when count exceeds threshold without an
// explicit confirmation, warns at 80% of it.
func addConfirmationCheck(result *model.PreflightResult, label string, count, threshold int) {
	if threshold <= 0 {
		return
	}
	if count > threshold {
		result.Blockers = append(result.Blockers, fmt.Sprintf("%s (%d) exceed the confirmation threshold (%d); rerun with --force-confirmation", label, count, threshold))
		return
	}
	if float64(count) >= 0.8*float64(threshold) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s are at %d of %d (80%% threshold)", label, count, threshold))
	}
}

func (c *Controller) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now()
}
