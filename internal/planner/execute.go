package planner

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/catherinevee/integration-auditor/internal/model"
)

// Executor performs one action against the external integration platform.
// The core ships no implementation of this interface (SPEC_FULL.md §1's
// "no live network calls" Non-goal); callers inject one, or a recording
// stub for dry runs and tests.
type Executor interface {
	ExecuteAction(ctx context.Context, action model.ExecutionAction) error
}

// SafetyGate is the subset of the safety controller the executor harness
// needs: a gate to pass before each live call, and success/failure
// notifications to drive the circuit breaker.
type SafetyGate interface {
	Allow(ctx context.Context) error
	OnSuccess()
	OnFailure()
}

// AuditSink records one attempted action. Implementations must not block
// execution on slow I/O for longer than necessary; the planner does not
// retry audit-write failures (SPEC_FULL.md §7(h): logged, never aborts).
type AuditSink interface {
	LogAction(entry model.AuditLogEntry)
}

// Options configures one ExecutePlan call.
type Options struct {
	DryRun             bool
	StopOnFailure      bool
	MaxAttempts        int
	BaseDelay          time.Duration
	BackoffMultiplier  float64
	MaxDelay           time.Duration
	ActionTimeout      time.Duration
	OperatorID         string
	SessionID          string
	Environment        string
	Version            string
}

// ExecutePlan runs a plan's actions in order against exec, gated by
// safety, retrying transient failures with exponential backoff, and
// logging every attempt to audit (SPEC_FULL.md §4.4).
//
// Dry runs bypass both the safety gate and the executor: no live call is
// made, so there is nothing for the circuit breaker or rate limiter to
// protect. The payloads the remediation engine built still reach the audit
// log, marked by the DryRun context flag. The engine fills only
// Payload.After, so Before and Diff are empty in those entries.
func ExecutePlan(ctx context.Context, plan model.ExecutionPlan, exec Executor, safety SafetyGate, audit AuditSink, opts Options) model.ExecutionResult {
	start := time.Now()
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var executed, failed, skipped []model.ActionOutcome
	abort := false

	for _, action := range plan.Actions {
		if abort {
			skipped = append(skipped, model.ActionOutcome{ActionID: action.ID})
			continue
		}

		outcome, ok := attemptAction(ctx, action, exec, safety, opts, maxAttempts)
		if audit != nil {
			audit.LogAction(buildAuditEntry(plan, action, ok, outcome, opts))
		}

		if ok {
			executed = append(executed, outcome)
			continue
		}

		failed = append(failed, outcome)
		if opts.StopOnFailure || plan.Safety.AbortOnFirstFailure {
			abort = true
		}
	}

	attempted := len(executed) + len(failed)
	status := model.StatusSuccess
	switch {
	case len(failed) == 0 && len(skipped) == 0:
		status = model.StatusSuccess
	case attempted > 0 && len(executed) == 0:
		status = model.StatusFailed
	default:
		status = model.StatusPartial
	}

	var rollback *model.RollbackPlan
	if len(plan.Safety.RollbackPlan.Actions) > 0 {
		rollback = &plan.Safety.RollbackPlan
	}

	return model.ExecutionResult{
		PlanID:        plan.PlanID,
		IntegrationID: plan.IntegrationID,
		Status:        status,
		Actions: model.ExecutionActions{
			Executed: executed,
			Failed:   failed,
			Skipped:  skipped,
		},
		Duration: time.Since(start),
		Rollback: rollback,
	}
}

// attemptAction runs one action to completion: dry-run short-circuit,
// otherwise safety gate + retry loop. ok is false only if every attempt
// failed (or the safety gate refused the call).
func attemptAction(ctx context.Context, action model.ExecutionAction, exec Executor, safety SafetyGate, opts Options, maxAttempts int) (model.ActionOutcome, bool) {
	if opts.DryRun {
		return model.ActionOutcome{ActionID: action.ID, Attempts: 1}, true
	}

	if safety != nil {
		if err := safety.Allow(ctx); err != nil {
			return model.ActionOutcome{ActionID: action.ID, Error: err.Error()}, false
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		actionCtx := ctx
		var cancel context.CancelFunc
		if opts.ActionTimeout > 0 {
			actionCtx, cancel = context.WithTimeout(ctx, opts.ActionTimeout)
		}
		err := exec.ExecuteAction(actionCtx, action)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if safety != nil {
				safety.OnSuccess()
			}
			return model.ActionOutcome{ActionID: action.ID, Attempts: attempt}, true
		}

		lastErr = err
		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(backoffDelay(opts, attempt)):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = maxAttempts
		}
	}

	if safety != nil {
		safety.OnFailure()
	}
	return model.ActionOutcome{ActionID: action.ID, Error: lastErr.Error(), Attempts: maxAttempts}, false
}

// backoffDelay computes base * backoffMultiplier^(attempt-1), capped at
// maxDelay, per SPEC_FULL.md §4.4.
func backoffDelay(opts Options, attempt int) time.Duration {
	base := opts.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	mult := opts.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := time.Duration(float64(base) * math.Pow(mult, float64(attempt-1)))
	if opts.MaxDelay > 0 && delay > opts.MaxDelay {
		delay = opts.MaxDelay
	}
	return delay
}

func buildAuditEntry(plan model.ExecutionPlan, action model.ExecutionAction, ok bool, outcome model.ActionOutcome, opts Options) model.AuditLogEntry {
	status := string(model.ProcessingStatusSuccess)
	if !ok {
		status = string(model.ProcessingStatusFailed)
	}

	return model.AuditLogEntry{
		ID:            uuid.NewString(),
		Timestamp:     time.Now(),
		OperatorID:    opts.OperatorID,
		SessionID:     opts.SessionID,
		IntegrationID: plan.IntegrationID,
		Action: model.AuditAction{
			Type:   action.Type,
			Target: action.Target,
			Before: action.Payload.Before,
			After:  action.Payload.After,
			Diff:   action.Payload.Diff,
		},
		Execution: model.AuditExecution{
			PlanID:       plan.PlanID,
			ActionID:     action.ID,
			Status:       status,
			Error:        outcome.Error,
			RetryAttempt: outcome.Attempts,
		},
		Context: model.AuditContext{
			DryRun:      opts.DryRun,
			Environment: opts.Environment,
			Version:     opts.Version,
		},
		Rollback: model.AuditRollback{
			Available: action.Metadata.Rollbackable,
			ActionID:  action.ID,
		},
	}
}
