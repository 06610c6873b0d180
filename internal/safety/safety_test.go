package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/integration-auditor/internal/model"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 50*time.Millisecond, 1)
	assert.True(t, cb.Allow())

	cb.OnFailure()
	cb.OnFailure()
	state, _ := cb.State()
	assert.Equal(t, model.CircuitClosed, state)

	cb.OnFailure()
	state, _ = cb.State()
	assert.Equal(t, model.CircuitOpen, state)
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_NeverGoesDirectlyOpenToClosed(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond, 2)
	cb.OnFailure()
	state, _ := cb.State()
	require.Equal(t, model.CircuitOpen, state)

	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.Allow())
	state, _ = cb.State()
	assert.Equal(t, model.CircuitHalfOpen, state)

	cb.OnSuccess()
	state, _ = cb.State()
	assert.Equal(t, model.CircuitHalfOpen, state, "one success should not close a breaker configured for two")

	cb.OnSuccess()
	state, _ = cb.State()
	assert.Equal(t, model.CircuitClosed, state)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond, 1)
	cb.OnFailure()
	time.Sleep(15 * time.Millisecond)
	require.True(t, cb.Allow())

	cb.OnFailure()
	state, _ := cb.State()
	assert.Equal(t, model.CircuitOpen, state)
}

func TestMaintenanceWindow_CrossesMidnight(t *testing.T) {
	w, err := ParseMaintenanceWindow([]string{"friday"}, "22:00-02:00", time.UTC)
	require.NoError(t, err)

	late := time.Date(2026, 8, 7, 23, 30, 0, 0, time.UTC) // Friday 23:30
	require.Equal(t, time.Friday, late.Weekday())
	assert.True(t, w.Contains(late))

	early := time.Date(2026, 8, 8, 1, 30, 0, 0, time.UTC) // Saturday 01:30
	require.Equal(t, time.Saturday, early.Weekday())
	assert.True(t, w.Contains(early))

	outside := time.Date(2026, 8, 8, 3, 0, 0, 0, time.UTC) // Saturday 03:00
	assert.False(t, w.Contains(outside))
}

func TestMaintenanceWindow_NormalRangeWithinSingleDay(t *testing.T) {
	w, err := ParseMaintenanceWindow([]string{"Mon", "Wed"}, "09:00-17:00", time.UTC)
	require.NoError(t, err)

	inside := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC) // Monday
	assert.True(t, w.Contains(inside))

	wrongDay := time.Date(2026, 8, 4, 12, 0, 0, 0, time.UTC) // Tuesday
	assert.False(t, w.Contains(wrongDay))
}

func TestPerformPreflightCheck_AllowlistBlocksUnlistedIntegration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowlistEnabled = true
	cfg.Allowlist = []string{"a", "b"}
	c := NewController(cfg)

	result := c.PerformPreflightCheck(PreflightRequest{IntegrationIDs: []string{"a", "b", "c"}})
	assert.False(t, result.Allowed)
	require.NotEmpty(t, result.Blockers)
	found := false
	for _, b := range result.Blockers {
		if contains(b, "c") {
			found = true
		}
	}
	assert.True(t, found, "blocker should mention integration c")
}

func TestPerformPreflightCheck_CircuitOpenBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CircuitBreaker.FailureThreshold = 1
	c := NewController(cfg)
	c.OnFailure()

	result := c.PerformPreflightCheck(PreflightRequest{IntegrationIDs: []string{"a"}})
	assert.False(t, result.Allowed)
}

func TestPerformPreflightCheck_WarnsNear80PercentOfCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalOps = 10
	c := NewController(cfg)

	plan := model.ExecutionPlan{IntegrationID: "a", Actions: make([]model.ExecutionAction, 9)}
	result := c.PerformPreflightCheck(PreflightRequest{IntegrationIDs: []string{"a"}, Plans: []model.ExecutionPlan{plan}})
	assert.True(t, result.Allowed)
	assert.NotEmpty(t, result.Warnings)
}

func TestPerformPreflightCheck_ForceConfirmationSkipsThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Confirmation.Destructive = 1
	c := NewController(cfg)

	plan := model.ExecutionPlan{
		IntegrationID: "a",
		Actions: []model.ExecutionAction{
			{Type: model.ActionDelete}, {Type: model.ActionDelete}, {Type: model.ActionDelete},
		},
	}
	blocked := c.PerformPreflightCheck(PreflightRequest{IntegrationIDs: []string{"a"}, Plans: []model.ExecutionPlan{plan}})
	assert.False(t, blocked.Allowed)

	forced := c.PerformPreflightCheck(PreflightRequest{IntegrationIDs: []string{"a"}, Plans: []model.ExecutionPlan{plan}, ForceConfirmation: true})
	assert.True(t, forced.Allowed)
}

func TestController_AllowGatesOnOpenCircuit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CircuitBreaker.FailureThreshold = 1
	c := NewController(cfg)
	c.OnFailure()

	err := c.Allow(context.Background())
	require.Error(t, err)
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
