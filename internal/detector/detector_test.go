package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/integration-auditor/internal/model"
)

func testRules() *model.BusinessRules {
	return &model.BusinessRules{
		EditionRequirements: map[model.LicenseEdition]model.EditionRequirement{
			model.EditionStarter: {ImportsPerStore: 2, ExportsPerStore: 2, FlowsPerStore: 1},
			model.EditionPremium: {ImportsPerStore: 10, ExportsPerStore: 10, FlowsPerStore: 5},
		},
		LicenseValidation: model.LicenseValidationRules{
			ValidEditions:   []string{"starter", "standard", "premium", "shopifymarkets", "markets"},
			MaxSettingsSize: 1024,
			CaseSensitive:   false,
			TrimWhitespace:  true,
		},
		RequiredProperties: model.RequiredPropertiesRules{},
		Tolerances:         model.Tolerances{ResourceCountTolerance: 0},
	}
}

func baseSnapshot(id string, edition model.LicenseEdition) *model.IntegrationSnapshot {
	return &model.IntegrationSnapshot{
		ID:             id,
		LicenseEdition: edition,
		StoreCount:     1,
		Settings: model.Settings{
			ConnectorEdition: string(edition),
			Raw:              map[string]interface{}{"connectorEdition": string(edition)},
		},
		Raw: map[string]interface{}{},
	}
}

func TestDetect_LicenseMismatchOnly(t *testing.T) {
	s := baseSnapshot("test-001", model.EditionStarter)
	s.Settings.ConnectorEdition = "premium"
	s.Imports = make([]model.Resource, 2)
	s.Exports = make([]model.Resource, 2)
	s.Flows = make([]model.Resource, 1)

	d := New(testRules())
	result, err := d.Detect(s)
	require.NoError(t, err)

	require.Len(t, result.CorruptionEvents, 1)
	assert.Equal(t, model.CorruptionLicenseEditionMismatch, result.CorruptionEvents[0].Params.CorruptionType)
	assert.Equal(t, model.SeverityHigh, result.CorruptionEvents[0].Severity)
	assert.Equal(t, model.SeverityHigh, result.OverallSeverity)
}

func TestDetect_StuckUpdate(t *testing.T) {
	s := baseSnapshot("test-002", model.EditionPremium)
	s.UpdateInProgress = true
	s.Imports = make([]model.Resource, 10)
	s.Exports = make([]model.Resource, 10)
	s.Flows = make([]model.Resource, 5)

	d := New(testRules())
	result, err := d.Detect(s)
	require.NoError(t, err)

	require.Len(t, result.CorruptionEvents, 1)
	assert.Equal(t, model.CorruptionStuckInUpdateProcess, result.CorruptionEvents[0].Params.CorruptionType)
	assert.Equal(t, model.SeverityHigh, result.OverallSeverity)
}

func TestDetect_ImportsCountMismatch(t *testing.T) {
	s := baseSnapshot("test-003", model.EditionPremium)
	s.StoreCount = 2
	s.Imports = make([]model.Resource, 5)
	s.Exports = make([]model.Resource, 20)
	s.Flows = make([]model.Resource, 10)

	d := New(testRules())
	result, err := d.Detect(s)
	require.NoError(t, err)

	require.Len(t, result.CorruptionEvents, 1)
	ev := result.CorruptionEvents[0]
	assert.Equal(t, model.CorruptionImportsCountMismatch, ev.Params.CorruptionType)
	assert.Equal(t, 20, ev.Evidence["expected"])
	assert.Equal(t, 5, ev.Evidence["observed"])
	assert.Equal(t, -15, ev.Evidence["delta"])
	assert.Equal(t, model.SeverityHigh, ev.Severity)
}

func TestDetect_OfflineConnection(t *testing.T) {
	s := baseSnapshot("test-004", model.EditionStarter)
	s.Imports = make([]model.Resource, 2)
	s.Exports = make([]model.Resource, 2)
	s.Flows = make([]model.Resource, 1)
	s.Connections = []model.Connection{{ExternalID: "conn-1", Offline: true, Target: "shopify"}}

	d := New(testRules())
	result, err := d.Detect(s)
	require.NoError(t, err)

	require.Len(t, result.CorruptionEvents, 1)
	assert.Equal(t, model.CorruptionOfflineConnection, result.CorruptionEvents[0].Params.CorruptionType)
	assert.Equal(t, model.SeverityMedium, result.CorruptionEvents[0].Severity)
}

func TestDetect_StoreCountZero_NoCountMismatch(t *testing.T) {
	s := baseSnapshot("test-005", model.EditionPremium)
	s.StoreCount = 0

	d := New(testRules())
	result, err := d.Detect(s)
	require.NoError(t, err)

	for _, ev := range result.CorruptionEvents {
		assert.NotEqual(t, model.CorruptionImportsCountMismatch, ev.Params.CorruptionType)
		assert.NotEqual(t, model.CorruptionExportsCountMismatch, ev.Params.CorruptionType)
		assert.NotEqual(t, model.CorruptionFlowsCountMismatch, ev.Params.CorruptionType)
	}
}

func TestDetect_EmptyRequiredResourcesSuppressesEvent(t *testing.T) {
	rules := testRules()
	req := rules.EditionRequirements[model.EditionPremium]
	req.RequiredImports = nil
	rules.EditionRequirements[model.EditionPremium] = req

	s := baseSnapshot("test-006", model.EditionPremium)
	s.Imports = make([]model.Resource, 10)
	s.Exports = make([]model.Resource, 10)
	s.Flows = make([]model.Resource, 5)

	d := New(rules)
	result, err := d.Detect(s)
	require.NoError(t, err)

	for _, ev := range result.CorruptionEvents {
		assert.NotEqual(t, model.CorruptionMissingRequiredResource, ev.Params.CorruptionType)
	}
}

func TestDetect_CleanSnapshotIsLowSeverity(t *testing.T) {
	s := baseSnapshot("test-007", model.EditionPremium)
	s.Imports = make([]model.Resource, 10)
	s.Exports = make([]model.Resource, 10)
	s.Flows = make([]model.Resource, 5)

	d := New(testRules())
	result, err := d.Detect(s)
	require.NoError(t, err)

	assert.Empty(t, result.CorruptionEvents)
	assert.Equal(t, model.SeverityLow, result.OverallSeverity)
}
