package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/integration-auditor/internal/apperrors"
	"github.com/catherinevee/integration-auditor/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGet_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().Truncate(time.Second)

	rec := model.ProcessingStateRecord{
		IntegrationID:   "int-1",
		OperatorID:      "op-1",
		LastProcessedAt: now,
		LastResultHash:  "abc123",
		Status:          model.ProcessingStatusSuccess,
	}
	require.NoError(t, s.Record(rec))

	got, ok, err := s.Get("int-1", "op-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.LastResultHash, got.LastResultHash)
	assert.Equal(t, rec.Status, got.Status)
}

func TestRecord_UpsertsOnConflict(t *testing.T) {
	s := newTestStore(t)
	base := model.ProcessingStateRecord{IntegrationID: "int-1", OperatorID: "op-1", Status: model.ProcessingStatusFailed}
	require.NoError(t, s.Record(base))

	updated := base
	updated.Status = model.ProcessingStatusSuccess
	updated.LastResultHash = "new-hash"
	require.NoError(t, s.Record(updated))

	got, ok, err := s.Get("int-1", "op-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.ProcessingStatusSuccess, got.Status)
	assert.Equal(t, "new-hash", got.LastResultHash)
}

func TestShouldReprocess(t *testing.T) {
	s := newTestStore(t)

	should, err := s.ShouldReprocess("int-new", "op-1", 24, false)
	require.NoError(t, err)
	assert.True(t, should, "no prior record means reprocess")

	require.NoError(t, s.Record(model.ProcessingStateRecord{
		IntegrationID: "int-1", OperatorID: "op-1",
		LastProcessedAt: time.Now(), Status: model.ProcessingStatusSuccess,
	}))

	should, err = s.ShouldReprocess("int-1", "op-1", 24, false)
	require.NoError(t, err)
	assert.False(t, should, "recent record within maxAgeHours should not reprocess")

	should, err = s.ShouldReprocess("int-1", "op-1", 24, true)
	require.NoError(t, err)
	assert.True(t, should, "forceReprocess always reprocesses")
}

func TestGetProcessingStats_Aggregates(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(model.ProcessingStateRecord{IntegrationID: "a", OperatorID: "op", LastProcessedAt: time.Now(), Status: model.ProcessingStatusSuccess}))
	require.NoError(t, s.Record(model.ProcessingStateRecord{IntegrationID: "b", OperatorID: "op", LastProcessedAt: time.Now(), Status: model.ProcessingStatusFailed}))

	stats, err := s.GetProcessingStats("op")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[model.ProcessingStatusSuccess])
	assert.Equal(t, 1, stats.ByStatus[model.ProcessingStatusFailed])
}

func TestCleanup_RemovesOldRecords(t *testing.T) {
	s := newTestStore(t)
	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, s.Record(model.ProcessingStateRecord{IntegrationID: "old", OperatorID: "op", LastProcessedAt: old, Status: model.ProcessingStatusSuccess}))
	require.NoError(t, s.Record(model.ProcessingStateRecord{IntegrationID: "new", OperatorID: "op", LastProcessedAt: time.Now(), Status: model.ProcessingStatusSuccess}))

	removed, err := s.Cleanup(7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok, err := s.Get("old", "op")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get("new", "op")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReset_RequiresExactConfirmationString(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(model.ProcessingStateRecord{IntegrationID: "a", OperatorID: "op", Status: model.ProcessingStatusSuccess}))

	err := s.Reset("wrong")
	require.Error(t, err)
	kind, ok := apperrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConfig, kind)

	require.NoError(t, s.Reset(resetConfirmation))
	stats, err := s.GetProcessingStats("op")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestExportImportState_RoundTripsStats(t *testing.T) {
	src := newTestStore(t)
	require.NoError(t, src.Record(model.ProcessingStateRecord{IntegrationID: "a", OperatorID: "op", LastProcessedAt: time.Now(), Status: model.ProcessingStatusSuccess}))
	require.NoError(t, src.Record(model.ProcessingStateRecord{IntegrationID: "b", OperatorID: "op", LastProcessedAt: time.Now(), Status: model.ProcessingStatusPartial}))

	data, err := src.ExportState()
	require.NoError(t, err)

	dst := newTestStore(t)
	require.NoError(t, dst.ImportState(data))

	srcStats, err := src.GetProcessingStats("op")
	require.NoError(t, err)
	dstStats, err := dst.GetProcessingStats("op")
	require.NoError(t, err)
	assert.Equal(t, srcStats.Total, dstStats.Total)
	assert.Equal(t, srcStats.ByStatus, dstStats.ByStatus)
}
