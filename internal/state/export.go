package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/catherinevee/integration-auditor/internal/apperrors"
	"github.com/catherinevee/integration-auditor/internal/model"
)

// ExportState serializes every stored record to JSON (spec.md §8's
// export/import round-trip property: exporting then importing into a
// fresh store must reproduce getProcessingStats()).
func (s *Store) ExportState() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`SELECT integration_id, operator_id, last_processed_at, last_result_hash, status FROM processing_state`)
	if err != nil {
		return nil, apperrors.New(apperrors.KindConfig, "", fmt.Errorf("exporting state: %w", err))
	}
	defer rows.Close()

	var records []model.ProcessingStateRecord
	for rows.Next() {
		var rec model.ProcessingStateRecord
		var status string
		var lastProcessedAt sql.NullTime
		if err := rows.Scan(&rec.IntegrationID, &rec.OperatorID, &lastProcessedAt, &rec.LastResultHash, &status); err != nil {
			return nil, apperrors.New(apperrors.KindConfig, "", fmt.Errorf("scanning exported row: %w", err))
		}
		rec.Status = model.ProcessingStatus(status)
		if lastProcessedAt.Valid {
			rec.LastProcessedAt = lastProcessedAt.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.New(apperrors.KindConfig, "", err)
	}

	return json.Marshal(records)
}

// ImportState replaces the store's contents with the records encoded in
// data (as produced by ExportState).
func (s *Store) ImportState(data []byte) error {
	var records []model.ProcessingStateRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return apperrors.New(apperrors.KindConfig, "", fmt.Errorf("parsing state export: %w", err))
	}

	for _, rec := range records {
		if err := s.Record(rec); err != nil {
			return err
		}
	}
	return nil
}
