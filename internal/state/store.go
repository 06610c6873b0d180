// Package state implements the State Store (SPEC_FULL.md §4.7): a
// sqlite3-backed per-(operatorId, integrationId) record of the last
// processing outcome, used to decide whether an integration needs
// reprocessing.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/catherinevee/integration-auditor/internal/apperrors"
	"github.com/catherinevee/integration-auditor/internal/model"
)

// resetConfirmation is the literal string the API boundary requires
// before Reset will run (spec.md §4.7).
const resetConfirmation = "RESET-STATE-STORE"

// Store is the process's handle to the state database. Grounded on the
// teacher's DB (internal/database/db.go): WAL mode, a bounded connection
// pool, and schema creation on open, narrowed from the teacher's
// multi-table drift/resource schema to this spec's single processing
// record table.
type Store struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// Open opens (creating if necessary) a sqlite3 database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.New(apperrors.KindConfig, "", fmt.Errorf("creating state directory: %w", err))
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.New(apperrors.KindConfig, "", fmt.Errorf("opening state database: %w", err))
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, apperrors.New(apperrors.KindConfig, "", fmt.Errorf("initializing state schema: %w", err))
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS processing_state (
		integration_id TEXT NOT NULL,
		operator_id TEXT NOT NULL,
		last_processed_at TIMESTAMP,
		last_result_hash TEXT,
		status TEXT,
		PRIMARY KEY (operator_id, integration_id)
	);
	CREATE INDEX IF NOT EXISTS idx_processing_state_status ON processing_state(status);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Record upserts one integration's processing outcome.
func (s *Store) Record(rec model.ProcessingStateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
	INSERT INTO processing_state (integration_id, operator_id, last_processed_at, last_result_hash, status)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(operator_id, integration_id) DO UPDATE SET
		last_processed_at = excluded.last_processed_at,
		last_result_hash  = excluded.last_result_hash,
		status            = excluded.status
	`
	_, err := s.conn.Exec(query, rec.IntegrationID, rec.OperatorID, rec.LastProcessedAt, rec.LastResultHash, string(rec.Status))
	if err != nil {
		return apperrors.New(apperrors.KindConfig, rec.IntegrationID, fmt.Errorf("recording processing state: %w", err))
	}
	return nil
}

// Get returns the stored record for (integrationID, operatorID), and
// false if none exists.
func (s *Store) Get(integrationID, operatorID string) (model.ProcessingStateRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
	SELECT integration_id, operator_id, last_processed_at, last_result_hash, status
	FROM processing_state WHERE operator_id = ? AND integration_id = ?
	`
	row := s.conn.QueryRow(query, operatorID, integrationID)

	var rec model.ProcessingStateRecord
	var status string
	var lastProcessedAt sql.NullTime
	if err := row.Scan(&rec.IntegrationID, &rec.OperatorID, &lastProcessedAt, &rec.LastResultHash, &status); err != nil {
		if err == sql.ErrNoRows {
			return model.ProcessingStateRecord{}, false, nil
		}
		return model.ProcessingStateRecord{}, false, apperrors.New(apperrors.KindConfig, integrationID, fmt.Errorf("reading processing state: %w", err))
	}
	rec.Status = model.ProcessingStatus(status)
	if lastProcessedAt.Valid {
		rec.LastProcessedAt = lastProcessedAt.Time
	}
	return rec, true, nil
}

// ShouldReprocess reports whether an integration needs reprocessing: no
// prior record, the prior record is older than maxAgeHours, or
// forceReprocess is set (spec.md §4.7).
func (s *Store) ShouldReprocess(integrationID, operatorID string, maxAgeHours int, forceReprocess bool) (bool, error) {
	if forceReprocess {
		return true, nil
	}
	rec, ok, err := s.Get(integrationID, operatorID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	if maxAgeHours <= 0 {
		return false, nil
	}
	age := time.Since(rec.LastProcessedAt)
	return age >= time.Duration(maxAgeHours)*time.Hour, nil
}

// ProcessingStats summarizes every stored record for an operator, used
// by getProcessingStats() and the CLI's `state show`.
type ProcessingStats struct {
	Total       int                              `json:"total"`
	ByStatus    map[model.ProcessingStatus]int    `json:"byStatus"`
	OldestRun   time.Time                         `json:"oldestRun"`
	NewestRun   time.Time                         `json:"newestRun"`
}

// GetProcessingStats aggregates all records for operatorID.
func (s *Store) GetProcessingStats(operatorID string) (ProcessingStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`SELECT last_processed_at, status FROM processing_state WHERE operator_id = ?`, operatorID)
	if err != nil {
		return ProcessingStats{}, apperrors.New(apperrors.KindConfig, "", fmt.Errorf("querying processing stats: %w", err))
	}
	defer rows.Close()

	stats := ProcessingStats{ByStatus: make(map[model.ProcessingStatus]int)}
	for rows.Next() {
		var lastProcessedAt sql.NullTime
		var status string
		if err := rows.Scan(&lastProcessedAt, &status); err != nil {
			continue
		}
		stats.Total++
		stats.ByStatus[model.ProcessingStatus(status)]++
		if lastProcessedAt.Valid {
			if stats.OldestRun.IsZero() || lastProcessedAt.Time.Before(stats.OldestRun) {
				stats.OldestRun = lastProcessedAt.Time
			}
			if lastProcessedAt.Time.After(stats.NewestRun) {
				stats.NewestRun = lastProcessedAt.Time
			}
		}
	}
	return stats, rows.Err()
}

// Cleanup deletes records whose last_processed_at is older than
// olderThanDays, returning the number removed.
func (s *Store) Cleanup(olderThanDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	result, err := s.conn.Exec(`DELETE FROM processing_state WHERE last_processed_at < ?`, cutoff)
	if err != nil {
		return 0, apperrors.New(apperrors.KindConfig, "", fmt.Errorf("cleaning up processing state: %w", err))
	}
	return result.RowsAffected()
}

// Reset deletes every record, requiring the literal confirmation string
// at the API boundary (spec.md §4.7).
func (s *Store) Reset(confirmation string) error {
	if confirmation != resetConfirmation {
		return apperrors.New(apperrors.KindConfig, "", apperrors.ErrStateResetConfirm)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(`DELETE FROM processing_state`)
	if err != nil {
		return apperrors.New(apperrors.KindConfig, "", fmt.Errorf("resetting state store: %w", err))
	}
	return nil
}
