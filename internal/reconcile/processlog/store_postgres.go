package processlog

import (
	"context"
	"database/sql"
	"fmt"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/models"
	txcontext "credsync/pkg/platform/tx"
)

// PostgresStore persists the processing log in sync_processing_log.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed processing log.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts an entry. When ctx carries a transaction the entry commits
// together with the record mutation it describes.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO sync_processing_log (
			id, record_id, event_type, outcome, error_message,
			processed_at, batch_from, batch_to
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	var errorMessage sql.NullString
	if entry.ErrorMessage != "" {
		errorMessage = sql.NullString{String: entry.ErrorMessage, Valid: true}
	}
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		entry.ID,
		entry.RecordID.String(),
		entry.EventType,
		string(entry.Outcome),
		errorMessage,
		entry.ProcessedAt,
		entry.BatchFrom,
		entry.BatchTo,
	)
	if err != nil {
		return fmt.Errorf("insert processing log entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) HasSuccess(ctx context.Context, recordID credential.RecordID, window models.Window) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM sync_processing_log
			WHERE record_id = $1
			  AND batch_from = $2
			  AND batch_to = $3
			  AND outcome = 'success'
		)
	`
	var exists bool
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, recordID.String(), window.From, window.To).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processing log: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListFailed(ctx context.Context, window models.Window) ([]Entry, error) {
	query := `
		SELECT id, record_id, event_type, outcome, error_message, processed_at, batch_from, batch_to
		FROM sync_processing_log
		WHERE outcome = 'failed'
		  AND batch_from >= $1
		  AND batch_to <= $2
		ORDER BY processed_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("query failed processing log entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListByRecord(ctx context.Context, recordID credential.RecordID) ([]Entry, error) {
	query := `
		SELECT id, record_id, event_type, outcome, error_message, processed_at, batch_from, batch_to
		FROM sync_processing_log
		WHERE record_id = $1
		ORDER BY processed_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, recordID.String())
	if err != nil {
		return nil, fmt.Errorf("query processing log by record: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry        Entry
			recordID     string
			outcome      string
			errorMessage sql.NullString
		)
		err := rows.Scan(
			&entry.ID,
			&recordID,
			&entry.EventType,
			&outcome,
			&errorMessage,
			&entry.ProcessedAt,
			&entry.BatchFrom,
			&entry.BatchTo,
		)
		if err != nil {
			return nil, fmt.Errorf("scan processing log entry: %w", err)
		}
		entry.RecordID = credential.RecordID(recordID)
		entry.Outcome = Outcome(outcome)
		entry.ErrorMessage = errorMessage.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processing log entries: %w", err)
	}
	return entries, nil
}
