package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"credsync/internal/credential/models"
	txcontext "credsync/pkg/platform/tx"
)

// PayloadSealer encrypts the payload column. A nil sealer stores plaintext.
type PayloadSealer interface {
	Seal(plaintext, associated []byte) ([]byte, error)
	Open(sealed, associated []byte) ([]byte, error)
}

// PostgresStore persists credential documents in PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	sealer PayloadSealer
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB, sealer PayloadSealer) *PostgresStore {
	return &PostgresStore{db: db, sealer: sealer}
}

const documentColumns = `id, record_id, owner_id, issuer_name, payload, verified, verified_at, status, status_updated_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, record *models.CredentialRecord) error {
	payload, err := s.seal(record)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO credential_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(record.ID),
		nullableRecordID(record.RecordID),
		uuid.UUID(record.OwnerID),
		record.IssuerName,
		payload,
		verifiedToColumn(record.Verified),
		record.VerifiedAt,
		string(record.Status),
		record.StatusUpdatedAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("create credential document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByRecordID(ctx context.Context, recordID models.RecordID) (*models.CredentialRecord, error) {
	query := `SELECT ` + documentColumns + ` FROM credential_documents WHERE record_id = $1`
	record, err := s.scanRecord(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, recordID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find credential document by record id: %w", err)
	}
	return record, nil
}

// FindManyByRecordID loads every document linked to one of recordIDs in a
// single round trip. Unknown ids are absent from the result.
func (s *PostgresStore) FindManyByRecordID(ctx context.Context, recordIDs []models.RecordID) (map[models.RecordID]*models.CredentialRecord, error) {
	found := make(map[models.RecordID]*models.CredentialRecord, len(recordIDs))
	if len(recordIDs) == 0 {
		return found, nil
	}
	ids := make([]string, len(recordIDs))
	for i, recordID := range recordIDs {
		ids[i] = recordID.String()
	}
	query := `SELECT ` + documentColumns + ` FROM credential_documents WHERE record_id = ANY($1::text[])`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query credential documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := s.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential document: %w", err)
		}
		found[record.RecordID] = record
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credential documents: %w", err)
	}
	return found, nil
}

func (s *PostgresStore) Save(ctx context.Context, record *models.CredentialRecord) error {
	payload, err := s.seal(record)
	if err != nil {
		return err
	}
	query := `
		UPDATE credential_documents SET
			record_id = $2,
			issuer_name = $3,
			payload = $4,
			verified = $5,
			verified_at = $6,
			status = $7,
			status_updated_at = $8,
			updated_at = $9
		WHERE id = $1
	`
	result, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(record.ID),
		nullableRecordID(record.RecordID),
		record.IssuerName,
		payload,
		verifiedToColumn(record.Verified),
		record.VerifiedAt,
		string(record.Status),
		record.StatusUpdatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("save credential document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save credential document rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanRecord(row rowScanner) (*models.CredentialRecord, error) {
	var (
		record          models.CredentialRecord
		docID           uuid.UUID
		recordID        sql.NullString
		ownerID         uuid.UUID
		payload         []byte
		verified        sql.NullBool
		verifiedAt      sql.NullTime
		status          string
		statusUpdatedAt sql.NullTime
	)
	err := row.Scan(
		&docID,
		&recordID,
		&ownerID,
		&record.IssuerName,
		&payload,
		&verified,
		&verifiedAt,
		&status,
		&statusUpdatedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.ID = models.DocumentID(docID)
	record.RecordID = models.RecordID(recordID.String)
	record.OwnerID = models.OwnerID(ownerID)
	record.Status = models.Status(status)
	record.Verified = verifiedFromColumn(verified)
	record.VerifiedAt = timePtr(verifiedAt)
	record.StatusUpdatedAt = timePtr(statusUpdatedAt)

	opened, err := s.open(record.ID, payload)
	if err != nil {
		return nil, err
	}
	record.Payload = opened
	return &record, nil
}

func (s *PostgresStore) seal(record *models.CredentialRecord) ([]byte, error) {
	if s.sealer == nil || len(record.Payload) == 0 {
		return record.Payload, nil
	}
	sealed, err := s.sealer.Seal(record.Payload, associatedData(record.ID))
	if err != nil {
		return nil, fmt.Errorf("seal credential payload: %w", err)
	}
	return sealed, nil
}

func (s *PostgresStore) open(docID models.DocumentID, payload []byte) ([]byte, error) {
	if s.sealer == nil || len(payload) == 0 {
		return payload, nil
	}
	opened, err := s.sealer.Open(payload, associatedData(docID))
	if err != nil {
		return nil, fmt.Errorf("open credential payload: %w", err)
	}
	return opened, nil
}

func associatedData(docID models.DocumentID) []byte {
	id := uuid.UUID(docID)
	return id[:]
}

func nullableRecordID(recordID models.RecordID) sql.NullString {
	if recordID.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: recordID.String(), Valid: true}
}

func verifiedToColumn(state models.VerificationState) sql.NullBool {
	switch state {
	case models.VerificationPassed:
		return sql.NullBool{Bool: true, Valid: true}
	case models.VerificationFailed:
		return sql.NullBool{Bool: false, Valid: true}
	default:
		return sql.NullBool{}
	}
}

func verifiedFromColumn(value sql.NullBool) models.VerificationState {
	if !value.Valid {
		return models.VerificationUnknown
	}
	if value.Bool {
		return models.VerificationPassed
	}
	return models.VerificationFailed
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
