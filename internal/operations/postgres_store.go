package operations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// PostgresStore implements Store on PostgreSQL. The unique index on
// operation_id is the idempotency guard: a conflicting Append surfaces as
// ErrDuplicateOperation instead of an application-level lock table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed operation store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the operations table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS operations (
			id                VARCHAR(36) PRIMARY KEY,
			operation_id      VARCHAR(128) NOT NULL,
			operation_type    VARCHAR(16) NOT NULL CHECK (operation_type IN ('DEPOSIT', 'WITHDRAWAL', 'TRANSFER', 'PAYMENT')),
			user_id           VARCHAR(128) NOT NULL,
			account_id        VARCHAR(128) NOT NULL,
			amount            NUMERIC(20,6) NOT NULL CHECK (amount > 0),
			currency          CHAR(3) NOT NULL,
			op_timestamp      TIMESTAMPTZ NOT NULL,
			blocked           BOOLEAN NOT NULL DEFAULT FALSE,
			block_reason      VARCHAR(32),
			risk_score        INTEGER NOT NULL DEFAULT 0 CHECK (risk_score >= 0),
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_operations_operation_id
			ON operations (operation_id);

		CREATE INDEX IF NOT EXISTS idx_operations_user_ts
			ON operations (user_id, op_timestamp DESC);

		CREATE INDEX IF NOT EXISTS idx_operations_user_type
			ON operations (user_id, operation_type);
	`)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	var reason sql.NullString
	if rec.BlockReason != ReasonNone {
		reason = sql.NullString{String: string(rec.BlockReason), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations
			(id, operation_id, operation_type, user_id, account_id, amount, currency, op_timestamp, blocked, block_reason, risk_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::NUMERIC(20,6), $7, $8, $9, $10, $11, $12)
	`,
		rec.ID,
		rec.OperationID,
		string(rec.Type),
		rec.UserID,
		rec.AccountID,
		rec.Amount.String(),
		rec.Currency,
		rec.Timestamp,
		rec.Blocked,
		reason,
		rec.RiskScore,
		rec.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateOperation
		}
		return fmt.Errorf("append operation record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, operationID string) (bool, error) {
	var found bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM operations WHERE operation_id = $1)
	`, operationID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check operation existence: %w", err)
	}
	return found, nil
}

func (s *PostgresStore) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM operations
		WHERE user_id = $1 AND op_timestamp > $2
	`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count operations since: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AverageAmount(ctx context.Context, userID string, typ Type) (decimal.Decimal, bool, error) {
	var avg sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(amount)::TEXT FROM operations
		WHERE user_id = $1 AND operation_type = $2
	`, userID, string(typ)).Scan(&avg)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("average amount: %w", err)
	}
	if !avg.Valid {
		// No prior operations of this type: cold start, not an error.
		return decimal.Zero, false, nil
	}

	d, err := decimal.NewFromString(avg.String)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse average amount %q: %w", avg.String, err)
	}
	return d, true, nil
}

func (s *PostgresStore) CountBlockedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM operations
		WHERE user_id = $1 AND blocked AND op_timestamp > $2
	`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count blocked operations since: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation_id, operation_type, user_id, account_id, amount::TEXT, currency, op_timestamp, blocked, block_reason, risk_score, created_at
		FROM operations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		var typ, amount string
		var reason sql.NullString
		if err := rows.Scan(&rec.ID, &rec.OperationID, &typ, &rec.UserID, &rec.AccountID, &amount, &rec.Currency, &rec.Timestamp, &rec.Blocked, &reason, &rec.RiskScore, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan operation record: %w", err)
		}
		rec.Type = Type(typ)
		rec.BlockReason = BlockReason(reason.String)
		rec.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
