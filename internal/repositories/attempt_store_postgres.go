package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// PostgresAttemptStore persists attempt records in the attempt_records table
type PostgresAttemptStore struct {
	db *database.DB
}

// NewPostgresAttemptStore creates a PostgreSQL-backed store
func NewPostgresAttemptStore(db *database.DB) *PostgresAttemptStore {
	return &PostgresAttemptStore{db: db}
}

// RecordFailure increments the failure count for key and applies the policy.
// The upsert holds the row lock until commit, so concurrent failures for one
// key are applied one after another.
func (s *PostgresAttemptStore) RecordFailure(ctx context.Context, key models.AttemptKey, policy models.LockoutPolicy, now time.Time) (*models.AttemptRecord, error) {
	upsert := `
		INSERT INTO attempt_records (attempt_key, key_type, identifier, attempts, last_failure_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (attempt_key) DO UPDATE
		SET attempts = attempt_records.attempts + 1,
			last_failure_at = EXCLUDED.last_failure_at
		RETURNING attempts, locked_until
	`
	lockQuery := `UPDATE attempt_records SET locked_until = $2 WHERE attempt_key = $1`

	record := &models.AttemptRecord{Key: key, LastFailureAt: now}
	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, upsert, key.String(), string(key.Type), key.Identifier, now).
			Scan(&record.Attempts, &record.LockedUntil)
		if err != nil {
			return err
		}

		if lock := policy.LockDuration(record.Attempts); lock > 0 {
			lockedUntil := now.Add(lock)
			if _, err := tx.Exec(ctx, lockQuery, key.String(), lockedUntil); err != nil {
				return err
			}
			record.LockedUntil = &lockedUntil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record failure for %s: %w", key, database.MapPostgresError(err))
	}

	return record, nil
}

// Get returns the record for key, or nil if none exists
func (s *PostgresAttemptStore) Get(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error) {
	query := `
		SELECT attempts, locked_until, last_failure_at
		FROM attempt_records WHERE attempt_key = $1
	`

	record := &models.AttemptRecord{Key: key}
	err := s.db.Pool.QueryRow(ctx, query, key.String()).
		Scan(&record.Attempts, &record.LockedUntil, &record.LastFailureAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt record %s: %w", key, err)
	}

	return record, nil
}

// Reset deletes the records for keys
func (s *PostgresAttemptStore) Reset(ctx context.Context, keys ...models.AttemptKey) error {
	if len(keys) == 0 {
		return nil
	}

	ids := make([]string, len(keys))
	for i, key := range keys {
		ids[i] = key.String()
	}

	query := `DELETE FROM attempt_records WHERE attempt_key = ANY($1)`
	if _, err := s.db.Pool.Exec(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("reset attempt records: %w", err)
	}
	return nil
}

// Unblock clears the lock on key but keeps its attempt count
func (s *PostgresAttemptStore) Unblock(ctx context.Context, key models.AttemptKey) (bool, error) {
	query := `UPDATE attempt_records SET locked_until = NULL WHERE attempt_key = $1`

	tag, err := s.db.Pool.Exec(ctx, query, key.String())
	if err != nil {
		return false, fmt.Errorf("unblock %s: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ResetAll deletes every attempt record
func (s *PostgresAttemptStore) ResetAll(ctx context.Context) error {
	if _, err := s.db.Pool.Exec(ctx, `DELETE FROM attempt_records`); err != nil {
		return fmt.Errorf("reset all attempt records: %w", err)
	}
	return nil
}

// DeleteIdle removes unlocked records whose last failure is older than cutoff
func (s *PostgresAttemptStore) DeleteIdle(ctx context.Context, cutoff, now time.Time) (int64, error) {
	query := `
		DELETE FROM attempt_records
		WHERE last_failure_at < $1
		AND (locked_until IS NULL OR locked_until <= $2)
	`

	tag, err := s.db.Pool.Exec(ctx, query, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("delete idle attempt records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the database connection
func (s *PostgresAttemptStore) Ping(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}
