package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"classroom-access/internal/auth"
	"classroom-access/pkg/utils"
)

// NOTE: This store assumes the revoked_tokens table from internal/migrations:
//   jti text PRIMARY KEY, type text NOT NULL, created_at timestamptz NOT NULL

const (
	insertRevokedSQL = `
INSERT INTO revoked_tokens (jti, type, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (jti) DO NOTHING
`
	existsRevokedSQL = `
SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)
`
	sweepRevokedSQL = `
DELETE FROM revoked_tokens
WHERE (type = 'access' AND ($1::timestamptz IS NULL OR created_at < $1))
   OR (type = 'refresh' AND ($2::timestamptz IS NULL OR created_at < $2))
`
)

// PostgresStore keeps the blocklist in the revoked_tokens table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) WithClock(now func() time.Time) *PostgresStore {
	s.now = now
	return s
}

func (s *PostgresStore) Revoke(ctx context.Context, jti string, kind auth.TokenType) error {
	if err := validate(jti, kind); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertRevokedSQL, jti, string(kind), s.now().UTC()); err != nil {
		return fmt.Errorf("revoke %s: %w", jti, err)
	}
	return nil
}

func (s *PostgresStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, existsRevokedSQL, jti).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup %s: %w", jti, err)
	}
	return exists, nil
}

// Sweep removes expired entries of both kinds with one DELETE statement.
func (s *PostgresStore) Sweep(ctx context.Context, accessRetention, refreshRetention time.Duration) (int64, error) {
	accessCutoff, refreshCutoff := s.cutoffs(accessRetention, refreshRetention)
	res, err := s.db.ExecContext(ctx, sweepRevokedSQL, accessCutoff, refreshCutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	return res.RowsAffected()
}

// SweepAndRevoke sweeps then inserts jti inside one read-committed transaction.
func (s *PostgresStore) SweepAndRevoke(ctx context.Context, jti string, kind auth.TokenType, accessRetention, refreshRetention time.Duration) (int64, error) {
	if err := validate(jti, kind); err != nil {
		return 0, err
	}
	accessCutoff, refreshCutoff := s.cutoffs(accessRetention, refreshRetention)
	now := s.now().UTC()

	var swept int64
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sweepRevokedSQL, accessCutoff, refreshCutoff)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		if swept, err = res.RowsAffected(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertRevokedSQL, jti, string(kind), now); err != nil {
			return fmt.Errorf("revoke %s: %w", jti, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}

// cutoffs are NULL for a kind whose retention removes every entry.
func (s *PostgresStore) cutoffs(accessRetention, refreshRetention time.Duration) (sql.NullTime, sql.NullTime) {
	now := s.now().UTC()
	return pgCutoff(now, accessRetention), pgCutoff(now, refreshRetention)
}

func pgCutoff(now time.Time, retention time.Duration) sql.NullTime {
	cutoff, all := sweepCutoff(now, retention)
	return sql.NullTime{Time: cutoff, Valid: !all}
}
