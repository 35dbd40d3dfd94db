package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends events to the audit_events table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, actor_user_id, actor_privilege, ip_address, path, mode, outcome, reason, token_id, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.ActorUserID,
		e.ActorPrivilege,
		e.IPAddress,
		e.Path,
		e.Mode,
		e.Outcome,
		e.Reason,
		e.TokenID,
		e.CreatedAt,
	)
	return err
}
