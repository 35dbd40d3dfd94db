// Package tokenstore keeps the blocklist of revoked token ids.
//
// Entries are keyed by jti and carry the token kind plus the time they were
// revoked. A sweep drops entries older than their kind's retention window in
// one batch so the blocklist stays bounded without a separate scheduler.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classroom-access/internal/auth"
)

var (
	ErrInvalidJTI  = errors.New("tokenstore: jti required")
	ErrInvalidKind = errors.New("tokenstore: unknown token kind")
)

// Entry is one revoked token id.
type Entry struct {
	JTI       string
	Kind      auth.TokenType
	RevokedAt time.Time
}

// Store is the revocation blocklist. Implementations must be safe for
// concurrent use; Revoke is idempotent and Sweep deletes in a single batch.
type Store interface {
	Revoke(ctx context.Context, jti string, kind auth.TokenType) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Sweep(ctx context.Context, accessRetention, refreshRetention time.Duration) (int64, error)
}

// atomicSweepRevoker is implemented by stores that can sweep and insert in one transaction.
type atomicSweepRevoker interface {
	SweepAndRevoke(ctx context.Context, jti string, kind auth.TokenType, accessRetention, refreshRetention time.Duration) (int64, error)
}

// SweepThenRevoke drops expired entries and then records jti. Stores that
// support it do both in one transaction; others run the two steps in order.
func SweepThenRevoke(ctx context.Context, s Store, jti string, kind auth.TokenType, accessRetention, refreshRetention time.Duration) (int64, error) {
	if err := validate(jti, kind); err != nil {
		return 0, err
	}
	if a, ok := s.(atomicSweepRevoker); ok {
		return a.SweepAndRevoke(ctx, jti, kind, accessRetention, refreshRetention)
	}
	n, err := s.Sweep(ctx, accessRetention, refreshRetention)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	if err := s.Revoke(ctx, jti, kind); err != nil {
		return n, err
	}
	return n, nil
}

func validate(jti string, kind auth.TokenType) error {
	if jti == "" {
		return ErrInvalidJTI
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return nil
}

// sweepCutoff returns the bound below which entries of one kind are removed.
// A retention of zero or less removes every entry of that kind, including
// ones revoked at this instant, and reports all=true.
func sweepCutoff(now time.Time, retention time.Duration) (cutoff time.Time, all bool) {
	if retention <= 0 {
		return time.Time{}, true
	}
	return now.Add(-retention), false
}
