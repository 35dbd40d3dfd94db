package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// CredentialVerifier checks a raw credential and returns its claims.
// *Manager is the production implementation.
type CredentialVerifier interface {
	Verify(token string, now time.Time) (Claims, error)
}

// RevocationChecker answers whether a token id has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// ResolveOptions tune one Resolve call.
type ResolveOptions struct {
	// RequireFresh rejects access tokens that came out of a refresh exchange.
	RequireFresh bool
	// RefreshOnly accepts refresh tokens instead of access tokens.
	RefreshOnly bool
	// Optional turns every failure into a nil principal with no error.
	Optional bool

	SkipRevocationCheck bool
}

// Resolver turns a bearer credential into a Principal.
type Resolver struct {
	verifier CredentialVerifier
	revoked  RevocationChecker
	accounts AccountLookup
	log      *slog.Logger
	now      func() time.Time
}

type ResolverOption func(*Resolver)

// WithAccountLookup makes the resolver reload privilege, status and
// verification from the account store instead of trusting the token.
func WithAccountLookup(a AccountLookup) ResolverOption {
	return func(r *Resolver) { r.accounts = a }
}

func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func NewResolver(verifier CredentialVerifier, revoked RevocationChecker, opts ...ResolverOption) (*Resolver, error) {
	if verifier == nil {
		return nil, errors.New("auth: credential verifier is required")
	}
	if revoked == nil {
		return nil, errors.New("auth: revocation checker is required")
	}
	r := &Resolver{
		verifier: verifier,
		revoked:  revoked,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Resolve verifies credential and builds the Principal.
//
// With Optional set, a missing or failing credential yields (nil, nil).
// Otherwise a missing credential is ErrCredentialInvalid and every other
// failure wraps one of the credential sentinel errors.
func (r *Resolver) Resolve(ctx context.Context, credential string, opts ResolveOptions) (*Principal, error) {
	p, err := r.resolve(ctx, strings.TrimSpace(credential), opts)
	if err != nil && opts.Optional {
		r.log.DebugContext(ctx, "optional credential ignored", "err", err)
		return nil, nil
	}
	return p, err
}

func (r *Resolver) resolve(ctx context.Context, credential string, opts ResolveOptions) (*Principal, error) {
	if credential == "" {
		if opts.Optional {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: missing credential", ErrCredentialInvalid)
	}

	claims, err := r.verifier.Verify(credential, r.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
	}

	want := TokenTypeAccess
	if opts.RefreshOnly {
		want = TokenTypeRefresh
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("%w: want %s token, got %s", ErrWrongTokenKind, want, claims.TokenType)
	}

	if !opts.SkipRevocationCheck {
		revoked, err := r.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			// Fail closed: an unreachable blocklist cannot vouch for the token.
			return nil, fmt.Errorf("%w: revocation lookup failed: %v", ErrCredentialInvalid, err)
		}
		if revoked {
			return nil, ErrCredentialRevoked
		}
	}

	if opts.RequireFresh && !claims.Fresh {
		return nil, ErrCredentialNotFresh
	}

	p := principalFromClaims(claims)
	if r.accounts != nil {
		acct, err := r.accounts.Account(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: account lookup: %v", ErrCredentialInvalid, err)
		}
		p.Privilege = acct.Privilege
		p.EmailVerified = acct.EmailVerified
		p.Status = acct.Status
		if p.Status == "" {
			p.Status = StatusActive
		}
	}
	return &p, nil
}
