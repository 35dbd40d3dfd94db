// Package session issues and revokes token pairs.
//
// Login mints a fresh access token plus a refresh token, Refresh exchanges a
// refresh token for a non-fresh access token, and Logout blocklists the
// presented tokens. Logout sweeps expired blocklist entries before it writes,
// so the table stays bounded by logout traffic alone.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"classroom-access/internal/auth"
	"classroom-access/internal/obs"
	"classroom-access/internal/tokenstore"
)

var (
	ErrInvalidArgument = errors.New("session: invalid argument")
	ErrSubjectMismatch = errors.New("session: tokens belong to different subjects")
)

// Issuer mints tokens. *auth.Manager implements it.
type Issuer interface {
	IssuePair(now time.Time, id auth.Identity) (auth.TokenPair, error)
	IssueAccess(now time.Time, id auth.Identity, fresh bool) (string, string, error)
}

// Resolver turns a raw token into a principal. *auth.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, credential string, opts auth.ResolveOptions) (*auth.Principal, error)
}

// RevocationRecorder is the audit hook for logouts. It must not fail the caller.
type RevocationRecorder interface {
	RecordRevocation(ctx context.Context, actorUserID, tokenID, kind, ip string)
}

// Retention is how long revoked ids of each kind stay on the blocklist.
type Retention struct {
	Access  time.Duration
	Refresh time.Duration
}

type Service struct {
	issuer    Issuer
	resolver  Resolver
	store     tokenstore.Store
	retention Retention

	audit   RevocationRecorder
	metrics *obs.Metrics
	log     *slog.Logger
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

type Option func(*Service)

func WithAudit(a RevocationRecorder) Option { return func(s *Service) { s.audit = a } }

func WithMetrics(m *obs.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

func NewService(issuer Issuer, resolver Resolver, store tokenstore.Store, ret Retention, opts ...Option) *Service {
	s := &Service{
		issuer:    issuer,
		resolver:  resolver,
		store:     store,
		retention: ret,
		log:       slog.Default(),
		clock:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Login issues a fresh pair for an account whose credentials were already
// checked by the caller. Locked accounts get no tokens.
func (s *Service) Login(ctx context.Context, id auth.Identity) (auth.TokenPair, error) {
	if id.UserID == "" {
		return auth.TokenPair{}, ErrInvalidArgument
	}
	if id.Status == auth.StatusLocked {
		return auth.TokenPair{}, auth.ErrAccountLocked
	}
	pair, err := s.issuer.IssuePair(s.clock(), id)
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("issue pair: %w", err)
	}
	s.log.InfoContext(ctx, "session started", "user_id", id.UserID, "access_jti", pair.AccessJTI)
	return pair, nil
}

// Refreshed is the result of a refresh exchange.
type Refreshed struct {
	AccessToken string
	AccessJTI   string
}

// Refresh exchanges a valid, unrevoked refresh token for a new non-fresh
// access token. The refresh token itself stays valid until it expires or is
// revoked by Logout.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Refreshed, error) {
	p, err := s.resolver.Resolve(ctx, refreshToken, auth.ResolveOptions{RefreshOnly: true})
	if err != nil {
		return Refreshed{}, err
	}
	if p.IsLocked() {
		return Refreshed{}, auth.ErrAccountLocked
	}
	tok, jti, err := s.issuer.IssueAccess(s.clock(), auth.Identity{
		UserID:        p.ID,
		Privilege:     p.Privilege,
		EmailVerified: p.EmailVerified,
		Status:        p.Status,
	}, false)
	if err != nil {
		return Refreshed{}, fmt.Errorf("issue access: %w", err)
	}
	return Refreshed{AccessToken: tok, AccessJTI: jti}, nil
}

// LogoutRequest carries the tokens to revoke. RefreshToken is optional.
type LogoutRequest struct {
	AccessToken  string
	RefreshToken string
	IPAddress    string
}

// Logout blocklists the access token and, when given, the refresh token of
// the same subject. Tokens that are already revoked are accepted so repeated
// logouts succeed.
func (s *Service) Logout(ctx context.Context, req LogoutRequest) error {
	access, err := s.resolver.Resolve(ctx, req.AccessToken, auth.ResolveOptions{SkipRevocationCheck: true})
	if err != nil {
		return err
	}

	var refresh *auth.Principal
	if req.RefreshToken != "" {
		refresh, err = s.resolver.Resolve(ctx, req.RefreshToken, auth.ResolveOptions{RefreshOnly: true, SkipRevocationCheck: true})
		if err != nil {
			return err
		}
		if refresh.ID != access.ID {
			return ErrSubjectMismatch
		}
	}

	swept, err := tokenstore.SweepThenRevoke(ctx, s.store, access.JTI, auth.TokenTypeAccess, s.retention.Access, s.retention.Refresh)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	s.metrics.ObserveSweep(swept, nil)
	s.revoked(ctx, access, req.IPAddress)

	if refresh != nil {
		if err := s.store.Revoke(ctx, refresh.JTI, auth.TokenTypeRefresh); err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		s.revoked(ctx, refresh, req.IPAddress)
	}

	s.log.InfoContext(ctx, "session ended", "user_id", access.ID, "swept", swept)
	return nil
}

func (s *Service) revoked(ctx context.Context, p *auth.Principal, ip string) {
	s.metrics.ObserveRevocation(string(p.Kind))
	if s.audit != nil {
		s.audit.RecordRevocation(ctx, p.ID, p.JTI, string(p.Kind), ip)
	}
}
