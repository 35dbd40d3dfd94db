package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"classroom-access/internal/ids"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Type == EventTypeTokenRevoked && e.TokenID == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.ID == "" {
		e.ID = ids.At(e.CreatedAt)
	}
	return s.repo.Append(ctx, e)
}

// Denial describes a rejected guard evaluation.
type Denial struct {
	Mode           string
	Outcome        string
	Path           string
	IPAddress      string
	ActorUserID    string
	ActorPrivilege string
	Reason         string
}

// RecordDenial logs a guard denial. It never fails the caller; write errors
// are logged and dropped.
func (s *Service) RecordDenial(ctx context.Context, d Denial) {
	err := s.Append(ctx, Event{
		Type:           EventTypeAccessDenied,
		ActorUserID:    d.ActorUserID,
		ActorPrivilege: d.ActorPrivilege,
		IPAddress:      d.IPAddress,
		Path:           d.Path,
		Mode:           d.Mode,
		Outcome:        d.Outcome,
		Reason:         d.Reason,
	})
	if err != nil {
		s.log.WarnContext(ctx, "audit append failed", "type", EventTypeAccessDenied, "err", err)
	}
}

// RecordRevocation logs a token revocation, e.g. on logout.
func (s *Service) RecordRevocation(ctx context.Context, actorUserID, tokenID, kind, ip string) {
	err := s.Append(ctx, Event{
		Type:        EventTypeTokenRevoked,
		ActorUserID: actorUserID,
		IPAddress:   ip,
		TokenID:     tokenID,
		Reason:      kind,
	})
	if err != nil {
		s.log.WarnContext(ctx, "audit append failed", "type", EventTypeTokenRevoked, "err", err)
	}
}
