package tokenstore

import (
	"context"
	"sync"
	"time"

	"classroom-access/internal/auth"
)

// MemoryStore is an in-process blocklist for tests and single-instance dev runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), now: time.Now}
}

// WithClock replaces the time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStore) Revoke(ctx context.Context, jti string, kind auth.TokenType) error {
	if err := validate(jti, kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[jti]; ok {
		return nil
	}
	s.entries[jti] = Entry{JTI: jti, Kind: kind, RevokedAt: s.now()}
	return nil
}

func (s *MemoryStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok, nil
}

func (s *MemoryStore) Sweep(ctx context.Context, accessRetention, refreshRetention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(accessRetention, refreshRetention), nil
}

// SweepAndRevoke holds the lock across both steps so a concurrent sweep cannot drop the new entry.
func (s *MemoryStore) SweepAndRevoke(ctx context.Context, jti string, kind auth.TokenType, accessRetention, refreshRetention time.Duration) (int64, error) {
	if err := validate(jti, kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.sweepLocked(accessRetention, refreshRetention)
	if _, ok := s.entries[jti]; !ok {
		s.entries[jti] = Entry{JTI: jti, Kind: kind, RevokedAt: s.now()}
	}
	return n, nil
}

func (s *MemoryStore) sweepLocked(accessRetention, refreshRetention time.Duration) int64 {
	now := s.now()
	accessCutoff, accessAll := sweepCutoff(now, accessRetention)
	refreshCutoff, refreshAll := sweepCutoff(now, refreshRetention)

	var n int64
	for jti, e := range s.entries {
		cutoff, all := accessCutoff, accessAll
		if e.Kind == auth.TokenTypeRefresh {
			cutoff, all = refreshCutoff, refreshAll
		}
		if all || e.RevokedAt.Before(cutoff) {
			delete(s.entries, jti)
			n++
		}
	}
	return n
}

// Len reports the number of entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
