package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

var ErrResourceNotFound = errors.New("rbac: resource not found")

// MembershipSource loads classroom membership from persistence.
type MembershipSource interface {
	Membership(ctx context.Context, resourceID string) (Membership, error)
}

// MemorySource is a map-backed MembershipSource useful for tests and demos.
type MemorySource struct {
	mu    sync.RWMutex
	items map[string]Membership
}

func NewMemorySource(ms ...Membership) *MemorySource {
	s := &MemorySource{items: make(map[string]Membership, len(ms))}
	for _, m := range ms {
		s.items[m.ResourceID] = m
	}
	return s
}

func (s *MemorySource) Put(m Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[m.ResourceID] = m
}

func (s *MemorySource) Membership(ctx context.Context, resourceID string) (Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.items[resourceID]
	if !ok {
		return Membership{}, ErrResourceNotFound
	}
	return m, nil
}

// PostgresSource reads the classrooms, classroom_educators and
// classroom_students tables.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Membership(ctx context.Context, resourceID string) (Membership, error) {
	const ownerQ = `SELECT owner_id FROM classrooms WHERE id = $1`

	m := Membership{ResourceID: resourceID}
	if err := s.db.QueryRowContext(ctx, ownerQ, resourceID).Scan(&m.OwnerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Membership{}, ErrResourceNotFound
		}
		return Membership{}, fmt.Errorf("classroom %s: %w", resourceID, err)
	}

	var err error
	if m.EducatorIDs, err = s.userIDs(ctx, `SELECT user_id FROM classroom_educators WHERE classroom_id = $1`, resourceID); err != nil {
		return Membership{}, fmt.Errorf("classroom %s educators: %w", resourceID, err)
	}
	if m.StudentIDs, err = s.userIDs(ctx, `SELECT user_id FROM classroom_students WHERE classroom_id = $1`, resourceID); err != nil {
		return Membership{}, fmt.Errorf("classroom %s students: %w", resourceID, err)
	}
	return m, nil
}

func (s *PostgresSource) userIDs(ctx context.Context, q, resourceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
