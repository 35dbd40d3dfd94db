package auth

import "context"

// Privilege is the account-wide role carried in the token.
type Privilege string

const (
	PrivilegeUser     Privilege = "user"
	PrivilegeEducator Privilege = "educator"
	PrivilegeAdmin    Privilege = "admin"
)

func (p Privilege) Valid() bool {
	switch p {
	case PrivilegeUser, PrivilegeEducator, PrivilegeAdmin:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusActive Status = "active"
	StatusLocked Status = "locked"
)

// Principal is the resolved identity for one request.
// It is built from verified claims and never persisted.
type Principal struct {
	ID            string
	Privilege     Privilege
	EmailVerified bool
	Status        Status
	Fresh         bool
	Kind          TokenType
	Audience      []string

	// JTI is the id of the token that produced this principal.
	JTI string
}

func (p Principal) IsAdmin() bool { return p.Privilege == PrivilegeAdmin }

func (p Principal) IsEducator() bool {
	return p.Privilege == PrivilegeEducator || p.Privilege == PrivilegeAdmin
}

func (p Principal) IsLocked() bool { return p.Status == StatusLocked }

func principalFromClaims(c Claims) Principal {
	status := c.Status
	if status == "" {
		status = StatusActive
	}
	return Principal{
		ID:            c.Subject,
		Privilege:     c.Privilege,
		EmailVerified: c.EmailVerified,
		Status:        status,
		Fresh:         c.Fresh,
		Kind:          c.TokenType,
		Audience:      []string(c.Audience),
		JTI:           c.ID,
	}
}

// Account is the current server-side state of an account. When an
// AccountLookup is configured it overrides what the token claims.
type Account struct {
	ID            string
	Privilege     Privilege
	EmailVerified bool
	Status        Status
}

// AccountLookup loads account state by id. It returns ErrNotFound for unknown accounts.
type AccountLookup interface {
	Account(ctx context.Context, id string) (Account, error)
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	if p == nil {
		return ctx
	}
	cp := *p
	return context.WithValue(ctx, principalContextKey{}, &cp)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return nil, false
	}
	cp := *v
	return &cp, true
}
