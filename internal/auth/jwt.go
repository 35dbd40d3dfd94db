package auth

import (
	"errors"
	"fmt"
	"time"

	"classroom-access/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Manager issues and verifies HS256 tokens. It is the CredentialVerifier
// used by the Resolver in production.
type Manager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}

	return &Manager{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		leeway:     30 * time.Second,
	}, nil
}

// Identity is what gets embedded into a token.
type Identity struct {
	UserID        string
	Privilege     Privilege
	EmailVerified bool
	Status        Status
}

func (id Identity) validate() error {
	if id.UserID == "" {
		return errors.New("user id missing")
	}
	if !id.Privilege.Valid() {
		return fmt.Errorf("invalid privilege %q", id.Privilege)
	}
	return nil
}

type TokenPair struct {
	AccessToken  string
	AccessJTI    string
	RefreshToken string
	RefreshJTI   string
}

/* ===================== ISSUE TOKENS ===================== */

// IssuePair mints a fresh access token plus a refresh token. Use it on login only.
func (m *Manager) IssuePair(now time.Time, id Identity) (TokenPair, error) {
	access, accessJTI, err := m.issue(now, TokenTypeAccess, id, true, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshJTI, err := m.issue(now, TokenTypeRefresh, id, false, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		AccessJTI:    accessJTI,
		RefreshToken: refresh,
		RefreshJTI:   refreshJTI,
	}, nil
}

// IssueAccess mints a single access token. Refresh exchanges must pass fresh=false.
func (m *Manager) IssueAccess(now time.Time, id Identity, fresh bool) (string, string, error) {
	return m.issue(now, TokenTypeAccess, id, fresh, m.accessTTL)
}

/* ===================== VERIFY TOKEN ===================== */

// Verify checks signature, expiry, issuer and audience and returns the claims.
// It accepts both token kinds; kind policy belongs to the Resolver.
func (m *Manager) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(m.leeway), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	if !claims.TokenType.Valid() {
		return Claims{}, fmt.Errorf("unknown token type %q", claims.TokenType)
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("sub missing")
	}
	if claims.ID == "" {
		return Claims{}, errors.New("jti missing")
	}
	if !claims.Privilege.Valid() {
		return Claims{}, fmt.Errorf("invalid privilege %q", claims.Privilege)
	}
	if claims.TokenType == TokenTypeRefresh && claims.Fresh {
		return Claims{}, errors.New("refresh token cannot be fresh")
	}
	return claims, nil
}

/* ===================== INTERNAL ISSUE ===================== */

func (m *Manager) issue(now time.Time, tokenType TokenType, id Identity, fresh bool, ttl time.Duration) (string, string, error) {
	if err := id.validate(); err != nil {
		return "", "", err
	}
	status := id.Status
	if status == "" {
		status = StatusActive
	}

	jti := uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   id.UserID,
			Audience:  audienceOrNil(m.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		Privilege:     id.Privilege,
		EmailVerified: id.EmailVerified,
		Status:        status,
		Fresh:         fresh,
		TokenType:     tokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
