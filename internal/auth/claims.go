package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

func (t TokenType) Valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

// Claims are the only supported JWT claims shape for this service.
// The subject (sub) is the account id and the token id (jti) is the revocation key.
// Fresh is set only on access tokens minted by a login, never by a refresh exchange.
type Claims struct {
	jwt.RegisteredClaims

	Privilege     Privilege `json:"privilege"`
	EmailVerified bool      `json:"email_verified"`
	Status        Status    `json:"status"`
	Fresh         bool      `json:"fresh"`
	TokenType     TokenType `json:"type"`
}
