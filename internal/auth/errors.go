package auth

import "errors"

var (
	ErrCredentialInvalid  = errors.New("auth: credential invalid")
	ErrCredentialRevoked  = errors.New("auth: credential revoked")
	ErrCredentialNotFresh = errors.New("auth: fresh credential required")
	ErrWrongTokenKind     = errors.New("auth: wrong token kind")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrEmailUnverified    = errors.New("auth: email not verified")
	ErrRoleForbidden      = errors.New("auth: insufficient role")

	ErrNotFound = errors.New("auth: not found")
)

// IsCredentialError reports whether err belongs to the 401-class failures
// produced while resolving a credential.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrCredentialInvalid) ||
		errors.Is(err, ErrCredentialRevoked) ||
		errors.Is(err, ErrCredentialNotFresh) ||
		errors.Is(err, ErrWrongTokenKind)
}
