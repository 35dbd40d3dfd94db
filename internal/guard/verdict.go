package guard

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"classroom-access/internal/auth"
)

// Outcome is the decision of one guard evaluation.
type Outcome string

const (
	OutcomeAllow            Outcome = "allow"
	OutcomeDenyUnauthorized Outcome = "deny_unauthorized"
	OutcomeDenyForbidden    Outcome = "deny_forbidden"
	OutcomeRedirectLogin    Outcome = "redirect_login"
	OutcomeRedirectVerify   Outcome = "redirect_verify"
	OutcomeRedirectCustom   Outcome = "redirect_custom"
)

// Verdict is the result of Guard.Evaluate.
//
// Principal is set on Allow for every mode that forwards one (Optional may
// forward nil, Anonymous always forwards nil). Denials carry an HTTP status,
// a short message for API callers and, for redirects, the target URI.
type Verdict struct {
	Outcome    Outcome
	Principal  *auth.Principal
	Status     int
	Message    string
	RedirectTo string

	// ClearCredentials asks the transport to drop stored credentials (force logout).
	ClearCredentials bool

	// Err is the taxonomy error behind a denial.
	Err error
}

func (v Verdict) Allowed() bool { return v.Outcome == OutcomeAllow }

func (v Verdict) IsRedirect() bool {
	switch v.Outcome {
	case OutcomeRedirectLogin, OutcomeRedirectVerify, OutcomeRedirectCustom:
		return true
	default:
		return false
	}
}

func allow(p *auth.Principal) Verdict {
	return Verdict{Outcome: OutcomeAllow, Principal: p, Status: http.StatusOK}
}

func denyUnauthorized(err error) Verdict {
	return Verdict{Outcome: OutcomeDenyUnauthorized, Status: http.StatusUnauthorized, Message: messageFor(err), Err: err}
}

func denyForbidden(err error) Verdict {
	return Verdict{Outcome: OutcomeDenyForbidden, Status: http.StatusForbidden, Message: messageFor(err), Err: err}
}

func redirect(outcome Outcome, to string, err error) Verdict {
	return Verdict{Outcome: outcome, Status: http.StatusSeeOther, Message: messageFor(err), RedirectTo: to, Err: err}
}

func messageFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, auth.ErrCredentialRevoked):
		return "token has been revoked"
	case errors.Is(err, auth.ErrCredentialNotFresh):
		return "fresh token required"
	case errors.Is(err, auth.ErrWrongTokenKind):
		return "wrong token type"
	case errors.Is(err, auth.ErrCredentialInvalid):
		return "authentication required"
	case errors.Is(err, auth.ErrAccountLocked):
		return "account locked"
	case errors.Is(err, auth.ErrEmailUnverified):
		return "email not verified"
	case errors.Is(err, auth.ErrRoleForbidden):
		return "forbidden"
	default:
		return "access denied"
	}
}

// withCallback fills the template's %s with the percent-encoded path. A
// template without %s gets a callbackURI query parameter appended instead.
func withCallback(template, path string) string {
	escaped := url.QueryEscape(path)
	if strings.Contains(template, "%s") {
		return strings.Replace(template, "%s", escaped, 1)
	}
	sep := "?"
	if strings.Contains(template, "?") {
		sep = "&"
	}
	return template + sep + "callbackURI=" + escaped
}
