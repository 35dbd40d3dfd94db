// Package guard decides whether a request may reach a protected operation.
//
// A Policy runs a fixed sequence for every request: resolve the credential,
// reject locked accounts, send unverified accounts to the verification flow,
// apply the mode's role rule, and finally allow. The five modes differ only
// in their Options; see the constructors in modes.go.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"classroom-access/internal/audit"
	"classroom-access/internal/auth"
	"classroom-access/internal/obs"
	"classroom-access/pkg/logger"
)

type Mode string

const (
	ModeRequireLogin      Mode = "require_login"
	ModeRequireAdmin      Mode = "require_admin"
	ModeRequireEducator   Mode = "require_educator"
	ModeOptionalLogin     Mode = "optional_login"
	ModeAnonymousRequired Mode = "anonymous_required"
)

const (
	DefaultLoginURI         = "/login?callbackURI=%s"
	DefaultVerifyURI        = "/verify?callbackURI=%s"
	DefaultLoggedInRedirect = "/"
)

// Request is the request-scoped input of an evaluation.
type Request struct {
	// Credential is the raw bearer token, "" when none was presented.
	Credential string
	// Path is the original request path including the query string.
	Path string
	// API selects JSON denials instead of interactive redirects.
	API bool
	// RemoteAddr is recorded with denials.
	RemoteAddr string
}

// Guard is implemented by every access predicate.
type Guard interface {
	Evaluate(ctx context.Context, req Request) Verdict
}

// Resolver is the ClaimsResolver contract the guard depends on.
type Resolver interface {
	Resolve(ctx context.Context, credential string, opts auth.ResolveOptions) (*auth.Principal, error)
}

// AuditSink receives denials. Implementations must not block the request on failure.
type AuditSink interface {
	RecordDenial(ctx context.Context, d audit.Denial)
}

// Options fully describe one policy. The mode constructors fill the defaults.
type Options struct {
	Mode Mode

	RequireFresh bool
	RefreshOnly  bool

	IgnoreVerification bool
	IgnoreLocked       bool

	// LoginURI and VerifyURI are templates whose %s receives the escaped request path.
	LoginURI  string
	VerifyURI string

	// UnauthorizedRedirect, when set, replaces 403 for callers lacking the mode's privilege.
	UnauthorizedRedirect string

	// AdminOverride lets admins through anonymous-only routes.
	AdminOverride bool
	// LoggedInRedirect is where anonymous-only routes send signed-in callers.
	LoggedInRedirect string
	UsePathCallback  bool
}

// Deps are the collaborators shared by all policies of a service.
type Deps struct {
	Resolver Resolver
	Audit    AuditSink
	Metrics  *obs.Metrics
	// Log defaults to the request-scoped logger from pkg/logger.
	Log *slog.Logger

	// LoginURI and VerifyURI override the package defaults for every policy
	// that does not set its own.
	LoginURI  string
	VerifyURI string
}

// Policy is the single parameterized Guard implementation.
type Policy struct {
	opts     Options
	resolver Resolver
	audit    AuditSink
	metrics  *obs.Metrics
	log      *slog.Logger
}

var errAlreadySignedIn = errors.New("guard: already signed in")

var errNoResolver = fmt.Errorf("%w: no credential resolver configured", auth.ErrCredentialInvalid)

// New builds a policy from explicit options. Empty URIs fall back to Deps and
// then to the package defaults.
func New(d Deps, o Options) *Policy {
	if o.LoginURI == "" {
		o.LoginURI = firstNonEmpty(d.LoginURI, DefaultLoginURI)
	}
	if o.VerifyURI == "" {
		o.VerifyURI = firstNonEmpty(d.VerifyURI, DefaultVerifyURI)
	}
	if o.LoggedInRedirect == "" {
		o.LoggedInRedirect = DefaultLoggedInRedirect
	}
	return &Policy{opts: o, resolver: d.Resolver, audit: d.Audit, metrics: d.Metrics, log: d.Log}
}

func (g *Policy) Options() Options { return g.opts }

// WantsRefreshToken reports whether the transport should extract the refresh credential.
func (g *Policy) WantsRefreshToken() bool { return g.opts.RefreshOnly }

// Evaluate runs the policy for one request.
func (g *Policy) Evaluate(ctx context.Context, req Request) Verdict {
	v, actor := g.evaluate(ctx, req)
	g.report(ctx, req, v, actor)
	return v
}

// evaluate returns the verdict and the principal it was decided for, if any.
func (g *Policy) evaluate(ctx context.Context, req Request) (Verdict, *auth.Principal) {
	o := g.opts
	soft := o.Mode == ModeOptionalLogin || o.Mode == ModeAnonymousRequired

	// 1. credential
	var (
		p   *auth.Principal
		err error
	)
	if g.resolver == nil {
		err = errNoResolver
	} else {
		p, err = g.resolver.Resolve(ctx, req.Credential, auth.ResolveOptions{
			RequireFresh: o.RequireFresh,
			RefreshOnly:  o.RefreshOnly,
			Optional:     soft,
		})
	}
	if err == nil && p == nil && !soft {
		err = auth.ErrCredentialInvalid
	}
	if err != nil {
		if !soft {
			return g.unauthenticated(req, err, false), nil
		}
		p = nil
	}

	// 2. lock
	if p != nil && p.IsLocked() && !o.IgnoreLocked {
		return g.unauthenticated(req, auth.ErrAccountLocked, true), p
	}

	// 3. email verification
	if p != nil && !p.EmailVerified && !o.IgnoreVerification && o.Mode != ModeAnonymousRequired {
		v := redirect(OutcomeRedirectVerify, withCallback(o.VerifyURI, req.Path), auth.ErrEmailUnverified)
		if req.API {
			v.Status = http.StatusForbidden
		}
		return v, p
	}

	// 4. role
	switch o.Mode {
	case ModeRequireAdmin:
		if !p.IsAdmin() {
			return denyForbidden(fmt.Errorf("%w: admin privilege required", auth.ErrRoleForbidden)), p
		}
	case ModeRequireEducator:
		if !p.IsEducator() {
			err := fmt.Errorf("%w: educator privilege required", auth.ErrRoleForbidden)
			if o.UnauthorizedRedirect != "" {
				return redirect(OutcomeRedirectCustom, o.UnauthorizedRedirect, err), p
			}
			return denyForbidden(err), p
		}
	case ModeAnonymousRequired:
		if p != nil && !(o.AdminOverride && p.IsAdmin()) {
			to := o.LoggedInRedirect
			if o.UsePathCallback {
				to = withCallback(to, req.Path)
			}
			return redirect(OutcomeRedirectCustom, to, errAlreadySignedIn), p
		}
		return allow(nil), nil
	}

	// 5. allow
	return allow(p), p
}

// unauthenticated maps a credential or lock failure to a 401 for API callers
// and to the login redirect for interactive ones.
func (g *Policy) unauthenticated(req Request, err error, forceLogout bool) Verdict {
	var v Verdict
	if req.API {
		v = denyUnauthorized(err)
	} else {
		v = redirect(OutcomeRedirectLogin, withCallback(g.opts.LoginURI, req.Path), err)
	}
	v.ClearCredentials = forceLogout
	return v
}

func (g *Policy) report(ctx context.Context, req Request, v Verdict, actor *auth.Principal) {
	g.metrics.ObserveVerdict(string(g.opts.Mode), string(v.Outcome))
	if v.Allowed() {
		return
	}

	var actorID, actorPriv string
	if actor != nil {
		actorID, actorPriv = actor.ID, string(actor.Privilege)
	}
	reason := ""
	if v.Err != nil {
		reason = v.Err.Error()
	}
	log := g.log
	if log == nil {
		log = logger.From(ctx)
	}
	log.DebugContext(ctx, "guard denied",
		"mode", g.opts.Mode,
		"outcome", v.Outcome,
		"path", req.Path,
		"err", reason,
	)
	if g.audit != nil {
		g.audit.RecordDenial(ctx, audit.Denial{
			Mode:           string(g.opts.Mode),
			Outcome:        string(v.Outcome),
			Path:           req.Path,
			IPAddress:      req.RemoteAddr,
			ActorUserID:    actorID,
			ActorPrivilege: actorPriv,
			Reason:         reason,
		})
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
