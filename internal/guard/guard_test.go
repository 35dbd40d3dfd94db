package guard

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"classroom-access/internal/audit"
	"classroom-access/internal/auth"
	"classroom-access/internal/config"
	"classroom-access/internal/obs"
	"classroom-access/internal/tokenstore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResolver maps credentials to principals and mimics the soft-failure
// contract of auth.Resolver.
type stubResolver struct {
	principals map[string]auth.Principal
	last       auth.ResolveOptions
}

func (s *stubResolver) Resolve(ctx context.Context, credential string, opts auth.ResolveOptions) (*auth.Principal, error) {
	s.last = opts
	p, ok := s.principals[credential]
	if !ok {
		if opts.Optional {
			return nil, nil
		}
		return nil, auth.ErrCredentialInvalid
	}
	return &p, nil
}

type recordingSink struct {
	mu      sync.Mutex
	denials []audit.Denial
}

func (r *recordingSink) RecordDenial(ctx context.Context, d audit.Denial) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denials = append(r.denials, d)
}

const (
	credUser       = "user"
	credEducator   = "educator"
	credAdmin      = "admin"
	credLocked     = "locked"
	credUnverified = "unverified"
)

func testDeps() (Deps, *stubResolver, *recordingSink) {
	res := &stubResolver{principals: map[string]auth.Principal{
		credUser:       {ID: "u1", Privilege: auth.PrivilegeUser, EmailVerified: true, Status: auth.StatusActive},
		credEducator:   {ID: "e1", Privilege: auth.PrivilegeEducator, EmailVerified: true, Status: auth.StatusActive},
		credAdmin:      {ID: "a1", Privilege: auth.PrivilegeAdmin, EmailVerified: true, Status: auth.StatusActive},
		credLocked:     {ID: "l1", Privilege: auth.PrivilegeAdmin, EmailVerified: true, Status: auth.StatusLocked},
		credUnverified: {ID: "v1", Privilege: auth.PrivilegeAdmin, EmailVerified: false, Status: auth.StatusActive},
	}}
	sink := &recordingSink{}
	return Deps{Resolver: res, Audit: sink}, res, sink
}

func TestLockedPrincipalNeverAllowed(t *testing.T) {
	d, _, _ := testDeps()
	policies := []*Policy{
		RequireLogin(d, LoginOptions{}),
		RequireAdmin(d, AdminOptions{}),
		RequireEducator(d, EducatorOptions{}),
		OptionalLogin(d, OptionalOptions{}),
		AnonymousRequired(d, AnonymousOptions{}),
	}
	for _, p := range policies {
		for _, api := range []bool{false, true} {
			v := p.Evaluate(context.Background(), Request{Credential: credLocked, Path: "/x", API: api})
			assert.False(t, v.Allowed(), "mode %s api=%v", p.Options().Mode, api)
			assert.True(t, v.ClearCredentials, "mode %s", p.Options().Mode)
			assert.ErrorIs(t, v.Err, auth.ErrAccountLocked)
			if api {
				assert.Equal(t, OutcomeDenyUnauthorized, v.Outcome)
				assert.Equal(t, 401, v.Status)
			} else {
				assert.Equal(t, OutcomeRedirectLogin, v.Outcome)
				assert.Equal(t, "/login?callbackURI=%2Fx", v.RedirectTo)
			}
		}
	}
}

func TestIgnoreLockedAllows(t *testing.T) {
	d, _, _ := testDeps()

	v := RequireLogin(d, LoginOptions{IgnoreLocked: true}).Evaluate(context.Background(), Request{Credential: credLocked})
	assert.True(t, v.Allowed())

	v = RequireEducator(d, EducatorOptions{IgnoreLocked: true}).Evaluate(context.Background(), Request{Credential: credLocked})
	assert.True(t, v.Allowed())
}

func TestUnverifiedRedirectsWithRoundTrippableCallback(t *testing.T) {
	d, _, _ := testDeps()
	path := "/courses/42?tab=notes&q=a b"

	for _, p := range []*Policy{
		RequireLogin(d, LoginOptions{}),
		RequireAdmin(d, AdminOptions{}),
		RequireEducator(d, EducatorOptions{}),
	} {
		v := p.Evaluate(context.Background(), Request{Credential: credUnverified, Path: path})
		require.Equal(t, OutcomeRedirectVerify, v.Outcome, "mode %s", p.Options().Mode)
		assert.Equal(t, 303, v.Status)

		u, err := url.Parse(v.RedirectTo)
		require.NoError(t, err)
		assert.Equal(t, "/verify", u.Path)
		assert.Equal(t, path, u.Query().Get("callbackURI"))
	}
}

func TestUnverifiedAPIGets403WithTarget(t *testing.T) {
	d, _, _ := testDeps()
	v := RequireLogin(d, LoginOptions{}).Evaluate(context.Background(), Request{Credential: credUnverified, Path: "/v1/me", API: true})
	assert.Equal(t, OutcomeRedirectVerify, v.Outcome)
	assert.Equal(t, 403, v.Status)
	assert.Equal(t, "email not verified", v.Message)
	assert.NotEmpty(t, v.RedirectTo)
}

func TestIgnoreVerification(t *testing.T) {
	d, _, _ := testDeps()

	v := RequireLogin(d, LoginOptions{IgnoreVerification: true}).Evaluate(context.Background(), Request{Credential: credUnverified})
	assert.True(t, v.Allowed())

	// optional_login ignores verification by default
	v = OptionalLogin(d, OptionalOptions{}).Evaluate(context.Background(), Request{Credential: credUnverified})
	require.True(t, v.Allowed())
	assert.Equal(t, "v1", v.Principal.ID)

	v = OptionalLogin(d, OptionalOptions{EnforceVerification: true}).Evaluate(context.Background(), Request{Credential: credUnverified})
	assert.Equal(t, OutcomeRedirectVerify, v.Outcome)
}

func TestCustomVerifyURI(t *testing.T) {
	d, _, _ := testDeps()
	d.VerifyURI = "/account/confirm?next=%s"

	v := RequireLogin(d, LoginOptions{}).Evaluate(context.Background(), Request{Credential: credUnverified, Path: "/a"})
	assert.Equal(t, "/account/confirm?next=%2Fa", v.RedirectTo)

	v = RequireLogin(d, LoginOptions{VerifyURI: "/v"}).Evaluate(context.Background(), Request{Credential: credUnverified, Path: "/a"})
	assert.Equal(t, "/v?callbackURI=%2Fa", v.RedirectTo)
}

func TestCallbackTemplateKeepsEncodedSequences(t *testing.T) {
	d, _, _ := testDeps()
	d.LoginURI = "/sso%2Flogin?next=%s&theme=dark%20mode"

	v := RequireLogin(d, LoginOptions{}).Evaluate(context.Background(), Request{Path: "/courses/1"})
	assert.Equal(t, OutcomeRedirectLogin, v.Outcome)
	assert.Equal(t, "/sso%2Flogin?next=%2Fcourses%2F1&theme=dark%20mode", v.RedirectTo)
}

func TestRequireLogin(t *testing.T) {
	d, _, _ := testDeps()
	g := RequireLogin(d, LoginOptions{})

	v := g.Evaluate(context.Background(), Request{Credential: credUser})
	require.True(t, v.Allowed())
	assert.Equal(t, "u1", v.Principal.ID)

	v = g.Evaluate(context.Background(), Request{Path: "/home"})
	assert.Equal(t, OutcomeRedirectLogin, v.Outcome)
	assert.Equal(t, "/login?callbackURI=%2Fhome", v.RedirectTo)
	assert.False(t, v.ClearCredentials)

	v = g.Evaluate(context.Background(), Request{Credential: "garbage", API: true})
	assert.Equal(t, OutcomeDenyUnauthorized, v.Outcome)
	assert.Equal(t, "authentication required", v.Message)
}

func TestRequireLoginPassesTokenOptions(t *testing.T) {
	d, res, _ := testDeps()

	RequireLogin(d, LoginOptions{Fresh: true}).Evaluate(context.Background(), Request{Credential: credUser})
	assert.Equal(t, auth.ResolveOptions{RequireFresh: true}, res.last)

	RequireAdmin(d, AdminOptions{RefreshOnly: true}).Evaluate(context.Background(), Request{Credential: credUser})
	assert.Equal(t, auth.ResolveOptions{RefreshOnly: true}, res.last)

	OptionalLogin(d, OptionalOptions{}).Evaluate(context.Background(), Request{Credential: credUser})
	assert.Equal(t, auth.ResolveOptions{Optional: true}, res.last)
}

func TestRequireAdmin(t *testing.T) {
	d, _, _ := testDeps()
	g := RequireAdmin(d, AdminOptions{})

	v := g.Evaluate(context.Background(), Request{Credential: credAdmin})
	assert.True(t, v.Allowed())

	for _, cred := range []string{credUser, credEducator} {
		v = g.Evaluate(context.Background(), Request{Credential: cred})
		assert.Equal(t, OutcomeDenyForbidden, v.Outcome)
		assert.Equal(t, 403, v.Status)
		assert.ErrorIs(t, v.Err, auth.ErrRoleForbidden)
	}
}

func TestRequireEducator(t *testing.T) {
	d, _, _ := testDeps()

	g := RequireEducator(d, EducatorOptions{})
	v := g.Evaluate(context.Background(), Request{Credential: credUser})
	assert.Equal(t, OutcomeDenyForbidden, v.Outcome)

	for _, cred := range []string{credEducator, credAdmin} {
		v = g.Evaluate(context.Background(), Request{Credential: cred})
		assert.True(t, v.Allowed(), cred)
	}

	g = RequireEducator(d, EducatorOptions{UnauthorizedRedirect: "/become-educator"})
	v = g.Evaluate(context.Background(), Request{Credential: credUser})
	assert.Equal(t, OutcomeRedirectCustom, v.Outcome)
	assert.Equal(t, "/become-educator", v.RedirectTo)
}

func TestOptionalLogin(t *testing.T) {
	d, _, sink := testDeps()
	g := OptionalLogin(d, OptionalOptions{})

	v := g.Evaluate(context.Background(), Request{})
	require.True(t, v.Allowed())
	assert.Nil(t, v.Principal)

	v = g.Evaluate(context.Background(), Request{Credential: "garbage"})
	require.True(t, v.Allowed())
	assert.Nil(t, v.Principal)

	v = g.Evaluate(context.Background(), Request{Credential: credUser})
	require.True(t, v.Allowed())
	assert.Equal(t, "u1", v.Principal.ID)

	assert.Empty(t, sink.denials)
}

func TestAnonymousRequired(t *testing.T) {
	d, _, _ := testDeps()

	g := AnonymousRequired(d, AnonymousOptions{})
	v := g.Evaluate(context.Background(), Request{})
	require.True(t, v.Allowed())
	assert.Nil(t, v.Principal)

	v = g.Evaluate(context.Background(), Request{Credential: credAdmin})
	require.True(t, v.Allowed())
	assert.Nil(t, v.Principal)

	v = g.Evaluate(context.Background(), Request{Credential: credUser, Path: "/signup"})
	assert.Equal(t, OutcomeRedirectCustom, v.Outcome)
	assert.Equal(t, "/", v.RedirectTo)

	g = AnonymousRequired(d, AnonymousOptions{DisableAdminOverride: true, LoggedInRedirect: "/dashboard", UsePathCallback: true})
	v = g.Evaluate(context.Background(), Request{Credential: credAdmin, Path: "/signup"})
	assert.Equal(t, OutcomeRedirectCustom, v.Outcome)
	assert.Equal(t, "/dashboard?callbackURI=%2Fsignup", v.RedirectTo)

	// unverified callers are still anonymous-redirected, not sent to verify
	g = AnonymousRequired(d, AnonymousOptions{DisableAdminOverride: true})
	v = g.Evaluate(context.Background(), Request{Credential: credUnverified})
	assert.Equal(t, OutcomeRedirectCustom, v.Outcome)
}

func TestDenialsAreAuditedAndCounted(t *testing.T) {
	d, _, sink := testDeps()
	reg := prometheus.NewRegistry()
	d.Metrics = obs.NewMetrics(reg)
	g := RequireAdmin(d, AdminOptions{})

	g.Evaluate(context.Background(), Request{Credential: credUser, Path: "/admin", RemoteAddr: "10.0.0.1"})
	g.Evaluate(context.Background(), Request{Credential: credAdmin, Path: "/admin"})

	require.Len(t, sink.denials, 1)
	den := sink.denials[0]
	assert.Equal(t, "require_admin", den.Mode)
	assert.Equal(t, "deny_forbidden", den.Outcome)
	assert.Equal(t, "u1", den.ActorUserID)
	assert.Equal(t, "user", den.ActorPrivilege)
	assert.Equal(t, "10.0.0.1", den.IPAddress)

	want := `
# HELP guard_verdicts_total Access guard evaluations by mode and outcome.
# TYPE guard_verdicts_total counter
guard_verdicts_total{mode="require_admin",outcome="allow"} 1
guard_verdicts_total{mode="require_admin",outcome="deny_forbidden"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want), "guard_verdicts_total"))
}

func TestNoResolverFailsClosed(t *testing.T) {
	v := RequireLogin(Deps{}, LoginOptions{}).Evaluate(context.Background(), Request{Credential: "x", API: true})
	assert.Equal(t, OutcomeDenyUnauthorized, v.Outcome)
}

func TestRevokedTokenRejected(t *testing.T) {
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		JWTIssuer:       "iss",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	store := tokenstore.NewMemoryStore()
	res, err := auth.NewResolver(m, store)
	require.NoError(t, err)

	pair, err := m.IssuePair(time.Now(), auth.Identity{UserID: "u1", Privilege: auth.PrivilegeUser, EmailVerified: true})
	require.NoError(t, err)

	g := RequireLogin(Deps{Resolver: res}, LoginOptions{})
	req := Request{Credential: pair.AccessToken, API: true}

	require.True(t, g.Evaluate(context.Background(), req).Allowed())

	require.NoError(t, store.Revoke(context.Background(), pair.AccessJTI, auth.TokenTypeAccess))
	v := g.Evaluate(context.Background(), req)
	assert.Equal(t, OutcomeDenyUnauthorized, v.Outcome)
	assert.ErrorIs(t, v.Err, auth.ErrCredentialRevoked)
	assert.Equal(t, "token has been revoked", v.Message)
}
