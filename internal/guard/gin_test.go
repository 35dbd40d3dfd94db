package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"classroom-access/internal/auth"

	"github.com/gin-gonic/gin"
)

func newTestRouter(g Guard) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	opts := HTTPOptions{Locations: auth.DefaultLocations(), APIPrefix: "/v1/"}
	handler := func(c *gin.Context) {
		id := ""
		if p, ok := PrincipalFromGin(c); ok {
			id = p.ID
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	}
	r.GET("/v1/me", Middleware(g, opts), handler)
	r.GET("/courses/:id", Middleware(g, opts), handler)
	return r
}

func TestMiddleware_APIDenialIsJSON(t *testing.T) {
	d, _, _ := testDeps()
	r := newTestRouter(RequireLogin(d, LoginOptions{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	var body struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != http.StatusUnauthorized || body.Message != "authentication required" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestMiddleware_InteractiveDenialRedirects(t *testing.T) {
	d, _, _ := testDeps()
	r := newTestRouter(RequireLogin(d, LoginOptions{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/courses/7?tab=a%26b", nil))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Path != "/login" {
		t.Fatalf("expected login redirect, got %s", loc)
	}
	if got := loc.Query().Get("callbackURI"); got != "/courses/7?tab=a%26b" {
		t.Fatalf("callback did not round-trip: %q", got)
	}
}

func TestMiddleware_AllowSetsPrincipal(t *testing.T) {
	d, _, _ := testDeps()
	r := newTestRouter(RequireLogin(d, LoginOptions{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+credUser)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"user_id":"u1"`) {
		t.Fatalf("principal not forwarded: %s", w.Body.String())
	}
}

func TestMiddleware_CookieCredential(t *testing.T) {
	d, _, _ := testDeps()
	r := newTestRouter(RequireAdmin(d, AdminOptions{}))

	req := httptest.NewRequest(http.MethodGet, "/courses/1", nil)
	req.AddCookie(&http.Cookie{Name: "access_token_cookie", Value: credAdmin})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestMiddleware_LockedClearsCookies(t *testing.T) {
	d, _, _ := testDeps()
	r := newTestRouter(RequireLogin(d, LoginOptions{}))

	req := httptest.NewRequest(http.MethodGet, "/courses/1", nil)
	req.AddCookie(&http.Cookie{Name: "access_token_cookie", Value: credLocked})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	cleared := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			cleared[c.Name] = true
		}
	}
	if !cleared["access_token_cookie"] || !cleared["refresh_token_cookie"] {
		t.Fatalf("expected both credential cookies cleared, got %v", cleared)
	}
}

func TestMiddleware_UnverifiedAPI(t *testing.T) {
	d, _, _ := testDeps()
	r := newTestRouter(RequireLogin(d, LoginOptions{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+credUnverified)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"redirect":"/verify?callbackURI=%2Fv1%2Fme"`) {
		t.Fatalf("expected verify target in body: %s", w.Body.String())
	}
}

func TestMiddleware_RefreshOnlyReadsRefreshCookie(t *testing.T) {
	d, res, _ := testDeps()
	r := newTestRouter(RequireLogin(d, LoginOptions{RefreshOnly: true}))

	req := httptest.NewRequest(http.MethodGet, "/courses/1", nil)
	req.AddCookie(&http.Cookie{Name: "access_token_cookie", Value: "wrong"})
	req.AddCookie(&http.Cookie{Name: "refresh_token_cookie", Value: credUser})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !res.last.RefreshOnly {
		t.Fatalf("expected refresh-only resolve")
	}
}

func TestWrap(t *testing.T) {
	d, _, _ := testDeps()
	g := RequireEducator(d, EducatorOptions{})

	called := false
	op := func(ctx context.Context, p *auth.Principal) (string, error) {
		called = true
		if fromCtx, ok := auth.PrincipalFromContext(ctx); !ok || fromCtx.ID != p.ID {
			return "", errors.New("principal missing from context")
		}
		return "ok:" + p.ID, nil
	}

	out, v, err := Wrap(context.Background(), g, Request{Credential: credEducator}, op)
	if err != nil || !v.Allowed() || out != "ok:e1" {
		t.Fatalf("unexpected result: %q %+v %v", out, v, err)
	}

	called = false
	out, v, err = Wrap(context.Background(), g, Request{Credential: credUser}, op)
	if err != nil || called || out != "" || v.Outcome != OutcomeDenyForbidden {
		t.Fatalf("op must not run on denial: called=%v %q %+v %v", called, out, v, err)
	}
}

func TestWrap_OptionalNilPrincipal(t *testing.T) {
	d, _, _ := testDeps()
	var got *auth.Principal = &auth.Principal{}
	_, v, err := Wrap(context.Background(), OptionalLogin(d, OptionalOptions{}), Request{}, func(ctx context.Context, p *auth.Principal) (struct{}, error) {
		got = p
		return struct{}{}, nil
	})
	if err != nil || !v.Allowed() {
		t.Fatalf("expected allow: %+v %v", v, err)
	}
	if got != nil {
		t.Fatalf("expected nil principal, got %+v", got)
	}
}

func TestChain(t *testing.T) {
	d, _, _ := testDeps()
	g := Chain(OptionalLogin(d, OptionalOptions{}), RequireAdmin(d, AdminOptions{}))

	if v := g.Evaluate(context.Background(), Request{Credential: credEducator}); v.Outcome != OutcomeDenyForbidden {
		t.Fatalf("expected forbidden, got %s", v.Outcome)
	}
	v := g.Evaluate(context.Background(), Request{Credential: credAdmin})
	if !v.Allowed() || v.Principal == nil || v.Principal.ID != "a1" {
		t.Fatalf("expected admin allowed: %+v", v)
	}

	if !wantsRefresh(Chain(RequireLogin(d, LoginOptions{RefreshOnly: true}))) {
		t.Fatalf("chain should report refresh-only member")
	}
}

func TestMiddleware_BodyReachesHandlerIntact(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d, _, _ := testDeps()
	opts := HTTPOptions{Locations: auth.DefaultLocations(), APIPrefix: "/v1/"}

	var seen []byte
	r := gin.New()
	r.POST("/v1/submissions", Middleware(OptionalLogin(d, OptionalOptions{}), opts), func(c *gin.Context) {
		seen, _ = io.ReadAll(c.Request.Body)
		id := ""
		if p, ok := PrincipalFromGin(c); ok {
			id = p.ID
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})

	send := func(body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/submissions", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	large, _ := json.Marshal(map[string]string{"essay": strings.Repeat("x", 100<<10)})
	if w := send(large); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Equal(seen, large) {
		t.Fatalf("handler saw %d bytes, sent %d", len(seen), len(large))
	}

	small, _ := json.Marshal(map[string]string{"access_token": credUser, "essay": "short"})
	w := send(small)
	if !strings.Contains(w.Body.String(), `"user_id":"u1"`) {
		t.Fatalf("expected body credential to resolve, got %s", w.Body.String())
	}
	if !bytes.Equal(seen, small) {
		t.Fatalf("handler saw %q, sent %q", seen, small)
	}
}
