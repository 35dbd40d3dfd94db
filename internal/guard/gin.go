package guard

import (
	"net/http"
	"strings"

	"classroom-access/internal/auth"

	"github.com/gin-gonic/gin"
)

const ctxPrincipal = "principal"

// HTTPOptions configure the gin adapter.
type HTTPOptions struct {
	Locations auth.Locations
	// APIPrefix marks requests that get JSON denials instead of redirects.
	APIPrefix string
}

// Middleware runs g for every request. On Allow the forwarded principal, if
// any, is stored in the request context and under "principal" in the gin
// context; otherwise the verdict is written and the chain aborted.
func Middleware(g Guard, o HTTPOptions) gin.HandlerFunc {
	if len(o.Locations.Order) == 0 {
		o.Locations = auth.DefaultLocations()
	}
	refresh := wantsRefresh(g)

	return func(c *gin.Context) {
		req := RequestFromHTTP(c.Request, o, refresh)
		req.RemoteAddr = c.ClientIP()
		v := g.Evaluate(c.Request.Context(), req)
		if !v.Allowed() {
			WriteVerdict(c, v, o.Locations)
			return
		}
		if v.Principal != nil {
			c.Request = c.Request.WithContext(auth.ContextWithPrincipal(c.Request.Context(), v.Principal))
			c.Set(ctxPrincipal, v.Principal)
		}
		c.Next()
	}
}

// RequestFromHTTP builds the evaluation input for r.
func RequestFromHTTP(r *http.Request, o HTTPOptions, refresh bool) Request {
	path := r.URL.RequestURI()
	return Request{
		Credential: auth.ExtractCredential(r, o.Locations, refresh),
		Path:       path,
		API:        o.APIPrefix != "" && strings.HasPrefix(r.URL.Path, o.APIPrefix),
		RemoteAddr: r.RemoteAddr,
	}
}

// WriteVerdict aborts c with the denial: 303 + Location for interactive
// redirects, JSON {"message","status"} otherwise.
func WriteVerdict(c *gin.Context, v Verdict, loc auth.Locations) {
	if v.ClearCredentials {
		clearCookies(c, loc)
	}
	if v.IsRedirect() && v.Status == http.StatusSeeOther {
		c.Header("Location", v.RedirectTo)
		c.AbortWithStatus(http.StatusSeeOther)
		return
	}
	body := gin.H{"message": v.Message, "status": v.Status}
	if v.RedirectTo != "" {
		body["redirect"] = v.RedirectTo
	}
	c.AbortWithStatusJSON(v.Status, body)
}

// PrincipalFromGin returns the principal stored by Middleware.
func PrincipalFromGin(c *gin.Context) (*auth.Principal, bool) {
	if v, ok := c.Get(ctxPrincipal); ok {
		if p, ok := v.(*auth.Principal); ok && p != nil {
			return p, true
		}
	}
	return auth.PrincipalFromContext(c.Request.Context())
}

func clearCookies(c *gin.Context, loc auth.Locations) {
	for _, name := range []string{loc.AccessCookie, loc.RefreshCookie} {
		if name == "" {
			continue
		}
		http.SetCookie(c.Writer, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	}
}
