package httpapi

import (
	"errors"
	"net/http"

	"classroom-access/internal/auth"
	"classroom-access/internal/guard"
	"classroom-access/internal/rbac"
	"classroom-access/internal/session"
	"classroom-access/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Sessions  *session.Service
	Locations auth.Locations

	// DemoLogin enables POST /auth/login, which trusts the identity in the
	// request body. Password and OAuth checks live outside this service.
	DemoLogin bool
}

// --- Auth ---

type loginRequest struct {
	UserID        string `json:"user_id"`
	Privilege     string `json:"privilege"`
	EmailVerified bool   `json:"email_verified"`
	Status        string `json:"status"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Login issues a fresh token pair.
//
// NOTE: This is a demo-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Sessions == nil || !h.DemoLogin {
		c.AbortWithStatusJSON(http.StatusNotImplemented, errorBody(http.StatusNotImplemented, "login not enabled"))
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(http.StatusBadRequest, "invalid json"))
		return
	}
	priv := auth.Privilege(req.Privilege)
	if req.UserID == "" || !priv.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(http.StatusBadRequest, "user_id and privilege required"))
		return
	}

	pair, err := h.Sessions.Login(c.Request.Context(), auth.Identity{
		UserID:        req.UserID,
		Privilege:     priv,
		EmailVerified: req.EmailVerified,
		Status:        auth.Status(req.Status),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setCookie(c, h.Locations.AccessCookie, pair.AccessToken)
	h.setCookie(c, h.Locations.RefreshCookie, pair.RefreshToken)
	c.JSON(http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Refresh exchanges the refresh credential for a new access token. Mount it
// behind a refresh-only guard.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(http.StatusInternalServerError, "sessions not configured"))
		return
	}
	tok := auth.ExtractCredential(c.Request, h.Locations, true)
	out, err := h.Sessions.Refresh(c.Request.Context(), tok)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setCookie(c, h.Locations.AccessCookie, out.AccessToken)
	c.JSON(http.StatusOK, tokenResponse{AccessToken: out.AccessToken})
}

// Logout revokes the access credential and, when present, the refresh credential.
func (h Handlers) Logout(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(http.StatusInternalServerError, "sessions not configured"))
		return
	}
	err := h.Sessions.Logout(c.Request.Context(), session.LogoutRequest{
		AccessToken:  auth.ExtractCredential(c.Request, h.Locations, false),
		RefreshToken: auth.ExtractCredential(c.Request, withoutHeader(h.Locations), true),
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setCookie(c, h.Locations.AccessCookie, "")
	h.setCookie(c, h.Locations.RefreshCookie, "")
	c.Status(http.StatusNoContent)
}

// --- Identity ---

type meResponse struct {
	UserID        string `json:"user_id"`
	Privilege     string `json:"privilege"`
	EmailVerified bool   `json:"email_verified"`
	Fresh         bool   `json:"fresh"`
}

func (h Handlers) Me(c *gin.Context) {
	p, ok := guard.PrincipalFromGin(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(http.StatusUnauthorized, "authentication required"))
		return
	}
	c.JSON(http.StatusOK, meResponse{
		UserID:        p.ID,
		Privilege:     string(p.Privilege),
		EmailVerified: p.EmailVerified,
		Fresh:         p.Fresh,
	})
}

// Viewer serves optional-login pages: the caller may or may not be signed in.
func (h Handlers) Viewer(c *gin.Context) {
	resp := gin.H{"signed_in": false}
	if p, ok := guard.PrincipalFromGin(c); ok {
		resp["signed_in"] = true
		resp["user_id"] = p.ID
	}
	c.JSON(http.StatusOK, resp)
}

// --- Classrooms ---

// Classroom reports the caller's role in the classroom resolved by
// rbac.RequireClassroomRole.
func (h Handlers) Classroom(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"classroom_id": c.Param("classroom_id"),
		"role":         rbac.ClassroomRole(c),
	})
}

func (h Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).ErrorContext(c.Request.Context(), "request failed", "err", err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, errorBody(status, "internal error"))
		return
	}
	c.AbortWithStatusJSON(status, errorBody(status, messageFor(err)))
}

func statusFor(err error) int {
	switch {
	case auth.IsCredentialError(err), errors.Is(err, auth.ErrAccountLocked):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrInvalidArgument), errors.Is(err, session.ErrSubjectMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, auth.ErrCredentialRevoked):
		return "token has been revoked"
	case errors.Is(err, auth.ErrWrongTokenKind):
		return "wrong token type"
	case errors.Is(err, auth.ErrAccountLocked):
		return "account locked"
	case auth.IsCredentialError(err):
		return "authentication required"
	case errors.Is(err, session.ErrSubjectMismatch):
		return "tokens belong to different users"
	default:
		return "invalid request"
	}
}

// withoutHeader drops the header location; on logout the Authorization
// header carries the access token, so the refresh token must come from a
// cookie or the body.
func withoutHeader(loc auth.Locations) auth.Locations {
	out := loc
	out.Order = nil
	for _, l := range loc.Order {
		if l != auth.LocationHeader {
			out.Order = append(out.Order, l)
		}
	}
	return out
}

func errorBody(status int, msg string) gin.H {
	return gin.H{"message": msg, "status": status}
}

func (h Handlers) setCookie(c *gin.Context, name, value string) {
	if name == "" {
		return
	}
	maxAge := 0
	if value == "" {
		maxAge = -1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
