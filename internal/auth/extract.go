package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
)

// Location is a place a credential can be read from.
type Location string

const (
	LocationHeader Location = "headers"
	LocationCookie Location = "cookies"
	LocationBody   Location = "body"
)

// Locations configures where credentials are looked up and in which order.
type Locations struct {
	Order []Location

	HeaderName string
	HeaderType string

	AccessCookie  string
	RefreshCookie string

	AccessField  string
	RefreshField string
}

// DefaultLocations reads the Authorization header first, then cookies, then the body.
func DefaultLocations() Locations {
	return Locations{
		Order:         []Location{LocationHeader, LocationCookie, LocationBody},
		HeaderName:    "Authorization",
		HeaderType:    "Bearer",
		AccessCookie:  "access_token_cookie",
		RefreshCookie: "refresh_token_cookie",
		AccessField:   "access_token",
		RefreshField:  "refresh_token",
	}
}

const maxCredentialBody = 64 << 10

// ExtractCredential returns the first credential found in r, or "" if none.
// refresh selects the refresh cookie and body field names. The request body
// is restored after it is read.
func ExtractCredential(r *http.Request, loc Locations, refresh bool) string {
	if r == nil {
		return ""
	}
	for _, l := range loc.Order {
		var tok string
		switch l {
		case LocationHeader:
			tok = fromHeader(r, loc)
		case LocationCookie:
			name := loc.AccessCookie
			if refresh {
				name = loc.RefreshCookie
			}
			if name != "" {
				if c, err := r.Cookie(name); err == nil {
					tok = strings.TrimSpace(c.Value)
				}
			}
		case LocationBody:
			field := loc.AccessField
			if refresh {
				field = loc.RefreshField
			}
			tok = fromBody(r, field)
		}
		if tok != "" {
			return tok
		}
	}
	return ""
}

func fromHeader(r *http.Request, loc Locations) string {
	name := loc.HeaderName
	if name == "" {
		name = "Authorization"
	}
	raw := strings.TrimSpace(r.Header.Get(name))
	if raw == "" {
		return ""
	}
	if loc.HeaderType == "" {
		return raw
	}
	prefix := loc.HeaderType + " "
	if len(raw) < len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(raw[len(prefix):])
}

func fromBody(r *http.Request, field string) string {
	if field == "" || r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/json":
		data, err := io.ReadAll(io.LimitReader(r.Body, maxCredentialBody))
		// Hand the handler the bytes read here followed by whatever is left.
		r.Body = readCloser{io.MultiReader(bytes.NewReader(data), r.Body), r.Body}
		if err != nil {
			return ""
		}
		var body map[string]any
		if err := json.Unmarshal(data, &body); err != nil {
			return ""
		}
		if s, ok := body[field].(string); ok {
			return strings.TrimSpace(s)
		}
		return ""
	case "application/x-www-form-urlencoded", "multipart/form-data":
		return strings.TrimSpace(r.PostFormValue(field))
	default:
		return ""
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}
