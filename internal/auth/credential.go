// Package auth extracts request credentials. It does not verify them; the
// backend owns the trust decision.
package auth

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Source identifies where a credential was found.
type Source string

const (
	SourceHeader Source = "header"
	SourceCookie Source = "cookie"
)

// DefaultCookieName is the session cookie checked when no bearer header is sent.
const DefaultCookieName = "access_token"

// Credential is a bearer token scoped to one request.
type Credential struct {
	Token  string
	Source Source
}

// AuthorizationHeader renders the credential as an Authorization header value.
func (c Credential) AuthorizationHeader() string {
	return "Bearer " + c.Token
}

// FromRequest returns the request's credential. The Authorization header is
// checked first; only a well-formed "Bearer <token>" counts. The named cookie
// is the fallback.
func FromRequest(r *http.Request, cookieName string) (Credential, bool) {
	if tok, ok := ParseBearer(r.Header.Get("Authorization")); ok {
		return Credential{Token: tok, Source: SourceHeader}, true
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if ck, err := r.Cookie(cookieName); err == nil {
		if tok := strings.TrimSpace(ck.Value); tok != "" {
			return Credential{Token: tok, Source: SourceCookie}, true
		}
	}
	return Credential{}, false
}

// ParseBearer extracts the token from an Authorization header value.
// The scheme is case-insensitive and the token must be non-empty.
func ParseBearer(v string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(v), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	if tok == "" || strings.ContainsAny(tok, " \t") {
		return "", false
	}
	return tok, true
}

// ErrNotJWT is returned by Inspect for opaque tokens.
var ErrNotJWT = errors.New("token is not a JWT")

// Claims holds the unverified claims the gateway reports back to the browser.
type Claims struct {
	Subject   string
	ExpiresAt *time.Time
}

// Expired reports whether the token's exp claim is before now.
func (c Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Inspect decodes a JWT's claims without checking its signature.
func Inspect(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, ErrNotJWT
	}

	var out Claims
	if sub, err := mc.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		out.ExpiresAt = &t
	}
	return out, nil
}

var bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`)

// Redact masks bearer tokens in s, for log and error output.
func Redact(s string) string {
	return bearerPattern.ReplaceAllString(s, "${1}[REDACTED]")
}
