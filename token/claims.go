package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the subset of JWT claims the client cares about. Tokens are
// inspected without verification: the client never holds the signing key and
// only uses these values for expiry hints and logging.
type Claims struct {
	ID        string    // jti
	Subject   string    // sub, the user id
	Type      string    // typ, access or refresh
	IssuedAt  time.Time // zero when absent
	ExpiresAt time.Time // zero when absent
}

// ParseUnverified decodes the claims of raw without checking its signature.
func ParseUnverified(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty token")
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "token.ParseUnverified")
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims")
	}
	return claimsFromMap(mapClaims), nil
}

func claimsFromMap(m jwt.MapClaims) *Claims {
	c := &Claims{}
	c.ID, _ = m["jti"].(string)
	c.Type, _ = m["typ"].(string)
	if sub, err := m.GetSubject(); err == nil {
		c.Subject = sub
	}
	if iat, err := m.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := m.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c
}

// ClaimsFromMap converts verified claims into Claims.
func ClaimsFromMap(m jwt.MapClaims) *Claims {
	return claimsFromMap(m)
}

// Expired reports whether the token carried an exp claim that has passed.
func (c *Claims) Expired() bool {
	return !c.ExpiresAt.IsZero() && NowTimeFunc().After(c.ExpiresAt)
}

// Bearer wraps raw as an oauth2 bearer token. When raw is a JWT its exp claim
// becomes the token expiry; opaque tokens never expire client-side.
func Bearer(raw string) *oauth2.Token {
	t := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if c, err := ParseUnverified(raw); err == nil {
		t.Expiry = c.ExpiresAt
	}
	return t
}
