package recognition

import (
	"context"
	"net/http"
	"net/url"
)

// Default anti-forgery cookie and header names used by the backend.
const (
	DefaultCSRFCookie = "csrftoken"
	DefaultCSRFHeader = "X-CSRFToken"
)

// TokenProvider supplies the anti-forgery token attached to submissions.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken always returns the same token.
type StaticToken string

// Token implements TokenProvider.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// CookieToken reads the token from a cookie jar at call time, so a cookie
// rotated by the backend is picked up on the next submission.
type CookieToken struct {
	Jar  http.CookieJar
	URL  *url.URL
	Name string
}

// Token implements TokenProvider.
func (c *CookieToken) Token(context.Context) (string, error) {
	if c.Jar == nil || c.URL == nil {
		return "", ErrNoToken
	}
	name := c.Name
	if name == "" {
		name = DefaultCSRFCookie
	}
	for _, ck := range c.Jar.Cookies(c.URL) {
		if ck.Name == name && ck.Value != "" {
			return ck.Value, nil
		}
	}
	return "", ErrNoToken
}
