package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type key string

const userKey key = "auth_user"

// User is the authenticated identity the core consumes. Nothing beyond the
// uid and a display name is in scope here.
type User struct {
	ID   string
	Name string
}

var (
	ErrNoAuthHeader      = errors.New("Authorization header is missing")
	ErrInvalidAuthHeader = errors.New("Authorization header is malformed")
	ErrInvalidToken      = errors.New("token is invalid")
)

// Provider resolves a bearer token to the current user.
type Provider interface {
	Verify(ctx context.Context, token string) (*User, error)
}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// FromContext returns the authenticated user, if any.
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey).(*User)
	return u, ok
}

// TokenFromRequest extracts a bearer token from an
// Authorization: Bearer <token> header.
func TokenFromRequest(req *http.Request) (string, error) {
	authHdr := req.Header.Get("Authorization")
	if authHdr == "" {
		return "", ErrNoAuthHeader
	}
	prefix := "Bearer "
	if !strings.HasPrefix(authHdr, prefix) {
		return "", ErrInvalidAuthHeader
	}
	return strings.TrimPrefix(authHdr, prefix), nil
}
