package gateway

import (
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned when no verified identity can be derived
// from a request.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves a request to a verified user identifier. The core
// trusts the identifier as-is; verification belongs to the auth collaborator
// behind this interface.
type Authenticator interface {
	UserID(r *http.Request) (string, error)
}

// TokenVerifier exchanges a bearer credential for a user identifier.
type TokenVerifier func(token string) (string, error)

// BearerAuthenticator reads the Authorization header and delegates
// verification to the auth collaborator.
type BearerAuthenticator struct {
	Verify TokenVerifier
}

func (a BearerAuthenticator) UserID(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrUnauthenticated
	}
	id, err := a.Verify(token)
	if err != nil || id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// InsecureAuthenticator trusts a client-supplied identity from the
// X-User-ID header or the user_id query parameter. Development only.
type InsecureAuthenticator struct{}

func (InsecureAuthenticator) UserID(r *http.Request) (string, error) {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id, nil
	}
	if id := r.URL.Query().Get("user_id"); id != "" {
		return id, nil
	}
	return "", ErrUnauthenticated
}
