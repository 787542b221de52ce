package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dentastore/api/internal/platform/httpx"
)

const bearerPrefix = "Bearer "

// Authenticator verifies bearer tokens issued by the identity service and
// attaches the resulting Identity to the request context. Token issuance is
// owned elsewhere; this side only validates.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// AuthenticatorOption customises the Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithClock injects a custom clock, primarily for tests.
func WithClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator constructs an Authenticator from the shared signing secret.
func NewAuthenticator(secret, issuer string, opts ...AuthenticatorOption) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	a := &Authenticator{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

type tokenClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Verify parses and validates the raw token, returning the embedded identity.
func (a *Authenticator) Verify(raw string) (*Identity, error) {
	if a == nil {
		return nil, errors.New("auth: authenticator is nil")
	}

	claims := &tokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: token invalid")
	}
	if a.issuer != "" && claims.Issuer != a.issuer {
		return nil, errors.New("auth: unexpected issuer")
	}

	uid := strings.TrimSpace(claims.Subject)
	if uid == "" {
		return nil, errors.New("auth: token subject is empty")
	}

	roles := claims.Roles
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}

	return &Identity{
		UID:   uid,
		Email: strings.TrimSpace(claims.Email),
		Roles: roles,
	}, nil
}

// RequireAuth rejects requests lacking a valid bearer token.
func (a *Authenticator) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" || !strings.HasPrefix(header, bearerPrefix) {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "bearer token required", http.StatusUnauthorized))
				return
			}

			identity, err := a.Verify(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "bearer token invalid", http.StatusUnauthorized))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// RequireRole rejects authenticated requests whose identity lacks the role.
// It must be mounted after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := IdentityFromContext(ctx)
			if !ok || !identity.HasRole(role) {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
