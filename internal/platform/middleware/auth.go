// Package middleware carries the HTTP middleware shared by every router:
// bearer-token authentication and the identity context helpers.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	pstrings "bordereau/pkg/platform/strings"
)

// Identity is the authenticated requester extracted from the bearer token:
// a person plus the SIRETs of the establishments they belong to.
type Identity struct {
	Name   string
	Sirets []string
}

type contextKeyIdentity struct{}

// GetIdentity retrieves the authenticated identity from the context. The
// zero value means the request carried no valid token.
func GetIdentity(ctx context.Context) Identity {
	identity, ok := ctx.Value(contextKeyIdentity{}).(Identity)
	if !ok {
		return Identity{}
	}
	return identity
}

// WithIdentity injects an identity, for tests and internal calls.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity{}, identity)
}

type tokenClaims struct {
	Name   string   `json:"name"`
	Sirets []string `json:"sirets"`
	jwt.RegisteredClaims
}

// Validator parses and verifies bearer tokens.
type Validator struct {
	key []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{key: []byte(signingKey)}
}

func (v *Validator) Validate(tokenString string) (Identity, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return v.key, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	// Tokens issued for several establishments may repeat entries.
	return Identity{Name: name, Sirets: pstrings.DedupeAndTrim(claims.Sirets)}, nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// identity in the request context.
func RequireAuth(validator *Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access, missing token")
				writeUnauthorized(w, "Vous n'êtes pas connecté")
				return
			}
			identity, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access, invalid token", "error", err)
				writeUnauthorized(w, "Votre session a expiré, veuillez vous reconnecter")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":"UNAUTHENTICATED","message":%q}`, message)
}
