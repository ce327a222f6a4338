// Package api implements the vocanote REST API the UI shell talks to, using chi.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
	AuthModeJWT      = "jwt"
)

// IdentityHeader carries the auth provider's user id when the shell
// authenticates with a static token or runs without auth.
const IdentityHeader = "X-Auth-Identity"

// AuthOptions selects how requests are authenticated and where the caller's
// identity comes from.
type AuthOptions struct {
	Mode      string
	Token     string
	JWTSecret string
}

type identityKey struct{}

// IdentityFrom returns the authenticated identity stored by AuthMiddleware.
func IdentityFrom(ctx context.Context) string {
	id, _ := ctx.Value(identityKey{}).(string)
	return id
}

// AuthMiddleware returns middleware that authenticates requests and stores
// the caller's identity on the request context.
//
//   - disabled: every request passes; identity comes from X-Auth-Identity.
//   - token: "Authorization: Bearer <token>" must match; identity comes from X-Auth-Identity.
//   - jwt: the Bearer value must be an HS256 JWT signed with JWTSecret; identity is its "sub" claim.
func AuthMiddleware(opts AuthOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity string
			switch opts.Mode {
			case AuthModeToken:
				if bearer(r) != opts.Token {
					writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
					return
				}
				identity = r.Header.Get(IdentityHeader)
			case AuthModeJWT:
				sub, err := subject(bearer(r), []byte(opts.JWTSecret))
				if err != nil {
					writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
					return
				}
				identity = sub
			default:
				identity = r.Header.Get(IdentityHeader)
			}
			ctx := context.WithValue(r.Context(), identityKey{}, strings.TrimSpace(identity))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// subject verifies raw and returns its "sub" claim.
func subject(raw string, secret []byte) (string, error) {
	if raw == "" {
		return "", errors.New("missing token")
	}
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}
