package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-cart/internal/common"
)

// TokenParser resolves a bearer token to a user ID.
type TokenParser interface {
	ParseAccessToken(token string) (string, error)
}

// Middleware resolves the caller from the Authorization header. Carts can be
// used anonymously, so only RequireAuth rejects requests.
type Middleware struct {
	Tokens TokenParser
}

// Authenticate stores the user ID in the request context when a valid bearer
// token is present. Missing or invalid tokens continue anonymously.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, err := m.userFrom(r); err == nil {
			r = r.WithContext(common.WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth answers 401 unless the request carries a valid token. A user
// already resolved by Authenticate is trusted as is.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.UserID(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := m.userFrom(r)
		if err != nil {
			if !common.WriteAppError(w, err) {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), userID)))
	})
}

var errNoToken = errors.New("auth: bearer token missing")

func (m Middleware) userFrom(r *http.Request) (string, error) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return "", errNoToken
	}
	if m.Tokens == nil {
		return "", errors.New("auth: no token parser")
	}
	return m.Tokens.ParseAccessToken(token)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
