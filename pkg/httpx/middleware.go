package httpx

import (
	"net/http"
	"strings"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/slogx"
)

type Middleware func(http.Handler) http.Handler

// Chain applies mws so the first one listed is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// VerifyFunc resolves a raw bearer token to a user id.
type VerifyFunc func(token string) (userID string, err error)

// BearerAuth rejects requests without a valid bearer token with a 401 in the
// shape the banking backend uses ({"detail", "code"}).
func BearerAuth(verify VerifyFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				writeUnauthorized(w, "Authentication credentials were not provided.", "not_authenticated")
				return
			}

			userID, err := verify(raw)
			if err != nil {
				slogx.FromContext(r.Context()).Debug("bearer token rejected", "err", err)
				writeUnauthorized(w, "Given token not valid for any token type", "token_not_valid")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return raw, raw != ""
}

func writeUnauthorized(w http.ResponseWriter, detail, code string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"detail": detail,
		"code":   code,
	})
}
