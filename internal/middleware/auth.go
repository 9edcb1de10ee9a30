package middleware

import (
	"net/http"
	"strings"

	"github.com/jmckenna/carecircle/internal/auth"
	"github.com/jmckenna/carecircle/internal/store"
)

const bearerPrefix = "Bearer "

// RequireAuth validates the bearer token against the session store and
// populates AuthContext for downstream handlers.
func RequireAuth(sessions *store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			sess, err := sessions.GetByToken(token)
			if err != nil || sess == nil {
				http.Error(w, "invalid or expired session", http.StatusUnauthorized)
				return
			}

			ac := auth.AuthContext{
				UserID:    sess.UserID,
				SessionID: sess.ID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(h[len(bearerPrefix):])
}
