package daemon

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"docflow/internal/engine"
	"docflow/internal/model"
)

// UserHeader names the acting user on requests authenticated with the API
// token.
const UserHeader = "X-Docflow-User"

type actorKey struct{}

func withActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, actorKey{}, username)
}

func actorFrom(ctx context.Context) string {
	username, _ := ctx.Value(actorKey{}).(string)
	return username
}

// authMiddleware resolves the acting user. Requests either carry HTTP Basic
// credentials checked against the user table, or "Authorization: Bearer
// <token>" matching the configured api_token together with the user named
// in UserHeader. Anything else is rejected with 401.
func authMiddleware(token string, eng *engine.Engine, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		switch {
		case strings.HasPrefix(auth, "Bearer "):
			presented := strings.TrimPrefix(auth, "Bearer ")
			if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeUnauthorized(w)
				return
			}
			username := model.NormalizeName(r.Header.Get(UserHeader))
			if username == "" {
				writeUnauthorized(w)
				return
			}
			if _, err := eng.User(username); err != nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), username)))
		default:
			username, password, ok := r.BasicAuth()
			if !ok {
				writeUnauthorized(w)
				return
			}
			user, err := eng.Authenticate(username, password)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), user.Username)))
		}
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="docflow"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}
