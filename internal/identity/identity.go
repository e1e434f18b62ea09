// Package identity carries the caller's user id through request contexts.
// Authentication happens upstream; the gateway forwards the verified id in
// the X-User-ID header.
package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
)

// Header is the request header holding the authenticated user id
const Header = "X-User-ID"

type contextKey struct{}

var validUserID = regexp.MustCompile(`^[A-Za-z0-9_.@:-]{1,128}$`)

// Valid reports whether id is an acceptable user id
func Valid(id string) bool {
	return validUserID.MatchString(id)
}

// WithUserID returns a context carrying userID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserID returns the user id stored in ctx
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Require rejects requests without a valid user id header and stores the id
// in the request context for downstream handlers.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !Valid(id) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "missing or malformed " + Header + " header",
				"code":  "UNAUTHENTICATED",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
	})
}
