// Package middleware holds the HTTP middleware the server composes around
// its routes: API-key auth, request logging, and per-IP rate limiting.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"
)

type userKey struct{}

// UserIntoContext attaches the acting user's id to the context.
func UserIntoContext(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

// UserFromContext returns the acting user set by APIKeyAuth.
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userKey{}).(uuid.UUID)
	return id, ok
}

// APIKeyAuth authenticates requests by the X-API-Key header against the
// configured credentials and puts the matched user id on the context.
type APIKeyAuth struct {
	creds map[string]uuid.UUID
}

// NewAPIKeyAuth maps API keys to user ids.
func NewAPIKeyAuth(creds map[string]uuid.UUID) *APIKeyAuth {
	return &APIKeyAuth{creds: creds}
}

// Handler rejects requests without a valid key. Key comparison is constant
// time per candidate so response timing does not narrow down stored keys.
func (a *APIKeyAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("X-API-Key")
		if presented == "" {
			unauthorized(w, "Missing X-API-Key header.")
			return
		}

		userID, ok := a.match(presented)
		if !ok {
			unauthorized(w, "The provided API key is not valid.")
			return
		}

		next.ServeHTTP(w, r.WithContext(UserIntoContext(r.Context(), userID)))
	})
}

// match scans every credential instead of returning early, keeping the
// comparison work independent of which key (if any) matches.
func (a *APIKeyAuth) match(presented string) (uuid.UUID, bool) {
	var (
		found  bool
		userID uuid.UUID
	)
	for key, id := range a.creds {
		if subtle.ConstantTimeCompare([]byte(key), []byte(presented)) == 1 {
			found = true
			userID = id
		}
	}
	return userID, found
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"message":"` + message + `","action":"Check your API key.","code":"unauthorized"}}`))
}
