// Package auth resolves the calling user's identity on every request.
// Verification itself is delegated to the deployment's identity layer
// (an API gateway or auth proxy); this package only trusts what that
// layer forwards and makes the user ID available to handlers.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey type for context keys
type ContextKey string

// UserIDKey is the context key for the verified user ID
const UserIDKey ContextKey = "user_id"

// Verifier extracts and verifies the identity of the requester. An empty
// user ID with a nil error means the request carried no usable identity.
type Verifier interface {
	Verify(r *http.Request) (userID string, err error)
}

// HeaderVerifier trusts an identity header injected by an upstream
// gateway. It must only be used behind a proxy that strips the header
// from client traffic.
type HeaderVerifier struct {
	header string
}

// NewHeaderVerifier creates a verifier reading the given header name.
func NewHeaderVerifier(header string) *HeaderVerifier {
	if header == "" {
		header = "X-User-ID"
	}
	return &HeaderVerifier{header: header}
}

func (v *HeaderVerifier) Verify(r *http.Request) (string, error) {
	return strings.TrimSpace(r.Header.Get(v.header)), nil
}

// Middleware rejects requests without a verified identity and stores the
// user ID in the request context for handlers.
func Middleware(verifier Verifier, onUnauthorized func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := verifier.Verify(r)
			if err != nil || userID == "" {
				if onUnauthorized != nil {
					onUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts the verified user ID from context
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}
