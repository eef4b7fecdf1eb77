package authapi

import (
	"context"
	"net/http"
	"strings"
)

const (
	MsgAuthHeaderRequired = "Authorization header required"
	MsgInvalidToken       = "Invalid or expired token"
)

type principalKey struct{}

// PrincipalFrom returns the authenticated user id placed by requireAuth.
func PrincipalFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(principalKey{}).(int64)
	return id, ok
}

// requireAuth verifies the bearer token and stores the principal id in the request context.
// Client-supplied ids (query or body) are never consulted.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, MsgAuthHeaderRequired)
			return
		}
		claims, err := h.tokens.Verify(token, h.now().UTC())
		if err != nil {
			h.log.InfoContext(r.Context(), "auth.token.reject", "err", err)
			writeError(w, http.StatusUnauthorized, MsgInvalidToken)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// principal must only be called behind requireAuth.
func principal(r *http.Request) int64 {
	id, _ := PrincipalFrom(r.Context())
	return id
}
