package server

import (
	"context"
	"net/http"
	"strings"
)

type contextKeyAdmin struct{}

// requireAdmin rejects any request lacking a valid admin bearer JWT before
// next ever runs. This gates the operator-facing admin API (issue, renew,
// inspect, rotate); it is a separate key and token namespace from the
// protocol's P-256 recovery-token signatures and never touches them.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		subject, err := h.authority.Validate(token)
		if err != nil {
			h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid admin token")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyAdmin{}, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminSubjectFrom returns the "sub" claim of the admin token that
// authorized the current request, for audit logging.
func adminSubjectFrom(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyAdmin{}).(string); ok {
		return v
	}
	return ""
}
