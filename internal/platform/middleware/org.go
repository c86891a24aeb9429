package middleware

import (
	"log/slog"
	"net/http"

	"relaypad/pkg/requestcontext"
)

// OrgResolver maps an inbound request to the caller's organization.
// Token validation and membership checks live in the platform's auth
// service; this interface is the seam where that collaborator plugs in.
type OrgResolver interface {
	ResolveOrg(r *http.Request) (string, error)
}

// HeaderOrgResolver trusts the org header stamped by the auth proxy in front
// of this service. Requests reaching us without it are unauthenticated.
type HeaderOrgResolver struct {
	Header string
}

func (h HeaderOrgResolver) ResolveOrg(r *http.Request) (string, error) {
	header := h.Header
	if header == "" {
		header = "X-Org-ID"
	}
	if v := r.Header.Get(header); v != "" {
		return v, nil
	}
	return "", http.ErrNoCookie
}

// RequireOrg resolves the caller's organization before any domain operation
// and injects it into the request context.
func RequireOrg(resolver OrgResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, err := resolver.ResolveOrg(r)
			if err != nil || orgID == "" {
				logger.WarnContext(r.Context(), "unauthenticated request",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"missing or invalid credentials"}`))
				return
			}
			ctx := requestcontext.WithOrgID(r.Context(), orgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
