package middleware

import (
	"context"
	"net/http"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/domain"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// Principal identifies the caller of a scoped endpoint. Identity is asserted
// by the gateway in front of this service via headers; this service only
// enforces the scoping they imply.
type Principal struct {
	UserID      string
	Department  string
	AccessLevel domain.AccessLevel
}

// RequirePrincipal extracts the caller identity headers and rejects requests
// that lack them or carry an unknown access level.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := Principal{
			UserID:      r.Header.Get("X-User-ID"),
			Department:  r.Header.Get("X-Department"),
			AccessLevel: domain.AccessLevel(r.Header.Get("X-Access-Level")),
		}

		if p.UserID == "" || p.Department == "" {
			api.Error(w, http.StatusUnauthorized, "missing identity headers")
			return
		}

		if p.AccessLevel == "" {
			p.AccessLevel = domain.AccessEmployee
		}
		if err := p.AccessLevel.Validate(); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid access level")
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireLevel rejects callers below the given clearance. It must run inside
// RequirePrincipal.
func RequireLevel(min domain.AccessLevel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				api.Error(w, http.StatusUnauthorized, "missing identity headers")
				return
			}
			if !p.AccessLevel.Allows(min) {
				api.Error(w, http.StatusForbidden, "insufficient access level")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal returns the caller identity from context.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(Principal)
	return p, ok
}

// GetDepartment returns the caller's department from context, if any.
func GetDepartment(ctx context.Context) string {
	p, _ := ctx.Value(PrincipalKey).(Principal)
	return p.Department
}
