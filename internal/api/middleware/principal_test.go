package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/ragdesk/internal/domain"
)

func principalEcho(t *testing.T, captured *Principal) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r.Context())
		require.True(t, ok)
		*captured = p
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequirePrincipal_ExtractsHeaders(t *testing.T) {
	var captured Principal
	handler := RequirePrincipal(principalEcho(t, &captured))

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-Department", "hr")
	req.Header.Set("X-Access-Level", "manager")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", captured.UserID)
	assert.Equal(t, "hr", captured.Department)
	assert.Equal(t, domain.AccessManager, captured.AccessLevel)
}

func TestRequirePrincipal_DefaultsAccessLevel(t *testing.T) {
	var captured Principal
	handler := RequirePrincipal(principalEcho(t, &captured))

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-Department", "hr")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.AccessEmployee, captured.AccessLevel)
}

func TestRequirePrincipal_MissingIdentity(t *testing.T) {
	handler := RequirePrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePrincipal_InvalidAccessLevel(t *testing.T) {
	handler := RequirePrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-Department", "hr")
	req.Header.Set("X-Access-Level", "root")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
