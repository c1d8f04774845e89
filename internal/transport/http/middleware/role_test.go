package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-api-notify/internal/domain"
	jwtinfra "github.com/go-api-notify/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
)

func requestAs(role string) *http.Request {
	ctx := WithClaims(context.Background(), &jwtinfra.Claims{UserID: "u1", Role: role})
	return httptest.NewRequest(http.MethodPost, "/", nil).WithContext(ctx)
}

func TestRequireRole_NoClaimsInContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireRole_WrongRole(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin, domain.RoleService)(http.HandlerFunc(okHandler)).ServeHTTP(rr, requestAs(domain.RoleUser))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rr.Body.String())
}

func TestRequireRole_CorrectRole(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, requestAs(domain.RoleAdmin))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireRole_MultipleAllowedRoles(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin, domain.RoleService)(http.HandlerFunc(okHandler)).ServeHTTP(rr, requestAs(domain.RoleService))
	assert.Equal(t, http.StatusOK, rr.Code)
}
