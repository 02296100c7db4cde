package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgauth "github.com/adesolafarms/farmstore-backend/pkg/auth"
	"github.com/adesolafarms/farmstore-backend/pkg/config"
	"github.com/adesolafarms/farmstore-backend/pkg/enums"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
	"github.com/google/uuid"
)

func jwtConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "farmstore", ExpirationMinutes: 30}
}

func authLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "middleware-test"})
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	handler := Auth(jwtConfig(), authLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRejectsGarbageToken(t *testing.T) {
	handler := Auth(jwtConfig(), authLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthSeedsContextFromClaims(t *testing.T) {
	cfg := jwtConfig()
	customerID := uuid.New()
	token, err := pkgauth.MintAccessToken(cfg, time.Now(), customerID, enums.ActorRoleCustomer)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	var gotID uuid.UUID
	var gotRole string
	handler := Auth(cfg, authLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = CustomerIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if gotID != customerID {
		t.Fatalf("expected customer %s in context, got %s", customerID, gotID)
	}
	if gotRole != string(enums.ActorRoleCustomer) {
		t.Fatalf("expected customer role, got %q", gotRole)
	}
}

func TestRequireAdminBlocksCustomers(t *testing.T) {
	handler := RequireAdmin(authLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.ActorRoleCustomer)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAdminAllowsAdmins(t *testing.T) {
	handler := RequireAdmin(authLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.ActorRoleAdmin)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
