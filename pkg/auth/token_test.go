package auth

import (
	"testing"
	"time"

	"github.com/adesolafarms/farmstore-backend/pkg/config"
	"github.com/adesolafarms/farmstore-backend/pkg/enums"
	"github.com/google/uuid"
)

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "farmstore",
		ExpirationMinutes: 30,
	}
	now := time.Now().UTC()
	customerID := uuid.New()

	token, err := MintAccessToken(cfg, now, customerID, enums.ActorRoleCustomer)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.CustomerID != customerID {
		t.Fatalf("expected customer_id %s, got %s", customerID, claims.CustomerID)
	}
	if claims.Role != enums.ActorRoleCustomer {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}

	exp := now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp.UTC(), claims.ExpiresAt.UTC())
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "farmstore",
		ExpirationMinutes: 10,
	}
	token, err := MintAccessToken(cfg, time.Now(), uuid.New(), enums.ActorRoleAdmin)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	other := cfg
	other.Secret = "other-secret"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected signature validation failure")
	}
}

func TestParseAccessTokenWrongIssuer(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "farmstore",
		ExpirationMinutes: 10,
	}
	token, err := MintAccessToken(cfg, time.Now(), uuid.New(), enums.ActorRoleCustomer)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected issuer validation failure")
	}
}

func TestMintAccessTokenRejectsBadInputs(t *testing.T) {
	base := config.JWTConfig{Secret: "secret", Issuer: "farmstore", ExpirationMinutes: 10}

	missingSecret := base
	missingSecret.Secret = ""
	if _, err := MintAccessToken(missingSecret, time.Now(), uuid.New(), enums.ActorRoleCustomer); err == nil {
		t.Fatal("expected error without secret")
	}

	if _, err := MintAccessToken(base, time.Now(), uuid.New(), enums.ActorRole("ghost")); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
