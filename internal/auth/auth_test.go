package auth

import (
	"errors"
	"testing"
	"time"

	"standup-desk/internal/config"
	"standup-desk/internal/models"
)

func newTestService(accessTTL time.Duration) *Service {
	return NewService(&config.JWTConfig{
		Secret:            "test-secret",
		Expiration:        accessTTL,
		RefreshExpiration: 168 * time.Hour,
	})
}

func TestHashPassword(t *testing.T) {
	svc := newTestService(time.Hour)

	password := "testpassword123"
	hash, err := svc.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	if hash == "" || hash == password {
		t.Error("Hash should be non-empty and differ from the password")
	}

	if err := svc.VerifyPassword(hash, password); err != nil {
		t.Errorf("Should verify correct password, got error: %v", err)
	}
	if err := svc.VerifyPassword(hash, "wrongpassword"); err == nil {
		t.Error("Should not verify incorrect password")
	}
}

func TestValidateToken(t *testing.T) {
	svc := newTestService(time.Hour)
	user := &models.User{ID: 7, Email: "manager@example.com", Role: models.RoleManager}

	issued, err := svc.GenerateToken(user, "session-1")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := svc.ValidateToken(issued.Token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}

	if claims.UserID != user.ID {
		t.Errorf("Expected user ID %d, got %d", user.ID, claims.UserID)
	}
	if claims.Role != models.RoleManager {
		t.Errorf("Expected role %s, got %s", models.RoleManager, claims.Role)
	}
	if claims.SessionID != "session-1" || claims.TokenType != TokenTypeAccess {
		t.Errorf("unexpected session claims: %+v", claims)
	}
	if claims.ID != issued.JTI {
		t.Errorf("JTI mismatch: %s vs %s", claims.ID, issued.JTI)
	}
}

func TestRefreshTokenType(t *testing.T) {
	svc := newTestService(time.Hour)

	issued, err := svc.GenerateRefreshToken(&models.User{ID: 1, Role: models.RoleEmployee}, "s")
	if err != nil {
		t.Fatalf("Failed to generate refresh token: %v", err)
	}

	claims, err := svc.ValidateToken(issued.Token)
	if err != nil {
		t.Fatalf("Failed to validate refresh token: %v", err)
	}
	if claims.TokenType != TokenTypeRefresh {
		t.Errorf("TokenType = %q, want %q", claims.TokenType, TokenTypeRefresh)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	svc := newTestService(-1 * time.Hour)

	issued, err := svc.GenerateToken(&models.User{ID: 1}, "s")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	_, err = svc.ValidateToken(issued.Token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("ValidateToken() error = %v, want ErrExpiredToken", err)
	}

	jti, err := svc.ExtractJTI(issued.Token)
	if err != nil || jti != issued.JTI {
		t.Errorf("ExtractJTI() = %q, %v; want %q", jti, err, issued.JTI)
	}
}

func TestValidateTokenFromOtherKey(t *testing.T) {
	issued, err := newTestService(time.Hour).GenerateToken(&models.User{ID: 1}, "s")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := newTestService(time.Hour).ValidateToken(issued.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token signed by another key: error = %v, want ErrInvalidToken", err)
	}
}
