package auth

import (
	"errors"
	"testing"
	"time"
)

// TestTokenRoundTrip verifies generate and validate
func TestTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateToken(&User{Username: "admin", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Username != "admin" || claims.Role != RoleAdmin {
		t.Errorf("Unexpected claims: %+v", claims)
	}
	if claims.Issuer != "iotview" {
		t.Errorf("Unexpected issuer %q", claims.Issuer)
	}
}

// TestTokenWrongSecret verifies cross-secret rejection
func TestTokenWrongSecret(t *testing.T) {
	m1 := NewJWTManager("secret-one", time.Hour)
	m2 := NewJWTManager("secret-two", time.Hour)

	token, err := m1.GenerateToken(&User{Username: "admin", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := m2.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken, got %v", err)
	}
}

// TestTokenExpired verifies expiry detection
func TestTokenExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute)

	token, err := m.GenerateToken(&User{Username: "viewer", Role: RoleViewer})
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := m.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Expected ErrExpiredToken, got %v", err)
	}
}

// TestTokenGarbage verifies malformed input rejection
func TestTokenGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := m.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ValidateToken(%q): expected ErrInvalidToken, got %v", token, err)
		}
	}
}

// TestRefreshToken verifies refresh carries identity forward
func TestRefreshToken(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateToken(&User{Username: "admin", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	refreshed, err := m.RefreshToken(token)
	if err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}
	claims, err := m.ValidateToken(refreshed)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Username != "admin" || claims.Role != RoleAdmin {
		t.Errorf("Refresh must preserve identity, got %+v", claims)
	}
}

// TestAuthenticate verifies the static account list
func TestAuthenticate(t *testing.T) {
	accounts := NewAccounts("admin-pw", "viewer-pw")

	user, err := accounts.Authenticate("admin", "admin-pw")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !user.IsAdmin() {
		t.Error("Expected an admin user")
	}

	user, err = accounts.Authenticate("viewer", "viewer-pw")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user.IsAdmin() {
		t.Error("Viewer must not be admin")
	}

	if _, err := accounts.Authenticate("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := accounts.Authenticate("ghost", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}

	// An account with no password is disabled
	disabled := NewAccounts("admin-pw", "")
	if _, err := disabled.Authenticate("viewer", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected disabled viewer account, got %v", err)
	}
}
