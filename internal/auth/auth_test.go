package auth

import (
	"testing"
	"time"
)

// ============================================================================
// TEST: Password hashing and strength rules
// ============================================================================

func TestPasswordHashRoundTrip(t *testing.T) {
	// Low cost keeps the test fast; production uses DefaultBcryptCost
	pm := NewPasswordManager(4, 8)

	hash, err := pm.HashPassword("Correct-Horse-7")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "Correct-Horse-7" {
		t.Fatal("Hash must not equal the plaintext")
	}

	if !pm.VerifyPassword("Correct-Horse-7", hash) {
		t.Error("Expected correct password to verify")
	}
	if pm.VerifyPassword("wrong-password", hash) {
		t.Error("Expected wrong password to fail verification")
	}
}

func TestPasswordHashesAreSalted(t *testing.T) {
	pm := NewPasswordManager(4, 8)

	h1, err := pm.HashPassword("Correct-Horse-7")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	h2, err := pm.HashPassword("Correct-Horse-7")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if h1 == h2 {
		t.Error("Expected distinct hashes for the same password")
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	pm := NewPasswordManager(4, 8)

	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "three classes upper lower digit", password: "Abcdef12", wantErr: false},
		{name: "three classes lower digit special", password: "abcdef1!", wantErr: false},
		{name: "all four classes", password: "Abcdef1!", wantErr: false},
		{name: "too short", password: "Ab1!", wantErr: true},
		{name: "only lowercase", password: "abcdefgh", wantErr: true},
		{name: "only two classes", password: "abcdefg1", wantErr: true},
		{name: "empty", password: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := pm.ValidatePasswordStrength(tc.password)
			if tc.wantErr && err == nil {
				t.Errorf("Expected %q to be rejected", tc.password)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected %q to be accepted, got %v", tc.password, err)
			}
		})
	}
}

func TestHashRefreshToken(t *testing.T) {
	h1 := HashRefreshToken("token-a")
	h2 := HashRefreshToken("token-a")
	h3 := HashRefreshToken("token-b")

	if h1 != h2 {
		t.Error("Expected deterministic refresh token hash")
	}
	if h1 == h3 {
		t.Error("Expected different tokens to hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(h1))
	}
}

// ============================================================================
// TEST: JWT lifecycle
// ============================================================================

func TestJWTRoundTrip(t *testing.T) {
	mgr := NewJWTManager("test-secret-at-least-32-characters!", 15*time.Minute, 7*24*time.Hour)

	claims := UserClaims{UserID: "user-123", Email: "test@example.com", IsAdmin: true}
	token, err := mgr.GenerateAccessToken(claims)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	parsed, err := mgr.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if parsed.UserID != claims.UserID || parsed.Email != claims.Email || !parsed.IsAdmin {
		t.Errorf("Claims mismatch: %+v", parsed)
	}
}

func TestJWTExpiry(t *testing.T) {
	// Already-expired token
	mgr := NewJWTManager("test-secret-at-least-32-characters!", -time.Minute, time.Hour)

	token, err := mgr.GenerateAccessToken(UserClaims{UserID: "user-123"})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	_, err = mgr.ValidateAccessToken(token)
	if err != ErrTokenExpired {
		t.Fatalf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	mgr := NewJWTManager("test-secret-at-least-32-characters!", 15*time.Minute, time.Hour)
	other := NewJWTManager("a-completely-different-signing-key!!", 15*time.Minute, time.Hour)

	token, err := mgr.GenerateAccessToken(UserClaims{UserID: "user-123"})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := other.ValidateAccessToken(token); err != ErrInvalidToken {
		t.Fatalf("Expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestJWTGarbageInput(t *testing.T) {
	mgr := NewJWTManager("test-secret-at-least-32-characters!", 15*time.Minute, time.Hour)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := mgr.ValidateAccessToken(token); err != ErrInvalidToken {
			t.Errorf("Expected ErrInvalidToken for %q, got %v", token, err)
		}
	}
}

func TestGenerateRefreshTokenUniqueness(t *testing.T) {
	mgr := NewJWTManager("test-secret-at-least-32-characters!", 15*time.Minute, time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := mgr.GenerateRefreshToken()
		if err != nil {
			t.Fatalf("GenerateRefreshToken failed: %v", err)
		}
		if seen[token] {
			t.Fatal("Refresh token collision")
		}
		seen[token] = true
	}
}

func TestGenerateTokenPair(t *testing.T) {
	mgr := NewJWTManager("test-secret-at-least-32-characters!", 15*time.Minute, time.Hour)

	pair, err := mgr.GenerateTokenPair(UserClaims{UserID: "user-123", Email: "test@example.com"})
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("Expected Bearer token type, got %s", pair.TokenType)
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Errorf("Expected 900s expiry, got %d", pair.ExpiresIn)
	}
	if pair.RefreshToken == "" || pair.AccessToken == "" {
		t.Error("Expected both tokens to be populated")
	}
}
