package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateToken(t *testing.T) {
	issuer, err := NewIssuer("test_secret_key", 24*time.Hour, false)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	token, err := issuer.Generate("player-1", "test_user")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "player-1" || claims.Username != "test_user" {
		t.Fatalf("claims = %+v, want subject player-1 / username test_user", claims)
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		t.Fatal("expected exp to be after iat")
	}
}

func TestValidateFailsWithWrongSecret(t *testing.T) {
	issuer, _ := NewIssuer("secret1", 24*time.Hour, false)
	token, err := issuer.Generate("player-1", "test_user")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	wrongIssuer, _ := NewIssuer("wrong_secret", 24*time.Hour, false)
	if _, err := wrongIssuer.Validate(token); err == nil {
		t.Fatal("expected validation to fail with the wrong secret")
	}
}

func TestValidateFailsWithExpiredToken(t *testing.T) {
	issuer, _ := NewIssuer("test_secret_key", time.Hour, false)

	now := time.Now()
	claims := Claims{
		Username: "test_user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "player-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			NotBefore: jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(issuer.secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := issuer.Validate(signed); err == nil {
		t.Fatal("expected validation to fail for an expired token")
	}
}

func TestNewIssuerRequiresSecretOutsideDevMode(t *testing.T) {
	if _, err := NewIssuer("", 0, false); err == nil {
		t.Fatal("expected NewIssuer to reject an empty secret without devMode")
	}
	if _, err := NewIssuer("", 0, true); err != nil {
		t.Fatalf("expected dev mode to allow an empty secret, got %v", err)
	}
}
