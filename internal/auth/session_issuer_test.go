package auth

import (
	"testing"
	"time"
)

func TestSessionIssuerRoundTripsThroughValidator(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return clockNow }

	issuer, err := NewSessionIssuer(SessionIssuerConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		TTL:           time.Hour,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected validator error: %v", err)
	}

	token, expiresAt, err := issuer.Issue(SessionIdentity{
		UserID:      testSessionUserID,
		Email:       testSessionUserEmail,
		DisplayName: "Anna Petrova",
		Roles:       []string{RoleAdmin},
	})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if !expiresAt.Equal(clockNow.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	claims, err := validator.ValidateToken(token)
	if err != nil {
		t.Fatalf("issued token failed validation: %v", err)
	}
	if claims.UserEmail != testSessionUserEmail || claims.UserDisplayName != "Anna Petrova" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.IsModerator() {
		t.Fatalf("expected admin role to grant moderation")
	}
}

func TestSessionIssuerRequiresIdentity(t *testing.T) {
	issuer, err := NewSessionIssuer(SessionIssuerConfig{SigningSecret: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.Issue(SessionIdentity{UserID: "user-1"}); err == nil {
		t.Fatalf("expected error for missing email")
	}
	if _, err := NewSessionIssuer(SessionIssuerConfig{}); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}
