//go:build !integration

package security

import (
	"testing"
	"time"

	"license-activation-service/internal/domain/model"
)

func TestTokenSigner_RoundTrip(t *testing.T) {
	now := time.Now()
	exp := now.Add(2 * time.Hour)
	c := &model.Credential{ID: "cred-1", Tier: model.TierPro, ExpiresAt: &exp}
	s := NewTokenSigner("secret", 24*time.Hour)

	tok, err := s.Sign(c, "https://example.com", []string{"updates"}, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := s.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "cred-1" || claims.Tier != model.TierPro || claims.Site != "https://example.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt.Time.After(exp.Add(time.Second)) {
		t.Error("token must not outlive the credential")
	}

	if _, err := NewTokenSigner("other", time.Hour).Verify(tok); err == nil {
		t.Error("token signed with another secret must not verify")
	}
}

func TestKeySealer(t *testing.T) {
	s, err := NewKeySealer("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewKeySealer: %v", err)
	}
	sealed, err := s.Seal("cred-1", "ABCD-1234-EF01-9999")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := s.Open("cred-1", sealed)
	if err != nil || got != "ABCD-1234-EF01-9999" {
		t.Fatalf("Open = %q, %v", got, err)
	}
	if _, err := s.Open("cred-2", sealed); err == nil {
		t.Error("sealed key must be bound to its credential id")
	}
	if _, err := NewKeySealer("short"); err == nil {
		t.Error("expected error for bad key length")
	}
}
