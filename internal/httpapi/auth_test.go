package httpapi

import (
	"testing"
	"time"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
)

func TestIssueAndParseTokenKeepsActor(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "123456")

	token, expiresAt, err := manager.Issue(domain.Actor{UserID: "u-1", CashierID: "c-1", Role: roleCashier})
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected expiry in the future, got %s", expiresAt)
	}

	actor, err := manager.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.UserID != "u-1" || actor.CashierID != "c-1" || actor.Role != roleCashier {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("other-secret", time.Hour, "")
	token, _, err := issuer.Issue(domain.Actor{UserID: "u-1", Role: roleAdmin})
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}

	manager := NewAuthManager("test-secret", time.Hour, "")
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
	if _, err := manager.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestIssueRequiresUserID(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "")
	if _, _, err := manager.Issue(domain.Actor{Role: roleAdmin}); err == nil {
		t.Fatalf("expected missing user id to fail")
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "654321")

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}
	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}
	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
}

func TestEmptyManagerPINDisablesOverrides(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "  ")

	for _, pin := range []string{"", "disabled", "0000"} {
		if manager.ValidateManagerPIN(pin) {
			t.Fatalf("expected pin %q to be refused when no pin is configured", pin)
		}
	}
}
