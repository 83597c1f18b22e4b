package webserver_test

import (
	"testing"
	"time"

	"github.com/zsprackett/claude-usage/internal/webserver"
)

func TestIssueAndValidateAccessToken(t *testing.T) {
	secret := "test-secret"
	token, err := webserver.IssueAccessToken(secret, "waybar", time.Hour)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	subject, err := webserver.ValidateAccessToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if subject != "waybar" {
		t.Errorf("expected waybar, got %s", subject)
	}
}

func TestIssueAccessToken_EmptySecret(t *testing.T) {
	if _, err := webserver.IssueAccessToken("", "waybar", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestValidateAccessToken_Expired(t *testing.T) {
	secret := "test-secret"
	token, _ := webserver.IssueAccessToken(secret, "waybar", -time.Second)
	_, err := webserver.ValidateAccessToken(secret, token)
	if err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	token, _ := webserver.IssueAccessToken("secret-a", "waybar", time.Hour)
	_, err := webserver.ValidateAccessToken("secret-b", token)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateAccessToken_Garbage(t *testing.T) {
	if _, err := webserver.ValidateAccessToken("test-secret", "not.a.jwt"); err == nil {
		t.Error("expected error for malformed token")
	}
}
