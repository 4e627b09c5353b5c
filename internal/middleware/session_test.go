package middleware

import (
	"testing"
	"time"
)

func TestSessionToken_RoundTrip(t *testing.T) {
	token, err := IssueSessionToken("sess1", "secret", time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}

	sessionID, err := ParseSessionToken(token, "secret")
	if err != nil {
		t.Fatalf("ParseSessionToken failed: %v", err)
	}
	if sessionID != "sess1" {
		t.Errorf("expected sess1, got %s", sessionID)
	}
}

func TestSessionToken_WrongSecret(t *testing.T) {
	token, err := IssueSessionToken("sess1", "secret", time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}

	if _, err := ParseSessionToken(token, "other-secret"); err == nil {
		t.Error("expected validation to fail with the wrong secret")
	}
}

func TestSessionToken_Expired(t *testing.T) {
	token, err := IssueSessionToken("sess1", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}

	if _, err := ParseSessionToken(token, "secret"); err == nil {
		t.Error("expected validation to fail for an expired token")
	}
}

func TestSessionToken_Garbage(t *testing.T) {
	if _, err := ParseSessionToken("not-a-token", "secret"); err == nil {
		t.Error("expected validation to fail for garbage input")
	}
}
