package authbackend

import (
	"context"
	"testing"
	"time"
)

func TestLocalBackend_AuthenticateRoundTrip(t *testing.T) {
	InitSigningKey()

	born := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	token, err := GenerateCredentialToken("user@example.com", 42, "good", born)
	if err != nil {
		t.Fatalf("GenerateCredentialToken: %v", err)
	}

	b := NewLocalBackend()
	id, err := b.Authenticate(context.Background(), "user@example.com", token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.Karma != 42 || id.KarmaStatus != "good" || !id.BornDate.Equal(born) {
		t.Fatalf("Identity = %+v, want karma=42 status=good born=%v", id, born)
	}
}

func TestLocalBackend_AuthenticateRejectsSubjectMismatch(t *testing.T) {
	InitSigningKey()

	token, err := GenerateCredentialToken("owner@example.com", 0, "", time.Time{})
	if err != nil {
		t.Fatalf("GenerateCredentialToken: %v", err)
	}

	b := NewLocalBackend()
	if _, err := b.Authenticate(context.Background(), "someone-else@example.com", token); err != ErrDenied {
		t.Fatalf("Authenticate with mismatched subject: err = %v, want ErrDenied", err)
	}
}

func TestLocalBackend_AuthenticateRejectsGarbage(t *testing.T) {
	InitSigningKey()

	b := NewLocalBackend()
	if _, err := b.Authenticate(context.Background(), "user@example.com", "not-a-token"); err != ErrDenied {
		t.Fatalf("Authenticate with garbage token: err = %v, want ErrDenied", err)
	}
}

func TestLocalBackend_VerifyMailFromMatchesIdentity(t *testing.T) {
	b := NewLocalBackend()
	id := &Identity{User: "User@Example.com"}

	if err := b.VerifyMailFrom(context.Background(), id, "user@example.com"); err != nil {
		t.Fatalf("VerifyMailFrom same address (case-insensitive): %v", err)
	}
	if err := b.VerifyMailFrom(context.Background(), id, "other@example.com"); err != ErrDenied {
		t.Fatalf("VerifyMailFrom different address: err = %v, want ErrDenied", err)
	}
}
