package envelope_test

import (
	"testing"

	"github.com/Goofygiraffe06/ingress/internal/envelope"
)

func TestAddRecipient_DedupesBySuid(t *testing.T) {
	e := envelope.New("a@x.com")
	r1 := e.AddRecipient(&envelope.Recipient{Addr: "b@y.com", Suid: 42})
	r2 := e.AddRecipient(&envelope.Recipient{Addr: "alias-b@y.com", Suid: 42})

	if len(e.Recipients) != 1 {
		t.Fatalf("expected 1 recipient after dedup, got %d", len(e.Recipients))
	}
	if r1 != r2 {
		t.Fatalf("expected the same recipient returned for duplicate suid")
	}
}

func TestAddRecipient_ZeroSuidNeverDedupes(t *testing.T) {
	e := envelope.New("a@x.com")
	e.AddRecipient(&envelope.Recipient{Addr: "b@y.com"})
	e.AddRecipient(&envelope.Recipient{Addr: "c@y.com"})
	if len(e.Recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(e.Recipients))
	}
}

func TestNewID_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := envelope.NewID()
		if len(id) != 8 {
			t.Fatalf("id %q has length %d, want 8", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestAccepted_FiltersByStatus(t *testing.T) {
	e := envelope.New("a@x.com")
	e.AddRecipient(&envelope.Recipient{Addr: "ok@y.com", Status: envelope.StatusAccept})
	e.AddRecipient(&envelope.Recipient{Addr: "no@y.com", Status: envelope.StatusReject})
	accepted := e.Accepted()
	if len(accepted) != 1 || accepted[0].Addr != "ok@y.com" {
		t.Fatalf("Accepted() = %v", accepted)
	}
}

func TestComposeAltered_Order(t *testing.T) {
	e := envelope.New("a@x.com")
	e.AddedHeaders.AppendString("X-Added: 1\r\n")
	e.RetainedHeaders.AppendString("Subject: hi\r\n")
	e.Body.AppendString("hello body")
	e.ComposeAltered()
	want := "X-Added: 1\r\nSubject: hi\r\n\r\nhello body"
	if got := string(e.Altered.Bytes()); got != want {
		t.Fatalf("ComposeAltered() = %q, want %q", got, want)
	}
}
