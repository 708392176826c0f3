package waitreg_test

import (
	"testing"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/waitreg"
)

func TestRegistry_RegisterNotify(t *testing.T) {
	r := waitreg.New[string]()
	ch := r.Register(1)

	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		if !r.Notify(1, "pong") {
			t.Error("Notify failed to deliver")
		}
	}()

	select {
	case v := <-ch:
		if v != "pong" {
			t.Errorf("got %q, want pong", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}

	if r.Count() != 0 {
		t.Fatalf("Count() after notify = %d, want 0", r.Count())
	}
}

func TestRegistry_NotifyUnknownKeyIsNoOp(t *testing.T) {
	r := waitreg.New[int]()
	if r.Notify(99, 1) {
		t.Fatalf("expected Notify on unknown key to report false")
	}
}

func TestRegistry_OlderThan(t *testing.T) {
	r := waitreg.New[int]()
	r.Register(1)
	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	r.Register(2)

	old := r.OlderThan(cutoff)
	if len(old) != 1 || old[0] != 1 {
		t.Fatalf("OlderThan(cutoff) = %v, want [1]", old)
	}
}

func TestRegistry_DeleteAll(t *testing.T) {
	r := waitreg.New[int]()
	r.Register(1)
	r.Register(2)
	keys := r.DeleteAll()
	if len(keys) != 2 {
		t.Fatalf("DeleteAll() returned %d keys, want 2", len(keys))
	}
	if r.Count() != 0 {
		t.Fatalf("Count() after DeleteAll = %d, want 0", r.Count())
	}
}

func TestRegistry_HasDetectsCollision(t *testing.T) {
	r := waitreg.New[int]()
	r.Register(7)
	if !r.Has(7) {
		t.Fatalf("expected Has(7) to be true")
	}
	if r.Has(8) {
		t.Fatalf("expected Has(8) to be false")
	}
}
