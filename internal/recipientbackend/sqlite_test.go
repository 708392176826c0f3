package recipientbackend

import (
	"context"
	"testing"
	"time"
)

func TestSQLiteBackend_ProvisionAndLookup(t *testing.T) {
	b, err := NewSQLiteBackend(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	reg := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	if err := b.Provision(ctx, "user@example.com", Info{
		Suid: 1001, UID: "u1", Ena: true, LoginRule: true,
		Karma: 50, KarmaStatus: "ok", RegTime: reg,
	}); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	info, err := b.Lookup(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if info.Suid != 1001 || info.UID != "u1" || !info.Ena || !info.LoginRule {
		t.Fatalf("Info = %+v, unexpected", info)
	}
	if !info.RegTime.Equal(reg) {
		t.Fatalf("RegTime = %v, want %v", info.RegTime, reg)
	}
}

func TestSQLiteBackend_LookupNotFound(t *testing.T) {
	b, err := NewSQLiteBackend(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	defer b.Close()

	if _, err := b.Lookup(context.Background(), "nobody@example.com"); err != ErrNotFound {
		t.Fatalf("Lookup missing addr: err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteBackend_ProvisionUpdatesExisting(t *testing.T) {
	b, err := NewSQLiteBackend(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	base := Info{Suid: 1, UID: "u", Ena: true, LoginRule: true, Karma: 10, RegTime: time.Unix(1000, 0)}
	if err := b.Provision(ctx, "a@b.com", base); err != nil {
		t.Fatalf("Provision initial: %v", err)
	}

	updated := base
	updated.Karma = 90
	updated.Ena = false
	if err := b.Provision(ctx, "a@b.com", updated); err != nil {
		t.Fatalf("Provision update: %v", err)
	}

	info, err := b.Lookup(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if info.Karma != 90 || info.Ena {
		t.Fatalf("Info = %+v, want updated karma=90 ena=false", info)
	}
}

func TestInfo_Whitelisted(t *testing.T) {
	i := Info{Karma: 50}
	if !i.Whitelisted(10) {
		t.Fatalf("expected karma 50 to be whitelisted at threshold 10")
	}
	if i.Whitelisted(100) {
		t.Fatalf("expected karma 50 not whitelisted at threshold 100")
	}
}
