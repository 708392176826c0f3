package connmgr

import "testing"

func TestManager_EnforcesPerIPLimit(t *testing.T) {
	m := New(0, 2)
	defer m.Close()

	c1, err := m.Start("1.2.3.4")
	if err != nil {
		t.Fatalf("Start 1: %v", err)
	}
	c2, err := m.Start("1.2.3.4")
	if err != nil {
		t.Fatalf("Start 2: %v", err)
	}
	if _, err := m.Start("1.2.3.4"); err != ErrPerIPLimit {
		t.Fatalf("Start 3 err = %v, want ErrPerIPLimit", err)
	}

	c1.Stop()
	if _, err := m.Start("1.2.3.4"); err != nil {
		t.Fatalf("Start after Stop: %v", err)
	}
	c2.Stop()
}

func TestManager_EnforcesGlobalLimit(t *testing.T) {
	m := New(1, 0)
	defer m.Close()

	c1, err := m.Start("1.2.3.4")
	if err != nil {
		t.Fatalf("Start 1: %v", err)
	}
	if _, err := m.Start("5.6.7.8"); err != ErrGlobalLimit {
		t.Fatalf("Start 2 err = %v, want ErrGlobalLimit", err)
	}
	c1.Stop()
}

func TestConn_StopIsIdempotent(t *testing.T) {
	m := New(0, 0)
	defer m.Close()

	c, err := m.Start("1.2.3.4")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()
	c.Stop()
	if got := m.GlobalCount(); got != 0 {
		t.Fatalf("GlobalCount() = %d, want 0", got)
	}
}

func TestManager_StopAllResetsRegistry(t *testing.T) {
	m := New(0, 0)
	defer m.Close()

	if _, err := m.Start("1.2.3.4"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.StopAll()
	if got := m.GlobalCount(); got != 0 {
		t.Fatalf("GlobalCount() after StopAll = %d, want 0", got)
	}
}
