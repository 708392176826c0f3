package spfcheck

import (
	"context"
	"net"
	"testing"
	"time"

	"blitiri.com.ar/go/spf"
)

func TestChecker_TimesOutOnExpiredContext(t *testing.T) {
	c := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	res, err := c.Check(ctx, net.IPv4(127, 0, 0, 1), "mail.example.com", "sender@example.com")
	if err != ErrTimeout {
		t.Fatalf("Check() err = %v, want ErrTimeout", err)
	}
	if res != spf.None {
		t.Fatalf("Check() res = %v, want spf.None on timeout", res)
	}
}
