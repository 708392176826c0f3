package dkimcheck

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestChecker_NoSignaturesYieldsEmptyResult(t *testing.T) {
	c := New()
	msg := strings.NewReader("Subject: hi\r\n\r\nbody\r\n")

	results, err := c.Verify(context.Background(), msg)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Verify() = %v, want no verifications for an unsigned message", results)
	}
}

func TestChecker_TimesOutOnExpiredContext(t *testing.T) {
	c := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	msg := strings.NewReader("Subject: hi\r\n\r\nbody\r\n")
	if _, err := c.Verify(ctx, msg); err != ErrTimeout {
		t.Fatalf("Verify() err = %v, want ErrTimeout", err)
	}
}
