// Package spfcheck wraps blitiri.com.ar/go/spf with an independent
// per-check deadline timer: SPF's own resolver has no context support,
// so the call runs in a goroutine raced against ctx.
package spfcheck

import (
	"context"
	"errors"
	"net"

	"blitiri.com.ar/go/spf"
)

// ErrTimeout is returned when ctx is done before blitiri.com.ar/go/spf
// returns.
var ErrTimeout = errors.New("spfcheck: timed out")

// Checker evaluates SPF for a connecting IP/HELO/MAIL FROM triple.
type Checker struct{}

// New returns a Checker. There is no per-instance state: blitiri's
// client is a package-level function, not a long-lived connection.
func New() *Checker {
	return &Checker{}
}

// Check runs CheckHostWithSender, cancellable via ctx. The underlying
// call still runs to completion in its goroutine after a timeout (the
// library offers no cancellation hook); its result is simply discarded.
func (c *Checker) Check(ctx context.Context, ip net.IP, helo, sender string) (spf.Result, error) {
	type outcome struct {
		res spf.Result
		err error
	}
	ch := make(chan outcome, 1)

	go func() {
		res, err := spf.CheckHostWithSender(ip, helo, sender)
		ch <- outcome{res, err}
	}()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		return spf.None, ErrTimeout
	}
}
