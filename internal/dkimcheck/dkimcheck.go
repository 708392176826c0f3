// Package dkimcheck wraps github.com/emersion/go-msgauth/dkim with an
// independent per-check deadline: dkim.Verify has no context support,
// so it runs in a goroutine raced against ctx, same pattern as
// internal/spfcheck.
package dkimcheck

import (
	"context"
	"errors"
	"io"

	"github.com/emersion/go-msgauth/dkim"
)

// ErrTimeout is returned when ctx is done before dkim.Verify returns.
var ErrTimeout = errors.New("dkimcheck: timed out")

// Result is one signature's verification outcome: a (status, identity)
// pair for the Authentication-Results header.
type Result struct {
	Domain     string
	Identifier string
	Pass       bool
	PermFail   bool
}

// Checker verifies the DKIM-Signature headers of a full RFC 5322
// message (header + body).
type Checker struct{}

func New() *Checker {
	return &Checker{}
}

// Verify reads msg (header and body, exactly as it will be delivered)
// and verifies every DKIM-Signature header present.
func (c *Checker) Verify(ctx context.Context, msg io.Reader) ([]Result, error) {
	type outcome struct {
		verifications []*dkim.Verification
		err           error
	}
	ch := make(chan outcome, 1)

	go func() {
		v, err := dkim.Verify(msg)
		ch <- outcome{v, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return nil, o.err
		}
		results := make([]Result, 0, len(o.verifications))
		for _, v := range o.verifications {
			results = append(results, Result{
				Domain:     v.Domain,
				Identifier: v.Identifier,
				Pass:       v.Err == nil,
				PermFail:   v.Err != nil && dkim.IsPermFail(v.Err),
			})
		}
		return results, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}
