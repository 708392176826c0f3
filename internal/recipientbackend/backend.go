// Package recipientbackend implements the recipient lookup collaborator:
// given an RCPT TO address, resolve whether the mailbox exists and its
// ena/karma/login-rule/registration-time fields, which the orchestrator
// uses to classify the recipient as accept, policy-reject or
// new-user-tempban.
package recipientbackend

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Lookup when addr has no recipient record.
var ErrNotFound = errors.New("recipientbackend: recipient not found")

// Info is the subset of recipient-backend fields the session pipeline
// needs: suid (subject-user-id), uid, the enabled flag, the login-rule
// flag, karma/karma-status, and the registration time used for the
// new-user-tempban window.
type Info struct {
	Suid        int64
	UID         string
	Ena         bool
	LoginRule   bool
	Karma       int
	KarmaStatus string
	RegTime     time.Time
}

// Whitelisted reports whether karma is high enough to bypass a
// karma-status policy reject regardless of karma_status.
func (i *Info) Whitelisted(threshold int) bool {
	return i.Karma >= threshold
}

// Backend is the recipient lookup contract. Implementations must treat
// ctx cancellation/deadline as a tempfail at the call site, not as
// ErrNotFound.
type Backend interface {
	Lookup(ctx context.Context, addr string) (*Info, error)
}
