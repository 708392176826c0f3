// Package authbackend implements the session orchestrator's bb_client
// contract with an Ed25519/JWT credential-token flow: verifying SASL
// credentials during AUTH, and confirming a MAIL FROM address belongs
// to the authenticated identity.
package authbackend

import (
	"context"
	"errors"
	"time"
)

// Identity is what a successful Authenticate/VerifyMailFrom call yields:
// the recipient-accounting fields the orchestrator folds into
// envelope.Envelope (Karma, KarmaStatus, BornDate, Authenticated).
type Identity struct {
	User        string
	Karma       int
	KarmaStatus string
	BornDate    time.Time
}

// ErrDenied is returned for a credential or ownership check that was
// evaluated and rejected (as opposed to a backend failure).
var ErrDenied = errors.New("authbackend: denied")

// Backend is the bb_client contract: verify SASL credentials, and later
// confirm that a MAIL FROM address belongs to the identity that
// authenticated. Implementations must treat ctx cancellation/deadline
// as a tempfail at the call site, not as ErrDenied.
type Backend interface {
	// Authenticate verifies a decoded SASL PLAIN/LOGIN response
	// (authzid/authcid/passwd per RFC 4616, already base64-decoded and
	// split by the SMTP server's SASL layer) and returns the resulting
	// Identity, or ErrDenied if the credentials do not verify.
	Authenticate(ctx context.Context, user, secret string) (*Identity, error)

	// VerifyMailFrom reports whether addr may be used as MAIL FROM by
	// the already-authenticated identity.
	VerifyMailFrom(ctx context.Context, identity *Identity, addr string) error
}
