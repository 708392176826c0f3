package authbackend

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"strings"

	"github.com/Goofygiraffe06/ingress/internal/logging"
	"github.com/Goofygiraffe06/ingress/internal/utils"
)

// LocalBackend is the in-process Backend: AUTH PLAIN/LOGIN's secret is a
// credential token minted by GenerateCredentialToken (normally by the
// recipient backend at provisioning time), and MAIL FROM ownership is
// the token's subject matching the envelope sender. This is the default
// Backend when no bb_primary/bb_secondary endpoint is configured.
type LocalBackend struct{}

// NewLocalBackend returns the default in-process Backend. InitSigningKey
// must have been called once at startup.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

func (b *LocalBackend) Authenticate(ctx context.Context, user, secret string) (*Identity, error) {
	if user == "" || secret == "" {
		return nil, ErrDenied
	}

	id, err := parseCredentialToken(secret)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(id.User, user) {
		logging.DebugLog("authbackend: token subject mismatch for [%s]", utils.HashUsername(user))
		return nil, ErrDenied
	}
	return id, nil
}

func (b *LocalBackend) VerifyMailFrom(ctx context.Context, identity *Identity, addr string) error {
	if identity == nil {
		return ErrDenied
	}
	if !strings.EqualFold(identity.User, addr) {
		return ErrDenied
	}
	return nil
}

// verifyDetachedSignature checks a detached Ed25519 signature against a
// PEM-encoded public key. Nothing in this module calls it.
func verifyDetachedSignature(pubKeyPEM, message, signatureHex string) (bool, error) {
	block, _ := pem.Decode([]byte(pubKeyPEM))
	if block == nil || block.Type != "PUBLIC KEY" {
		return false, errors.New("authbackend: invalid PEM format or missing public key")
	}

	pubKeyInterface, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return false, err
	}
	pubKey, ok := pubKeyInterface.(ed25519.PublicKey)
	if !ok {
		return false, errors.New("authbackend: not an Ed25519 public key")
	}

	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, errors.New("authbackend: invalid signature hex")
	}
	if len(sigBytes) != ed25519.SignatureSize {
		return false, errors.New("authbackend: invalid signature size")
	}

	return ed25519.Verify(pubKey, []byte(message), sigBytes), nil
}
