package authbackend

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/logging"
)

// signingKey is a process-wide Ed25519 keypair generated once, used to
// both sign and verify credential tokens issued by LocalBackend.
type signingKey struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

var (
	key  *signingKey
	once sync.Once
)

// InitSigningKey generates the process-wide Ed25519 keypair. Call once
// at startup before any LocalBackend is used.
func InitSigningKey() {
	once.Do(func() {
		start := time.Now()
		logging.DebugLog("authbackend: Ed25519 key generation started")

		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			logging.ErrorLog("authbackend: Ed25519 key generation failed: %v", err)
			panic("authbackend: failed to generate Ed25519 key: " + err.Error())
		}

		key = &signingKey{PrivateKey: priv, PublicKey: pub}
		logging.InfoLog("authbackend: Ed25519 key generation success %v", time.Since(start))
	})
}

func getSigningKey() *signingKey {
	if key == nil {
		logging.WarnLog("authbackend: signing key accessed before initialization")
	}
	return key
}
