package greylist

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Goofygiraffe06/ingress/internal/eom"
)

// Fields toggles which parts of the greylisting key tuple participate
// in the key hash: client-ip, envelope-from, envelope-to are always
// eligible; the header/body fields are individually switchable by
// configuration.
type Fields struct {
	ClientIP     bool
	EnvelopeFrom bool
	EnvelopeTo   bool
	HeaderTo     bool
	HeaderFrom   bool
	MessageID    bool
	Subject      bool
	Date         bool
	Body         bool
}

// Key is everything a probe/mark call needs to build the hash: the raw
// field values, selected by Fields.
type Key struct {
	ClientIP     string
	EnvelopeFrom string
	EnvelopeTo   string
	HeaderTo     string
	HeaderFrom   string
	MessageID    string
	Subject      string
	Date         string
	Body         []byte
}

// Hash mixes the selected fields into the hex-encoded key the RC client
// uses as its namespaced key. Body hashing pre-normalises CRLF and
// removes dot-stuffing (internal/eom.Unstuff, plus the CRLF collapser)
// so a byte-identical retried message produces an identical body hash
// even if dot-stuffed or re-wrapped differently.
func (k Key) Hash(f Fields) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	if f.ClientIP {
		write(strings.ToLower(k.ClientIP))
	}
	if f.EnvelopeFrom {
		write(strings.ToLower(k.EnvelopeFrom))
	}
	if f.EnvelopeTo {
		write(strings.ToLower(k.EnvelopeTo))
	}
	if f.HeaderTo {
		write(strings.ToLower(k.HeaderTo))
	}
	if f.HeaderFrom {
		write(strings.ToLower(k.HeaderFrom))
	}
	if f.MessageID {
		write(k.MessageID)
	}
	if f.Subject {
		write(k.Subject)
	}
	if f.Date {
		write(k.Date)
	}
	if f.Body {
		c := eom.NewCRLFCollapser()
		normalized := c.Feed(k.Body)
		normalized = append(normalized, c.Flush()...)
		h.Write(eom.Unstuff(normalized))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
