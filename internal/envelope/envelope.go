// Package envelope holds the per-message data model created at MAIL FROM
// and destroyed when the owning SMTP session replies: the Envelope and
// its Recipient list, plus the shared byte sequences that make up the
// original and altered message.
package envelope

import (
	"crypto/rand"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/chunk"
)

// Status is a recipient/check delivery verdict.
type Status int

const (
	StatusAccept Status = iota
	StatusReject
	StatusTempfail
	StatusDiscard
)

func (s Status) String() string {
	switch s {
	case StatusAccept:
		return "accept"
	case StatusReject:
		return "reject"
	case StatusTempfail:
		return "tempfail"
	case StatusDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// Recipient is one RCPT TO entry, deduplicated by Suid on insertion.
type Recipient struct {
	Addr   string
	Suid   int64 // 0 means "no backend-assigned subject id"
	UID    string
	Status Status
	Reply  string // remote reply string, if any

	SpamStatus string // per-recipient spam status, if applicable

	// Aliased is set when this recipient's address was produced by alias
	// expansion rather than typed directly in RCPT TO. Such recipients
	// bypass greylisting (see DESIGN.md's Open Question decision) since
	// the greylisting key is meaningful only for the address the remote
	// peer actually addressed.
	Aliased bool

	// GRCheck / RCCheck are unique per recipient, owned by the recipient,
	// and live no longer than the envelope. They are opaque to this
	// package; callers (internal/greylist, internal/rc) stash their own
	// handle/result types here via the interface{} fields below.
	GRCheck interface{}
	RCCheck interface{}
}

// Envelope is the per-message record, created at MAIL FROM and destroyed
// when the session replies.
type Envelope struct {
	ID         string
	Sender     string
	Recipients []*Recipient

	AddedHeaders   *chunk.Streambuf // append-only, synthesised headers
	RetainedHeaders *chunk.Streambuf // original headers kept as-is
	Altered        *chunk.Streambuf // assembled just before delivery
	Body           *chunk.Streambuf // original body, shared chunks

	BodyOffset  int // byte offset of body start within the original message
	OriginalSize int64

	Spam        bool
	NoLocalRelay bool // set when any recipient was rewritten via aliases

	StartedAt time.Time

	// Populated only when the sending session authenticated.
	Authenticated bool
	Karma         int
	KarmaStatus   string
	BornDate      time.Time
}

// HeaderAndBodyBytes materialises the retained header block followed by
// the blank line and the current body as one contiguous slice, for
// callers (DKIM verification) that need the message as originally
// received rather than the Added/Retained split this type otherwise
// keeps separate.
func (e *Envelope) HeaderAndBodyBytes() []byte {
	headers := e.RetainedHeaders.Bytes()
	body := e.Body.Bytes()
	out := make([]byte, 0, len(headers)+2+len(body))
	out = append(out, headers...)
	out = append(out, '\r', '\n')
	out = append(out, body...)
	return out
}

var idCounter uint64

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewID returns an eight-character base-60-ish id derived from the
// current time, the process id, a per-process counter (substituting for
// "thread id" in a goroutine-based runtime) and two random draws.
func NewID() string {
	n := atomic.AddUint64(&idCounter, 1)
	seed := uint64(time.Now().UnixNano()) ^ uint64(os.Getpid())<<32 ^ n

	var rnd [2]byte
	_, _ = rand.Read(rnd[:])

	b := make([]byte, 8)
	mix := seed
	for i := 0; i < 6; i++ {
		b[i] = idAlphabet[mix%60]
		mix /= 60
	}
	b[6] = idAlphabet[int(rnd[0])%60]
	b[7] = idAlphabet[int(rnd[1])%60]
	return string(b)
}

// New creates a fresh Envelope for sender.
func New(sender string) *Envelope {
	return &Envelope{
		ID:              NewID(),
		Sender:          sender,
		AddedHeaders:    chunk.New(),
		RetainedHeaders: chunk.New(),
		Altered:         chunk.New(),
		Body:            chunk.New(),
		StartedAt:       time.Now(),
	}
}

// AddRecipient appends r unless a recipient with the same non-zero Suid
// is already present, per the "two recipients with the same suid are
// deduplicated" invariant. Returns the recipient that is now in the
// envelope (either r, or the pre-existing duplicate).
func (e *Envelope) AddRecipient(r *Recipient) *Recipient {
	if r.Suid != 0 {
		for _, existing := range e.Recipients {
			if existing.Suid == r.Suid {
				return existing
			}
		}
	}
	e.Recipients = append(e.Recipients, r)
	return r
}

// Accepted returns the recipients whose Status is StatusAccept.
func (e *Envelope) Accepted() []*Recipient {
	var out []*Recipient
	for _, r := range e.Recipients {
		if r.Status == StatusAccept {
			out = append(out, r)
		}
	}
	return out
}

// FinalReply formats the success reply line for a delivered message.
func FinalReply(localHost, envID, sessionID string) string {
	return fmt.Sprintf("250 2.0.0 Ok: queued on %s as %s-%s", localHost, sessionID, envID)
}

// ComposeAltered assembles AddedHeaders || RetainedHeaders || "\r\n" ||
// Body into Altered. Safe to call once, just before delivery.
func (e *Envelope) ComposeAltered() {
	e.Altered = chunk.New()
	for _, v := range []*chunk.Streambuf{e.AddedHeaders, e.RetainedHeaders} {
		it := v.Iterate()
		for b := it.Block(); b != nil; b = it.Block() {
			e.Altered.AppendLiteral(b)
			if !it.Next() {
				break
			}
		}
	}
	e.Altered.AppendLiteral([]byte("\r\n"))
	it := e.Body.Iterate()
	for b := it.Block(); b != nil; b = it.Block() {
		e.Altered.AppendLiteral(b)
		if !it.Next() {
			break
		}
	}
}
