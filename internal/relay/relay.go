// Package relay implements the downstream SMTP/LMTP client: deliver an
// accepted envelope to a configured relay endpoint, in LMTP mode when
// talking to a local delivery host or plain SMTP mode against a
// fallback relay, built on github.com/emersion/go-smtp's Client side
// (internal/smtpserver uses the same package's Backend/Session side)
// with independent connect/command/data timeouts and primary/secondary
// internal/hostswitch failover.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/hostswitch"
	"github.com/emersion/go-smtp"
)

// Mode selects the wire dialect spoken to the endpoint.
type Mode int

const (
	ModeSMTP Mode = iota
	ModeLMTP
)

// RecipientResult is one recipient's delivery outcome, copied from the
// single SMTP post-DATA reply in ModeSMTP or read individually in
// ModeLMTP.
type RecipientResult struct {
	Addr    string
	Err     error
	Pending bool
}

// Result is one delivery attempt's outcome across every recipient
// submitted.
type Result struct {
	Recipients []RecipientResult
}

// Client delivers to one relay endpoint pair via internal/hostswitch.
type Client struct {
	sw             *hostswitch.Switch
	mode           Mode
	localName      string
	connectTimeout time.Duration
	cmdTimeout     time.Duration
	dataTimeout    time.Duration
}

func New(mode Mode, primary, secondary, localName string, fallback, ret, connectTimeout, cmdTimeout, dataTimeout time.Duration) *Client {
	return &Client{
		sw:             hostswitch.New(primary, secondary, fallback, ret),
		mode:           mode,
		localName:      localName,
		connectTimeout: connectTimeout,
		cmdTimeout:     cmdTimeout,
		dataTimeout:    dataTimeout,
	}
}

// Deliver opens a connection, greets, submits MAIL FROM and every
// RCPT TO, streams body, and collects per-recipient results. A
// connection-level error (dial/greet/MAIL) tempfails every recipient
// uniformly and is returned as err; once in the RCPT/DATA phase,
// individual recipient failures are reported through Result and err is
// nil.
func (c *Client) Deliver(ctx context.Context, from string, rcpts []string, body io.Reader, size int64) (*Result, error) {
	endpoint := c.sw.GetPrimary()

	conn, err := net.DialTimeout("tcp", endpoint, c.connectTimeout)
	if err != nil {
		c.sw.Fault()
		return nil, fmt.Errorf("relay: dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.cmdTimeout))

	var client *smtp.Client
	if c.mode == ModeLMTP {
		client, err = smtp.NewClientLMTP(conn)
	} else {
		client, err = smtp.NewClient(conn)
	}
	if err != nil {
		c.sw.Fault()
		return nil, fmt.Errorf("relay: greet %s: %w", endpoint, err)
	}
	defer client.Close()

	if err := client.Hello(c.localName); err != nil {
		c.sw.Fault()
		return nil, fmt.Errorf("relay: hello: %w", err)
	}

	if err := client.Mail(from, &smtp.MailOptions{Size: int(size)}); err != nil {
		c.sw.Fault()
		return nil, fmt.Errorf("relay: mail from: %w", err)
	}

	res := &Result{Recipients: make([]RecipientResult, 0, len(rcpts))}
	accepted := make([]string, 0, len(rcpts))
	for _, rcpt := range rcpts {
		if err := client.Rcpt(rcpt, nil); err != nil {
			res.Recipients = append(res.Recipients, RecipientResult{Addr: rcpt, Err: err})
			continue
		}
		accepted = append(accepted, rcpt)
	}
	if len(accepted) == 0 {
		return res, nil
	}

	conn.SetDeadline(time.Now().Add(c.dataTimeout))

	if c.mode == ModeLMTP {
		statuses := make(map[string]error, len(accepted))
		w, err := client.LMTPData(func(rcptTo string, err error) {
			statuses[rcptTo] = err
		})
		if err != nil {
			return nil, fmt.Errorf("relay: lmtp data: %w", err)
		}
		if _, err := io.Copy(w, body); err != nil {
			w.Close()
			return nil, fmt.Errorf("relay: write body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("relay: close data: %w", err)
		}
		for _, rcpt := range accepted {
			res.Recipients = append(res.Recipients, RecipientResult{Addr: rcpt, Err: statuses[rcpt]})
		}
		return res, nil
	}

	w, err := client.Data()
	if err != nil {
		for _, rcpt := range accepted {
			res.Recipients = append(res.Recipients, RecipientResult{Addr: rcpt, Err: err})
		}
		return res, nil
	}
	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return nil, fmt.Errorf("relay: write body: %w", err)
	}
	dataErr := w.Close()
	for _, rcpt := range accepted {
		res.Recipients = append(res.Recipients, RecipientResult{Addr: rcpt, Err: dataErr})
	}
	return res, nil
}

// BufferBody reads r fully so its bytes can be replayed across two
// Deliver calls: local delivery first, then whatever recipients remain
// go to the fallback SMTP relay.
func BufferBody(r io.Reader) (*bytes.Reader, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}
