// Package dnsclient implements an async DNS client: an A/PTR/MX/TXT
// resolver with packet-id collision avoidance and a per-attempt
// timeout/retry sweep, built directly on github.com/miekg/dns rather
// than on net.Resolver, so this package owns the id table and retry
// policy itself instead of the stdlib resolver's opaque internals.
package dnsclient

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/logging"
	"github.com/Goofygiraffe06/ingress/internal/waitreg"
	"github.com/miekg/dns"
)

// ErrTimedOut is returned once every retry attempt has timed out.
var ErrTimedOut = errors.New("dnsclient: timed out")

// Client is a single UDP socket directed at one resolver, with
// outstanding queries matched by 16-bit DNS id through internal/waitreg
// (this repo's generalised id-registry, also used by internal/rc).
type Client struct {
	conn    *net.UDPConn
	server  *net.UDPAddr
	pending *waitreg.Registry[*dns.Msg]

	attemptTimeout time.Duration
	retries        int

	closeOnce sync.Once
	done      chan struct{}
}

// New opens a UDP socket and starts the receive loop against server
// ("host:port"). attemptTimeout bounds a single try; retries is the
// number of additional attempts after the first.
func New(server string, attemptTimeout time.Duration, retries int) (*Client, error) {
	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:           conn,
		server:         addr,
		pending:        waitreg.New[*dns.Msg](),
		attemptTimeout: attemptTimeout,
		retries:        retries,
		done:           make(chan struct{}),
	}
	go c.recvLoop()
	return c, nil
}

// Query resolves name for qtype (dns.TypeA, dns.TypePTR, dns.TypeMX,
// dns.TypeTXT, ...), retrying up to c.retries times on a per-attempt
// timeout before giving up with ErrTimedOut.
func (c *Client) Query(ctx context.Context, qtype uint16, name string) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		msg.Id = c.newID()

		packed, err := msg.Pack()
		if err != nil {
			return nil, err
		}

		ch := c.pending.Register(uint64(msg.Id))
		if _, err := c.conn.WriteToUDP(packed, c.server); err != nil {
			c.pending.Delete(uint64(msg.Id))
			return nil, err
		}

		resp, err := c.awaitOne(ctx, ch)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.pending.Delete(uint64(msg.Id))
		logging.DebugLog("dnsclient: attempt %d for %s %d failed: %v", attempt, name, qtype, err)
	}
	if lastErr == nil {
		lastErr = ErrTimedOut
	}
	return nil, lastErr
}

func (c *Client) awaitOne(ctx context.Context, ch <-chan *dns.Msg) (*dns.Msg, error) {
	t := time.NewTimer(c.attemptTimeout)
	defer t.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-t.C:
		return nil, ErrTimedOut
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, errClosed
	}
}

var errClosed = errors.New("dnsclient: client closed")

func (c *Client) recvLoop() {
	buf := make([]byte, 4096)
	for {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				continue
			}
		}

		msg := new(dns.Msg)
		if err := msg.Unpack(buf[:n]); err != nil {
			logging.DebugLog("dnsclient: dropping unparsable reply: %v", err)
			continue
		}
		c.pending.Notify(uint64(msg.Id), msg)
	}
}

// newID picks a 16-bit query id not already outstanding, avoiding a
// collision with an in-flight query on the same wire id.
func (c *Client) newID() uint16 {
	for i := 0; i < 16; i++ {
		var b [2]byte
		_, _ = rand.Read(b[:])
		id := binary.BigEndian.Uint16(b[:])
		if !c.pending.Has(uint64(id)) {
			return id
		}
	}
	// Every draw so far collided with an outstanding query: yield so
	// in-flight queries can complete, then keep drawing until a free id
	// turns up.
	for {
		runtime.Gosched()
		var b [2]byte
		_, _ = rand.Read(b[:])
		id := binary.BigEndian.Uint16(b[:])
		if !c.pending.Has(uint64(id)) {
			return id
		}
	}
}

// Stop closes the client; idempotent and safe to call concurrently.
func (c *Client) Stop() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
		c.pending.DeleteAll()
	})
}

// LookupA resolves name's A records.
func (c *Client) LookupA(ctx context.Context, name string) ([]net.IP, error) {
	resp, err := c.Query(ctx, dns.TypeA, name)
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A)
		}
	}
	return ips, nil
}

// LookupPTR resolves addr's reverse-DNS PTR names.
func (c *Client) LookupPTR(ctx context.Context, addr string) ([]string, error) {
	rev, err := dns.ReverseAddr(addr)
	if err != nil {
		return nil, err
	}
	resp, err := c.Query(ctx, dns.TypePTR, rev)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			names = append(names, ptr.Ptr)
		}
	}
	return names, nil
}

// LookupMX resolves name's MX records.
func (c *Client) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	resp, err := c.Query(ctx, dns.TypeMX, name)
	if err != nil {
		return nil, err
	}
	var mxs []*net.MX
	for _, rr := range resp.Answer {
		if mx, ok := rr.(*dns.MX); ok {
			mxs = append(mxs, &net.MX{Host: mx.Mx, Pref: mx.Preference})
		}
	}
	return mxs, nil
}

// LookupTXT resolves name's TXT records, joining each record's segments.
func (c *Client) LookupTXT(ctx context.Context, name string) ([]string, error) {
	resp, err := c.Query(ctx, dns.TypeTXT, name)
	if err != nil {
		return nil, err
	}
	var txts []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			for _, s := range txt.Txt {
				txts = append(txts, s)
			}
		}
	}
	return txts, nil
}
