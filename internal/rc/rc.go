// Package rc implements the rate-control (RC) client: a UDP
// client-server exchange carrying a protobuf-framed request/reply,
// id-matched, with GET (probe) and ADD (mark) commands. Greylisting
// (internal/greylist) is layered directly on top of this client.
package rc

import (
	"context"
	"errors"
	"hash/fnv"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/hostswitch"
	"github.com/Goofygiraffe06/ingress/internal/logging"
	"github.com/Goofygiraffe06/ingress/internal/waitreg"
)

// Command is the RC verb: GET probes a key, ADD marks/increments it.
type Command uint64

const (
	Get Command = iota
	Add
)

// maxDatagram is the single-packet buffer every request/reply encodes
// into; RC datagrams never need to exceed this.
const maxDatagram = 512

var (
	ErrBadResponseID = errors.New("rc: bad_response_id")
	ErrTimedOut      = errors.New("rc: timed_out")
)

// Request is one RC call: an id, a command, a namespaced key, a TTL, a
// free-form comment and an array of integer parameters.
type Request struct {
	ID        uint64
	Cmd       Command
	Namespace string
	Key       string
	TTL       time.Duration
	Comment   string
	Params    []int32
}

// Response mirrors the request id and carries the age (seconds since
// first mark) plus a small array of counters.
type Response struct {
	ID         uint64
	AgeSeconds int64
	Counters   []int32
}

// Client is a single UDP socket shared by every in-flight request,
// matched by id through internal/waitreg, with primary/secondary
// failover through internal/hostswitch.
type Client struct {
	conn    *net.UDPConn
	sw      *hostswitch.Switch
	pending *waitreg.Registry[*Response]
	counter uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient opens a UDP socket and starts the receive loop. primary and
// secondary are "host:port" endpoints switched via internal/hostswitch.
func NewClient(primary, secondary string, fallback, ret time.Duration) (*Client, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:    conn,
		sw:      hostswitch.New(primary, secondary, fallback, ret),
		pending: waitreg.New[*Response](),
		done:    make(chan struct{}),
	}
	go c.recvLoop()
	return c, nil
}

// Start encodes req, sends it to the currently active endpoint and waits
// up to timeout for a matching reply.
func (c *Client) Start(ctx context.Context, req *Request, timeout time.Duration) (*Response, error) {
	if req.ID == 0 {
		req.ID = c.nextID(req.Key)
	}

	endpoint := c.sw.GetPrimary()
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return nil, err
	}

	buf := encodeRequest(req)
	if len(buf) > maxDatagram {
		buf = buf[:maxDatagram]
	}

	ch := c.pending.Register(req.ID)
	if _, err := c.conn.WriteToUDP(buf, addr); err != nil {
		c.pending.Delete(req.ID)
		c.sw.Fault()
		return nil, err
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case resp := <-ch:
		if resp.ID != req.ID {
			return nil, ErrBadResponseID
		}
		return resp, nil
	case <-t.C:
		c.pending.Delete(req.ID)
		c.sw.Fault()
		return nil, ErrTimedOut
	case <-ctx.Done():
		c.pending.Delete(req.ID)
		return nil, ctx.Err()
	case <-c.done:
		return nil, errClosed
	}
}

var errClosed = errors.New("rc: client closed")

func (c *Client) recvLoop() {
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				logging.WarnLog("rc: read failed: %v", err)
				continue
			}
		}

		resp, err := decodeResponse(buf[:n])
		if err != nil {
			logging.DebugLog("rc: dropping malformed datagram: %v", err)
			continue
		}
		c.pending.Notify(resp.ID, resp)
	}
}

// nextID derives a request id from a hash of the key mixed with the
// current time, pid and a per-process counter — Go's substitute for the
// original "time, pid, thread id" mix (no thread identity in Go; an
// atomic counter plays that role, matching envelope.NewID's approach).
func (c *Client) nextID(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	mix := h.Sum64()
	mix ^= uint64(time.Now().UnixNano())
	mix ^= uint64(os.Getpid())
	mix ^= atomic.AddUint64(&c.counter, 1)
	if mix == 0 {
		mix = 1
	}
	return mix
}

// Stop closes the client; idempotent and safe to call from any
// goroutine.
func (c *Client) Stop() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
		c.pending.DeleteAll()
	})
}
