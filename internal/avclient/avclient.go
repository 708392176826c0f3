// Package avclient implements the anti-virus scanner client: a binary
// frame-oriented TCP session over a primary/secondary internal/hostswitch
// pair. The client's shape (persistent socket, status bitmask,
// retry-then-failover) follows the same pattern as internal/spamd and
// foxcpp-maddy's internal/check/milter (header-then-payload binary
// scanning session over TCP).
package avclient

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/hostswitch"
)

const cmdScan uint32 = 0x0001

// Status bits, matching the scanner daemon's wire protocol.
const (
	ReadErr       uint32 = 0x0001
	WriteErr      uint32 = 0x0002
	NoMem         uint32 = 0x0004
	CRCErr        uint32 = 0x0008
	ReadSocket    uint32 = 0x0010
	KnownVirus    uint32 = 0x0020
	UnknownVirus  uint32 = 0x0040
	Modification  uint32 = 0x0080
	Cured         uint32 = 0x0100
	Timeout       uint32 = 0x0200
	Symlink       uint32 = 0x0400
	NoRegFile     uint32 = 0x0800
	Skipped       uint32 = 0x1000
	TooBig        uint32 = 0x2000
	TooCompressed uint32 = 0x4000
	BadCall       uint32 = 0x8000
	IsClean       uint32 = 0x00100000
)

// Result wraps the raw status word with the convenience predicates the
// orchestrator needs to decide reject/discard/tempfail.
type Result struct {
	Status uint32
}

func (r Result) Clean() bool     { return r.Status&IsClean != 0 }
func (r Result) Infected() bool   { return r.Status&KnownVirus != 0 }
func (r Result) Suspicious() bool { return r.Status&UnknownVirus != 0 }
func (r Result) Skipped() bool    { return r.Status&Skipped != 0 }
func (r Result) TooBig() bool     { return r.Status&TooBig != 0 }

// Abnormal reports any bit other than IsClean/KnownVirus/UnknownVirus/
// Skipped/TooBig, which the orchestrator treats as a scan failure
// (tempfail) rather than a verdict.
func (r Result) Abnormal() bool {
	known := IsClean | KnownVirus | UnknownVirus | Skipped | TooBig
	return r.Status&^known != 0
}

// Client scans message bodies against a primary/secondary AV daemon
// pair via internal/hostswitch, with the same retry shape internal/spamd
// uses: Scan makes at most `try` attempts in total, each against
// whichever endpoint the switch selects at that moment, and reports
// every failed attempt to the switch. There is no separate attempt
// budget per endpoint: the secondary is used only after the switch has
// promoted it (a second fault within the fallback window).
type Client struct {
	sw          *hostswitch.Switch
	dialTimeout time.Duration
	dataTimeout time.Duration
	try         int
}

func New(primary, secondary string, fallback, ret, dialTimeout, dataTimeout time.Duration, try int) *Client {
	return &Client{
		sw:          hostswitch.New(primary, secondary, fallback, ret),
		dialTimeout: dialTimeout,
		dataTimeout: dataTimeout,
		try:         try,
	}
}

// Scan streams size bytes from body through one scan request and
// returns the daemon's status word.
func (c *Client) Scan(ctx context.Context, size uint32, body io.Reader) (Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.try; attempt++ {
		endpoint := c.sw.GetPrimary()
		res, err := c.scanOnce(ctx, endpoint, size, body)
		if err == nil {
			return res, nil
		}
		lastErr = err
		c.sw.Fault()
	}
	return Result{}, fmt.Errorf("avclient: exhausted retries: %w", lastErr)
}

func (c *Client) scanOnce(ctx context.Context, endpoint string, size uint32, body io.Reader) (Result, error) {
	conn, err := net.DialTimeout("tcp", endpoint, c.dialTimeout)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.dataTimeout))

	var header [16]byte
	binary.BigEndian.PutUint32(header[0:4], cmdScan)
	binary.BigEndian.PutUint32(header[4:8], 0)
	binary.BigEndian.PutUint32(header[8:12], 0)
	binary.BigEndian.PutUint32(header[12:16], size)

	if _, err := conn.Write(header[:]); err != nil {
		return Result{}, err
	}
	if _, err := io.CopyN(conn, body, int64(size)); err != nil {
		return Result{}, err
	}

	var reply [4]byte
	if _, err := io.ReadFull(conn, reply[:]); err != nil {
		return Result{}, err
	}

	return Result{Status: binary.BigEndian.Uint32(reply[:])}, nil
}
