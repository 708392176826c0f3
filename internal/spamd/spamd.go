// Package spamd implements the spam scorer (SO) client from spec
// §4.11/§6: a persistent, line-oriented TCP session, each round-trip
// terminated by a NUL byte, ported from the original so_client.cpp
// (async_read_until(..., "\0")) with the exact REJECT/SPAM/SPAMSTR
// parsing of so_client.cpp's parse_so_answer.
package spamd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/hostswitch"
)

// Verdict is the scorer's decision for a message, translated from
// so_client::spam_status_t.
type Verdict int

const (
	Ham Verdict = iota
	Spam
	Deliver // SO_DELIVERY: the X-Spam-Flag: DLVR marker was present
	Malicious
	Skip // SODAEMON 0: empty reply, just deliver
)

// Recipient is the minimal per-recipient data the SO protocol needs.
type Recipient struct {
	Addr string
	Suid int64
}

// Result is one Scan's outcome: the overall verdict and, when the
// scorer flagged individual recipients, each one's per-recipient status
// (so_client's set_personal_spam_status).
type Result struct {
	Verdict      Verdict
	PerRecipient map[int64]Verdict
}

// Client talks to a primary/secondary spam scorer pair via
// internal/hostswitch. Scan makes at most `try` attempts in total, each
// against whichever endpoint the switch selects at that moment, and
// reports every failed attempt to the switch. There is no separate
// attempt budget per endpoint: the secondary is used only after the
// switch has promoted it (a second fault within the fallback window).
type Client struct {
	sw           *hostswitch.Switch
	dialTimeout  time.Duration
	roundTimeout time.Duration
	try          int
}

func New(primary, secondary string, fallback, ret, dialTimeout, roundTimeout time.Duration, try int) *Client {
	return &Client{
		sw:           hostswitch.New(primary, secondary, fallback, ret),
		dialTimeout:  dialTimeout,
		roundTimeout: roundTimeout,
		try:          try,
	}
}

// Scan runs one full SO session: CONNECT/HELO/MAILFROM/RCPTTO*/DATA,
// streams body, and parses the final multi-line reply.
func (c *Client) Scan(ctx context.Context, remoteHost, remoteIP, helo, from string, size int64, rcpts []Recipient, body io.Reader) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.try; attempt++ {
		endpoint := c.sw.GetPrimary()
		res, err := c.scanOnce(ctx, endpoint, remoteHost, remoteIP, helo, from, size, rcpts, body)
		if err == nil {
			return res, nil
		}
		lastErr = err
		c.sw.Fault()
	}
	return nil, fmt.Errorf("spamd: exhausted retries: %w", lastErr)
}

func (c *Client) scanOnce(ctx context.Context, endpoint, remoteHost, remoteIP, helo, from string, size int64, rcpts []Recipient, body io.Reader) (*Result, error) {
	conn, err := net.DialTimeout("tcp", endpoint, c.dialTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	r := bufio.NewReader(conn)

	step := func(line string) (string, error) {
		conn.SetDeadline(time.Now().Add(c.roundTimeout))
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			return "", err
		}
		reply, err := r.ReadString(0)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(reply, "\x00\r\n"), nil
	}

	if _, err := step(fmt.Sprintf("CONNECT %s [%s]", remoteHost, remoteIP)); err != nil {
		return nil, err
	}
	if _, err := step("HELO " + helo); err != nil {
		return nil, err
	}
	if _, err := step(fmt.Sprintf("MAILFROM %s SIZE=%d", from, size)); err != nil {
		return nil, err
	}
	for _, rcpt := range rcpts {
		if _, err := step(fmt.Sprintf("RCPTTO %s ID=%d", rcpt.Addr, rcpt.Suid)); err != nil {
			return nil, err
		}
	}

	conn.SetDeadline(time.Now().Add(c.roundTimeout))
	firstChunk := size
	if firstChunk > 64*1024 {
		firstChunk = 64 * 1024
	}
	if _, err := conn.Write([]byte(fmt.Sprintf("DATA SIZE=%d\n", firstChunk))); err != nil {
		return nil, err
	}
	if _, err := io.Copy(conn, body); err != nil {
		return nil, err
	}

	finalReply, err := r.ReadString(0)
	if err != nil {
		return nil, err
	}

	return parseAnswer(strings.TrimRight(finalReply, "\x00")), nil
}

const spamFlagLine = "X-Spam-Flag: DLVR"
const soDaemonPrefix = "SODAEMON "
const rejectPrefix = "REJECT "
const spamPrefix = "SPAM "
const spamStrPrefix = "SPAMSTR "

// parseAnswer is a direct port of so_client.cpp's spam_status::parse_so_answer.
func parseAnswer(buffer string) *Result {
	res := &Result{Verdict: Ham, PerRecipient: make(map[int64]Verdict)}
	parseSpamStr := false

	for _, line := range strings.Split(buffer, "\n") {
		line = strings.TrimRight(line, "\r")

		switch {
		case parseSpamStr:
			if line == spamFlagLine {
				res.Verdict = Deliver
			}
		case strings.HasPrefix(line, soDaemonPrefix):
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, soDaemonPrefix))); err == nil && n == 0 {
				res.Verdict = Skip
				return res
			}
		case strings.HasPrefix(line, rejectPrefix):
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, rejectPrefix))); err == nil {
				if n == 1 || n == 2 {
					res.Verdict = Malicious
					return res
				}
			}
		case strings.HasPrefix(line, spamPrefix):
			fields := strings.FieldsFunc(strings.TrimPrefix(line, spamPrefix), func(r rune) bool {
				return r == ' ' || r == ','
			})
			if len(fields) == 0 {
				res.Verdict = Ham
				continue
			}
			verdict := Spam
			inverse := Ham
			if fields[0] == "0" {
				verdict = Ham
				inverse = Spam
			}
			res.Verdict = verdict
			// Remaining tokens are (suid, status) pairs naming recipients
			// whose personal status is the inverse of the overall verdict.
			pairs := fields[1:]
			for i := 0; i+1 < len(pairs); i += 2 {
				if suid, err := strconv.ParseInt(pairs[i], 10, 64); err == nil {
					res.PerRecipient[suid] = inverse
				}
			}
		case strings.HasPrefix(line, spamStrPrefix):
			parseSpamStr = true
		}
	}

	return res
}
