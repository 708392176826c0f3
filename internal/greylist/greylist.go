// Package greylist implements the greylisting client: a keyed
// probe+mark protocol layered on internal/rc. A probe's GET
// reply age is compared against a configured window; a mark is an ADD
// that increments the total (and, on acceptance, a "successful")
// counter.
package greylist

import (
	"context"
	"errors"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/rc"
)

// Verdict is the probe outcome.
type Verdict int

const (
	TooEarly Verdict = iota // age below window_begin: tempfail, retry later
	TooLate                 // age above window_end: treat as a fresh attempt
	OK                      // inside the window: accept
)

// Namespace is the RC key namespace greylisting uses, so its keys never
// collide with another RC consumer's.
const Namespace = "gr"

const (
	counterTotal      = 0
	counterSuccessful = 1
)

var ErrProbeFailed = errors.New("greylist: probe failed")

// Client probes and marks greylisting keys via an rc.Client.
type Client struct {
	rc           *rc.Client
	windowBegin  time.Duration
	windowEnd    time.Duration
	ttl          time.Duration
	probeTimeout time.Duration
}

// NewClient wraps rcClient with the greylisting window and TTL.
func NewClient(rcClient *rc.Client, windowBegin, windowEnd, ttl, probeTimeout time.Duration) *Client {
	return &Client{rc: rcClient, windowBegin: windowBegin, windowEnd: windowEnd, ttl: ttl, probeTimeout: probeTimeout}
}

// Probe issues a GET for key's hash and classifies the reply's age
// against [windowBegin, windowEnd]. hits is the total-counter value
// already recorded for this key (0 on a never-seen key), used by the
// orchestrator to mark the envelope "spam" when hits > 0 yet the
// verdict is OK.
func (c *Client) Probe(ctx context.Context, k Key, f Fields) (verdict Verdict, hits int32, err error) {
	resp, err := c.rc.Start(ctx, &rc.Request{
		Cmd:       rc.Get,
		Namespace: Namespace,
		Key:       k.Hash(f),
		TTL:       c.ttl,
	}, c.probeTimeout)
	if err != nil {
		return 0, 0, err
	}

	age := time.Duration(resp.AgeSeconds) * time.Second
	hits = counterValue(resp.Counters, counterTotal)

	switch {
	case age < c.windowBegin:
		return TooEarly, hits, nil
	case age > c.windowEnd:
		return TooLate, hits, nil
	default:
		return OK, hits, nil
	}
}

// Mark issues an ADD for key's hash, incrementing the total counter and,
// when accepted is true, the successful counter.
func (c *Client) Mark(ctx context.Context, k Key, f Fields, accepted bool) error {
	params := []int32{1}
	if accepted {
		params = append(params, 1)
	}
	_, err := c.rc.Start(ctx, &rc.Request{
		Cmd:       rc.Add,
		Namespace: Namespace,
		Key:       k.Hash(f),
		TTL:       c.ttl,
		Params:    params,
	}, c.probeTimeout)
	return err
}

func counterValue(counters []int32, idx int) int32 {
	if idx < len(counters) {
		return counters[idx]
	}
	return 0
}
