// Package manager provides the bounded worker pools the session
// orchestrator dispatches concurrent check and delivery work onto,
// split into the three concern pools this domain actually has:
// DNS-backed checks (RBL/SPF/DKIM), the remaining per-message checks
// (greylisting, spam scorer, anti-virus), and downstream relay delivery.
package manager

import (
	"context"

	"github.com/Goofygiraffe06/ingress/internal/config"
	"github.com/Goofygiraffe06/ingress/internal/workerpool"
)

// WorkManager owns one pool per concern so a burst of slow relay
// deliveries can never starve DNS lookups or vice versa.
type WorkManager struct {
	dns    *workerpool.Pool
	checks *workerpool.Pool
	relay  *workerpool.Pool
}

// Option configures the WorkManager.
type Option func(*options)

type options struct {
	dnsWorkers    int
	checksWorkers int
	relayWorkers  int
	queueSize     int
}

func WithDNSWorkers(n int) Option    { return func(o *options) { o.dnsWorkers = n } }
func WithChecksWorkers(n int) Option { return func(o *options) { o.checksWorkers = n } }
func WithRelayWorkers(n int) Option  { return func(o *options) { o.relayWorkers = n } }
func WithQueueSize(n int) Option     { return func(o *options) { o.queueSize = n } }

// NewWorkManager constructs the manager with the given options (or defaults from config).
func NewWorkManager(opts ...Option) *WorkManager {
	o := &options{
		dnsWorkers:    config.DNSWorkerCount(),
		checksWorkers: config.ChecksWorkerCount(),
		relayWorkers:  config.RelayWorkerCount(),
		queueSize:     config.WorkerQueueSize(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &WorkManager{
		dns:    workerpool.New("dns", o.dnsWorkers, o.queueSize),
		checks: workerpool.New("checks", o.checksWorkers, o.queueSize),
		relay:  workerpool.New("relay", o.relayWorkers, o.queueSize),
	}
}

// Close shuts down all pools.
func (m *WorkManager) Close() {
	if m == nil {
		return
	}
	m.dns.Close()
	m.checks.Close()
	m.relay.Close()
}

// RunDNS submits fn to the DNS pool and blocks until it completes,
// bounding total concurrent outbound RBL/SPF/DKIM lookups across every
// session sharing this WorkManager rather than letting each session's
// fan-out spawn goroutines unbounded.
func (m *WorkManager) RunDNS(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, m.dns, fn)
}

// RunCheck submits fn to the per-message check pool (greylisting, spam
// scorer, anti-virus) and blocks until it completes.
func (m *WorkManager) RunCheck(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, m.checks, fn)
}

// RunRelay submits fn to the relay pool and blocks until it completes.
func (m *WorkManager) RunRelay(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, m.relay, fn)
}

func (m *WorkManager) run(ctx context.Context, pool *workerpool.Pool, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	if err := pool.Submit(func(context.Context) { done <- fn(ctx) }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
