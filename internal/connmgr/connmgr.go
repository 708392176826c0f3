// Package connmgr implements the connection manager: a process-wide
// registry enforcing a global connection cap and a per-IP
// concurrent-connection cap, with idempotent Stop. The
// live counters use the same mutex-guarded map plus background sweep
// goroutine idiom as a TTL cache, generalised from a string cache keyed
// by arbitrary key to a live counter keyed by client IP, with a
// sync.Once-guarded shutdown lifecycle.
package connmgr

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/logging"
)

var (
	ErrGlobalLimit = errors.New("connmgr: global connection limit reached")
	ErrPerIPLimit  = errors.New("connmgr: per-IP connection limit reached")
)

// ipEntry tracks one client IP's live connection count and the last time
// it changed, so idle entries (count back to zero) can be swept.
type ipEntry struct {
	count      int
	lastActive time.Time
}

// Manager enforces the connection admission policy and owns the
// process-wide connection registry behind a single mutex.
type Manager struct {
	globalLimit int
	perIPLimit  int

	mu        sync.Mutex
	perIP     map[string]*ipEntry
	global    int64
	closed    chan struct{}
	closeOnce sync.Once
}

// New returns a Manager enforcing globalLimit total connections and
// perIPLimit connections from any single client IP (0 means unlimited
// for either). A background sweep drops idle per-IP entries every
// minute, matching store/ephemeral's cleanup cadence.
func New(globalLimit, perIPLimit int) *Manager {
	m := &Manager{
		globalLimit: globalLimit,
		perIPLimit:  perIPLimit,
		perIP:       make(map[string]*ipEntry),
		closed:      make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Conn is a registered connection's handle; Stop is idempotent.
type Conn struct {
	mgr       *Manager
	ip        string
	closeOnce sync.Once
}

// Start registers a new connection from ip, enforcing the global and
// per-IP caps. The returned Conn must have Stop called exactly once
// when the connection ends.
func (m *Manager) Start(ip string) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.globalLimit > 0 && m.global >= int64(m.globalLimit) {
		return nil, ErrGlobalLimit
	}
	entry := m.perIP[ip]
	if entry == nil {
		entry = &ipEntry{}
		m.perIP[ip] = entry
	}
	if m.perIPLimit > 0 && entry.count >= m.perIPLimit {
		return nil, ErrPerIPLimit
	}

	entry.count++
	entry.lastActive = time.Now()
	m.global++

	return &Conn{mgr: m, ip: ip}, nil
}

// Stop deregisters c; safe to call more than once.
func (c *Conn) Stop() {
	c.closeOnce.Do(func() {
		c.mgr.stop(c.ip)
	})
}

func (m *Manager) stop(ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry := m.perIP[ip]; entry != nil {
		entry.count--
		entry.lastActive = time.Now()
		if entry.count <= 0 {
			entry.count = 0
		}
	}
	atomic.AddInt64(&m.global, -1)
}

// StopAll forces the registry back to empty, for graceful shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perIP = make(map[string]*ipEntry)
	m.global = 0
}

// Close stops the background sweep. Idempotent.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}

func (m *Manager) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.closed:
			return
		case <-ticker.C:
			m.mu.Lock()
			removed := 0
			for ip, entry := range m.perIP {
				if entry.count == 0 && time.Since(entry.lastActive) > time.Minute {
					delete(m.perIP, ip)
					removed++
				}
			}
			m.mu.Unlock()
			if removed > 0 {
				logging.DebugLog("connmgr: swept %d idle per-IP entries", removed)
			}
		}
	}
}

// GlobalCount reports the current global connection count, for metrics.
func (m *Manager) GlobalCount() int64 {
	return atomic.LoadInt64(&m.global)
}
