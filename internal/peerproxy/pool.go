package peerproxy

import (
	"sync"
	"time"

	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/logger"
)

// entry is a ref-counted Proxy, grounded on internal/client/handler.go's
// Pool/AddRef/Release shape — there it ref-counted live grpc.ClientConns;
// here there is no persistent connection to keep open, so the ref count
// instead governs when a Proxy (and its cached logger context) is safe
// to evict from the registry.
type entry struct {
	proxy    *Proxy
	refCount int
}

// Pool caches one Proxy per remote address so callers don't re-derive a
// node-scoped logger on every RPC.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
	lgr     logger.Logger
}

// NewPool builds an empty Pool using timeout as the default per-call RPC
// timeout for every Proxy it creates.
func NewPool(timeout time.Duration, lgr logger.Logger) *Pool {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Pool{entries: make(map[string]*entry), timeout: timeout, lgr: lgr}
}

// AddRef returns the pooled Proxy for ref, creating it on first use, and
// increments its reference count. Callers must Release when done.
func (p *Pool) AddRef(ref domain.NodeRef) *Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr := ref.ChordAddr()
	e, ok := p.entries[addr]
	if !ok {
		e = &entry{proxy: New(ref, p.timeout, p.lgr)}
		p.entries[addr] = e
	}
	e.refCount++
	return e.proxy
}

// Release decrements the reference count for ref's address, evicting the
// cached Proxy once no caller holds it.
func (p *Pool) Release(ref domain.NodeRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr := ref.ChordAddr()
	e, ok := p.entries[addr]
	if !ok {
		return
	}
	e.refCount--
	if e.refCount <= 0 {
		delete(p.entries, addr)
	}
}

// DialEphemeral returns a one-off Proxy not tracked by the pool, for a
// single call against an address with no lasting relationship (e.g. a
// discovery seed probe).
func (p *Pool) DialEphemeral(ref domain.NodeRef) *Proxy {
	return New(ref, p.timeout, p.lgr)
}

// Len reports the number of distinct addresses currently pooled, mainly
// useful for tests and diagnostics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
