package httppool

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

// Default per-host rate limit applied until SetHostLimit overrides it.
const (
	defaultHostRate  = 20
	defaultHostBurst = 40
)

// Pool owns the named long-lived HTTP clients used by the sync loops and
// adapters. Ad-hoc ephemeral clients are forbidden there; constructors
// take a *Pool instead. Each named client rides a dedicated transport
// with bounded per-host connections, recycled on a fixed interval to
// bound idle buffer growth.
type Pool struct {
	recycleInterval time.Duration

	mu       sync.RWMutex
	clients  map[string]*managedClient
	limiters map[string]*rate.Limiter

	buffers *BufferPool
	stopCh  chan struct{}
	once    sync.Once
}

type managedClient struct {
	name      string
	client    *http.Client
	transport *recyclableTransport
}

// recyclableTransport lets the pool swap the underlying transport while
// in-flight requests finish on the old one.
type recyclableTransport struct {
	mu sync.RWMutex
	rt *http.Transport
}

func (t *recyclableTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.RLock()
	rt := t.rt
	t.mu.RUnlock()
	return rt.RoundTrip(req)
}

func (t *recyclableTransport) recycle() {
	t.mu.Lock()
	old := t.rt
	t.rt = newTransport()
	t.mu.Unlock()
	old.CloseIdleConnections()
}

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxConnsPerHost:       8,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// NewPool creates a pool whose clients are recycled every
// recycleInterval once Start is called.
func NewPool(recycleInterval time.Duration) *Pool {
	if recycleInterval <= 0 {
		recycleInterval = 30 * time.Minute
	}
	return &Pool{
		recycleInterval: recycleInterval,
		clients:         make(map[string]*managedClient),
		limiters:        make(map[string]*rate.Limiter),
		buffers:         NewBufferPool(),
		stopCh:          make(chan struct{}),
	}
}

// Client returns the named client, creating it on first use. The same
// name always returns the same client, so connection reuse is shared by
// everything holding that name.
func (p *Pool) Client(name string) *http.Client {
	p.mu.RLock()
	mc, ok := p.clients[name]
	p.mu.RUnlock()
	if ok {
		return mc.client
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if mc, ok = p.clients[name]; ok {
		return mc.client
	}

	transport := &recyclableTransport{rt: newTransport()}
	mc = &managedClient{
		name:      name,
		client:    &http.Client{Transport: transport},
		transport: transport,
	}
	p.clients[name] = mc
	log.Logger.Debug().Str("component", "httppool").Str("client", name).Msg("created named client")
	return mc.client
}

// Recycle swaps the named client's transport and closes idle
// connections on the old one.
func (p *Pool) Recycle(name string) {
	p.mu.RLock()
	mc, ok := p.clients[name]
	p.mu.RUnlock()
	if !ok {
		return
	}
	mc.transport.recycle()
	metrics.HTTPClientRecycles.WithLabelValues(name).Inc()
	log.Logger.Debug().Str("component", "httppool").Str("client", name).Msg("recycled client transport")
}

// RecycleAll recycles every named client.
func (p *Pool) RecycleAll() {
	p.mu.RLock()
	names := make([]string, 0, len(p.clients))
	for name := range p.clients {
		names = append(names, name)
	}
	p.mu.RUnlock()
	for _, name := range names {
		p.Recycle(name)
	}
}

// Start begins the periodic recycle loop.
func (p *Pool) Start() {
	go p.run()
}

func (p *Pool) run() {
	ticker := time.NewTicker(p.recycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.RecycleAll()
		}
	}
}

// Stop halts the recycle loop and closes idle connections.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.stopCh) })
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, mc := range p.clients {
		mc.client.CloseIdleConnections()
	}
}

// SetHostLimit overrides the request rate for one host.
func (p *Pool) SetHostLimit(host string, perSecond float64, burst int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiters[host] = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Wait blocks until the host behind rawURL may be called again, or ctx
// expires. Every outbound call in the sync loops goes through here.
func (p *Pool) Wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("rate limit: parse %q: %w", rawURL, err)
	}
	host := u.Host
	if host == "" {
		host = rawURL
	}

	p.mu.Lock()
	limiter, ok := p.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(defaultHostRate), defaultHostBurst)
		p.limiters[host] = limiter
	}
	p.mu.Unlock()

	return limiter.Wait(ctx)
}

// Buffers exposes the shared response buffer pool.
func (p *Pool) Buffers() *BufferPool {
	return p.buffers
}
