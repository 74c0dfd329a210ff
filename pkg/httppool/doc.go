/*
Package httppool manages the outbound HTTP clients Burrow uses to talk to
Arweave gateways, peer relays, and external mirrors.

The httppool package keeps one named *http.Client per upstream, recycles
their transports on a fixed interval so long-lived daemons do not accumulate
stale connections, rate-limits requests per host, and pools response buffers
so sync passes over large blocks do not thrash the allocator.

# Architecture

	┌──────────────── OUTBOUND HTTP GOVERNANCE ────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐           │
	│  │                  Pool                      │           │
	│  │  - Named clients ("gateway", "peers", ...) │           │
	│  │  - Per-host rate limiters                  │           │
	│  │  - Shared response buffer pool             │           │
	│  │  - Periodic transport recycling            │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │           Request Flow                     │           │
	│  │                                             │           │
	│  │  1. Caller: pool.Wait(ctx, url)            │           │
	│  │  2. Limiter admits (or ctx expires)        │           │
	│  │  3. pool.Client("gateway").Do(req)         │           │
	│  │  4. pool.Buffers().ReadResponse(resp)      │           │
	│  │  5. Caller decodes, then buf.Release()     │           │
	│  └──────────────────┬─────────────────────────┐           │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │        Transport Recycling                 │           │
	│  │                                             │           │
	│  │  ticker (default 30m)                      │           │
	│  │    └─> for each client:                    │           │
	│  │          swap in fresh *http.Transport     │           │
	│  │          CloseIdleConnections on old       │           │
	│  │                                             │           │
	│  │  In-flight requests finish on the old      │           │
	│  │  transport; the *http.Client pointer       │           │
	│  │  held by callers never changes.            │           │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────────┘

# Core Components

Pool:
  - Client(name) returns a stable *http.Client for an upstream role
  - Recycle(name) / RecycleAll() swap transports without invalidating clients
  - Start()/Stop() run the recycle ticker alongside the daemon lifecycle
  - Wait(ctx, url) blocks on the per-host rate limiter

recyclableTransport:
  - Wraps *http.Transport behind an RWMutex
  - RoundTrip reads the current transport under RLock
  - recycle() installs a replacement and closes idle conns on the old one

BufferPool:
  - sync.Pool of *bytes.Buffer shared by all upstream readers
  - ReadResponse drains and closes the body, capped at MaxResponseBytes
  - Buffer.Release() returns storage to the pool; using a released buffer
    returns nil bytes rather than corrupting a reused buffer

# Usage

	pool := httppool.NewPool(30 * time.Minute)
	pool.Start()
	defer pool.Stop()

	if err := pool.Wait(ctx, txURL); err != nil {
		return err
	}
	resp, err := pool.Client("gateway").Do(req)
	if err != nil {
		return err
	}
	buf, err := pool.Buffers().ReadResponse(resp)
	if err != nil {
		return err
	}
	defer buf.Release()
	// decode buf.Bytes() before Release

# Design Patterns

Named Clients: upstream roles ("gateway", "peers", "mirror") each get their
own client so one slow upstream cannot exhaust another's connection budget.
MaxConnsPerHost and idle limits are set per transport, not globally.

Swap, Don't Rebuild: callers hold *http.Client pointers for the process
lifetime. Recycling replaces the transport underneath them, so there is no
window where a caller sees a closed client.

Caller-Owned Buffers: ReadResponse hands ownership of the buffer to the
caller. The caller must Release() after decoding. Holding buffer bytes past
Release is a bug; Release nils the backing reference to surface it early.

# Integration Points

  - pkg/arweave: gateway height, transaction listing, data fetch
  - pkg/gun: relay get/put and registry lookups
  - pkg/publish: mirror forwarding
  - pkg/metrics: HTTPClientRecycles, BufferPoolGets, BufferPoolPuts

# Performance

Responses are read through io.LimitReader at MaxResponseBytes (32 MiB) so a
misbehaving upstream cannot balloon memory. Default per-host rate is 20
requests/second with a burst of 40; hosts with stricter published limits get
explicit SetHostLimit calls during daemon wiring.

# Troubleshooting

Requests hang before sending: the per-host limiter is saturated. Check
SetHostLimit values against the upstream's real capacity, and confirm the
context passed to Wait carries a deadline.

Memory grows during long syncs: a caller is not releasing buffers. Every
ReadResponse must be paired with Release, including on decode-error paths.

# See Also

  - pkg/arweave: primary consumer for blockchain reads
  - pkg/gun: primary consumer for peer reads and writes
  - pkg/sync: drives the request volume this package governs
*/
package httppool
