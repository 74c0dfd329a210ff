/*
Package api is the daemon's HTTP surface.

One server carries three audiences: clients querying and publishing
records, other daemons speaking the peer-sync soul contract, and
operators reading health and metrics. Everything is JSON over plain
HTTP; errors arrive as {"error": "..."} with the status code mapped
from the shared error kinds.

# Architecture

	                      ┌──────────────────────────────┐
	 clients              │           Server             │
	 GET  /records ─────▶ │  query.Engine ── storage     │
	 POST /records/       │  publish.Publisher           │
	      newRecord[/async│  jobs.Tracker                │
	 GET/DELETE /jobs ──▶ │                              │
	                      │                              │
	 peers                │                              │
	 GET  /get ─────────▶ │  storage (gun records only)  │
	 GET  /registry ────▶ │  sync.Indexer (ingest)       │
	 POST /put ─────────▶ │                              │
	                      │                              │
	 operators            │                              │
	 GET /health ───────▶ │  health.Registry             │
	 GET /metrics ──────▶ │  prometheus handler          │
	                      └──────────────────────────────┘

## Authentication

Auth is pluggable behind the Authenticator interface: given a bearer
token it returns Claims or nil, and nil always means anonymous rather
than an error. Reads work for everyone; anonymous callers simply never
see private records. Writes (publish, job cancel) demand a valid token
once an authenticator is configured. With no authenticator the daemon
runs in single-operator mode and writes are open, which is how the CLI
talks to a local daemon.

The shipped StaticAuthenticator resolves tokens from the
API_BEARER_TOKENS map; deployments fronted by a real identity service
implement Authenticator and hand it to Config.

## Peer Contract

The /get, /put, and /registry endpoints serve the same wire shapes the
peer-graph client consumes, so any two daemons can sync from each
other. Served data uses the transport encoding (arrays as JSON
strings). Three rules shape what peers see:

  - Private and sealed records are withheld as 404. The index holds
    plaintext and no sealed blob, so serving them would either leak
    content or lie about it.
  - Writes are checked against what the index already holds: a stale
    version acks ok:false "version conflict", a different
    owner_public_key acks ok:false "not the owner". Domain rejections
    are 200-with-ack so the putter learns the reason; only an
    unparseable body is an HTTP error.
  - Tombstones must be signed by the key that owns the soul's
    namespace (souls are <publisherKey>:...), verified against the
    tombstone:<soul> preimage.

# Usage

	srv := api.NewServer(api.Config{
		Store:         store,
		Query:         query.NewEngine(store),
		Publisher:     publisher,
		Jobs:          tracker,
		Indexer:       indexer,
		Health:        healthRegistry,
		Auth:          api.NewStaticAuthenticator(cfg.APIBearerTokens),
		Heights:       gatewayClient,
		QueryDefaults: query.Defaults{Limit: cfg.QueryDefaultLimit, MaxResolveDepth: cfg.QueryMaxResolveDepth},
		Version:       version,
	})
	if err := srv.Start(cfg.APIListenAddr); err != nil {
		return err
	}
	defer srv.Stop()

Start returns once the listener is bound; ":0" picks a free port in
tests and Addr reports what was chosen.

# Integration Points

  - pkg/query answers GET /records; the envelope adds indexing progress
    (cursor over last observed gateway height) and the caller's auth
    state.
  - pkg/publish runs POST /records/newRecord, sync and async; async
    returns 202 with a jobId and statusUrl.
  - pkg/jobs backs the /jobs endpoints. Job listing is scoped to the
    caller's DID address when auth is configured.
  - pkg/sync's Indexer is the ingest funnel for peer puts and
    tombstones, the same path block-walk and peer-sync records take.
  - pkg/gun defines the wire encoding (EncodeData/DecodeData) the peer
    endpoints emit and accept.
  - pkg/health and pkg/metrics serve the operator endpoints.

# Concurrency

Handlers are stateless; net/http runs them on its own goroutines and
every collaborator behind Config is safe for concurrent use. The one
piece of server state, the cached gateway height, sits behind the
server mutex and refreshes at most once per 30 seconds.

# Limitations

  - Peer puts are not signature-verified; only tombstones are. Trust
    between peers comes from the configured peer list, and the
    ownership and version checks bound what an imposter could change.
  - Sealed records pushed by peers index metadata-only and are never
    re-served; the daemon holds no key to open or re-seal them.
  - No TLS termination; deployments put the daemon behind a proxy.

# See Also

  - pkg/query - Parameter parsing and the query pipeline
  - pkg/publish - The publish pipeline behind newRecord
  - pkg/jobs - Async job tracking
  - pkg/gun - The client side of the peer contract
*/
package api
