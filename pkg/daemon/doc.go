// Package daemon assembles and supervises the full burrow process:
// one index store, one publishing identity, two storage adapters, two
// sync loops, the job tracker, the metrics collector, periodic health
// sweeps, and the HTTP API, all brought up and torn down in
// dependency order.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                            Daemon                             │
//	│                                                               │
//	│  config.Config ──► New                                        │
//	│                     │                                         │
//	│                     ├─► storage.BoltStore          (index)    │
//	│                     ├─► security.Keyring           (identity) │
//	│                     ├─► httppool.Pool              (governor) │
//	│                     ├─► arweave.Client ─┐                     │
//	│                     ├─► gun.Client ─────┤ storage.Backend     │
//	│                     ├─► template.Registry                     │
//	│                     ├─► sync.Indexer ◄── BlockWalker          │
//	│                     │                 ◄── PeerSyncer          │
//	│                     ├─► publish.Publisher + jobs.Tracker      │
//	│                     ├─► health.Registry + metrics.Collector   │
//	│                     └─► api.Server (records / peers / ops)    │
//	│                                                               │
//	│  Start: broker ► tracker ► loops ► health sweep ► API listen  │
//	│  Stop:  API ► loops ► tracker ► broker ► pool ► store         │
//	└───────────────────────────────────────────────────────────────┘
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//		return err
//	}
//	d, err := daemon.New(cfg, version)
//	if err != nil {
//		return err
//	}
//	if err := d.Start(); err != nil {
//		d.Stop()
//		return err
//	}
//	if path != "" {
//		if err := d.WatchConfig(path); err != nil {
//			log.Logger.Warn().Err(err).Msg("Config watch unavailable")
//		}
//	}
//
//	select {
//	case <-signals:
//	case err := <-d.Fatal():
//		log.Logger.Error().Err(err).Msg("Shutting down after fatal sync failure")
//	}
//	d.Stop()
//
// # Config Reload
//
// WatchConfig re-reads the file on change and applies PEER_LIST to
// the peer syncer and the health registry. Every other key holds its
// boot value until restart: the store path, listen address, relay,
// and intervals are fixed wiring, not tunables.
//
// # Health
//
// The registry sweeps every 30 seconds: the store by reading its
// stats, the gateway through its height endpoint, and each peer by a
// root probe that accepts any response below 500. Verdicts feed the
// API's /health handler.
//
// # Concurrency
//
// New does no background work. Start launches the component loops
// plus three daemon-owned goroutines: the event log drain, the health
// sweep, and the fatal-error monitor. Stop closes them in reverse
// order and waits; it must be called exactly once. applyConfig runs
// on the watcher goroutine only and touches components that carry
// their own locks.
//
// # Limitations
//
//   - A fatal sync loop failure does not stop the daemon by itself;
//     the caller owns that decision via Fatal().
//   - Peer reload keeps publishing pointed at the boot relay even
//     when the relay was defaulted from the old peer list.
//
// # See Also
//
//   - pkg/config: the closed key set this package is wired from
//   - pkg/sync: the loops supervised here
//   - pkg/api: the HTTP surface started last and stopped first
//   - cmd/burrow: the CLI entry point driving this package
package daemon
