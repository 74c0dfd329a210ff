// Package sync keeps the local index congruent with the two upstream
// storage networks. It runs two independent loops, the block walker
// for the blockchain and the peer syncer for the peer graph, both
// funneling records through one shared Indexer so every record is
// validated, attributed, and indexed the same way regardless of where
// it came from.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                         Sync Loops                           │
//	│                                                              │
//	│  ┌─────────────────┐              ┌─────────────────┐        │
//	│  │   BlockWalker   │              │   PeerSyncer    │        │
//	│  │                 │              │                 │        │
//	│  │ chain.Since     │              │ peer.Registry   │        │
//	│  │ from cursor     │              │ per record type │        │
//	│  └────────┬────────┘              └────────┬────────┘        │
//	│           │                                │                 │
//	│           │ every item                     │ changed souls   │
//	│           ▼                                ▼                 │
//	│  ┌──────────────────────────────────────────────────┐        │
//	│  │                     Indexer                      │        │
//	│  │                                                  │        │
//	│  │  validate ─► attribute creator ─► index record   │        │
//	│  │  (system types: template / creatorRegistration / │        │
//	│  │   deleteMessage get their own handling)          │        │
//	│  └────────────────────────┬─────────────────────────┘        │
//	│                           │                                  │
//	│                           ▼                                  │
//	│               storage.Store + events.Broker                  │
//	└──────────────────────────────────────────────────────────────┘
//
// # Error Classes
//
// The Indexer's return value tells a loop what to do with its position:
//
//   - nil: the record is durably indexed; advance.
//   - types.ErrValidation: the record is permanently bad and will never
//     improve; log, count, and advance past it.
//   - types.ErrUpstreamUnavailable: a transient fetch failure; end the
//     pass without advancing so the next pass retries.
//   - types.ErrStore: the local index cannot be written; halt the loop
//     and surface the failure on Fatal().
//
// Everything else in this package is built around that contract.
//
// # Block Walker
//
// The walker advances a persisted (block, txid) cursor through the
// gateway's transaction history. The cursor is committed after every
// indexed or skipped item, so a crash re-walks at most the in-flight
// record and a permanently malformed transaction can never wedge the
// walk. Transient gateway failures back off exponentially, capped at
// five minutes, and reset after the first clean pass.
//
// # Peer Syncer
//
// The peer syncer scans each trusted peer's per-type soul registry and
// fetches only souls whose advertised modification stamp is newer than
// the local copy. A soul that is still listed but no longer readable
// was destroyed by its publisher; the local copy is dropped. The
// scanned type list is the seed set merged with every record type the
// local index has seen, so the scan follows whatever the network
// actually publishes. Peer and soul failures are isolated: one dead
// relay or one malformed record never stops the rest of the pass.
//
// # System Records
//
// Three record types carry system semantics and skip template
// validation:
//
//   - template: registered into the template index, not the record one
//   - creatorRegistration: upserts the publisher identity, then indexes
//   - deleteMessage: removes the target record when the signer is its
//     creator, then indexes the message itself
//
// # Usage
//
//	indexer := sync.NewIndexer(store, templates, broker)
//
//	walker := sync.NewBlockWalker(chain, store, indexer, time.Minute, genesis)
//	walker.Start()
//	defer walker.Stop()
//
//	peers := sync.NewPeerSyncer(store, indexer, keyring, pool, 15*time.Minute)
//	peers.SetPeers(cfg.PeerList)
//	peers.Start()
//	defer peers.Stop()
//
//	select {
//	case err := <-walker.Fatal():
//	    // store failure, shut the daemon down
//	case err := <-peers.Fatal():
//	}
//
// # Integration Points
//
//   - pkg/arweave and pkg/gun: the storage.Backend and relay client the
//     loops pull from
//   - pkg/template: record validation and template registration
//   - pkg/storage: the index the loops write and the cursor they persist
//   - pkg/events: record.indexed, record.skipped, record.deleted,
//     template.indexed, creator.seen
//   - pkg/publish: pre-indexes published records through the same
//     Indexer so they are queryable before a sync pass finds them
//   - pkg/daemon: starts both loops and watches their Fatal channels
//
// # Performance
//
//   - One pass at a time per loop; passes never overlap
//   - Souls are skipped by timestamp before any fetch happens
//   - Peer passes that touch more than a handful of records return
//     freed buffers to the OS, keeping the heap near its idle size
//     between the long peer intervals
//
// # Limitations
//
//   - The walker trusts gateway ordering; a reorg deeper than the
//     cursor requires a manual rollback with the reindex tool
//   - Peer sync is pull-only; there is no push notification between
//     daemons, so peer changes appear after at most one interval
//   - Tombstone detection needs the soul still listed in a registry;
//     a peer that drops the registry entry and the soul in one step
//     leaves the local copy until a later pass notices
//
// # See Also
//
//   - pkg/storage: Store, Backend, and Cursor
//   - pkg/template: validation the Indexer enforces
//   - pkg/daemon: loop supervision and shutdown
package sync
