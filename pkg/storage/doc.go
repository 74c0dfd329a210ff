/*
Package storage provides BoltDB-backed persistence for Burrow's content index.

The storage package implements the Store interface using BoltDB as the underlying
database, holding indexed records, template schemas, creator identities, and the
block-walk cursor. All data is serialized as JSON and stored in separate buckets.
It also defines the Backend interface that the blockchain and peer-graph adapters
implement, so the rest of the daemon addresses both networks the same way.

# Architecture

Burrow uses BoltDB (bbolt) for embedded, transactional storage with zero external
dependencies:

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <dataDir>/burrow.db                │          │
	│  │  - Format: B+tree with MVCC                 │          │
	│  │  - Transactions: ACID with fsync            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                │          │
	│  │  ┌────────────────────────────┐             │          │
	│  │  │ records       (DID)        │             │          │
	│  │  │ templates     (txid)       │             │          │
	│  │  │ creators      (didAddress) │             │          │
	│  │  │ sync_progress (fixed key)  │             │          │
	│  │  │ meta          (fixed keys) │             │          │
	│  │  └────────────────────────────┘             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Transaction Management                │          │
	│  │  - Read: db.View() - Concurrent reads       │          │
	│  │  - Write: db.Update() - Serialized writes   │          │
	│  │  - Rollback: Automatic on error             │          │
	│  │  - Commit: Automatic on success + fsync     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          JSON Serialization                  │          │
	│  │  - Marshal: Go struct → JSON bytes          │          │
	│  │  - Unmarshal: JSON bytes → Go struct        │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

BoltStore:
  - Implements Store interface using BoltDB
  - Single database file per daemon
  - Automatic bucket creation on initialization
  - Schema version stamped into the meta bucket
  - Thread-safe via BoltDB's transaction model

Buckets:
  - records: Indexed records keyed by DID (blockchain and peer graph)
  - templates: Schema definitions keyed by transaction id
  - creators: Publisher identities keyed by DID address
  - sync_progress: Block-walk cursor (single entry)
  - meta: Schema version and maintenance markers

RecordQuery:
  - Declarative scan predicates: record type, storage, creator,
    dotted-path equality, full-text tokens, numeric ranges, array
    containment
  - Sort by dotted path or oip shorthand, missing values last
  - Offset/limit pagination with pre-slice totals

Backend:
  - Common adapter interface over the blockchain gateway and the
    peer-graph relay: Get, Put, Since, Tombstone
  - Implemented by pkg/arweave and pkg/gun
  - Since streams items for cursor-driven ingestion; backends without
    ordered history return errors.ErrUnsupported

Transaction Model:
  - Read transactions: db.View() - Concurrent, consistent snapshots
  - Write transactions: db.Update() - Serialized, atomic commits
  - Isolation: Snapshot isolation (MVCC)
  - Durability: fsync on commit ensures crash recovery

# Record Operations

Put Record:
  - Upsert keyed by oip.did
  - Re-indexing the same DID replaces the document wholesale
  - JSON serialization of the full record envelope

Get Record:
  - Key lookup by DID
  - Returns types.ErrNotFound for misses

Search Records:
  - Full bucket scan with in-memory predicates
  - DID queries short-circuit to a point lookup
  - Sorted, then sliced by offset/limit
  - Total reflects matches before pagination

Delete Record:
  - Removes the document (deleteMessage application, reindex tool)
  - Idempotent: no error if the DID is absent

# Usage

Creating a Store:

	store, err := storage.NewBoltStore("/var/lib/burrow")
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

Record Operations:

	// Index a record
	err := store.PutRecord(ctx, record)

	// Fetch by DID
	record, err := store.GetRecord(ctx, "did:arweave:abc...")

	// Query
	result, err := store.SearchRecords(ctx, storage.RecordQuery{
		RecordType: "recipe",
		Search:     []string{"salad"},
		SearchMode: types.MatchAND,
		SortBy:     "inArweaveBlock",
		SortDesc:   true,
		Limit:      20,
	})

Cursor Operations:

	// Read the block-walk cursor (ErrNotFound before first sync)
	progress, err := store.GetProgress(ctx)

	// Persist after a durable index write
	err = store.SetProgress(ctx, &types.SyncProgress{
		LatestIndexedBlock: height,
		LatestTx:           txid,
		UpdatedAt:          time.Now().UTC(),
	})

# Integration Points

This package integrates with:

  - pkg/sync: Block walker and peer syncer write records and the cursor
  - pkg/query: Query engine executes RecordQuery scans, then scores
  - pkg/template: Registry caches template documents stored here
  - pkg/publish: Pipeline pre-indexes published records
  - pkg/arweave, pkg/gun: Backend implementations
  - pkg/types: All entity definitions

# Design Patterns

Upsert Pattern:
  - Put methods create or replace (db.Put)
  - No separate "exists" check needed
  - Atomic replacement

Idempotent Deletes:
  - Delete returns no error if key doesn't exist
  - Safe to call multiple times

Cursor Iteration:
  - ForEach pattern for full bucket scans
  - Consistent snapshot during iteration
  - Documents that fail to decode are skipped, not fatal

Filter Pattern:
  - Scan all, filter in memory (SearchRecords)
  - Richer filtering (ownership, fuzzy matching, scoring, dedup)
    layers on top in pkg/query
  - Future: Secondary indexes for performance

Error Sentinels:
  - Misses wrap types.ErrNotFound
  - IO failures wrap types.ErrStore
  - Callers branch with errors.Is

# Performance Characteristics

Read Operations:
  - Get by key: O(log n) via B+tree, typically < 1ms
  - Search: O(n) scan with predicates, ~1ms per 1000 records
  - Concurrent reads: Supported via MVCC snapshots

Write Operations:
  - Insert/Update: O(log n) for key, ~1-5ms with fsync
  - Serialized: Only one writer at a time (BoltDB limitation)
  - Sync loops batch naturally: one record per transaction keeps the
    cursor honest after a crash

Database File Size:
  - Empty: 32KB (header + initial pages)
  - Small index (10k records): ~50MB
  - Growth: Linear with record count and payload size

# Monitoring

Key metrics fed from Stats():

  - burrow_index_records: Record count by storage and type
  - burrow_index_templates: Template count
  - burrow_index_creators: Creator count
  - burrow_sync_cursor_block: Cursor height

# Data Integrity

Transaction Guarantees:
  - Atomicity: All-or-nothing commits
  - Isolation: Snapshot reads, serialized writes
  - Durability: fsync ensures crash recovery

Backup and Restore:
  - Database is single file (easy to copy)
  - The reindex tool copies it aside before destructive maintenance
  - Restore: Replace file and restart the daemon; the block walker
    re-walks from the persisted cursor

Data Migration:
  - Schema changes handled via JSON flexibility
  - New fields: Add with omitempty tag (backward compatible)
  - Major changes: Bump SchemaVersion, migrate in the reindex tool

# See Also

  - pkg/sync for cursor-driven ingestion
  - pkg/query for search execution on top of RecordQuery
  - pkg/types for all entity definitions
  - BoltDB documentation: https://github.com/etcd-io/bbolt
*/
package storage
