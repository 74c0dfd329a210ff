/*
Package publish implements the record publish pipeline: validate, sign,
submit, pre-index.

A publish takes caller data, stamps the node's identity and an ed25519
signature over the canonical data bytes, writes the record to one or more
destinations, and upserts every successful write into the local index so
the record is queryable before the next sync pass picks it up from its
source of truth.

# Architecture

	            Publish / PublishAsync
	                      │
	                      ▼
	              ┌──── prepare ────┐   resolve recordType, stamp
	              │                 │   identity, validate templates
	              │      sign       │   ed25519 over data bytes
	              │       │         │
	              │     submit ─────┼──▶ arweave  (gateway POST /tx)
	              │       │         ├──▶ gun      (relay put + ack)
	              │       │         └──▶ mirror   (plain HTTP POST)
	              │    pre-index    │   one upsert per minted DID
	              └────────┬────────┘
	                       ▼
	                PublishResult

Destinations run concurrently and independently; one failing never stops
the others. PublishAsync wraps the same pipeline in a tracked job and
reports progress at each stage boundary, checking for cancellation
between stages.

# Destinations

  - arweave: the record is submitted as a tagged data item; the gateway
    assigns the transaction id and the DID is did:arweave:<txid>.
  - gun: the record lands under a deterministic soul. A localId addresses
    it explicitly (did:gun:<pubkey>:<localId>); otherwise the soul is the
    content hash of the data, so republishing identical data overwrites
    the same soul instead of minting a sibling.
  - mirror: the signed record is POSTed to an external replica. Mirrors
    replicate, they do not store: the result carries the mirror's gateway
    URL but no DID, and a mirrored record keeps its primary DID.

The overall status is success when every destination accepted, partial
when at least one did, failed otherwise. The primary DID comes from the
first successful destination in request order; for a chain DID the
result also carries the bare transaction id.

# Record Types

An explicit recordType wins. Otherwise the single non-basic data section
names the type, a record with only basic data is "basic", and two or more
non-basic sections are rejected as ambiguous. System types (template,
creatorRegistration, deleteMessage) get structural checks matching what
the indexer enforces on ingest; everything else validates against its
on-chain templates and every violation is reported at once.

# Usage

	pub := publish.NewPublisher(registry, indexer, keyring, tracker, publish.Backends{
		Arweave: arweaveClient,
		Gun:     gunClient,
		Mirror:  publish.NewMirror(cfg.ExternalMirrorURL, pool),
	})

	// Synchronous: the caller waits for every destination.
	result, err := pub.Publish(ctx, publish.Request{
		Record:  rec,
		Storage: types.StorageArweave,
	})

	// Asynchronous: hand back a jobId immediately.
	job, err := pub.PublishAsync(publish.Request{Record: rec, Owner: caller})
	// poll tracker.Get(job.JobID) until terminal

Request problems that need no upstream call (no data, unknown
destination) fail PublishAsync synchronously so the API can answer 4xx
instead of minting a doomed job.

# Integration Points

  - pkg/api: POST /records/newRecord runs Publish; the /async variant
    runs PublishAsync and returns the jobId with a status URL.
  - pkg/jobs: background publishes report validating, signing,
    submitting, and indexing steps; cancelled jobs stop at the next
    stage boundary.
  - pkg/sync: the indexer pre-indexes successful writes with source
    "publish"; a pre-index failure only warns, since the upstream write
    already happened and the sync loops reconcile.
  - pkg/arweave, pkg/gun: the storage.Backend implementations submit
    does the writing through.
  - pkg/metrics: every destination attempt increments
    burrow_publish_total{destination,status}.

# Concurrency

A Publisher is stateless between calls and safe for concurrent use. Each
submit fans out one goroutine per destination and waits for all of them;
per-destination results land in distinct slots, so no locking is needed.

# Limitations

  - No retry. A failed destination is reported, not retried; callers
    republish. Identical gun data lands on the same soul, so a retry
    cannot fork the graph.
  - Cancellation is cooperative. A job mid-submit finishes the in-flight
    writes before noticing the flag, and whatever reached a destination
    stays there; only the local pre-index is skipped.
  - Mirror pushes carry no acknowledgement protocol beyond the HTTP
    status; a 2xx from a replica that later loses the record goes
    unnoticed until it re-syncs.

# See Also

  - pkg/api - HTTP surface that drives both publish modes
  - pkg/jobs - Tracks background publishes
  - pkg/arweave - Chain gateway backend
  - pkg/gun - Peer-graph relay backend
  - pkg/sync - Reconciles published records from their source of truth
*/
package publish
