/*
Package types defines the core data structures used throughout Burrow.

This package contains all fundamental types that represent Burrow's domain
model: DIDs, records, templates, creators, sync progress, and publish jobs.
These types are used by all other packages for indexing, querying, and
publishing logic.

# Architecture

The types package is the foundation of Burrow's data model. It defines:

  - Decentralized identifiers (DID parsing and shape validation)
  - Records (data + oip metadata + optional access control)
  - Templates (on-chain schema definitions for record validation)
  - Creators (publisher identities)
  - Sync progress (the block-walk cursor singleton)
  - Jobs (async publish tracking)
  - Error kinds (sentinel errors matched with errors.Is)

All types are designed to be:
  - Serializable (JSON, matching the wire shapes of the HTTP API)
  - Immutable where possible (Clone for deep copies)
  - Self-documenting (clear field names and comments)
  - Validated (constants for enums, validation helpers)

# Core Types

DID:
  - DID: did:<method>:<id> identifier with Method/Reference accessors
  - ArweaveDID, GunDID, GunContentDID: constructors per method
  - IsDID: shape check used to recognize dref values

Records:
  - Record: the {data, oip, accessControl?} triple
  - RecordData: template name -> field name -> value
  - RecordMeta: system metadata under the oip key
  - AccessControl: peer-graph visibility and ownership

Schema:
  - Template: stored schema definition (fieldsJson, index_* entries,
    <field>Values enum domains)
  - Violation, ValidationErrors: collected validation failures

Lifecycle:
  - SyncProgress: {latestIndexedBlock, latestTx, updatedAt} singleton
  - Job, JobStatus: async publish tracking with terminal states
  - PublishResult, DestinationResult: publish outcomes

# Usage

Building a record for publish:

	rec := &types.Record{
		Data: types.RecordData{
			"basic": {
				"name":     "Greek Salad",
				"tagItems": []any{"greek", "salad"},
			},
			"recipe": {
				"cuisine": "Mediterranean",
			},
		},
		Meta: &types.RecordMeta{
			RecordType: "recipe",
			Storage:    types.StorageArweave,
			Ver:        types.RecordVersion,
		},
	}

Deriving a deterministic DID from content:

	hash := types.ContentHash(rec.Data)
	did := types.GunContentDID(publisherKey, hash)

Branching on error kinds:

	rec, err := store.GetRecord(ctx, did)
	if errors.Is(err, types.ErrNotFound) {
		// not yet indexed; retry later
	}

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants:
	  type JobStatus string
	  const (
	      JobQueued     JobStatus = "queued"
	      JobProcessing JobStatus = "processing"
	  )

Optional Fields:

	Optional structures use pointers:
	  - *AccessControl: nil = public blockchain record
	  - *CreatorRef: nil = creator not yet resolved
	  - *PublishResult: nil = job not yet terminal

Sentinel Errors:

	Error kinds are package-level values wrapped with %w so call sites
	branch with errors.Is instead of string matching.

# Integration Points

This package integrates with:

  - pkg/storage: persists records, templates, creators, progress to BoltDB
  - pkg/template: compiles Template.FieldsJSON into validators
  - pkg/resolver: walks RecordData replacing dref strings
  - pkg/sync: normalizes RecordMeta during ingest
  - pkg/query: filters and shapes records for the API
  - pkg/publish: assigns DIDs and stamps RecordVersion
  - pkg/jobs: tracks Job lifecycle

# Thread Safety

All types in this package are:
  - Read-safe: can be read concurrently from multiple goroutines
  - Write-unsafe: mutations must be synchronized by callers
  - Clone-friendly: Record.Clone returns a structurally independent copy

The storage layer handles synchronization for persisted state. In-memory
caches hold immutable entries and need no per-entry locking.

# See Also

  - pkg/storage for persistence
  - pkg/template for schema validation
  - pkg/query for response shaping
*/
package types
