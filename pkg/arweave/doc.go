/*
Package arweave implements the blockchain storage adapter.

The Client speaks a gateway's HTTP API and satisfies storage.Backend.
The chain is the permanent, append-only half of the record space:
writes are signed data items that never change once accepted, and
deletion exists only as a later deleteMessage record pointing at the
victim.

# Gateway Surface

Four endpoints, all JSON except the height probe:

	GET  /height          current block height (plain integer)
	GET  /tx/{id}/data    raw record payload for one transaction
	GET  /txs             tag-filtered listing, block-asc txid-asc, paged
	POST /tx              submit a tagged data item, returns {txid}

Every call runs through the resource governor: the shared named client
(ClientName), the per-host rate limiter, and the pooled response
buffers. Calls carry a 30 second timeout.

# Tags

Submitted items carry a small tag set: the system tag under "app"
(what since filtering keys on), plus recordType, ver, creator and the
comma-joined template names. Caller tags from PutOptions ride along
but never override the system set.

# Streaming

Since walks the listing pages and emits one Item per transaction after
the cursor. The cursor is (block, txid), so resuming mid-block skips
exactly the transactions already consumed. Failures are split by
retryability:

  - payload fetch failures wrap types.ErrUpstreamUnavailable; the
    transaction may load fine next pass
  - payload parse failures wrap types.ErrValidation; the payload is
    immutable and will never parse, so the walker can advance past it
  - a listing failure ends the stream after one errored item

The sync loop maps these onto its cursor rules: validation errors are
skipped, everything else stops the pass without advancing.

# Errors

Misses are types.ErrNotFound, malformed input is types.ErrValidation,
and every transport or gateway failure is types.ErrUpstreamUnavailable
so callers can distinguish "try later" from "give up".
*/
package arweave
