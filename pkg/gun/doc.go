/*
Package gun implements the peer-graph storage adapter.

The Client speaks a relay's HTTP proxy and satisfies storage.Backend.
The graph is the mutable, user-owned half of the record space: souls
are addressed by publisher key plus a local id or content hash, writes
propagate asynchronously, and a record is destroyed by writing a null
tombstone over its soul.

# Relay Surface

	GET  /get?soul=        read one soul (10 s timeout)
	POST /put              write a soul, long-polls the ack (60 s)
	GET  /registry?recordType=   souls by type with last-modified stamps (5 s)

One Client binds one relay. The peer sync loop holds a Client per
configured peer; the daemon's publish path holds one for the primary
relay. All calls ride the governor's named client, rate limiter, and
pooled response buffers.

# Acknowledgement

Graph writes are fire-and-forget underneath; the relay proxy converts
the callback ack into a long-polled HTTP response. A put whose ack does
not arrive within PutOptions.AckTimeout (default 60 s) fails with
types.ErrUpstreamUnavailable even though the write may still propagate.

# Array Transport

The graph cannot hold arrays, so the adapter serializes every array to
a JSON string on put and parses it back on get. Arrays must contain
scalars only; arrays of objects are rejected with types.ErrValidation
before anything reaches a relay. Callers flatten to parallel scalar
arrays instead.

# Negative Caching

Peers answer 404 for souls they have never seen, and asking again does
not change the answer. Get holds misses (and observed tombstones) in a
60 second expiring cache so repeated lookups, notably from the peer
sync loop, do not amplify into request storms. A local put removes its
soul from the cache.

# Private Records

When accessControl.access_level is private, the data section map is
sealed before it leaves the process: X25519 agreement between the
owner's secret and the reader's public key, hashed to an AES-256-GCM
key. The node carries the sealed string, both agreement public keys,
and oip.encrypted=true. Get opens the seal only when this daemon's
keyring is the owner; anyone else receives the metadata with no data.
*/
package gun
