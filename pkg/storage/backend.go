package storage

import (
	"context"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// Cursor points into the blockchain walk: the last block and
// transaction consumed. The zero value means "from genesis".
type Cursor struct {
	Block int64  `json:"block"`
	TxID  string `json:"txid"`
}

// Before reports whether c precedes other in block-asc, txid-asc order.
func (c Cursor) Before(other Cursor) bool {
	if c.Block != other.Block {
		return c.Block < other.Block
	}
	return c.TxID < other.TxID
}

// Item is one element of a Since stream. Err is set when this item
// failed to load; iteration continues with the next item.
type Item struct {
	Cursor Cursor
	Record *types.Record
	Err    error
}

// PutOptions tune a backend write.
type PutOptions struct {
	// LocalID addresses a peer-graph soul; empty means content hash.
	LocalID string

	// Tags are extra name/value pairs stamped onto a blockchain data
	// item alongside the system tags.
	Tags map[string]string

	// AckTimeout bounds the wait for a peer-graph write acknowledgement.
	// Zero means the adapter default (60s).
	AckTimeout time.Duration

	// ReaderPublicKey selects the agreement key a private payload is
	// sealed for. Empty means the owner itself.
	ReaderPublicKey string
}

// Signer provides the publishing identity for writes and tombstones.
// Implemented by security.Keyring.
type Signer interface {
	Sign(data []byte) string
	PublicKey() string
	DIDAddress() string
}

// Backend is the uniform storage adapter contract. Ingest, publish,
// and tombstoning all go through one of its two implementations:
// the blockchain adapter (pkg/arweave) and the peer-graph adapter
// (pkg/gun).
type Backend interface {
	// Get fetches one record by DID. Misses are types.ErrNotFound.
	Get(ctx context.Context, did types.DID) (*types.Record, error)

	// Put writes a record and returns its DID.
	Put(ctx context.Context, rec *types.Record, opts PutOptions) (types.DID, error)

	// Since streams records appended after cursor in backend order.
	// Backends without native history return errors.ErrUnsupported.
	Since(ctx context.Context, cursor Cursor) (<-chan Item, error)

	// Tombstone marks a record deleted on backends that support it.
	Tombstone(ctx context.Context, did types.DID, signer Signer) error
}
