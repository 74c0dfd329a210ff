package gun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/httppool"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// ClientName is the governor slot relay calls run through.
const ClientName = "gun"

// DefaultAckTimeout bounds the wait for write acknowledgement when
// PutOptions does not override it.
const DefaultAckTimeout = 60 * time.Second

const (
	getTimeout      = 10 * time.Second
	registryTimeout = 5 * time.Second

	negativeCacheSize = 4096
	negativeCacheTTL  = 60 * time.Second
)

// node is the wire form of a record under a soul. Data holds the
// section map for plaintext records, or a JSON string carrying the
// sealed payload for encrypted ones.
type node struct {
	Data          json.RawMessage      `json:"data"`
	Meta          *types.RecordMeta    `json:"oip,omitempty"`
	AccessControl *types.AccessControl `json:"accessControl,omitempty"`
	OwnerKey      string               `json:"ownerKey,omitempty"`
	ReaderKey     string               `json:"readerKey,omitempty"`
}

type putRequest struct {
	Soul  string          `json:"soul"`
	Value json.RawMessage `json:"value"`
	Sig   string          `json:"sig,omitempty"`
	Pub   string          `json:"pub,omitempty"`
}

type putAck struct {
	OK  bool   `json:"ok"`
	Err string `json:"err,omitempty"`
}

type registryResponse struct {
	RecordType string           `json:"recordType"`
	Souls      map[string]int64 `json:"souls"`
}

// Client speaks a relay's HTTP proxy and implements storage.Backend
// for the peer graph. One Client serves one relay; the peer sync loop
// holds a Client per configured peer.
type Client struct {
	relayURL string
	keyring  *security.Keyring
	pool     *httppool.Pool
	negative *expirable.LRU[string, struct{}]
	logger   zerolog.Logger
}

var _ storage.Backend = (*Client)(nil)

// NewClient returns a relay client. The keyring provides the publisher
// identity for writes and the agreement keys for sealed payloads; it
// may be nil for read-only use against public records.
func NewClient(relayURL string, keyring *security.Keyring, pool *httppool.Pool) *Client {
	return &Client{
		relayURL: strings.TrimRight(relayURL, "/"),
		keyring:  keyring,
		pool:     pool,
		negative: expirable.NewLRU[string, struct{}](negativeCacheSize, nil, negativeCacheTTL),
		logger:   log.WithComponent("gun").With().Str("relay", relayURL).Logger(),
	}
}

// URL returns the relay this client is bound to.
func (c *Client) URL() string {
	return c.relayURL
}

// Get reads the soul behind did. Misses and tombstoned souls are
// types.ErrNotFound and held in a negative cache so repeated lookups
// do not amplify peer 404s. Sealed payloads are opened only when this
// daemon's keyring owns the record; otherwise the record comes back
// metadata-only with Meta.Encrypted set.
func (c *Client) Get(ctx context.Context, did types.DID) (*types.Record, error) {
	if err := did.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}
	if did.Method() != types.StorageGun {
		return nil, fmt.Errorf("%w: %s is not a peer-graph DID", types.ErrValidation, did)
	}
	soul := did.Reference()
	if c.negative.Contains(soul) {
		return nil, fmt.Errorf("record %s: %w", did, types.ErrNotFound)
	}

	q := url.Values{}
	q.Set("soul", soul)
	buf, err := c.get(ctx, c.relayURL+"/get?"+q.Encode(), getTimeout)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			c.negative.Add(soul, struct{}{})
			return nil, fmt.Errorf("record %s: %w", did, types.ErrNotFound)
		}
		return nil, fmt.Errorf("get soul %s: %w", soul, err)
	}
	defer buf.Release()

	body := bytes.TrimSpace(buf.Bytes())
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		// A null value is a tombstone: the soul existed and was destroyed.
		c.negative.Add(soul, struct{}{})
		return nil, fmt.Errorf("record %s: %w", did, types.ErrNotFound)
	}

	var n node
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: soul %s: malformed node: %v", types.ErrValidation, soul, err)
	}
	return c.toRecord(did, &n)
}

// Put writes the record to its soul and waits for the relay's
// acknowledgement. The DID is deterministic: publisher key plus
// opts.LocalID, or publisher key plus content hash when LocalID is
// empty. Private records are sealed before they leave the process.
func (c *Client) Put(ctx context.Context, rec *types.Record, opts storage.PutOptions) (types.DID, error) {
	if rec == nil || len(rec.Data) == 0 {
		return "", fmt.Errorf("%w: record has no data", types.ErrValidation)
	}
	if c.keyring == nil {
		return "", fmt.Errorf("%w: peer-graph writes require a keyring", types.ErrValidation)
	}

	pub := c.keyring.PublicKey()
	var did types.DID
	if opts.LocalID != "" {
		did = types.GunDID(pub, opts.LocalID)
	} else {
		did = types.GunContentDID(pub, types.ContentHash(rec.Data))
	}
	soul := did.Reference()

	clone := rec.Clone()
	if clone.Meta == nil {
		clone.Meta = &types.RecordMeta{}
	}
	clone.Meta.DID = did
	clone.Meta.Storage = types.StorageGun
	stampAccessControl(clone.AccessControl, time.Now())

	encoded, err := EncodeData(clone.Data)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: encode record data: %v", types.ErrValidation, err)
	}

	n := node{Meta: clone.Meta, AccessControl: clone.AccessControl}
	if clone.Private() {
		sealed, readerKey, err := c.sealData(raw, opts.ReaderPublicKey)
		if err != nil {
			return "", err
		}
		n.Data, _ = json.Marshal(sealed)
		n.Meta.Encrypted = true
		n.OwnerKey = c.keyring.AgreementPublicKey()
		n.ReaderKey = readerKey
	} else {
		n.Data = raw
	}

	value, err := json.Marshal(&n)
	if err != nil {
		return "", fmt.Errorf("%w: encode node: %v", types.ErrValidation, err)
	}

	timeout := opts.AckTimeout
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	if err := c.putValue(ctx, putRequest{Soul: soul, Value: value}, timeout); err != nil {
		return "", err
	}

	c.negative.Remove(soul)
	c.logger.Info().
		Str("did", did.String()).
		Bool("encrypted", n.Meta.Encrypted).
		Int("bytes", len(value)).
		Msg("soul written")
	return did, nil
}

// Since is not a native peer-graph operation; the peer sync loop scans
// registries instead.
func (c *Client) Since(ctx context.Context, cursor storage.Cursor) (<-chan storage.Item, error) {
	return nil, errors.ErrUnsupported
}

// Tombstone destroys the soul behind did by writing a signed null.
func (c *Client) Tombstone(ctx context.Context, did types.DID, signer storage.Signer) error {
	if signer == nil {
		return fmt.Errorf("%w: tombstone requires a signer", types.ErrValidation)
	}
	if did.Method() != types.StorageGun {
		return fmt.Errorf("%w: %s is not a peer-graph DID", types.ErrValidation, did)
	}
	soul := did.Reference()

	req := putRequest{
		Soul:  soul,
		Value: json.RawMessage("null"),
		Sig:   signer.Sign([]byte("tombstone:" + soul)),
		Pub:   signer.PublicKey(),
	}
	if err := c.putValue(ctx, req, DefaultAckTimeout); err != nil {
		return err
	}

	c.negative.Add(soul, struct{}{})
	c.logger.Info().Str("did", did.String()).Msg("tombstone written")
	return nil
}

// Registry lists the souls a relay advertises for one record type,
// keyed by last-modified timestamp in milliseconds. Unknown types
// yield an empty map.
func (c *Client) Registry(ctx context.Context, recordType string) (map[string]int64, error) {
	q := url.Values{}
	q.Set("recordType", recordType)
	buf, err := c.get(ctx, c.relayURL+"/registry?"+q.Encode(), registryTimeout)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return map[string]int64{}, nil
		}
		return nil, fmt.Errorf("registry %s: %w", recordType, err)
	}
	defer buf.Release()

	var reg registryResponse
	if err := json.Unmarshal(buf.Bytes(), &reg); err != nil {
		return nil, fmt.Errorf("%w: malformed registry: %v", types.ErrUpstreamUnavailable, err)
	}
	if reg.Souls == nil {
		reg.Souls = map[string]int64{}
	}
	return reg.Souls, nil
}

// toRecord converts a wire node into a record.
func (c *Client) toRecord(did types.DID, n *node) (*types.Record, error) {
	rec := &types.Record{Meta: n.Meta, AccessControl: n.AccessControl}
	if rec.Meta == nil {
		rec.Meta = &types.RecordMeta{}
	}
	rec.Meta.DID = did
	rec.Meta.Storage = types.StorageGun

	if rec.Meta.Encrypted {
		data, ok, err := c.openData(n)
		if err != nil {
			return nil, err
		}
		if ok {
			rec.Data = data
		}
		return rec, nil
	}

	if len(n.Data) > 0 {
		var data types.RecordData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: soul %s: malformed data: %v", types.ErrValidation, did.Reference(), err)
		}
		rec.Data = DecodeData(data)
	}
	return rec, nil
}

// sealData encrypts raw record data for readerKey, defaulting to the
// owner's own agreement key.
func (c *Client) sealData(raw []byte, readerKey string) (string, string, error) {
	if readerKey == "" {
		readerKey = c.keyring.AgreementPublicKey()
	}
	shared, err := c.keyring.SharedSecret(readerKey)
	if err != nil {
		return "", "", fmt.Errorf("%w: derive record secret: %v", types.ErrValidation, err)
	}
	sealed, err := security.SealPayload(shared, raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: seal record data: %v", types.ErrValidation, err)
	}
	return sealed, readerKey, nil
}

// openData decrypts a sealed payload. ok is false when this daemon is
// not the owner or holds no keys; that is not an error.
func (c *Client) openData(n *node) (types.RecordData, bool, error) {
	if c.keyring == nil || n.AccessControl == nil {
		return nil, false, nil
	}
	if n.AccessControl.OwnerPublicKey != c.keyring.PublicKey() {
		return nil, false, nil
	}

	var sealed string
	if err := json.Unmarshal(n.Data, &sealed); err != nil {
		return nil, false, fmt.Errorf("%w: malformed sealed payload: %v", types.ErrValidation, err)
	}
	readerKey := n.ReaderKey
	if readerKey == "" {
		readerKey = c.keyring.AgreementPublicKey()
	}
	shared, err := c.keyring.SharedSecret(readerKey)
	if err != nil {
		return nil, false, fmt.Errorf("%w: derive record secret: %v", types.ErrValidation, err)
	}
	plain, err := security.OpenPayload(shared, sealed)
	if err != nil {
		return nil, false, fmt.Errorf("%w: open sealed payload: %v", types.ErrValidation, err)
	}

	var data types.RecordData
	if err := json.Unmarshal(plain, &data); err != nil {
		return nil, false, fmt.Errorf("%w: sealed payload is not record data: %v", types.ErrValidation, err)
	}
	return DecodeData(data), true, nil
}

// putValue posts a write and waits for the relay's acknowledgement.
// Acks that do not arrive within timeout fail the put.
func (c *Client) putValue(ctx context.Context, req putRequest, timeout time.Duration) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encode put: %v", types.ErrValidation, err)
	}

	buf, err := c.post(ctx, c.relayURL+"/put", body, timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: put not acknowledged within %s", types.ErrUpstreamUnavailable, timeout)
		}
		return fmt.Errorf("put soul %s: %w", req.Soul, err)
	}
	defer buf.Release()

	var ack putAck
	if err := json.Unmarshal(buf.Bytes(), &ack); err != nil {
		return fmt.Errorf("%w: malformed put ack: %v", types.ErrUpstreamUnavailable, err)
	}
	if !ack.OK {
		return fmt.Errorf("%w: relay rejected put: %s", types.ErrUpstreamUnavailable, ack.Err)
	}
	return nil
}

// stampAccessControl bumps the write bookkeeping peers key their
// change detection on.
func stampAccessControl(ac *types.AccessControl, now time.Time) {
	if ac == nil {
		return
	}
	ms := now.UnixMilli()
	if ac.CreatedTimestamp == 0 {
		ac.CreatedTimestamp = ms
	}
	ac.LastModifiedTimestamp = ms
	ac.Version++
}

// get performs a rate-limited GET with a per-endpoint timeout. 404 maps
// to types.ErrNotFound, other failures to types.ErrUpstreamUnavailable.
func (c *Client) get(ctx context.Context, rawURL string, timeout time.Duration) (*httppool.Buffer, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.pool.Wait(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUpstreamUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUpstreamUnavailable, err)
	}
	resp, err := c.pool.Client(ClientName).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUpstreamUnavailable, err)
	}
	return c.readBody(resp)
}

func (c *Client) post(ctx context.Context, rawURL string, body []byte, timeout time.Duration) (*httppool.Buffer, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.pool.Wait(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUpstreamUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.pool.Client(ClientName).Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("%w: %v", types.ErrUpstreamUnavailable, err)
	}
	return c.readBody(resp)
}

func (c *Client) readBody(resp *http.Response) (*httppool.Buffer, error) {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, types.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: relay returned %s", types.ErrUpstreamUnavailable, resp.Status)
	}
	buf, err := c.pool.Buffers().ReadResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", types.ErrUpstreamUnavailable, err)
	}
	return buf, nil
}
