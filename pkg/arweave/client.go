package arweave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/httppool"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// ClientName is the governor slot gateway calls run through.
const ClientName = "arweave"

const (
	requestTimeout = 30 * time.Second
	listPageLimit  = 100
)

// Tag names stamped onto submitted data items. The app tag carries the
// system tag that since() filters on; the rest mirror the record's oip
// fields so listings are self-describing without a payload fetch.
const (
	tagApp        = "app"
	tagRecordType = "recordType"
	tagVersion    = "ver"
	tagCreator    = "creator"
	tagTemplates  = "templates"
)

// TxEntry is one transaction in a gateway listing.
type TxEntry struct {
	TxID  string            `json:"txid"`
	Block int64             `json:"block"`
	Tags  map[string]string `json:"tags"`
}

// listResponse is a page of the /txs endpoint, ordered block-asc,
// txid-asc. More signals further pages at the same query.
type listResponse struct {
	Txs  []TxEntry `json:"txs"`
	More bool      `json:"more"`
}

type submitRequest struct {
	Tags map[string]string `json:"tags"`
	Data json.RawMessage   `json:"data"`
}

type submitResponse struct {
	TxID string `json:"txid"`
}

// Client speaks the blockchain gateway HTTP API and implements
// storage.Backend for the chain. Records on the chain are immutable;
// Tombstone publishes a deleteMessage record instead of deleting.
type Client struct {
	baseURL   string
	systemTag string
	pool      *httppool.Pool
	logger    zerolog.Logger
}

var _ storage.Backend = (*Client)(nil)

// NewClient returns a gateway client rooted at baseURL. All requests
// go through the governor's named client and are rate limited by any
// host limit registered for the gateway.
func NewClient(baseURL, systemTag string, pool *httppool.Pool) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		systemTag: systemTag,
		pool:      pool,
		logger:    log.WithComponent("arweave"),
	}
}

// URL returns the gateway base URL.
func (c *Client) URL() string {
	return c.baseURL
}

// Height returns the gateway's current block height.
func (c *Client) Height(ctx context.Context) (int64, error) {
	buf, err := c.get(ctx, c.baseURL+"/height")
	if err != nil {
		return 0, fmt.Errorf("gateway height: %w", err)
	}
	defer buf.Release()

	h, err := strconv.ParseInt(strings.TrimSpace(string(buf.Bytes())), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed gateway height %q", types.ErrUpstreamUnavailable, buf.Bytes())
	}
	metrics.GatewayHeight.Set(float64(h))
	return h, nil
}

// Get fetches one record by its blockchain DID.
func (c *Client) Get(ctx context.Context, did types.DID) (*types.Record, error) {
	if err := did.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}
	if did.Method() != types.StorageArweave {
		return nil, fmt.Errorf("%w: %s is not a blockchain DID", types.ErrValidation, did)
	}
	txid := did.Reference()
	payload, err := c.fetchData(ctx, txid)
	if err != nil {
		return nil, err
	}
	return parseRecord(txid, 0, nil, payload)
}

// Put submits the record as a tagged data item and returns the DID the
// gateway assigned. Extra opts.Tags are stamped alongside the system
// tags; system tags win on collision.
func (c *Client) Put(ctx context.Context, rec *types.Record, opts storage.PutOptions) (types.DID, error) {
	if rec == nil || len(rec.Data) == 0 {
		return "", fmt.Errorf("%w: record has no data", types.ErrValidation)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("%w: encode record: %v", types.ErrValidation, err)
	}

	body, err := json.Marshal(submitRequest{Tags: c.submitTags(rec, opts), Data: payload})
	if err != nil {
		return "", fmt.Errorf("%w: encode data item: %v", types.ErrValidation, err)
	}

	buf, err := c.post(ctx, c.baseURL+"/tx", body)
	if err != nil {
		return "", fmt.Errorf("submit tx: %w", err)
	}
	defer buf.Release()

	var sub submitResponse
	if err := json.Unmarshal(buf.Bytes(), &sub); err != nil {
		return "", fmt.Errorf("%w: malformed submit response: %v", types.ErrUpstreamUnavailable, err)
	}
	if sub.TxID == "" {
		return "", fmt.Errorf("%w: gateway returned no txid", types.ErrUpstreamUnavailable)
	}

	did := types.ArweaveDID(sub.TxID)
	c.logger.Info().
		Str("did", did.String()).
		Str("recordType", recordType(rec)).
		Int("bytes", len(payload)).
		Msg("data item submitted")
	return did, nil
}

// Since streams records appended after cursor in block-asc, txid-asc
// order. Items that fail to load carry Err and iteration continues;
// a failed listing emits one final errored item and ends the stream.
// Parse failures wrap types.ErrValidation (the payload will never
// improve), fetch failures wrap types.ErrUpstreamUnavailable.
func (c *Client) Since(ctx context.Context, cursor storage.Cursor) (<-chan storage.Item, error) {
	ch := make(chan storage.Item)
	go func() {
		defer close(ch)
		for page := 0; ; page++ {
			list, err := c.listPage(ctx, cursor.Block, page)
			if err != nil {
				c.send(ctx, ch, storage.Item{Err: err})
				return
			}
			for _, entry := range list.Txs {
				at := storage.Cursor{Block: entry.Block, TxID: entry.TxID}
				if !cursor.Before(at) {
					continue
				}
				if entry.Tags[tagApp] != c.systemTag {
					continue
				}
				item := storage.Item{Cursor: at}
				item.Record, item.Err = c.fetch(ctx, entry)
				if !c.send(ctx, ch, item) {
					return
				}
			}
			if !list.More {
				return
			}
		}
	}()
	return ch, nil
}

// Tombstone publishes a deleteMessage record referencing did, signed
// by the caller's identity. The chain itself is append-only.
func (c *Client) Tombstone(ctx context.Context, did types.DID, signer storage.Signer) error {
	if signer == nil {
		return fmt.Errorf("%w: tombstone requires a signer", types.ErrValidation)
	}
	if did.Method() != types.StorageArweave {
		return fmt.Errorf("%w: %s is not a blockchain DID", types.ErrValidation, did)
	}

	data := types.RecordData{
		types.RecordTypeDeleteMessage: {"didTx": did.String()},
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: encode delete message: %v", types.ErrValidation, err)
	}
	rec := &types.Record{
		Data: data,
		Meta: &types.RecordMeta{
			RecordType: types.RecordTypeDeleteMessage,
			Ver:        types.RecordVersion,
			Creator: &types.CreatorRef{
				DIDAddress: signer.DIDAddress(),
				PublicKey:  signer.PublicKey(),
			},
			Signature: signer.Sign(payload),
		},
	}

	tombDID, err := c.Put(ctx, rec, storage.PutOptions{})
	if err != nil {
		return err
	}
	c.logger.Info().
		Str("did", did.String()).
		Str("deleteMessage", tombDID.String()).
		Msg("tombstone published")
	return nil
}

// fetch loads and parses the payload behind a listed transaction.
func (c *Client) fetch(ctx context.Context, entry TxEntry) (*types.Record, error) {
	payload, err := c.fetchData(ctx, entry.TxID)
	if err != nil {
		return nil, err
	}
	return parseRecord(entry.TxID, entry.Block, entry.Tags, payload)
}

// fetchData returns a copy of the raw tx payload. The pooled buffer is
// released before return, so the copy is the caller's to keep.
func (c *Client) fetchData(ctx context.Context, txid string) ([]byte, error) {
	buf, err := c.get(ctx, c.baseURL+"/tx/"+url.PathEscape(txid)+"/data")
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("record %s: %w", types.ArweaveDID(txid), types.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch tx %s: %w", txid, err)
	}
	defer buf.Release()

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	return data, nil
}

// listPage fetches one page of transactions in blocks >= fromBlock
// bearing the system tag.
func (c *Client) listPage(ctx context.Context, fromBlock int64, page int) (*listResponse, error) {
	q := url.Values{}
	q.Set("fromBlock", strconv.FormatInt(fromBlock, 10))
	q.Set("tag", c.systemTag)
	q.Set("limit", strconv.Itoa(listPageLimit))
	q.Set("page", strconv.Itoa(page))

	buf, err := c.get(ctx, c.baseURL+"/txs?"+q.Encode())
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			err = fmt.Errorf("%w: gateway has no tx listing", types.ErrUpstreamUnavailable)
		}
		return nil, fmt.Errorf("list txs: %w", err)
	}
	defer buf.Release()

	var list listResponse
	if err := json.Unmarshal(buf.Bytes(), &list); err != nil {
		return nil, fmt.Errorf("%w: malformed tx listing: %v", types.ErrUpstreamUnavailable, err)
	}
	return &list, nil
}

// send delivers item unless ctx ends first.
func (c *Client) send(ctx context.Context, ch chan<- storage.Item, item storage.Item) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- item:
		return true
	}
}

// get performs a rate-limited GET and returns the pooled body on 200.
// 404 maps to types.ErrNotFound, everything else to
// types.ErrUpstreamUnavailable. The caller releases the buffer.
func (c *Client) get(ctx context.Context, rawURL string) (*httppool.Buffer, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
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

// post performs a rate-limited JSON POST, accepting any 2xx status.
func (c *Client) post(ctx context.Context, rawURL string, body []byte) (*httppool.Buffer, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
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
		return nil, fmt.Errorf("%w: gateway returned %s", types.ErrUpstreamUnavailable, resp.Status)
	}
	buf, err := c.pool.Buffers().ReadResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", types.ErrUpstreamUnavailable, err)
	}
	return buf, nil
}

// submitTags builds the tag set for a data item.
func (c *Client) submitTags(rec *types.Record, opts storage.PutOptions) map[string]string {
	tags := make(map[string]string, len(opts.Tags)+5)
	for k, v := range opts.Tags {
		tags[k] = v
	}
	tags[tagApp] = c.systemTag
	if rec.Meta != nil {
		if rec.Meta.RecordType != "" {
			tags[tagRecordType] = rec.Meta.RecordType
		}
		if rec.Meta.Ver != "" {
			tags[tagVersion] = rec.Meta.Ver
		}
		if rec.Meta.Creator != nil && rec.Meta.Creator.PublicKey != "" {
			tags[tagCreator] = rec.Meta.Creator.PublicKey
		}
	}
	if refs := templateRefs(rec); refs != "" {
		tags[tagTemplates] = refs
	}
	return tags
}

// templateRefs lists the template names a record's data spans.
func templateRefs(rec *types.Record) string {
	names := make([]string, 0, len(rec.Data))
	for name := range rec.Data {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// parseRecord decodes a tx payload into a record, stamping the chain
// facts the indexer relies on. Fields the payload omits are recovered
// from the tx tags where possible.
func parseRecord(txid string, block int64, tags map[string]string, payload []byte) (*types.Record, error) {
	var rec types.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("%w: tx %s: malformed record: %v", types.ErrValidation, txid, err)
	}
	if len(rec.Data) == 0 {
		return nil, fmt.Errorf("%w: tx %s: record has no data", types.ErrValidation, txid)
	}
	if rec.Meta == nil {
		rec.Meta = &types.RecordMeta{}
	}
	if rec.Meta.RecordType == "" {
		rec.Meta.RecordType = tags[tagRecordType]
	}
	if rec.Meta.Ver == "" {
		rec.Meta.Ver = tags[tagVersion]
	}
	rec.Meta.DID = types.ArweaveDID(txid)
	rec.Meta.Storage = types.StorageArweave
	if block > 0 {
		rec.Meta.InArweaveBlock = block
	}
	return &rec, nil
}

func recordType(rec *types.Record) string {
	if rec.Meta == nil {
		return ""
	}
	return rec.Meta.RecordType
}
