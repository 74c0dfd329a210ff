package arweave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/httppool"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

func txid43(seed string) string {
	padded := seed + strings.Repeat("_", 43)
	return padded[:43]
}

// fakeGateway is an in-memory gateway serving the endpoints the client
// speaks. Submitted data items become listed transactions at the
// current height.
type fakeGateway struct {
	mu          sync.Mutex
	height      int64
	entries     []TxEntry
	payloads    map[string][]byte
	submissions []submitRequest
	dataFails   map[string]int
	listFails   int
	nextTx      int
	server      *httptest.Server
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{
		height:    1000,
		payloads:  map[string][]byte{},
		dataFails: map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/height", g.handleHeight)
	mux.HandleFunc("/txs", g.handleList)
	mux.HandleFunc("/tx", g.handleSubmit)
	mux.HandleFunc("/tx/", g.handleData)
	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

// add registers a listed transaction with its payload.
func (g *fakeGateway) add(id string, block int64, tags map[string]string, payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append(g.entries, TxEntry{TxID: id, Block: block, Tags: tags})
	g.payloads[id] = payload
}

func (g *fakeGateway) handleHeight(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fmt.Fprintf(w, "%d", g.height)
}

func (g *fakeGateway) handleData(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/tx/"), "/data")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dataFails[id] > 0 {
		g.dataFails[id]--
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	payload, ok := g.payloads[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(payload)
}

func (g *fakeGateway) handleList(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listFails > 0 {
		g.listFails--
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}

	fromBlock, _ := strconv.ParseInt(r.URL.Query().Get("fromBlock"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if limit <= 0 {
		limit = listPageLimit
	}

	// The fake ignores the tag parameter so tests can prove the client
	// filters foreign entries itself.
	matched := make([]TxEntry, 0, len(g.entries))
	for _, e := range g.entries {
		if e.Block >= fromBlock {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Block != matched[j].Block {
			return matched[i].Block < matched[j].Block
		}
		return matched[i].TxID < matched[j].TxID
	})

	start := page * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	json.NewEncoder(w).Encode(listResponse{Txs: matched[start:end], More: end < len(matched)})
}

func (g *fakeGateway) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var sub submitRequest
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.submissions = append(g.submissions, sub)
	g.nextTx++
	id := txid43(fmt.Sprintf("submitted-%03d", g.nextTx))
	g.entries = append(g.entries, TxEntry{TxID: id, Block: g.height, Tags: sub.Tags})
	g.payloads[id] = sub.Data
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(submitResponse{TxID: id})
}

func newTestClient(t *testing.T, g *fakeGateway) *Client {
	t.Helper()
	pool := httppool.NewPool(time.Hour)
	t.Cleanup(pool.Stop)
	return NewClient(g.server.URL, "oip", pool)
}

func recordPayload(t *testing.T, name, recType string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"data": map[string]any{
			"basic": map[string]any{"name": name},
		},
		"oip": map[string]any{"recordType": recType, "ver": types.RecordVersion},
	})
	require.NoError(t, err)
	return raw
}

type fakeSigner struct{}

func (fakeSigner) Sign(data []byte) string { return "c2lnbmF0dXJl" }
func (fakeSigner) PublicKey() string       { return "signer-public-key" }
func (fakeSigner) DIDAddress() string      { return "did:arweave:" + txid43("signer") }

func TestHeight(t *testing.T) {
	g := newFakeGateway(t)
	g.height = 1234
	c := newTestClient(t, g)

	h, err := c.Height(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1234), h)
}

func TestHeightGatewayDown(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)
	g.server.Close()

	_, err := c.Height(context.Background())
	assert.ErrorIs(t, err, types.ErrUpstreamUnavailable)
}

func TestGetRecord(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)

	id := txid43("greek-salad")
	g.add(id, 42, map[string]string{tagApp: "oip"}, recordPayload(t, "Greek Salad", "recipe"))

	rec, err := c.Get(context.Background(), types.ArweaveDID(id))
	require.NoError(t, err)
	assert.Equal(t, "Greek Salad", rec.Name())
	assert.Equal(t, types.ArweaveDID(id), rec.Meta.DID)
	assert.Equal(t, types.StorageArweave, rec.Meta.Storage)
	assert.Equal(t, "recipe", rec.Meta.RecordType)
}

func TestGetRecordNotFound(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)

	_, err := c.Get(context.Background(), types.ArweaveDID(txid43("missing")))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestGetRejectsForeignDID(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)

	_, err := c.Get(context.Background(), types.GunDID("pub", "soul"))
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestPutSubmitsTaggedItem(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)

	rec := &types.Record{
		Data: types.RecordData{
			"basic":  {"name": "Beef Stew"},
			"recipe": {"cuisine": "French"},
		},
		Meta: &types.RecordMeta{
			RecordType: "recipe",
			Ver:        types.RecordVersion,
			Creator:    &types.CreatorRef{PublicKey: "creator-key"},
		},
	}
	opts := storage.PutOptions{Tags: map[string]string{
		"origin": "test",
		tagApp:   "not-ours",
	}}

	did, err := c.Put(context.Background(), rec, opts)
	require.NoError(t, err)
	require.NoError(t, did.Validate())
	assert.Equal(t, types.StorageArweave, did.Method())

	require.Len(t, g.submissions, 1)
	tags := g.submissions[0].Tags
	assert.Equal(t, "oip", tags[tagApp], "system tag wins over caller tags")
	assert.Equal(t, "recipe", tags[tagRecordType])
	assert.Equal(t, types.RecordVersion, tags[tagVersion])
	assert.Equal(t, "creator-key", tags[tagCreator])
	assert.Equal(t, "basic,recipe", tags[tagTemplates])
	assert.Equal(t, "test", tags["origin"])

	var sent types.Record
	require.NoError(t, json.Unmarshal(g.submissions[0].Data, &sent))
	assert.Equal(t, "Beef Stew", sent.Name())
}

func TestPutRequiresData(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)

	_, err := c.Put(context.Background(), nil, storage.PutOptions{})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = c.Put(context.Background(), &types.Record{}, storage.PutOptions{})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSinceStreamsInOrder(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)

	ours := map[string]string{tagApp: "oip"}
	g.add(txid43("a-consumed"), 5, ours, recordPayload(t, "Consumed", "recipe"))
	g.add(txid43("b-block5"), 5, ours, recordPayload(t, "Second In Block", "recipe"))
	g.add(txid43("c-block7"), 7, ours, recordPayload(t, "Block Seven", "workout"))
	g.add(txid43("d-foreign"), 7, map[string]string{tagApp: "other-app"}, recordPayload(t, "Foreign", "recipe"))
	g.add(txid43("e-block9"), 9, ours, recordPayload(t, "Block Nine", "recipe"))

	// Resume mid-block: the cursor sits on the first tx of block 5.
	cursor := storage.Cursor{Block: 5, TxID: txid43("a-consumed")}
	ch, err := c.Since(context.Background(), cursor)
	require.NoError(t, err)

	var names []string
	var blocks []int64
	for item := range ch {
		require.NoError(t, item.Err)
		names = append(names, item.Record.Name())
		blocks = append(blocks, item.Cursor.Block)
		assert.Equal(t, item.Cursor.Block, item.Record.Meta.InArweaveBlock)
	}
	assert.Equal(t, []string{"Second In Block", "Block Seven", "Block Nine"}, names)
	assert.Equal(t, []int64{5, 7, 9}, blocks)
}

func TestSincePaginates(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)

	total := listPageLimit + 25
	for i := 0; i < total; i++ {
		id := txid43(fmt.Sprintf("tx-%04d", i))
		g.add(id, int64(10+i), map[string]string{tagApp: "oip"}, recordPayload(t, fmt.Sprintf("Record %d", i), "post"))
	}

	ch, err := c.Since(context.Background(), storage.Cursor{})
	require.NoError(t, err)

	count := 0
	last := storage.Cursor{}
	for item := range ch {
		require.NoError(t, item.Err)
		assert.True(t, last.Before(item.Cursor), "stream must stay ordered across pages")
		last = item.Cursor
		count++
	}
	assert.Equal(t, total, count)
}

func TestSincePerItemFailureContinues(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)

	ours := map[string]string{tagApp: "oip"}
	g.add(txid43("ok-one"), 10, ours, recordPayload(t, "One", "recipe"))
	g.add(txid43("transient"), 11, ours, recordPayload(t, "Two", "recipe"))
	g.add(txid43("unparseable"), 12, ours, []byte("{not json"))
	g.add(txid43("ok-two"), 13, ours, recordPayload(t, "Four", "recipe"))
	g.dataFails[txid43("transient")] = 1

	ch, err := c.Since(context.Background(), storage.Cursor{})
	require.NoError(t, err)

	var items []storage.Item
	for item := range ch {
		items = append(items, item)
	}
	require.Len(t, items, 4)

	require.NoError(t, items[0].Err)
	assert.ErrorIs(t, items[1].Err, types.ErrUpstreamUnavailable)
	assert.ErrorIs(t, items[2].Err, types.ErrValidation)
	require.NoError(t, items[3].Err)
	assert.Equal(t, "Four", items[3].Record.Name())
}

func TestSinceListFailureEndsStream(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)
	g.listFails = 1

	ch, err := c.Since(context.Background(), storage.Cursor{})
	require.NoError(t, err)

	var items []storage.Item
	for item := range ch {
		items = append(items, item)
	}
	require.Len(t, items, 1)
	assert.ErrorIs(t, items[0].Err, types.ErrUpstreamUnavailable)
}

func TestSinceStopsOnContextCancel(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)

	for i := 0; i < 10; i++ {
		id := txid43(fmt.Sprintf("cancel-%02d", i))
		g.add(id, int64(10+i), map[string]string{tagApp: "oip"}, recordPayload(t, "R", "post"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.Since(ctx, storage.Cursor{})
	require.NoError(t, err)

	<-ch
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}

func TestPutThenSinceRoundTrip(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)
	ctx := context.Background()

	rec := &types.Record{
		Data: types.RecordData{"basic": {"name": "Round Trip"}},
		Meta: &types.RecordMeta{RecordType: "post", Ver: types.RecordVersion},
	}
	did, err := c.Put(ctx, rec, storage.PutOptions{})
	require.NoError(t, err)

	ch, err := c.Since(ctx, storage.Cursor{})
	require.NoError(t, err)

	var got *types.Record
	for item := range ch {
		require.NoError(t, item.Err)
		got = item.Record
	}
	require.NotNil(t, got)
	assert.Equal(t, did, got.Meta.DID)
	assert.Equal(t, "Round Trip", got.Name())
}

func TestTombstonePublishesDeleteMessage(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)

	target := types.ArweaveDID(txid43("condemned"))
	require.NoError(t, c.Tombstone(context.Background(), target, fakeSigner{}))

	require.Len(t, g.submissions, 1)
	sub := g.submissions[0]
	assert.Equal(t, types.RecordTypeDeleteMessage, sub.Tags[tagRecordType])

	var rec types.Record
	require.NoError(t, json.Unmarshal(sub.Data, &rec))
	assert.Equal(t, target.String(), rec.Data[types.RecordTypeDeleteMessage]["didTx"])
	assert.Equal(t, types.RecordTypeDeleteMessage, rec.Meta.RecordType)
	assert.Equal(t, fakeSigner{}.DIDAddress(), rec.Meta.Creator.DIDAddress)
	assert.NotEmpty(t, rec.Meta.Signature)
}

func TestTombstoneRequiresSigner(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestClient(t, g)

	err := c.Tombstone(context.Background(), types.ArweaveDID(txid43("x")), nil)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestParseRecord(t *testing.T) {
	id := txid43("parsed")

	tests := []struct {
		name    string
		payload string
		tags    map[string]string
		check   func(t *testing.T, rec *types.Record, err error)
	}{
		{
			name:    "full oip kept and stamped",
			payload: `{"data":{"basic":{"name":"N"}},"oip":{"recordType":"recipe","ver":"0.8.0"}}`,
			check: func(t *testing.T, rec *types.Record, err error) {
				require.NoError(t, err)
				assert.Equal(t, "recipe", rec.Meta.RecordType)
				assert.Equal(t, types.ArweaveDID(id), rec.Meta.DID)
				assert.Equal(t, int64(77), rec.Meta.InArweaveBlock)
				assert.Equal(t, types.StorageArweave, rec.Meta.Storage)
			},
		},
		{
			name:    "missing oip recovered from tags",
			payload: `{"data":{"basic":{"name":"N"}}}`,
			tags:    map[string]string{tagRecordType: "workout", tagVersion: "0.8.0"},
			check: func(t *testing.T, rec *types.Record, err error) {
				require.NoError(t, err)
				assert.Equal(t, "workout", rec.Meta.RecordType)
				assert.Equal(t, "0.8.0", rec.Meta.Ver)
			},
		},
		{
			name:    "malformed json",
			payload: `{"data":`,
			check: func(t *testing.T, rec *types.Record, err error) {
				assert.ErrorIs(t, err, types.ErrValidation)
			},
		},
		{
			name:    "empty data",
			payload: `{"data":{},"oip":{"recordType":"recipe"}}`,
			check: func(t *testing.T, rec *types.Record, err error) {
				assert.ErrorIs(t, err, types.ErrValidation)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := parseRecord(id, 77, tt.tags, []byte(tt.payload))
			tt.check(t, rec, err)
		})
	}
}
