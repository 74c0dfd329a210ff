package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/httppool"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// fakeRelay is an in-process peer: a registry of souls per record type
// and the node payloads behind them.
type fakeRelay struct {
	mu       stdsync.Mutex
	registry map[string]map[string]int64
	nodes    map[string]string
	getCalls map[string]int
	srv      *httptest.Server
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	r := &fakeRelay{
		registry: map[string]map[string]int64{},
		nodes:    map[string]string{},
		getCalls: map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/registry", func(w http.ResponseWriter, req *http.Request) {
		recordType := req.URL.Query().Get("recordType")
		r.mu.Lock()
		souls := r.registry[recordType]
		r.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"recordType": recordType, "souls": souls})
	})
	mux.HandleFunc("/get", func(w http.ResponseWriter, req *http.Request) {
		soul := req.URL.Query().Get("soul")
		r.mu.Lock()
		r.getCalls[soul]++
		body, ok := r.nodes[soul]
		r.mu.Unlock()
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	})

	r.srv = httptest.NewServer(mux)
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) list(recordType, soul string, modified int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registry[recordType] == nil {
		r.registry[recordType] = map[string]int64{}
	}
	r.registry[recordType][soul] = modified
}

func (r *fakeRelay) serve(soul, nodeJSON string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[soul] = nodeJSON
}

func (r *fakeRelay) drop(soul string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, soul)
}

func (r *fakeRelay) gets(soul string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getCalls[soul]
}

// relayNode builds the wire form of a public recipe record. Arrays
// travel as JSON strings, the way the put path writes them.
func relayNode(name string, modified int64) string {
	raw, err := json.Marshal(map[string]any{
		"data": map[string]any{
			"basic": map[string]any{
				"name":        name,
				"description": "shared from a peer",
				"date":        float64(1714521600),
				"tagItems":    `["dinner","quick"]`,
			},
			"recipe": map[string]any{
				"cuisine":        "Thai",
				"prep_time_mins": float64(25),
			},
		},
		"oip": map[string]any{
			"recordType": "recipe",
			"ver":        types.RecordVersion,
			"creator": map[string]any{
				"didAddress": "did:arweave:" + txid43("peer-creator"),
				"publicKey":  "peer-public-key",
			},
		},
		"accessControl": map[string]any{
			"access_level":            "public",
			"owner_public_key":        "peer-public-key",
			"created_timestamp":       modified,
			"last_modified_timestamp": modified,
			"version":                 1,
		},
	})
	if err != nil {
		panic(err)
	}
	return string(raw)
}

func newTestSyncer(t *testing.T) (*PeerSyncer, storage.Store) {
	t.Helper()
	ix, store, _ := newTestIndexer(t)

	keyring, err := security.NewKeyring()
	require.NoError(t, err)
	pool := httppool.NewPool(time.Hour)
	t.Cleanup(pool.Stop)

	return NewPeerSyncer(store, ix, keyring, pool, time.Minute), store
}

func TestPeerPassIndexesListedSouls(t *testing.T) {
	relay := newFakeRelay(t)
	relay.list("recipe", "peer-pub:pad-thai", 1_700_000_000_000)
	relay.serve("peer-pub:pad-thai", relayNode("Pad Thai", 1_700_000_000_000))
	relay.list("recipe", "peer-pub:green-curry", 1_700_000_000_000)
	relay.serve("peer-pub:green-curry", relayNode("Green Curry", 1_700_000_000_000))

	p, store := newTestSyncer(t)
	p.SetPeers([]string{relay.srv.URL})
	ctx := context.Background()

	require.NoError(t, p.pass(ctx))

	rec, err := store.GetRecord(ctx, "did:gun:peer-pub:pad-thai")
	require.NoError(t, err)
	assert.Equal(t, "Pad Thai", rec.Name())
	assert.Equal(t, types.StorageGun, rec.Meta.Storage)

	_, err = store.GetRecord(ctx, "did:gun:peer-pub:green-curry")
	assert.NoError(t, err)

	creator, err := store.GetCreatorByPublicKey(ctx, "peer-public-key")
	require.NoError(t, err)
	assert.NotEmpty(t, creator.DIDAddress)
}

func TestPeerPassDecodesArrayTransportForm(t *testing.T) {
	relay := newFakeRelay(t)
	relay.list("recipe", "peer-pub:tagged", 1_700_000_000_000)
	relay.serve("peer-pub:tagged", relayNode("Tagged Dish", 1_700_000_000_000))

	p, store := newTestSyncer(t)
	p.SetPeers([]string{relay.srv.URL})
	ctx := context.Background()

	require.NoError(t, p.pass(ctx))

	rec, err := store.GetRecord(ctx, "did:gun:peer-pub:tagged")
	require.NoError(t, err)
	assert.Equal(t, []string{"dinner", "quick"}, rec.Tags())
}

func TestPeerPassSkipsUnchangedSouls(t *testing.T) {
	relay := newFakeRelay(t)
	relay.list("recipe", "peer-pub:stable", 1_700_000_000_000)
	relay.serve("peer-pub:stable", relayNode("Stable Dish", 1_700_000_000_000))

	p, _ := newTestSyncer(t)
	p.SetPeers([]string{relay.srv.URL})
	ctx := context.Background()

	require.NoError(t, p.pass(ctx))
	require.NoError(t, p.pass(ctx))

	assert.Equal(t, 1, relay.gets("peer-pub:stable"), "unchanged soul must not be refetched")
}

func TestPeerPassRefetchesNewerSouls(t *testing.T) {
	relay := newFakeRelay(t)
	relay.list("recipe", "peer-pub:evolving", 1_700_000_000_000)
	relay.serve("peer-pub:evolving", relayNode("First Draft", 1_700_000_000_000))

	p, store := newTestSyncer(t)
	p.SetPeers([]string{relay.srv.URL})
	ctx := context.Background()

	require.NoError(t, p.pass(ctx))

	relay.list("recipe", "peer-pub:evolving", 1_700_000_100_000)
	relay.serve("peer-pub:evolving", relayNode("Second Draft", 1_700_000_100_000))

	require.NoError(t, p.pass(ctx))

	assert.Equal(t, 2, relay.gets("peer-pub:evolving"))
	rec, err := store.GetRecord(ctx, "did:gun:peer-pub:evolving")
	require.NoError(t, err)
	assert.Equal(t, "Second Draft", rec.Name())
}

func TestPeerTombstoneDropsLocalRecord(t *testing.T) {
	relay := newFakeRelay(t)
	relay.list("recipe", "peer-pub:retracted", 1_700_000_000_000)
	relay.serve("peer-pub:retracted", relayNode("Retracted Dish", 1_700_000_000_000))

	p, store := newTestSyncer(t)
	p.SetPeers([]string{relay.srv.URL})
	ctx := context.Background()

	require.NoError(t, p.pass(ctx))
	_, err := store.GetRecord(ctx, "did:gun:peer-pub:retracted")
	require.NoError(t, err)

	// The peer destroyed the soul: still listed, newer stamp, fetch 404s.
	relay.list("recipe", "peer-pub:retracted", 1_700_000_100_000)
	relay.drop("peer-pub:retracted")

	require.NoError(t, p.pass(ctx))

	_, err = store.GetRecord(ctx, "did:gun:peer-pub:retracted")
	assert.ErrorIs(t, err, types.ErrNotFound, "tombstoned soul must leave the index")
}

func TestPeerUnreachableIsIsolated(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	relay := newFakeRelay(t)
	relay.list("recipe", "peer-pub:survivor", 1_700_000_000_000)
	relay.serve("peer-pub:survivor", relayNode("Survivor Dish", 1_700_000_000_000))

	p, store := newTestSyncer(t)
	p.SetPeers([]string{deadURL, relay.srv.URL})
	ctx := context.Background()

	require.NoError(t, p.pass(ctx), "a dead peer must not fail the pass")

	_, err := store.GetRecord(ctx, "did:gun:peer-pub:survivor")
	assert.NoError(t, err, "healthy peers still sync")
}

func TestPeerInvalidRecordIsIsolated(t *testing.T) {
	bad := `{"data":{"recipe":{"prep_time_mins":"soon"}},"oip":{"recordType":"recipe"}}`

	relay := newFakeRelay(t)
	relay.list("recipe", "peer-pub:broken", 1_700_000_000_000)
	relay.serve("peer-pub:broken", bad)
	relay.list("recipe", "peer-pub:fine", 1_700_000_000_000)
	relay.serve("peer-pub:fine", relayNode("Fine Dish", 1_700_000_000_000))

	p, store := newTestSyncer(t)
	p.SetPeers([]string{relay.srv.URL})
	ctx := context.Background()

	require.NoError(t, p.pass(ctx))

	_, err := store.GetRecord(ctx, "did:gun:peer-pub:broken")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = store.GetRecord(ctx, "did:gun:peer-pub:fine")
	assert.NoError(t, err)
}

func TestPeerPassWithNoPeers(t *testing.T) {
	p, _ := newTestSyncer(t)
	assert.NoError(t, p.pass(context.Background()))
}

func TestScanTypesMergesIndexedTypes(t *testing.T) {
	p, store := newTestSyncer(t)
	ctx := context.Background()

	put := func(recordType, seed string) {
		rec := chainRecord(seed, 100)
		rec.Meta.DID = types.ArweaveDID(txid43(seed))
		rec.Meta.RecordType = recordType
		require.NoError(t, store.PutRecord(ctx, rec))
	}
	put("motorcycle", "moto-1")
	put(types.RecordTypeTemplate, "tpl-rec-1")
	put(types.RecordTypeDeleteMessage, "del-rec-1")

	got := p.scanTypes(ctx)

	assert.Contains(t, got, "motorcycle", "locally indexed types join the scan")
	assert.Contains(t, got, "recipe")
	assert.Contains(t, got, types.RecordTypeCreatorRegistration)
	assert.NotContains(t, got, types.RecordTypeTemplate, "templates live on the blockchain only")
	assert.NotContains(t, got, types.RecordTypeDeleteMessage)
	assert.True(t, sort.StringsAreSorted(got), "scan order is deterministic")
}

func TestSetPeersKeepsExistingClients(t *testing.T) {
	p, _ := newTestSyncer(t)

	p.SetPeers([]string{"http://peer-a.example", "http://peer-b.example"})
	before := p.snapshotPeers()
	require.Len(t, before, 2)

	p.SetPeers([]string{"http://peer-a.example", "http://peer-c.example"})
	after := p.snapshotPeers()
	require.Len(t, after, 2)

	assert.Same(t, before[0], after[0], "client for a retained URL is reused")
	assert.Equal(t, "http://peer-c.example", after[1].URL())
}

// storeFailingGets wraps a real store and fails record reads the way a
// corrupt index would.
type storeFailingGets struct {
	storage.Store
}

func (s *storeFailingGets) GetRecord(ctx context.Context, did string) (*types.Record, error) {
	return nil, fmt.Errorf("bucket gone: %w", types.ErrStore)
}

func TestPeerSyncHaltsOnStoreFailure(t *testing.T) {
	relay := newFakeRelay(t)
	relay.list("recipe", "peer-pub:any", 1_700_000_000_000)
	relay.serve("peer-pub:any", relayNode("Any Dish", 1_700_000_000_000))

	ix, store, _ := newTestIndexer(t)
	keyring, err := security.NewKeyring()
	require.NoError(t, err)
	pool := httppool.NewPool(time.Hour)
	t.Cleanup(pool.Stop)

	p := NewPeerSyncer(&storeFailingGets{Store: store}, ix, keyring, pool, 10*time.Millisecond)
	p.SetPeers([]string{relay.srv.URL})

	p.Start()
	defer p.Stop()

	select {
	case err := <-p.Fatal():
		assert.ErrorIs(t, err, types.ErrStore)
	case <-time.After(2 * time.Second):
		t.Fatal("peer syncer never reported the store failure")
	}
}

func TestPeerSyncStartStop(t *testing.T) {
	p, _ := newTestSyncer(t)
	p.Start()
	time.Sleep(20 * time.Millisecond)
	p.Stop()
}
