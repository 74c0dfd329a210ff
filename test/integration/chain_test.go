package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/daemon"
	"github.com/cuemby/burrow/pkg/types"
)

// fakeChain is an in-memory blockchain gateway speaking the wire
// protocol the daemon's chain adapter expects. Seeded and submitted
// transactions share one ordered log; every entry lands in a fresh
// block so cursor math behaves like the real network.
type fakeChain struct {
	mu     stdsync.Mutex
	nextTx int
	height int64
	txs    []chainTx
}

type chainTx struct {
	txid  string
	block int64
	tags  map[string]string
	data  []byte
}

type wireTx struct {
	TxID  string            `json:"txid"`
	Block int64             `json:"block"`
	Tags  map[string]string `json:"tags"`
}

func newFakeChain(t *testing.T) (*fakeChain, string) {
	t.Helper()
	chain := &fakeChain{height: 1}
	ts := httptest.NewServer(chain.handler())
	t.Cleanup(ts.Close)
	return chain, ts.URL
}

func (f *fakeChain) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/height", f.handleHeight)
	mux.HandleFunc("/txs", f.handleList)
	mux.HandleFunc("/tx", f.handleSubmit)
	mux.HandleFunc("/tx/", f.handleData)
	return mux
}

// mintTxID pads a sequence number out to the 43-character form real
// transaction IDs take.
func (f *fakeChain) mintTxID() string {
	f.nextTx++
	return fmt.Sprintf("itx%040d", f.nextTx)
}

// seed appends a transaction without going through HTTP, for fixtures
// that exist before any daemon boots.
func (f *fakeChain) seed(rec *types.Record, tags map[string]string) types.DID {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, err := json.Marshal(rec)
	if err != nil {
		panic(err)
	}
	txid := f.mintTxID()
	f.height++
	f.txs = append(f.txs, chainTx{txid: txid, block: f.height, tags: tags, data: payload})
	return types.ArweaveDID(txid)
}

func (f *fakeChain) handleHeight(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprint(w, strconv.FormatInt(f.height, 10))
}

func (f *fakeChain) handleList(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txs := make([]wireTx, 0, len(f.txs))
	for _, tx := range f.txs {
		txs = append(txs, wireTx{TxID: tx.txid, Block: tx.block, Tags: tx.tags})
	}
	writeJSON(w, map[string]any{"txs": txs, "more": false})
}

func (f *fakeChain) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Tags map[string]string `json:"tags"`
		Data json.RawMessage   `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	txid := f.mintTxID()
	f.height++
	f.txs = append(f.txs, chainTx{txid: txid, block: f.height, tags: req.Tags, data: req.Data})
	writeJSON(w, map[string]any{"txid": txid})
}

func (f *fakeChain) handleData(w http.ResponseWriter, r *http.Request) {
	txid := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/tx/"), "/data")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.txs {
		if tx.txid == txid {
			w.Write(tx.data)
			return
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func chainTags(recordType string) map[string]string {
	return map[string]string{
		"app":        "oip",
		"recordType": recordType,
		"ver":        types.RecordVersion,
	}
}

// seedTemplates plants the schema definitions every test record cites,
// so validation passes once the walker catches up past block 3.
func seedTemplates(chain *fakeChain) {
	chain.seed(templateRecord("basic", map[string]any{
		"name":              "string",
		"index_name":        float64(0),
		"description":       "string",
		"index_description": float64(1),
		"date":              "long",
		"index_date":        float64(2),
	}), chainTags(types.RecordTypeTemplate))
	chain.seed(templateRecord("recipe", map[string]any{
		"cuisine":              "string",
		"index_cuisine":        float64(0),
		"prep_time_mins":       "long",
		"index_prep_time_mins": float64(1),
		"ingredients":          "repeated string",
		"index_ingredients":    float64(2),
	}), chainTags(types.RecordTypeTemplate))
}

func templateRecord(name string, fields map[string]any) *types.Record {
	return &types.Record{
		Data: types.RecordData{
			"template": {
				"name":       name,
				"fieldsJson": fields,
			},
		},
		Meta: &types.RecordMeta{RecordType: types.RecordTypeTemplate, Ver: types.RecordVersion},
	}
}

func recipeRecord(name string) *types.Record {
	return &types.Record{
		Data: recipeData(name),
		Meta: &types.RecordMeta{RecordType: "recipe", Ver: types.RecordVersion},
	}
}

func recipeData(name string) types.RecordData {
	return types.RecordData{
		"basic": {
			"name":        name,
			"description": "weeknight favorite",
			"date":        float64(1714521600),
		},
		"recipe": {
			"cuisine":        "French",
			"prep_time_mins": float64(30),
			"ingredients":    []any{"flour", "butter"},
		},
	}
}

// bootDaemon starts a full daemon against the given gateway and hands
// back an API client pointed at its listener. Sync intervals are cut
// short so tests converge in real time.
func bootDaemon(t *testing.T, gatewayURL string, peers []string) (*daemon.Daemon, *client.Client) {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.BlockchainGatewayURL = gatewayURL
	cfg.BlockchainSyncInterval = 100 * time.Millisecond
	cfg.PeerSyncInterval = 200 * time.Millisecond
	cfg.PeerList = peers
	if len(peers) > 0 {
		cfg.GunRelayURL = peers[0]
	}
	cfg.APIListenAddr = "127.0.0.1:0"

	d, err := daemon.New(cfg, "integration")
	require.NoError(t, err)
	require.NoError(t, d.Start())
	t.Cleanup(d.Stop)

	return d, client.New("http://" + d.Addr())
}

// waitForRecords polls a query until it returns at least want results.
func waitForRecords(t *testing.T, c *client.Client, params url.Values, want int) *client.QueryResponse {
	t.Helper()
	var resp *client.QueryResponse
	require.Eventually(t, func() bool {
		r, err := c.Query(params)
		if err != nil {
			return false
		}
		resp = r
		return r.SearchResults >= want
	}, 10*time.Second, 100*time.Millisecond, "query %v never reached %d results", params, want)
	return resp
}
