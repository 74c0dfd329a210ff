package daemon

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/config"
)

// newFakeGateway serves the two gateway endpoints the walker and the
// height probe touch, with an empty transaction history.
func newFakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/height", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "100")
	})
	mux.HandleFunc("/txs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"txs":[],"more":false}`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func testConfig(t *testing.T, gatewayURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.BlockchainGatewayURL = gatewayURL
	cfg.APIListenAddr = "127.0.0.1:0"
	return cfg
}

func TestDaemonBootAndServe(t *testing.T) {
	gw := newFakeGateway(t)
	cfg := testConfig(t, gw.URL)

	d, err := New(cfg, "test")
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	base := "http://" + d.Addr()

	resp, err := http.Get(base + "/records")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Message      string `json:"message"`
		TotalRecords int    `json:"totalRecords"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "Records retrieved successfully", envelope.Message)
	assert.Zero(t, envelope.TotalRecords)

	// The first health sweep runs concurrently with this request.
	require.Eventually(t, func() bool {
		hr, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		defer hr.Body.Close()
		return hr.StatusCode == http.StatusOK
	}, 2*time.Second, 50*time.Millisecond)

	_, err = os.Stat(filepath.Join(cfg.DataDir, "keys.json"))
	assert.NoError(t, err, "first boot should persist a keyring")
}

func TestDaemonIdentityPersistsAcrossBoots(t *testing.T) {
	gw := newFakeGateway(t)
	cfg := testConfig(t, gw.URL)

	first, err := New(cfg, "test")
	require.NoError(t, err)
	identity := first.keyring.DIDAddress()
	require.NotEmpty(t, identity)
	first.Stop()

	second, err := New(cfg, "test")
	require.NoError(t, err)
	defer second.Stop()
	assert.Equal(t, identity, second.keyring.DIDAddress())
}

func TestDaemonStartListenFailure(t *testing.T) {
	gw := newFakeGateway(t)

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig(t, gw.URL)
	cfg.APIListenAddr = taken.Addr().String()

	d, err := New(cfg, "test")
	require.NoError(t, err)
	err = d.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api listen")
	d.Stop()
}

func TestDaemonAppliesPeerListReload(t *testing.T) {
	gw := newFakeGateway(t)
	cfg := testConfig(t, gw.URL)
	cfg.PeerList = []string{"http://peer-a.example"}
	cfg.GunRelayURL = "http://peer-a.example"

	d, err := New(cfg, "test")
	require.NoError(t, err)
	defer d.Stop()

	require.Contains(t, d.checks.Names(), "peer:http://peer-a.example")

	next := *cfg
	next.PeerList = []string{"http://peer-b.example", "http://peer-c.example"}
	d.applyConfig(&next)

	names := d.checks.Names()
	assert.NotContains(t, names, "peer:http://peer-a.example")
	assert.Contains(t, names, "peer:http://peer-b.example")
	assert.Contains(t, names, "peer:http://peer-c.example")
	assert.Contains(t, names, "store")
	assert.Contains(t, names, "gateway")

	// An unchanged list is a no-op, not a re-registration.
	d.applyConfig(&next)
	assert.Len(t, d.checks.Names(), 4)
}

func TestKeyPathResolution(t *testing.T) {
	cfg := &config.Config{DataDir: "/var/lib/burrow"}
	assert.Equal(t, "/var/lib/burrow/keys.json", keyPath(cfg))

	cfg.PrivateKeyPath = "/etc/burrow/identity.json"
	assert.Equal(t, "/etc/burrow/identity.json", keyPath(cfg))
}
