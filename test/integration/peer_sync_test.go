package integration

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/gun"
	"github.com/cuemby/burrow/pkg/httppool"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// TestPeerGraphPropagation runs two daemons against one fake chain.
// A publisher pushes a record into daemon B's peer graph; daemon A,
// configured to trust B, pulls it off B's registry and serves it from
// its own index.
func TestPeerGraphPropagation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	chain, gatewayURL := newFakeChain(t)
	seedTemplates(chain)
	chain.seed(recipeRecord("Chain Stew"), chainTags("recipe"))

	// Daemon B is the relay: it accepts graph writes and serves the
	// peer endpoints daemon A will sync from.
	bDaemon, bClient := bootDaemon(t, gatewayURL, nil)
	bURL := "http://" + bDaemon.Addr()

	// Once B has walked past the seeded recipe its templates are in
	// place, so graph writes will validate.
	waitForRecords(t, bClient, url.Values{"recordType": {"recipe"}, "source": {"arweave"}}, 1)

	// An outside publisher pushes a record into B's graph.
	keyring, err := security.NewKeyring()
	require.NoError(t, err)
	pool := httppool.NewPool(time.Hour)
	t.Cleanup(pool.Stop)
	publisher := gun.NewClient(bURL, keyring, pool)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	did, err := publisher.Put(ctx, recipeRecord("Coq au Vin"), storage.PutOptions{LocalID: "coq-au-vin"})
	require.NoError(t, err)
	require.NoError(t, did.Validate())

	waitForRecords(t, bClient, url.Values{"source": {"gun"}}, 1)

	// Daemon A trusts B and pulls the record off its registry.
	_, aClient := bootDaemon(t, gatewayURL, []string{bURL})
	resp := waitForRecords(t, aClient, url.Values{"source": {"gun"}}, 1)

	oip, ok := resp.Records[0]["oip"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(did), oip["did"])
	assert.Equal(t, string(types.StorageGun), oip["storage"])

	// The payload survives two graph hops intact, arrays included.
	data, ok := resp.Records[0]["data"].(map[string]any)
	require.True(t, ok)
	basic, ok := data["basic"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Coq au Vin", basic["name"])
	recipe, ok := data["recipe"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"flour", "butter"}, recipe["ingredients"])

	// A walks the chain on its own too; the seeded recipe shows up
	// from both daemons independently.
	waitForRecords(t, aClient, url.Values{"recordType": {"recipe"}, "source": {"arweave"}}, 1)

	// A's health reflects the reachable peer.
	require.Eventually(t, func() bool {
		report, err := aClient.Health()
		if err != nil {
			return false
		}
		check, ok := report.Checks["peer:"+bURL]
		return ok && check.Healthy
	}, 10*time.Second, 100*time.Millisecond, "peer check never turned healthy")
}
