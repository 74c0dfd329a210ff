/*
Package config loads and validates Burrow's daemon settings.

Settings come from a closed set of recognized keys, read from the
environment and optionally a YAML file (environment wins). Unknown file
keys are ignored with a startup warning so typos surface instead of
silently doing nothing.

# Recognized Keys

	BLOCKCHAIN_GATEWAY_URL      where the block-walker fetches transactions
	BLOCKCHAIN_GENESIS_BLOCK    first block for a fresh sync cursor
	BLOCKCHAIN_SYNC_INTERVAL_MS block-walk tick interval
	PEER_LIST                   comma-separated trusted peer URLs
	PEER_SYNC_INTERVAL_MS       peer-sync tick interval
	HTTP_CLIENT_RECYCLE_MS      client recycle period for long-lived pools
	QUERY_DEFAULT_LIMIT         default page size
	QUERY_MAX_RESOLVE_DEPTH     hard cap on reference resolution depth
	JOB_TTL_MS                  terminal-job retention
	PRIVATE_KEY_PATH            publishing key material
	SYSTEM_TAG                  distinguishing blockchain tag
	API_LISTEN_ADDR             HTTP API bind address
	API_BEARER_TOKENS           static token=publicKey pairs for auth
	DATA_DIR                    index store directory
	LOG_LEVEL                   debug, info, warn, error
	LOG_FILE                    rolling log path (empty = stdout)
	EXTERNAL_MIRROR_URL         mirror destination for multi-publish
	GUN_RELAY_URL               relay for peer-graph writes (defaults to
	                            the first PEER_LIST entry)

# Usage

	cfg, err := config.Load(os.Getenv("BURROW_CONFIG"))
	if err != nil {
		log.Fatal(err.Error())
	}
	cfg.LogWarnings()

Runtime reload:

	stop, err := config.Watch(path, func(next *config.Config) {
		peerSyncer.SetPeers(next.PeerList)
	})
	defer stop()

Only the peer list is designed to be applied at runtime; everything else
takes effect on restart.

# Validation

Load fails on non-positive intervals, negative limits, and unrecognized
log levels, listing every issue in one error.
*/
package config
