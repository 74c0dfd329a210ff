package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/arweave"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/gun"
	"github.com/cuemby/burrow/pkg/health"
	"github.com/cuemby/burrow/pkg/httppool"
	"github.com/cuemby/burrow/pkg/jobs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/publish"
	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/sync"
	"github.com/cuemby/burrow/pkg/template"
)

const (
	// healthInterval is the period between health check sweeps.
	healthInterval = 30 * time.Second

	// healthTimeout bounds one checker probe.
	healthTimeout = 5 * time.Second

	// healthRetries is the consecutive-failure threshold before a
	// dependency is reported unhealthy.
	healthRetries = 3

	// healthStartPeriod suppresses unhealthy verdicts right after
	// boot, while the first sync passes are still warming caches.
	healthStartPeriod = 60 * time.Second
)

// Daemon owns every long-lived component: the index store, the
// publishing keyring, both storage adapters, the sync loops, the job
// tracker, and the HTTP API. New wires them together; Start and Stop
// bring them up and down in dependency order.
type Daemon struct {
	cfg     *config.Config
	version string

	store     *storage.BoltStore
	keyring   *security.Keyring
	pool      *httppool.Pool
	chain     *arweave.Client
	templates *template.Registry
	tracker   *jobs.Tracker
	indexer   *sync.Indexer
	walker    *sync.BlockWalker
	peers     *sync.PeerSyncer
	publisher *publish.Publisher
	broker    *events.Broker
	checks    *health.Registry
	collector *metrics.Collector
	api       *api.Server

	events    events.Subscriber
	stopWatch func()
	fatalCh   chan error
	stopCh    chan struct{}
	wg        stdsync.WaitGroup
	logger    zerolog.Logger
}

// New constructs a daemon from cfg. The data directory is created,
// the index store opened, and the publishing keyring loaded (or
// generated on first boot). Nothing is started.
func New(cfg *config.Config, version string) (*Daemon, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	keyring, err := security.LoadOrCreateKeyring(keyPath(cfg))
	if err != nil {
		store.Close()
		return nil, err
	}

	pool := httppool.NewPool(cfg.HTTPClientRecycle)
	chain := arweave.NewClient(cfg.BlockchainGatewayURL, cfg.SystemTag, pool)
	broker := events.NewBroker()
	templates := template.NewRegistry(store, chain)
	tracker := jobs.NewTracker(0, cfg.JobTTL)
	indexer := sync.NewIndexer(store, templates, broker)
	walker := sync.NewBlockWalker(chain, store, indexer, cfg.BlockchainSyncInterval, cfg.BlockchainGenesisBlock)

	peers := sync.NewPeerSyncer(store, indexer, keyring, pool, cfg.PeerSyncInterval)
	peers.SetPeers(cfg.PeerList)

	backends := publish.Backends{Arweave: chain}
	if cfg.GunRelayURL != "" {
		backends.Gun = gun.NewClient(cfg.GunRelayURL, keyring, pool)
	}
	if cfg.ExternalMirrorURL != "" {
		backends.Mirror = publish.NewMirror(cfg.ExternalMirrorURL, pool)
	}
	publisher := publish.NewPublisher(templates, indexer, keyring, tracker, backends)

	checks := health.NewRegistry(health.Config{
		Interval:    healthInterval,
		Timeout:     healthTimeout,
		Retries:     healthRetries,
		StartPeriod: healthStartPeriod,
	})
	checks.Register("store", health.NewStoreChecker(store))
	checks.Register("gateway", health.NewHTTPChecker(cfg.BlockchainGatewayURL+"/height"))
	registerPeerChecks(checks, cfg.PeerList)

	var auth api.Authenticator
	if len(cfg.APIBearerTokens) > 0 {
		auth = api.NewStaticAuthenticator(cfg.APIBearerTokens)
	}

	apiServer := api.NewServer(api.Config{
		Store:     store,
		Query:     query.NewEngine(store),
		Publisher: publisher,
		Jobs:      tracker,
		Indexer:   indexer,
		Health:    checks,
		Auth:      auth,
		Heights:   chain,
		QueryDefaults: query.Defaults{
			Limit:           cfg.QueryDefaultLimit,
			MaxResolveDepth: cfg.QueryMaxResolveDepth,
		},
		Version: version,
	})

	return &Daemon{
		cfg:       cfg,
		version:   version,
		store:     store,
		keyring:   keyring,
		pool:      pool,
		chain:     chain,
		templates: templates,
		tracker:   tracker,
		indexer:   indexer,
		walker:    walker,
		peers:     peers,
		publisher: publisher,
		broker:    broker,
		checks:    checks,
		collector: metrics.NewCollector(store, tracker),
		api:       apiServer,
		fatalCh:   make(chan error, 1),
		stopCh:    make(chan struct{}),
		logger:    log.WithComponent("daemon"),
	}, nil
}

// Start brings up the broker, the job tracker, both sync loops, the
// health sweep, and finally the HTTP API. A listen failure is
// returned; the caller should Stop to unwind whatever came up.
func (d *Daemon) Start() error {
	d.logger.Info().
		Str("version", d.version).
		Str("dataDir", d.cfg.DataDir).
		Str("gateway", d.cfg.BlockchainGatewayURL).
		Str("identity", d.keyring.DIDAddress()).
		Int("peers", len(d.cfg.PeerList)).
		Msg("Starting daemon")

	d.broker.Start()
	d.tracker.Start()

	d.events = d.broker.Subscribe()
	d.wg.Add(1)
	go d.logEvents()

	d.collector.Start()
	d.walker.Start()
	d.peers.Start()

	d.wg.Add(1)
	go d.runHealthChecks()

	d.wg.Add(1)
	go d.watchFatal()

	if err := d.api.Start(d.cfg.APIListenAddr); err != nil {
		return err
	}

	d.logger.Info().Str("addr", d.api.Addr()).Msg("Daemon ready")
	return nil
}

// Stop shuts everything down in reverse order: API first so no new
// work arrives, then the loops, then the broker, the store last.
func (d *Daemon) Stop() {
	close(d.stopCh)
	if d.stopWatch != nil {
		d.stopWatch()
	}

	d.api.Stop()
	d.peers.Stop()
	d.walker.Stop()
	d.collector.Stop()
	d.tracker.Stop()

	if d.events != nil {
		d.broker.Unsubscribe(d.events)
	}
	d.broker.Stop()
	d.wg.Wait()

	d.pool.Stop()
	if err := d.store.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Store close failed")
	}
	d.logger.Info().Msg("Daemon stopped")
}

// Fatal reports the first unrecoverable sync loop failure. The caller
// selects on it alongside its signal channel and shuts down.
func (d *Daemon) Fatal() <-chan error {
	return d.fatalCh
}

// Addr returns the bound API address once Start has succeeded.
func (d *Daemon) Addr() string {
	return d.api.Addr()
}

// WatchConfig reloads path on change. Only PEER_LIST is applied at
// runtime; every other key needs a restart.
func (d *Daemon) WatchConfig(path string) error {
	stop, err := config.Watch(path, d.applyConfig)
	if err != nil {
		return err
	}
	d.stopWatch = stop
	d.logger.Info().Str("path", path).Msg("Watching config")
	return nil
}

func (d *Daemon) applyConfig(next *config.Config) {
	if samePeers(d.cfg.PeerList, next.PeerList) {
		d.logger.Debug().Msg("Config change has no peer list update, nothing applied")
		return
	}

	d.peers.SetPeers(next.PeerList)
	for _, name := range d.checks.Names() {
		if strings.HasPrefix(name, "peer:") {
			d.checks.Unregister(name)
		}
	}
	registerPeerChecks(d.checks, next.PeerList)
	d.cfg.PeerList = next.PeerList
	if d.cfg.GunRelayURL == "" && len(next.PeerList) > 0 {
		d.logger.Warn().Msg("Publishing relay is fixed at startup; restart to publish to the peer graph")
	}
}

// logEvents drains the lifecycle subscription into the debug log. The
// loop ends when Stop unsubscribes and the channel closes.
func (d *Daemon) logEvents() {
	defer d.wg.Done()
	for ev := range d.events {
		d.logger.Debug().
			Str("type", string(ev.Type)).
			Str("did", string(ev.DID)).
			Str("message", ev.Message).
			Msg("Event")
	}
}

func (d *Daemon) runHealthChecks() {
	defer d.wg.Done()
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	d.sweepHealth()
	for {
		select {
		case <-ticker.C:
			d.sweepHealth()
		case <-d.stopCh:
			return
		}
	}
}

func (d *Daemon) sweepHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthInterval)
	defer cancel()
	d.checks.RunAll(ctx)
}

// watchFatal forwards the first unrecoverable loop error. One is
// enough: the daemon cannot limp on without its store.
func (d *Daemon) watchFatal() {
	defer d.wg.Done()
	select {
	case err := <-d.walker.Fatal():
		d.forwardFatal("blockwalk", err)
	case err := <-d.peers.Fatal():
		d.forwardFatal("peersync", err)
	case <-d.stopCh:
	}
}

func (d *Daemon) forwardFatal(loop string, err error) {
	d.logger.Error().Err(err).Str("loop", loop).Msg("Sync loop failed fatally")
	select {
	case d.fatalCh <- fmt.Errorf("%s: %w", loop, err):
	default:
	}
}

// keyPath resolves the publishing key location. Without an explicit
// path the key lives next to the index.
func keyPath(cfg *config.Config) string {
	if cfg.PrivateKeyPath != "" {
		return cfg.PrivateKeyPath
	}
	return filepath.Join(cfg.DataDir, "keys.json")
}

// registerPeerChecks adds one reachability probe per peer. Probes hit
// the peer root and accept any response below 500: a peer that
// answers at all can still serve its registry.
func registerPeerChecks(checks *health.Registry, peers []string) {
	for _, u := range peers {
		checks.Register("peer:"+u, health.NewHTTPChecker(u).WithStatusRange(200, 499))
	}
}

func samePeers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
