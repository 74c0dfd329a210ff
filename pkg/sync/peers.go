package sync

import (
	"context"
	"errors"
	"runtime/debug"
	"sort"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/gun"
	"github.com/cuemby/burrow/pkg/httppool"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// gcRecordThreshold is the per-pass record count above which the
// syncer hands freed buffers back to the OS. Peer payloads are large
// and bursty; without the nudge the heap high-water mark persists
// between 15-minute passes.
const gcRecordThreshold = 20

// defaultScanTypes seeds the per-type registry scan before the local
// index has learned any record types of its own. Templates are
// excluded: template definitions live on the blockchain only.
var defaultScanTypes = []string{
	types.RecordTypeCreatorRegistration,
	"exercise",
	"post",
	"recipe",
	"workout",
}

// PeerSyncer pulls records from trusted peers' graph registries into
// the local index. Peers are scanned per record type; souls already
// indexed at the same modification time are skipped without a fetch.
type PeerSyncer struct {
	mu      stdsync.Mutex
	peers   []*gun.Client
	store   storage.Store
	indexer *Indexer
	keyring *security.Keyring
	pool    *httppool.Pool

	interval time.Duration
	stopCh   chan struct{}
	fatalCh  chan error
	logger   zerolog.Logger
}

// NewPeerSyncer creates the syncer with an empty peer list. Call
// SetPeers before Start, and again whenever the configured list
// changes.
func NewPeerSyncer(store storage.Store, indexer *Indexer, keyring *security.Keyring, pool *httppool.Pool, interval time.Duration) *PeerSyncer {
	return &PeerSyncer{
		store:    store,
		indexer:  indexer,
		keyring:  keyring,
		pool:     pool,
		interval: interval,
		stopCh:   make(chan struct{}),
		fatalCh:  make(chan error, 1),
		logger:   log.WithComponent("peersync"),
	}
}

// SetPeers applies a peer URL list. Clients for URLs already known are
// kept so their negative caches survive a config reload.
func (p *PeerSyncer) SetPeers(urls []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing := make(map[string]*gun.Client, len(p.peers))
	for _, c := range p.peers {
		existing[c.URL()] = c
	}

	next := make([]*gun.Client, 0, len(urls))
	for _, u := range urls {
		if c, ok := existing[u]; ok {
			next = append(next, c)
			continue
		}
		next = append(next, gun.NewClient(u, p.keyring, p.pool))
	}
	p.peers = next
	p.logger.Info().Int("peers", len(next)).Msg("Peer list applied")
}

// Start begins the sync loop. Passes never overlap; a pass that
// outruns the interval just delays the next one.
func (p *PeerSyncer) Start() {
	go p.run()
}

// Stop stops the sync loop.
func (p *PeerSyncer) Stop() {
	close(p.stopCh)
}

// Fatal delivers a store failure that halted the syncer.
func (p *PeerSyncer) Fatal() <-chan error {
	return p.fatalCh
}

func (p *PeerSyncer) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-p.stopCh
		cancel()
	}()

	for {
		if err := p.pass(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Error().Err(err).Msg("Peer sync halted on store failure")
			select {
			case p.fatalCh <- err:
			default:
			}
			return
		}

		select {
		case <-time.After(p.interval):
		case <-p.stopCh:
			return
		}
	}
}

// pass scans every peer once. Peer and soul failures are isolated;
// only local store failures end the pass with an error.
func (p *PeerSyncer) pass(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SyncPassDuration, "peers")

	peers := p.snapshotPeers()
	if len(peers) == 0 {
		return nil
	}
	recordTypes := p.scanTypes(ctx)

	processed := 0
	for _, peer := range peers {
		n, err := p.syncPeer(ctx, peer, recordTypes)
		processed += n
		if err != nil {
			if errors.Is(err, types.ErrStore) || errors.Is(err, context.Canceled) {
				return err
			}
			metrics.SyncPassErrors.WithLabelValues("peers").Inc()
			p.logger.Warn().
				Err(err).
				Str("peer", peer.URL()).
				Msg("Peer unreachable this pass")
		}
	}

	if processed > 0 {
		p.logger.Info().
			Int("processed", processed).
			Int("peers", len(peers)).
			Msg("Peer sync pass complete")
	}
	if processed > gcRecordThreshold {
		debug.FreeOSMemory()
	}
	return nil
}

// syncPeer scans one peer's registries. Returns how many souls it
// fetched and applied. Soul-level failures are logged and skipped;
// a registry failure aborts this peer.
func (p *PeerSyncer) syncPeer(ctx context.Context, peer *gun.Client, recordTypes []string) (int, error) {
	processed := 0
	for _, recordType := range recordTypes {
		souls, err := peer.Registry(ctx, recordType)
		if err != nil {
			return processed, err
		}
		for soul, modified := range souls {
			n, err := p.syncSoul(ctx, peer, soul, modified)
			processed += n
			if err != nil {
				if errors.Is(err, types.ErrStore) || errors.Is(err, context.Canceled) {
					return processed, err
				}
				p.logger.Debug().
					Err(err).
					Str("peer", peer.URL()).
					Str("soul", soul).
					Msg("Soul skipped this pass")
			}
		}
	}
	return processed, nil
}

// syncSoul reconciles one listed soul against the local index. Returns
// 1 when a fetch changed local state (indexed or dropped), 0 otherwise.
func (p *PeerSyncer) syncSoul(ctx context.Context, peer *gun.Client, soul string, modified int64) (int, error) {
	did := types.DID("did:gun:" + soul)
	if err := did.Validate(); err != nil {
		return 0, err
	}

	existing, err := p.store.GetRecord(ctx, string(did))
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return 0, err
	}
	if existing != nil && lastModified(existing) >= modified {
		return 0, nil
	}

	rec, err := peer.Get(ctx, did)
	if errors.Is(err, types.ErrNotFound) {
		// Listed but unreadable means the soul was tombstoned.
		if existing != nil {
			if err := p.indexer.ApplyTombstone(ctx, did); err != nil {
				return 0, err
			}
			return 1, nil
		}
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	err = p.indexer.IndexRecord(ctx, rec, "gun")
	switch {
	case err == nil:
		return 1, nil
	case errors.Is(err, types.ErrValidation):
		// Logged and counted by the indexer; the soul stays skipped
		// until the peer publishes a fixed version.
		return 0, nil
	default:
		return 0, err
	}
}

func (p *PeerSyncer) snapshotPeers() []*gun.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*gun.Client, len(p.peers))
	copy(out, p.peers)
	return out
}

// scanTypes merges the seed record types with every type the local
// index has seen, so the scan follows whatever the network actually
// publishes.
func (p *PeerSyncer) scanTypes(ctx context.Context) []string {
	seen := make(map[string]bool, len(defaultScanTypes))
	out := make([]string, 0, len(defaultScanTypes)+4)
	for _, rt := range defaultScanTypes {
		seen[rt] = true
		out = append(out, rt)
	}

	stats, err := p.store.Stats(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Stats unavailable, scanning seed types only")
		sort.Strings(out)
		return out
	}
	for rt := range stats.RecordsByType {
		if rt == types.RecordTypeTemplate || rt == types.RecordTypeDeleteMessage {
			continue
		}
		if !seen[rt] {
			seen[rt] = true
			out = append(out, rt)
		}
	}
	sort.Strings(out)
	return out
}

// lastModified reads a record's peer-graph modification stamp; records
// without access control read as zero.
func lastModified(rec *types.Record) int64 {
	if rec.AccessControl == nil {
		return 0
	}
	return rec.AccessControl.LastModifiedTimestamp
}
