package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// BlockWalker keeps the index congruent with the blockchain. It
// advances a persisted (block, txid) cursor through the gateway's
// transaction history, one durably indexed record at a time, so a
// crash at any point re-walks at most the in-flight item.
type BlockWalker struct {
	chain    storage.Backend
	store    storage.Store
	indexer  *Indexer
	interval time.Duration
	genesis  int64
	retry    *backoff.ExponentialBackOff
	stopCh   chan struct{}
	fatalCh  chan error
	logger   zerolog.Logger
}

// NewBlockWalker creates the walker. genesis is the block the first
// ever pass starts from; interval is the idle time between passes.
func NewBlockWalker(chain storage.Backend, store storage.Store, indexer *Indexer, interval time.Duration, genesis int64) *BlockWalker {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Second
	retry.MaxInterval = 5 * time.Minute
	retry.MaxElapsedTime = 0 // retry forever; the chain outlives any outage

	return &BlockWalker{
		chain:    chain,
		store:    store,
		indexer:  indexer,
		interval: interval,
		genesis:  genesis,
		retry:    retry,
		stopCh:   make(chan struct{}),
		fatalCh:  make(chan error, 1),
		logger:   log.WithComponent("walker"),
	}
}

// Start begins the walk loop.
func (w *BlockWalker) Start() {
	go w.run()
}

// Stop stops the walk loop. The in-flight pass ends at its next item.
func (w *BlockWalker) Stop() {
	close(w.stopCh)
}

// Fatal delivers a store failure that halted the walker. The daemon
// treats it as a reason to shut down.
func (w *BlockWalker) Fatal() <-chan error {
	return w.fatalCh
}

func (w *BlockWalker) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.stopCh
		cancel()
	}()

	for {
		err := w.pass(ctx)

		var wait time.Duration
		switch {
		case err == nil:
			w.retry.Reset()
			wait = w.interval
		case errors.Is(err, types.ErrStore):
			w.logger.Error().Err(err).Msg("Walker halted on store failure")
			select {
			case w.fatalCh <- err:
			default:
			}
			return
		case errors.Is(err, context.Canceled):
			return
		default:
			wait = w.retry.NextBackOff()
			metrics.SyncPassErrors.WithLabelValues("walker").Inc()
			w.logger.Warn().
				Err(err).
				Dur("retryIn", wait).
				Msg("Walker pass failed, backing off")
		}

		select {
		case <-time.After(wait):
		case <-w.stopCh:
			return
		}
	}
}

// pass walks the chain from the persisted cursor until the stream
// ends. The cursor is persisted after every durable index write, and
// after skips, so the walker never wedges on a permanently bad item.
func (w *BlockWalker) pass(parent context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SyncPassDuration, "walker")

	// A pass abandoned mid-stream must release the adapter's send
	// goroutine, which blocks until its context ends.
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	cursor, err := w.loadCursor(ctx)
	if err != nil {
		return err
	}

	items, err := w.chain.Since(ctx, cursor)
	if err != nil {
		return fmt.Errorf("walker since %d/%s: %w", cursor.Block, cursor.TxID, err)
	}

	indexed, skipped := 0, 0
	for item := range items {
		if item.Err != nil {
			if !errors.Is(item.Err, types.ErrValidation) {
				// Transient fetch failure: end the pass here so the
				// next one retries this item.
				return item.Err
			}
			// Malformed payloads never improve; step past them.
			w.logger.Warn().
				Err(item.Err).
				Int64("block", item.Cursor.Block).
				Str("txid", item.Cursor.TxID).
				Msg("Walker skipped malformed item")
			metrics.SyncRecordsSkipped.WithLabelValues("arweave", "malformed").Inc()
			if err := w.persistCursor(ctx, item.Cursor); err != nil {
				return err
			}
			cursor = item.Cursor
			skipped++
			continue
		}

		err := w.indexer.IndexRecord(ctx, item.Record, "arweave")
		switch {
		case err == nil:
			indexed++
		case errors.Is(err, types.ErrValidation):
			skipped++
		default:
			return err
		}

		if err := w.persistCursor(ctx, item.Cursor); err != nil {
			return err
		}
		cursor = item.Cursor
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if indexed > 0 || skipped > 0 {
		w.logger.Info().
			Int("indexed", indexed).
			Int("skipped", skipped).
			Int64("block", cursor.Block).
			Msg("Walker pass complete")
		if w.indexer.broker != nil {
			w.indexer.broker.SyncAdvanced(cursor.Block, indexed, skipped)
		}
	} else {
		w.logger.Debug().Int64("block", cursor.Block).Msg("Walker pass found nothing new")
	}
	return nil
}

// loadCursor reads the persisted cursor; a store that has never synced
// starts at the configured genesis block.
func (w *BlockWalker) loadCursor(ctx context.Context) (storage.Cursor, error) {
	progress, err := w.store.GetProgress(ctx)
	if errors.Is(err, types.ErrNotFound) {
		return storage.Cursor{Block: w.genesis}, nil
	}
	if err != nil {
		return storage.Cursor{}, err
	}
	return storage.Cursor{Block: progress.LatestIndexedBlock, TxID: progress.LatestTx}, nil
}

// persistCursor commits the cursor after an item's index write. A
// failure here is a store failure and halts the pass.
func (w *BlockWalker) persistCursor(ctx context.Context, cursor storage.Cursor) error {
	err := w.store.SetProgress(ctx, &types.SyncProgress{
		LatestIndexedBlock: cursor.Block,
		LatestTx:           cursor.TxID,
		UpdatedAt:          time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	metrics.SyncCursorBlock.Set(float64(cursor.Block))
	return nil
}
