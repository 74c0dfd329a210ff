package template

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// cacheSize bounds the template LRU. Templates are small and immutable;
// 512 covers every template a deployment has been seen to carry.
const cacheSize = 512

// Registry loads, caches, and validates against template definitions.
// Load order on a miss: index store, then the blockchain adapter with a
// re-index. Cache entries are immutable because templates live on-chain.
type Registry struct {
	store  storage.Store
	chain  storage.Backend
	cache  *lru.Cache[string, *types.Template]
	logger zerolog.Logger
}

// NewRegistry creates a template registry. chain may be nil; then misses
// in the index store are final.
func NewRegistry(store storage.Store, chain storage.Backend) *Registry {
	cache, _ := lru.New[string, *types.Template](cacheSize)
	return &Registry{
		store:  store,
		chain:  chain,
		cache:  cache,
		logger: log.WithComponent("template"),
	}
}

// Resolve returns the template for a name or transaction id. Unknown
// names return types.ErrNotFound without side effects; unknown txids
// fall through to the blockchain adapter and are re-indexed on success.
func (r *Registry) Resolve(ctx context.Context, nameOrTxID string) (*types.Template, error) {
	if nameOrTxID == "" {
		return nil, fmt.Errorf("%w: empty template reference", types.ErrValidation)
	}
	if tpl, ok := r.cache.Get(nameOrTxID); ok {
		return tpl, nil
	}

	var tpl *types.Template
	var err error
	if isTxID(nameOrTxID) {
		tpl, err = r.store.GetTemplate(ctx, nameOrTxID)
		if errors.Is(err, types.ErrNotFound) && r.chain != nil {
			tpl, err = r.loadFromChain(ctx, nameOrTxID)
		}
	} else {
		// Names cannot be fetched upstream; there is no name index on
		// the chain. Templates enter by sync or explicit registration.
		tpl, err = r.store.GetTemplateByName(ctx, nameOrTxID)
	}
	if err != nil {
		return nil, err
	}

	r.cacheTemplate(tpl)
	return tpl, nil
}

// Register validates and indexes a template, making it resolvable by
// name and txid. Used by the publish pipeline and by chain sync.
func (r *Registry) Register(ctx context.Context, tpl *types.Template) error {
	if violations := ValidateTemplate(tpl); len(violations) > 0 {
		return types.ValidationErrors(violations)
	}
	if err := r.store.PutTemplate(ctx, tpl); err != nil {
		return err
	}
	r.cacheTemplate(tpl)
	return nil
}

// loadFromChain fetches the template record by txid, parses it, and
// re-indexes so the next resolve hits the store.
func (r *Registry) loadFromChain(ctx context.Context, txID string) (*types.Template, error) {
	rec, err := r.chain.Get(ctx, types.ArweaveDID(txID))
	if err != nil {
		return nil, err
	}
	tpl, err := ParseTemplateRecord(rec)
	if err != nil {
		return nil, err
	}
	if err := r.store.PutTemplate(ctx, tpl); err != nil {
		return nil, err
	}
	r.logger.Info().Str("template", tpl.Name).Str("txid", tpl.TxID).Msg("Template loaded from chain")
	return tpl, nil
}

// cacheTemplate inserts under both lookup keys.
func (r *Registry) cacheTemplate(tpl *types.Template) {
	if tpl.TxID != "" {
		r.cache.Add(tpl.TxID, tpl)
	}
	if tpl.Name != "" {
		r.cache.Add(tpl.Name, tpl)
	}
}

func isTxID(s string) bool {
	return types.ArweaveDID(s).Validate() == nil
}
