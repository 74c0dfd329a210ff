package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

var (
	// Bucket names
	bucketRecords   = []byte("records")
	bucketTemplates = []byte("templates")
	bucketCreators  = []byte("creators")
	bucketProgress  = []byte("sync_progress")
	bucketMeta      = []byte("meta")

	progressKey      = []byte("progress")
	schemaVersionKey = []byte("schema_version")
)

// SchemaVersion is stamped into the meta bucket on creation and checked
// by the reindex tool before destructive maintenance.
const SchemaVersion = "1"

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "burrow.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", types.ErrStore, err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketRecords,
			bucketTemplates,
			bucketCreators,
			bucketProgress,
			bucketMeta,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}

		meta := tx.Bucket(bucketMeta)
		if meta.Get(schemaVersionKey) == nil {
			if err := meta.Put(schemaVersionKey, []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("stamp schema version: %w", err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", types.ErrStore, err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Record operations

// PutRecord upserts a record keyed by its DID. Re-indexing the same
// record is idempotent: the document is replaced wholesale.
func (s *BoltStore) PutRecord(ctx context.Context, record *types.Record) error {
	if record == nil || record.Meta == nil || record.Meta.DID == "" {
		return fmt.Errorf("%w: record missing oip.did", types.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(record.Meta.DID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: put record %s: %v", types.ErrStore, record.Meta.DID, err)
	}
	return nil
}

func (s *BoltStore) GetRecord(ctx context.Context, did string) (*types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var record types.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		data := b.Get([]byte(did))
		if data == nil {
			return fmt.Errorf("record %s: %w", did, types.ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// SearchRecords scans the records bucket and applies q's predicates in
// memory, then sorts and slices. Total reflects the match count before
// offset/limit.
func (s *BoltStore) SearchRecords(ctx context.Context, q RecordQuery) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Point lookup fast path.
	if q.DID != "" {
		rec, err := s.GetRecord(ctx, q.DID)
		if err != nil {
			if isNotFound(err) {
				return &SearchResult{}, nil
			}
			return nil, err
		}
		if !q.Matches(rec) {
			return &SearchResult{}, nil
		}
		return &SearchResult{Records: []*types.Record{rec}, Total: 1}, nil
	}

	var matched []*types.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		return b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record types.Record
			if err := json.Unmarshal(v, &record); err != nil {
				// A document that does not decode is skipped, not
				// fatal; the reindex tool clears these.
				return nil
			}
			if q.Matches(&record) {
				matched = append(matched, &record)
			}
			return nil
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: search records: %v", types.ErrStore, err)
	}

	SortRecords(matched, q.SortBy, q.SortDesc)

	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	return &SearchResult{Records: matched, Total: total}, nil
}

func (s *BoltStore) CountRecords(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count records: %v", types.ErrStore, err)
	}
	return count, nil
}

func (s *BoltStore) DeleteRecord(ctx context.Context, did string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).Delete([]byte(did))
	})
	if err != nil {
		return fmt.Errorf("%w: delete record %s: %v", types.ErrStore, did, err)
	}
	return nil
}

// Template operations

func (s *BoltStore) PutTemplate(ctx context.Context, tpl *types.Template) error {
	if tpl == nil || tpl.TxID == "" {
		return fmt.Errorf("%w: template missing txid", types.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTemplates)
		data, err := json.Marshal(tpl)
		if err != nil {
			return err
		}
		return b.Put([]byte(tpl.TxID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: put template %s: %v", types.ErrStore, tpl.TxID, err)
	}
	return nil
}

func (s *BoltStore) GetTemplate(ctx context.Context, txid string) (*types.Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var tpl types.Template
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTemplates)
		data := b.Get([]byte(txid))
		if data == nil {
			return fmt.Errorf("template %s: %w", txid, types.ErrNotFound)
		}
		return json.Unmarshal(data, &tpl)
	})
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// GetTemplateByName scans for a template with the given name. When the
// chain carries several versions the most recently indexed wins.
func (s *BoltStore) GetTemplateByName(ctx context.Context, name string) (*types.Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var found *types.Template
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTemplates)
		return b.ForEach(func(k, v []byte) error {
			var tpl types.Template
			if err := json.Unmarshal(v, &tpl); err != nil {
				return nil
			}
			if tpl.Name != name {
				return nil
			}
			if found == nil || tpl.IndexedAt.After(found.IndexedAt) {
				found = &tpl
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: template by name: %v", types.ErrStore, err)
	}
	if found == nil {
		return nil, fmt.Errorf("template %q: %w", name, types.ErrNotFound)
	}
	return found, nil
}

func (s *BoltStore) ListTemplates(ctx context.Context) ([]*types.Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var templates []*types.Template
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTemplates)
		return b.ForEach(func(k, v []byte) error {
			var tpl types.Template
			if err := json.Unmarshal(v, &tpl); err != nil {
				return nil
			}
			templates = append(templates, &tpl)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list templates: %v", types.ErrStore, err)
	}
	return templates, nil
}

// Creator operations

func (s *BoltStore) PutCreator(ctx context.Context, creator *types.Creator) error {
	if creator == nil || creator.DIDAddress == "" {
		return fmt.Errorf("%w: creator missing didAddress", types.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCreators)
		data, err := json.Marshal(creator)
		if err != nil {
			return err
		}
		return b.Put([]byte(creator.DIDAddress), data)
	})
	if err != nil {
		return fmt.Errorf("%w: put creator %s: %v", types.ErrStore, creator.DIDAddress, err)
	}
	return nil
}

func (s *BoltStore) GetCreator(ctx context.Context, didAddress string) (*types.Creator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var creator types.Creator
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCreators)
		data := b.Get([]byte(didAddress))
		if data == nil {
			return fmt.Errorf("creator %s: %w", didAddress, types.ErrNotFound)
		}
		return json.Unmarshal(data, &creator)
	})
	if err != nil {
		return nil, err
	}
	return &creator, nil
}

func (s *BoltStore) GetCreatorByPublicKey(ctx context.Context, publicKey string) (*types.Creator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var found *types.Creator
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCreators)
		return b.ForEach(func(k, v []byte) error {
			var creator types.Creator
			if err := json.Unmarshal(v, &creator); err != nil {
				return nil
			}
			if creator.PublicKey == publicKey {
				found = &creator
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creator by key: %v", types.ErrStore, err)
	}
	if found == nil {
		return nil, fmt.Errorf("creator key %s: %w", publicKey, types.ErrNotFound)
	}
	return found, nil
}

func (s *BoltStore) ListCreators(ctx context.Context) ([]*types.Creator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var creators []*types.Creator
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCreators)
		return b.ForEach(func(k, v []byte) error {
			var creator types.Creator
			if err := json.Unmarshal(v, &creator); err != nil {
				return nil
			}
			creators = append(creators, &creator)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list creators: %v", types.ErrStore, err)
	}
	return creators, nil
}

// Sync progress operations

// GetProgress reads the block-walk cursor singleton. A store that has
// never synced returns types.ErrNotFound; the walker starts from the
// configured genesis in that case.
func (s *BoltStore) GetProgress(ctx context.Context) (*types.SyncProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var progress types.SyncProgress
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProgress)
		data := b.Get(progressKey)
		if data == nil {
			return fmt.Errorf("sync progress: %w", types.ErrNotFound)
		}
		return json.Unmarshal(data, &progress)
	})
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// SetProgress persists the cursor. The block walker is the only writer;
// commits here are what make a crash re-walk idempotent rather than
// lossy.
func (s *BoltStore) SetProgress(ctx context.Context, p *types.SyncProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProgress)
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put(progressKey, data)
	})
	if err != nil {
		return fmt.Errorf("%w: set progress: %v", types.ErrStore, err)
	}
	return nil
}

// Stats snapshots entity counts for the metrics collector.
func (s *BoltStore) Stats(ctx context.Context) (metrics.IndexStats, error) {
	stats := metrics.IndexStats{
		RecordsByStorage: map[string]int{},
		RecordsByType:    map[string]int{},
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var record types.Record
			if err := json.Unmarshal(v, &record); err != nil || record.Meta == nil {
				return nil
			}
			stats.RecordsByStorage[string(record.Meta.Storage)]++
			stats.RecordsByType[record.Meta.RecordType]++
			return nil
		}); err != nil {
			return err
		}
		stats.Templates = tx.Bucket(bucketTemplates).Stats().KeyN
		stats.Creators = tx.Bucket(bucketCreators).Stats().KeyN

		if data := tx.Bucket(bucketProgress).Get(progressKey); data != nil {
			var progress types.SyncProgress
			if err := json.Unmarshal(data, &progress); err == nil {
				stats.CursorBlock = progress.LatestIndexedBlock
			}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("%w: stats: %v", types.ErrStore, err)
	}
	return stats, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
