package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// RangeFilter bounds a numeric field. Nil ends are open.
type RangeFilter struct {
	Path string
	Min  *float64
	Max  *float64
}

// ContainsFilter matches records whose array at Path contains Value.
type ContainsFilter struct {
	Path  string
	Value string
}

// RecordQuery narrows a record scan. Zero-value fields match everything.
// Execution is a bucket scan with in-memory predicates; the richer
// filtering that cannot run here (ownership, fuzzy matching, scoring,
// dedup) lives in pkg/query on top of this.
type RecordQuery struct {
	DID        string
	RecordType string
	Storage    types.StorageType
	Creator    string // oip.creator.didAddress

	// ExactPaths are dotted-path equality constraints; all must match.
	ExactPaths map[string]any

	// Search tokens are matched against the name/description/tags
	// bundle. Mode AND requires every token, OR any.
	Search     []string
	SearchMode types.MatchMode

	Ranges   []RangeFilter
	Contains []ContainsFilter

	// SortBy is a dotted path or one of the oip shorthand fields
	// (indexedAt, inArweaveBlock). Empty means bucket order.
	SortBy   string
	SortDesc bool

	// Offset/Limit slice the sorted result. Limit 0 means no cap.
	Offset int
	Limit  int
}

// SearchResult carries one page of records plus the pre-slice total.
type SearchResult struct {
	Records []*types.Record
	Total   int
}

// Store defines the interface for the content index.
// Implemented by BoltDB-backed storage.
type Store interface {
	// Records
	PutRecord(ctx context.Context, record *types.Record) error
	GetRecord(ctx context.Context, did string) (*types.Record, error)
	SearchRecords(ctx context.Context, q RecordQuery) (*SearchResult, error)
	CountRecords(ctx context.Context) (int, error)
	DeleteRecord(ctx context.Context, did string) error

	// Templates
	PutTemplate(ctx context.Context, tpl *types.Template) error
	GetTemplate(ctx context.Context, txid string) (*types.Template, error)
	GetTemplateByName(ctx context.Context, name string) (*types.Template, error)
	ListTemplates(ctx context.Context) ([]*types.Template, error)

	// Creators
	PutCreator(ctx context.Context, creator *types.Creator) error
	GetCreator(ctx context.Context, didAddress string) (*types.Creator, error)
	GetCreatorByPublicKey(ctx context.Context, publicKey string) (*types.Creator, error)
	ListCreators(ctx context.Context) ([]*types.Creator, error)

	// Sync progress (singleton)
	GetProgress(ctx context.Context) (*types.SyncProgress, error)
	SetProgress(ctx context.Context, p *types.SyncProgress) error

	// Utility
	Stats(ctx context.Context) (metrics.IndexStats, error)
	Close() error
}

// Matches reports whether rec satisfies every constraint of q except
// offset/limit and sort.
func (q RecordQuery) Matches(rec *types.Record) bool {
	if rec.Meta == nil {
		return false
	}
	if q.DID != "" && string(rec.Meta.DID) != q.DID {
		return false
	}
	if q.RecordType != "" && rec.Meta.RecordType != q.RecordType {
		return false
	}
	if q.Storage != "" && rec.Meta.Storage != q.Storage {
		return false
	}
	if q.Creator != "" {
		if rec.Meta.Creator == nil || rec.Meta.Creator.DIDAddress != q.Creator {
			return false
		}
	}
	for path, want := range q.ExactPaths {
		got, ok := rec.ValueAtPath(path)
		if !ok || !ValuesEqual(got, want) {
			return false
		}
	}
	for _, rf := range q.Ranges {
		v, ok := rec.ValueAtPath(rf.Path)
		if !ok {
			return false
		}
		n, ok := types.NumericValue(v)
		if !ok {
			return false
		}
		if rf.Min != nil && n < *rf.Min {
			return false
		}
		if rf.Max != nil && n > *rf.Max {
			return false
		}
	}
	for _, cf := range q.Contains {
		v, ok := rec.ValueAtPath(cf.Path)
		if !ok {
			return false
		}
		found := false
		for _, el := range types.StringSlice(v) {
			if el == cf.Value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.Search) > 0 {
		matched := MatchTokens(rec, q.Search)
		if q.SearchMode == types.MatchOR {
			if matched == 0 {
				return false
			}
		} else if matched < len(q.Search) {
			return false
		}
	}
	return true
}

// MatchTokens counts how many of the given lowercase tokens appear in
// the record's name/description/tags bundle. Shared with pkg/query so
// filter and matchCount agree.
func MatchTokens(rec *types.Record, tokens []string) int {
	bundle := SearchBundle(rec)
	matched := 0
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if strings.Contains(bundle, strings.ToLower(tok)) {
			matched++
		}
	}
	return matched
}

// SearchBundle is the lowercased full-text target: name, description,
// and tags joined with spaces.
func SearchBundle(rec *types.Record) string {
	parts := []string{rec.Name(), rec.Description()}
	parts = append(parts, rec.Tags()...)
	return strings.ToLower(strings.Join(parts, " "))
}

// ValuesEqual compares two JSON-shaped scalars, bridging the numeric
// types that different decode paths produce.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if an, ok := types.NumericValue(a); ok {
		if bn, ok := types.NumericValue(b); ok {
			return an == bn
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		return ab == bb
	}
	return false
}

// SortRecords orders records by the dotted path or shorthand field.
// Records missing the field sort last in either direction.
func SortRecords(records []*types.Record, sortBy string, desc bool) {
	if sortBy == "" {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		av, aok := SortValue(records[i], sortBy)
		bv, bok := SortValue(records[j], sortBy)
		if aok != bok {
			return aok
		}
		if !aok {
			return false
		}
		less, strict := CompareValues(av, bv)
		if !strict {
			return false
		}
		if desc {
			return !less
		}
		return less
	})
}

// CompareValues orders two JSON-shaped scalars. strict is false when
// they compare equal or are incomparable.
func CompareValues(a, b any) (less, strict bool) {
	if an, aIsNum := types.NumericValue(a); aIsNum {
		if bn, bIsNum := types.NumericValue(b); bIsNum {
			if an == bn {
				return false, false
			}
			return an < bn, true
		}
	}
	as, bs := strings.ToLower(stringValue(a)), strings.ToLower(stringValue(b))
	if as == bs {
		return false, false
	}
	return as < bs, true
}

// SortValue reads the sortable value behind a dotted path or one of
// the shorthand fields. Shared with pkg/query so both layers order
// records identically.
func SortValue(rec *types.Record, path string) (any, bool) {
	switch path {
	case "indexedAt":
		if rec.Meta == nil {
			return nil, false
		}
		return float64(rec.Meta.IndexedAt.UnixNano()), true
	case "inArweaveBlock":
		if rec.Meta == nil {
			return nil, false
		}
		return float64(rec.Meta.InArweaveBlock), true
	case "date":
		return rec.ValueAtPath("data.basic.date")
	case "name":
		return rec.ValueAtPath("data.basic.name")
	default:
		return rec.ValueAtPath(path)
	}
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
