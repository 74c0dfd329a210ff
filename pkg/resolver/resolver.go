package resolver

import (
	"context"
	"encoding/json"

	"github.com/cuemby/burrow/pkg/types"
)

// MaxDepth is the hard cap on reference resolution. Cycles between
// records are tolerated because the depth budget, not cycle detection,
// bounds the traversal.
const MaxDepth = 5

// Corpus supplies referenced records during resolution. Lookups that
// miss degrade gracefully: the DID stays a string in the output.
type Corpus interface {
	Lookup(ctx context.Context, did types.DID) (*types.Record, bool)
}

// SliceCorpus serves lookups from a pre-loaded batch, the cheap path for
// query results resolved against themselves.
type SliceCorpus map[types.DID]*types.Record

// NewSliceCorpus indexes a batch of records by DID.
func NewSliceCorpus(records []*types.Record) SliceCorpus {
	c := make(SliceCorpus, len(records))
	for _, rec := range records {
		if rec != nil && rec.Meta != nil && rec.Meta.DID != "" {
			c[rec.Meta.DID] = rec
		}
	}
	return c
}

func (c SliceCorpus) Lookup(ctx context.Context, did types.DID) (*types.Record, bool) {
	rec, ok := c[did]
	return rec, ok
}

// FuncCorpus adapts a lookup callback, the on-demand path backed by the
// index store.
type FuncCorpus func(ctx context.Context, did types.DID) (*types.Record, bool)

func (f FuncCorpus) Lookup(ctx context.Context, did types.DID) (*types.Record, bool) {
	return f(ctx, did)
}

// Options control one resolution pass.
type Options struct {
	// Depth is the reference budget. 0 is the identity; values above
	// MaxDepth are clamped.
	Depth int

	// NamesOnly collapses each resolved child to its data.basic.name
	// string instead of embedding the full record.
	NamesOnly bool
}

// Resolve returns a copy of rec in which every string field whose value
// is a DID present in corpus is replaced by the referenced record,
// recursively with a decremented budget. Arrays resolve element-wise.
// The input record is never mutated.
func Resolve(ctx context.Context, rec *types.Record, corpus Corpus, opts Options) *types.Record {
	out := rec.Clone()
	if out == nil {
		return nil
	}
	depth := opts.Depth
	if depth > MaxDepth {
		depth = MaxDepth
	}
	if depth <= 0 || corpus == nil {
		return out
	}

	r := &resolver{corpus: corpus, namesOnly: opts.NamesOnly}
	for _, section := range out.Data {
		for field, value := range section {
			section[field] = r.resolveValue(ctx, value, depth)
		}
	}
	return out
}

type resolver struct {
	corpus    Corpus
	namesOnly bool
}

// resolveValue rewrites one value with the remaining budget. Plain
// nested objects do not consume budget; only crossing into another
// record does, which keeps resolution idempotent at a fixed depth.
func (r *resolver) resolveValue(ctx context.Context, v any, remaining int) any {
	switch val := v.(type) {
	case string:
		if remaining <= 0 || !types.IsDID(val) {
			return val
		}
		child, ok := r.corpus.Lookup(ctx, types.DID(val))
		if !ok || child == nil {
			return val
		}
		return r.embed(ctx, child, remaining-1)
	case []any:
		out := make([]any, len(val))
		for i, el := range val {
			out[i] = r.resolveValue(ctx, el, remaining)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, el := range val {
			out[i] = r.resolveValue(ctx, el, remaining)
		}
		return out
	case map[string]any:
		if isRecordShape(val) {
			if remaining <= 0 {
				return val
			}
			return r.resolveEmbedded(ctx, val, remaining-1)
		}
		out := make(map[string]any, len(val))
		for k, el := range val {
			out[k] = r.resolveValue(ctx, el, remaining)
		}
		return out
	default:
		return v
	}
}

// embed produces the in-place representation of a resolved child.
func (r *resolver) embed(ctx context.Context, child *types.Record, remaining int) any {
	if r.namesOnly {
		return child.Name()
	}
	resolved := Resolve(ctx, child, r.corpus, Options{Depth: remaining})
	return recordView(resolved)
}

// resolveEmbedded walks the data of an already-embedded record so that
// re-resolving an output reproduces it rather than deepening it.
func (r *resolver) resolveEmbedded(ctx context.Context, val map[string]any, remaining int) map[string]any {
	out := make(map[string]any, len(val))
	for k, v := range val {
		out[k] = v
	}
	data, ok := val["data"].(map[string]any)
	if !ok {
		return out
	}
	newData := make(map[string]any, len(data))
	for tpl, section := range data {
		newData[tpl] = r.resolveValue(ctx, section, remaining)
	}
	out["data"] = newData
	return out
}

// isRecordShape recognizes an embedded record by its envelope keys.
func isRecordShape(m map[string]any) bool {
	_, hasData := m["data"]
	_, hasOip := m["oip"]
	return hasData && hasOip
}

// recordView converts a record to its JSON map form for embedding.
func recordView(rec *types.Record) map[string]any {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
