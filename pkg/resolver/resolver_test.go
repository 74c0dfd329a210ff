package resolver

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/types"
)

func txid43(seed string) string {
	padded := seed + strings.Repeat("_", 43)
	return padded[:43]
}

func did(seed string) types.DID {
	return types.ArweaveDID(txid43(seed))
}

func namedRecord(seed, name string, extra map[string]any) *types.Record {
	data := types.RecordData{
		"basic": {"name": name},
	}
	if extra != nil {
		data["link"] = extra
	}
	return &types.Record{
		Data: data,
		Meta: &types.RecordMeta{
			DID:        did(seed),
			RecordType: "post",
			Storage:    types.StorageArweave,
		},
	}
}

// embeddedName digs data.basic.name out of an embedded record map.
func embeddedName(t *testing.T, v any) string {
	t.Helper()
	m, ok := v.(map[string]any)
	require.True(t, ok, "value %T is not an embedded record", v)
	data := m["data"].(map[string]any)
	basic := data["basic"].(map[string]any)
	return basic["name"].(string)
}

func TestResolveDepthZeroIsIdentity(t *testing.T) {
	rec := namedRecord("a", "A", map[string]any{"next": string(did("b"))})
	corpus := NewSliceCorpus([]*types.Record{namedRecord("b", "B", nil)})

	out := Resolve(context.Background(), rec, corpus, Options{Depth: 0})
	assert.Equal(t, rec, out)

	// The output is a copy, not the original.
	out.Data["basic"]["name"] = "mutated"
	assert.Equal(t, "A", rec.Name())
}

func TestResolveSingleLevel(t *testing.T) {
	feta := namedRecord("feta", "Feta", nil)
	salad := &types.Record{
		Data: types.RecordData{
			"basic": {"name": "Greek Salad"},
			"recipe": {
				"ingredient": []any{string(did("feta")), string(did("olive"))},
			},
		},
		Meta: &types.RecordMeta{DID: did("salad"), RecordType: "recipe"},
	}
	corpus := NewSliceCorpus([]*types.Record{feta})

	out := Resolve(context.Background(), salad, corpus, Options{Depth: 1})

	ingredients := out.Data["recipe"]["ingredient"].([]any)
	require.Len(t, ingredients, 2)
	assert.Equal(t, "Feta", embeddedName(t, ingredients[0]))
	// Lookup misses degrade to the DID string.
	assert.Equal(t, string(did("olive")), ingredients[1])
}

func TestResolveDepthBudget(t *testing.T) {
	a := namedRecord("a", "A", map[string]any{"next": string(did("b"))})
	b := namedRecord("b", "B", map[string]any{"next": string(did("c"))})
	c := namedRecord("c", "C", map[string]any{"next": string(did("d"))})
	d := namedRecord("d", "D", nil)
	corpus := NewSliceCorpus([]*types.Record{a, b, c, d})

	out := Resolve(context.Background(), a, corpus, Options{Depth: 2})

	bEmbed := out.Data["link"]["next"].(map[string]any)
	assert.Equal(t, "B", embeddedName(t, bEmbed))

	cEmbed := bEmbed["data"].(map[string]any)["link"].(map[string]any)["next"].(map[string]any)
	assert.Equal(t, "C", embeddedName(t, cEmbed))

	// Depth exhausted: C's reference to D stays a string, no error.
	cLink := cEmbed["data"].(map[string]any)["link"].(map[string]any)
	assert.Equal(t, string(did("d")), cLink["next"])
}

func TestResolveNamesOnly(t *testing.T) {
	feta := namedRecord("feta", "Feta", nil)
	olive := namedRecord("olive", "Olive", nil)
	salad := &types.Record{
		Data: types.RecordData{
			"basic": {"name": "Greek Salad"},
			"recipe": {
				"ingredient": []any{string(did("feta")), string(did("olive"))},
			},
		},
		Meta: &types.RecordMeta{DID: did("salad"), RecordType: "recipe"},
	}
	corpus := NewSliceCorpus([]*types.Record{feta, olive})

	out := Resolve(context.Background(), salad, corpus, Options{Depth: 1, NamesOnly: true})
	assert.Equal(t, []any{"Feta", "Olive"}, out.Data["recipe"]["ingredient"])
}

func TestResolveCyclesTerminate(t *testing.T) {
	a := namedRecord("a", "A", map[string]any{"next": string(did("b"))})
	b := namedRecord("b", "B", map[string]any{"next": string(did("a"))})
	corpus := NewSliceCorpus([]*types.Record{a, b})

	out := Resolve(context.Background(), a, corpus, Options{Depth: MaxDepth})

	// Walk to the bottom of the expansion: after MaxDepth hops the next
	// reference is still a plain string.
	cur := out.Data["link"]["next"]
	hops := 0
	for {
		m, ok := cur.(map[string]any)
		if !ok {
			break
		}
		hops++
		cur = m["data"].(map[string]any)["link"].(map[string]any)["next"]
	}
	assert.Equal(t, MaxDepth, hops)
	assert.IsType(t, "", cur)
}

func TestResolveClampsDepth(t *testing.T) {
	records := make([]*types.Record, 0, 8)
	for i := 0; i < 8; i++ {
		seed := string(rune('a' + i))
		next := string(rune('a' + i + 1))
		records = append(records, namedRecord(seed, strings.ToUpper(seed), map[string]any{"next": string(did(next))}))
	}
	corpus := NewSliceCorpus(records)

	out := Resolve(context.Background(), records[0], corpus, Options{Depth: 50})

	cur := out.Data["link"]["next"]
	hops := 0
	for {
		m, ok := cur.(map[string]any)
		if !ok {
			break
		}
		hops++
		cur = m["data"].(map[string]any)["link"].(map[string]any)["next"]
	}
	assert.Equal(t, MaxDepth, hops)
}

func TestResolveDoesNotMutateOriginal(t *testing.T) {
	feta := namedRecord("feta", "Feta", nil)
	salad := &types.Record{
		Data: types.RecordData{
			"basic":  {"name": "Greek Salad"},
			"recipe": {"ingredient": []any{string(did("feta"))}},
		},
		Meta: &types.RecordMeta{DID: did("salad"), RecordType: "recipe"},
	}
	corpus := NewSliceCorpus([]*types.Record{feta})

	_ = Resolve(context.Background(), salad, corpus, Options{Depth: 2})

	ingredients := salad.Data["recipe"]["ingredient"].([]any)
	assert.Equal(t, string(did("feta")), ingredients[0])
}

// Resolving an already-resolved record at the same depth reproduces it.
func TestResolveIdempotentAtFixedDepth(t *testing.T) {
	a := namedRecord("a", "A", map[string]any{"next": string(did("b"))})
	b := namedRecord("b", "B", map[string]any{"next": string(did("c"))})
	c := namedRecord("c", "C", map[string]any{"next": string(did("d"))})
	d := namedRecord("d", "D", nil)
	corpus := NewSliceCorpus([]*types.Record{a, b, c, d})
	ctx := context.Background()

	once := Resolve(ctx, a, corpus, Options{Depth: 2})
	twice := Resolve(ctx, once, corpus, Options{Depth: 2})
	assert.Equal(t, once, twice)
}

func TestFuncCorpus(t *testing.T) {
	feta := namedRecord("feta", "Feta", nil)
	lookups := 0
	corpus := FuncCorpus(func(ctx context.Context, d types.DID) (*types.Record, bool) {
		lookups++
		if d == did("feta") {
			return feta, true
		}
		return nil, false
	})

	salad := &types.Record{
		Data: types.RecordData{
			"basic":  {"name": "Greek Salad"},
			"recipe": {"ingredient": []any{string(did("feta")), string(did("missing"))}},
		},
		Meta: &types.RecordMeta{DID: did("salad"), RecordType: "recipe"},
	}

	out := Resolve(context.Background(), salad, corpus, Options{Depth: 1})
	ingredients := out.Data["recipe"]["ingredient"].([]any)
	assert.Equal(t, "Feta", embeddedName(t, ingredients[0]))
	assert.Equal(t, string(did("missing")), ingredients[1])
	assert.Equal(t, 2, lookups)
}
