package query

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/resolver"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// Engine answers record queries against the index store. It layers the
// matching the store cannot express (ownership, fuzzy scopes, scoring,
// dedup, shaping) on top of a bucket scan.
type Engine struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewEngine creates a query engine over the index store.
func NewEngine(store storage.Store) *Engine {
	return &Engine{
		store:  store,
		logger: log.WithComponent("query"),
	}
}

// TagCount is one histogram entry of a tag summary.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Result is one answered query. Records are shaped JSON objects ready
// for the response envelope.
type Result struct {
	Records       []map[string]any
	SearchResults int
	TotalRecords  int
	PageSize      int
	CurrentPage   int
	TotalPages    int

	// Tag summary, present when summarizeTags was requested. The
	// pagination fields then describe tag pages, and Records holds
	// every match carrying a tag from the current page.
	TagSummary []TagCount
	TagTotal   int
}

// Query runs the full pipeline. caller is the authenticated identity,
// nil for anonymous; it gates private record visibility and never
// causes an error by itself.
func (e *Engine) Query(ctx context.Context, params Params, caller *Caller) (*Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.QueryDuration)

	handleCreators, err := e.creatorsByHandle(ctx, params.CreatorHandle)
	if err != nil {
		return nil, err
	}

	found, err := e.store.SearchRecords(ctx, storeQuery(params))
	if err != nil {
		return nil, err
	}

	tokens := params.SearchTokens()
	names := make(map[types.DID]string)
	lookup := e.nameLookup(names)

	scored := make([]*scoredRecord, 0, len(found.Records))
	for _, rec := range found.Records {
		if !visibleTo(rec, caller) {
			continue
		}
		if !passesFilters(rec, params, handleCreators) {
			continue
		}
		sr := &scoredRecord{rec: rec}
		if len(tokens) > 0 {
			sr.matchCount = storage.MatchTokens(rec, tokens)
			sr.hasMatchCount = true
		}
		if !sr.applyTagScore(params) {
			continue
		}
		if !applyScopeScores(ctx, sr, params, lookup) {
			continue
		}
		scored = append(scored, sr)
	}

	sortScored(scored, params)
	if params.NoDuplicates {
		scored = dedupByName(scored)
	}

	totalRecords, err := e.store.CountRecords(ctx)
	if err != nil {
		return nil, err
	}

	out := &Result{
		SearchResults: len(scored),
		TotalRecords:  totalRecords,
		PageSize:      params.Limit,
		CurrentPage:   params.Page,
	}

	if params.SummarizeTags {
		summary, tagTotal := summarizeTags(scored, params.Limit, params.Page)
		out.TagSummary = summary
		out.TagTotal = tagTotal
		out.TotalPages = totalPages(tagTotal, params.Limit)
		scored = filterToTags(scored, summary)
	} else {
		out.TotalPages = totalPages(len(scored), params.Limit)
		scored = paginateScored(scored, params.Limit, params.Page)
	}

	corpus := resolver.FuncCorpus(func(ctx context.Context, did types.DID) (*types.Record, bool) {
		rec, err := e.store.GetRecord(ctx, string(did))
		if err != nil || !visibleTo(rec, caller) {
			return nil, false
		}
		return rec, true
	})

	out.Records = make([]map[string]any, 0, len(scored))
	for _, sr := range scored {
		resolved := resolver.Resolve(ctx, sr.rec, corpus, resolver.Options{
			Depth:     params.ResolveDepth,
			NamesOnly: params.ResolveNamesOnly,
		})
		shaped, err := shapeRecord(resolved, sr, params)
		if err != nil {
			return nil, err
		}
		out.Records = append(out.Records, shaped)
	}

	e.logger.Debug().
		Int("candidates", len(found.Records)).
		Int("matched", out.SearchResults).
		Int("returned", len(out.Records)).
		Msg("Query answered")
	return out, nil
}

// storeQuery maps the params the store can evaluate natively.
func storeQuery(p Params) storage.RecordQuery {
	q := storage.RecordQuery{
		DID:        p.DID,
		RecordType: p.RecordType,
		Storage:    p.Source,
		Creator:    p.CreatorDID,
		ExactPaths: p.ExactMatch,
		Search:     p.SearchTokens(),
		SearchMode: p.SearchMatchMode,
	}
	if p.DateStart != nil || p.DateEnd != nil {
		q.Ranges = append(q.Ranges, storage.RangeFilter{
			Path: "data.basic.date",
			Min:  p.DateStart,
			Max:  p.DateEnd,
		})
	}
	return q
}

// creatorsByHandle maps a creatorHandle to the DID addresses behind
// it. A nil map means the filter is off; an empty one matches nothing.
func (e *Engine) creatorsByHandle(ctx context.Context, handle string) (map[string]bool, error) {
	if handle == "" {
		return nil, nil
	}
	creators, err := e.store.ListCreators(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, c := range creators {
		if strings.EqualFold(c.Handle, handle) {
			out[c.DIDAddress] = true
		}
	}
	return out, nil
}

// nameLookup resolves reference DIDs to names for scope scoring, with
// a per-query memo so fan-out references hit the store once.
func (e *Engine) nameLookup(cache map[types.DID]string) nameSource {
	return func(ctx context.Context, did types.DID) (string, bool) {
		if name, ok := cache[did]; ok {
			return name, name != ""
		}
		rec, err := e.store.GetRecord(ctx, string(did))
		if err != nil {
			cache[did] = ""
			return "", false
		}
		name := rec.Name()
		cache[did] = name
		return name, name != ""
	}
}

// visibleTo applies the ownership filter: private records exist only
// for their owner. Counts are computed after this filter so a caller
// can never detect a foreign private record.
func visibleTo(rec *types.Record, caller *Caller) bool {
	if !rec.Private() {
		return true
	}
	return caller != nil && caller.PublicKey != "" &&
		caller.PublicKey == rec.AccessControl.OwnerPublicKey
}

// passesFilters applies the in-memory filters the store query left
// open.
func passesFilters(rec *types.Record, p Params, handleCreators map[string]bool) bool {
	if rec.Meta.RecordType == types.RecordTypeDeleteMessage &&
		!p.IncludeDeleteMessages &&
		p.RecordType != types.RecordTypeDeleteMessage {
		return false
	}
	if p.Template != "" && !templateMatches(rec, p.Template) {
		return false
	}
	if p.URL != "" && !urlMatches(rec, p.URL) {
		return false
	}
	if handleCreators != nil {
		if rec.Meta.Creator == nil || !handleCreators[rec.Meta.Creator.DIDAddress] {
			return false
		}
	}
	if p.DIDTxRef != "" && !referencesDID(rec, p.DIDTxRef) {
		return false
	}
	if p.InArweaveBlock != nil && rec.Meta.InArweaveBlock != *p.InArweaveBlock {
		return false
	}
	if p.HasAudio != nil && hasAudio(rec) != *p.HasAudio {
		return false
	}
	return true
}

// applyScopeScores filters and scores the domain-scoped parameters.
// OR scopes need one match; equipmentRequired needs all.
func applyScopeScores(ctx context.Context, sr *scoredRecord, p Params, lookup nameSource) bool {
	if len(p.ExerciseNames) > 0 {
		score, matched := scoreNameList(p.ExerciseNames, listNames(ctx, sr.rec, "workout", "exercise", lookup))
		if matched == 0 {
			return false
		}
		sr.setScope("exerciseNames", score, matched)
	}
	if len(p.IngredientNames) > 0 {
		score, matched := scoreNameList(p.IngredientNames, listNames(ctx, sr.rec, "recipe", "ingredient", lookup))
		if matched == 0 {
			return false
		}
		sr.setScope("ingredientNames", score, matched)
	}
	if len(p.EquipmentRequired) > 0 {
		score, matched, pass := scoreEquipment(p.EquipmentRequired, sr.rec)
		if !pass {
			return false
		}
		sr.setScope("equipmentRequired", score, matched)
	}
	if len(p.ExerciseType) > 0 {
		score, matched := scoreExerciseType(p.ExerciseType, sr.rec)
		if matched == 0 {
			return false
		}
		sr.setScope("exerciseType", score, matched)
	}
	if len(p.Cuisine) > 0 {
		score, matched := scoreCuisine(p.Cuisine, sr.rec)
		if matched == 0 {
			return false
		}
		sr.setScope("cuisine", score, matched)
	}
	return true
}

// templateMatches reports whether any template section name contains
// the requested substring.
func templateMatches(rec *types.Record, want string) bool {
	lw := strings.ToLower(want)
	for section := range rec.Data {
		if strings.Contains(strings.ToLower(section), lw) {
			return true
		}
	}
	return false
}

func urlMatches(rec *types.Record, want string) bool {
	v, ok := rec.ValueAtPath("data.basic.webUrl")
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && strings.Contains(strings.ToLower(s), strings.ToLower(want))
}

// referencesDID walks the record data for the given DID appearing as
// any value, at any depth.
func referencesDID(rec *types.Record, did string) bool {
	for _, section := range rec.Data {
		if valueReferences(section, did) {
			return true
		}
	}
	return false
}

func valueReferences(v any, did string) bool {
	switch val := v.(type) {
	case string:
		return val == did
	case []any:
		for _, el := range val {
			if valueReferences(el, did) {
				return true
			}
		}
	case []string:
		for _, el := range val {
			if el == did {
				return true
			}
		}
	case map[string]any:
		for _, el := range val {
			if valueReferences(el, did) {
				return true
			}
		}
	}
	return false
}

var audioExtensions = []string{".mp3", ".wav", ".ogg", ".m4a", ".aac", ".flac"}

// hasAudio is a structural scan: an audio section, an audio-named
// field with a value, or a webUrl pointing at an audio file.
func hasAudio(rec *types.Record) bool {
	for section, fields := range rec.Data {
		if strings.EqualFold(section, "audio") {
			return true
		}
		for name, v := range fields {
			if strings.Contains(strings.ToLower(name), "audio") && !isEmptyValue(v) {
				return true
			}
		}
	}
	if v, ok := rec.ValueAtPath("data.basic.webUrl"); ok {
		if s, ok := v.(string); ok {
			lower := strings.ToLower(s)
			for _, ext := range audioExtensions {
				if strings.HasSuffix(lower, ext) {
					return true
				}
			}
		}
	}
	return false
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}

func totalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

func paginateScored(scored []*scoredRecord, limit, page int) []*scoredRecord {
	if limit <= 0 {
		return nil
	}
	offset := (page - 1) * limit
	if offset >= len(scored) {
		return nil
	}
	end := offset + limit
	if end > len(scored) {
		end = len(scored)
	}
	return scored[offset:end]
}
