/*
Package query answers record queries against Burrow's content index.

The query package owns everything between a parsed URL query string and the
shaped JSON objects the API returns: parameter validation, the filters the
store cannot evaluate, relevance scoring, sorting, deduplication, pagination,
reference resolution, and response shaping. The store performs the coarse
bucket scan; this package refines it.

# Architecture

One request flows through a fixed pipeline:

	┌──────────────────────── QUERY PIPELINE ────────────────────────┐
	│                                                                  │
	│  url.Values ──► ParseParams ──► Params                          │
	│                    (validation, defaults, scope pinning)        │
	│                                                                  │
	│  ┌────────────────────────────────────────────────┐            │
	│  │ 1. Store scan          storage.SearchRecords    │            │
	│  │    did/type/source/creator/exactMatch/          │            │
	│  │    search tokens/date range                     │            │
	│  └──────────────────────┬─────────────────────────┘            │
	│  ┌──────────────────────▼─────────────────────────┐            │
	│  │ 2. Refine              per candidate            │            │
	│  │    visibility (private records)                 │            │
	│  │    deleteMessage exclusion                      │            │
	│  │    template/url/handle/didTxRef/hasAudio        │            │
	│  │    tag + domain scope scoring (filters too)     │            │
	│  └──────────────────────┬─────────────────────────┘            │
	│  ┌──────────────────────▼─────────────────────────┐            │
	│  │ 3. Order               sortScored               │            │
	│  │    explicit sortBy, or the first scoring        │            │
	│  │    parameter, or inArweaveBlock descending      │            │
	│  │    ties: date desc, then DID asc                │            │
	│  └──────────────────────┬─────────────────────────┘            │
	│  ┌──────────────────────▼─────────────────────────┐            │
	│  │ 4. Slice               dedup + paginate         │            │
	│  │    (or tag histogram in summarizeTags mode)     │            │
	│  └──────────────────────┬─────────────────────────┘            │
	│  ┌──────────────────────▼─────────────────────────┐            │
	│  │ 5. Shape               per returned record      │            │
	│  │    resolver.Resolve (visibility-checked)        │            │
	│  │    dateReadable, signature/key withholding,     │            │
	│  │    null stripping, score attachment             │            │
	│  └────────────────────────────────────────────────┘            │
	│                                                                  │
	└──────────────────────────────────────────────────────────────┘

Counting happens between stages 2 and 4: SearchResults is the number of
records that survived refinement for this caller, TotalRecords is the size
of the whole index. Only the returned page pays for resolution and shaping.

# Parameters

Params is the closed, validated parameter set. Families:

  - Scope: source, recordType, template, did, didTxRef
  - Identity: creator_did_address, creatorHandle, url
  - Full-text: search with searchMatchMode (AND default)
  - Tags: tags with tagsMatchMode (OR default), scored by overlap
  - Domain scopes: exerciseNames, ingredientNames, equipmentRequired,
    exerciseType, cuisine
  - Structural: exactMatch (JSON object of dotted paths), dateStart/dateEnd,
    inArweaveBlock, hasAudio
  - Shape: resolveDepth, resolveNamesOnly, hideNullValues, hideDateReadable,
    includeSigs, includePubKeys, includeDeleteMessages, noDuplicates
  - Slice: sortBy (field:asc|desc from a closed set), limit, page
  - summarizeTags: switch the response to a tag histogram

Every domain scope pins the record type it lives on (cuisine means recipes);
combining a scope with a contradicting recordType is a validation error.

# Scoring

Scoring parameters both filter and rank:

  - search: matchCount is the number of terms found in the name,
    description, and tags bundle
  - tags: score is matched/requested overlap; AND mode requires all
  - list scopes (exerciseNames, ingredientNames): requested names match
    candidates by substring, DID references resolve to the referenced
    record's name first; matches in requested order earn a small bonus,
    capped at 1.0
  - equipmentRequired: every requested item must fuzzy-match (AND)
  - exerciseType: enum codes match numerically, labels case-insensitively
  - cuisine: case-insensitive substring

Each scope attaches <scope>Score and <scope>MatchedCount to its records.
Without an explicit sortBy, the first supplied scoring parameter orders the
results, newest block first otherwise.

# Visibility

Private records exist only for their owner. The ownership check runs before
counting, so SearchResults never reveals a foreign private record, and the
resolution corpus applies the same check, so a private record never embeds
into someone else's results. The caller is whoever the API authenticated;
nil means anonymous.

# Usage

	eng := query.NewEngine(store)
	params, err := query.ParseParams(r.URL.Query(), query.Defaults{
		Limit:           cfg.GetInt(config.QueryDefaultLimit),
		MaxResolveDepth: cfg.GetInt(config.QueryMaxResolveDepth),
	})
	if err != nil {
		// types.ErrValidation → 400
	}
	res, err := eng.Query(r.Context(), params, caller)

# Integration Points

  - pkg/storage: RecordQuery scan, shared MatchTokens/CompareValues/SortValue
    so both layers agree on matching and order
  - pkg/resolver: reference embedding on the returned page
  - pkg/types: parameter and filter errors wrap types.ErrValidation
  - pkg/api: translates Result into the HTTP envelope
  - pkg/metrics: burrow_query_duration_seconds

# Performance Characteristics

  - One bucket scan per query; refinement is in-memory over the candidates
  - Reference name lookups for list scopes are memoized per query
  - Resolution and shaping run only for the returned page
  - summarizeTags paginates the histogram, not the records

# Limitations

  - Matching is scan-based; there are no inverted indexes, so cost grows
    with the candidate set the store filters leave behind
  - Name-list scoring sees one level of references; a workout pointing at
    a workout of exercises does not flatten
  - Tag histogram spellings follow first appearance, counting is
    case-insensitive

# See Also

  - pkg/storage: the scan this package refines
  - pkg/resolver: reference resolution semantics
  - pkg/api: the HTTP surface over Query
*/
package query
