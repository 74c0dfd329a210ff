package query

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/types"
)

// Defaults carry the config-driven parameter defaults.
type Defaults struct {
	Limit           int // QUERY_DEFAULT_LIMIT
	MaxResolveDepth int // QUERY_MAX_RESOLVE_DEPTH
}

// DefaultResolveDepth applies when the caller does not set resolveDepth.
const DefaultResolveDepth = 2

// Caller identifies an authenticated requester. Nil means anonymous.
type Caller struct {
	PublicKey  string
	DIDAddress string
	UserID     string
}

// Params is the parsed, validated form of a records query. The
// parameter set is closed; unknown URL parameters are ignored.
type Params struct {
	// Scope
	Source     types.StorageType
	RecordType string
	Template   string
	DID        string
	DIDTxRef   string

	// Identity
	CreatorDID    string
	CreatorHandle string
	URL           string

	// Full-text
	Search          string
	SearchMatchMode types.MatchMode

	// Tags
	Tags          []string
	TagsMatchMode types.MatchMode

	// Domain scopes
	ExerciseNames     []string
	IngredientNames   []string
	EquipmentRequired []string
	ExerciseType      []string
	Cuisine           []string

	// Structural
	ExactMatch     map[string]any
	DateStart      *float64
	DateEnd        *float64
	InArweaveBlock *int64
	HasAudio       *bool

	// Shape
	ResolveDepth          int
	ResolveNamesOnly      bool
	HideNullValues        bool
	HideDateReadable      bool
	IncludeSigs           bool
	IncludePubKeys        bool
	IncludeDeleteMessages bool
	NoDuplicates          bool

	// Sort
	SortBy   string
	SortDesc bool

	// Pagination
	Limit int
	Page  int

	// Tag summary
	SummarizeTags bool
}

// sortFields is the closed set sortBy accepts. Computed scores sort on
// the value attached during scoring.
var sortFields = map[string]bool{
	"date":                   true,
	"name":                   true,
	"indexedAt":              true,
	"inArweaveBlock":         true,
	"matchCount":             true,
	"score":                  true,
	"cuisineScore":           true,
	"exerciseNamesScore":     true,
	"ingredientNamesScore":   true,
	"equipmentRequiredScore": true,
	"exerciseTypeScore":      true,
}

// scopeRecordTypes maps each domain-scoped parameter to the record
// type its fields live on.
var scopeRecordTypes = map[string]string{
	"exerciseNames":     "workout",
	"ingredientNames":   "recipe",
	"equipmentRequired": "exercise",
	"exerciseType":      "exercise",
	"cuisine":           "recipe",
}

// ParseParams validates URL query values into Params. All failures
// wrap types.ErrValidation so the API layer maps them to 4xx.
func ParseParams(values url.Values, defaults Defaults) (Params, error) {
	if defaults.Limit <= 0 {
		defaults.Limit = 20
	}
	if defaults.MaxResolveDepth <= 0 {
		defaults.MaxResolveDepth = 5
	}

	p := Params{
		RecordType:    values.Get("recordType"),
		Template:      values.Get("template"),
		DID:           values.Get("did"),
		DIDTxRef:      values.Get("didTxRef"),
		CreatorDID:    values.Get("creator_did_address"),
		CreatorHandle: values.Get("creatorHandle"),
		URL:           values.Get("url"),
		Search:        values.Get("search"),
		ResolveDepth:  DefaultResolveDepth,
		Limit:         defaults.Limit,
		Page:          1,
	}

	switch src := values.Get("source"); src {
	case "", "all":
		p.Source = ""
	case string(types.StorageArweave):
		p.Source = types.StorageArweave
	case string(types.StorageGun):
		p.Source = types.StorageGun
	default:
		return p, fmt.Errorf("%w: source must be all, arweave, or gun, got %q", types.ErrValidation, src)
	}

	var err error
	if p.SearchMatchMode, err = types.ParseMatchMode(values.Get("searchMatchMode"), types.MatchAND); err != nil {
		return p, fmt.Errorf("searchMatchMode: %w", err)
	}
	if p.TagsMatchMode, err = types.ParseMatchMode(values.Get("tagsMatchMode"), types.MatchOR); err != nil {
		return p, fmt.Errorf("tagsMatchMode: %w", err)
	}

	p.Tags = splitList(values.Get("tags"))
	p.ExerciseNames = splitList(values.Get("exerciseNames"))
	p.IngredientNames = splitList(values.Get("ingredientNames"))
	p.EquipmentRequired = splitList(values.Get("equipmentRequired"))
	p.ExerciseType = splitList(values.Get("exerciseType"))
	p.Cuisine = splitList(values.Get("cuisine"))

	if raw := values.Get("exactMatch"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.ExactMatch); err != nil {
			return p, fmt.Errorf("%w: exactMatch is not a JSON object: %v", types.ErrValidation, err)
		}
	}

	if p.DateStart, err = parseOptFloat(values, "dateStart"); err != nil {
		return p, err
	}
	if p.DateEnd, err = parseOptFloat(values, "dateEnd"); err != nil {
		return p, err
	}
	if raw := values.Get("inArweaveBlock"); raw != "" {
		block, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return p, fmt.Errorf("%w: inArweaveBlock must be an integer, got %q", types.ErrValidation, raw)
		}
		p.InArweaveBlock = &block
	}
	if raw := values.Get("hasAudio"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return p, fmt.Errorf("%w: hasAudio must be a boolean, got %q", types.ErrValidation, raw)
		}
		p.HasAudio = &b
	}

	if raw := values.Get("resolveDepth"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil || depth < 0 {
			return p, fmt.Errorf("%w: resolveDepth must be a non-negative integer, got %q", types.ErrValidation, raw)
		}
		p.ResolveDepth = depth
	}
	if p.ResolveDepth > defaults.MaxResolveDepth {
		p.ResolveDepth = defaults.MaxResolveDepth
	}

	for name, dst := range map[string]*bool{
		"resolveNamesOnly":      &p.ResolveNamesOnly,
		"hideNullValues":        &p.HideNullValues,
		"hideDateReadable":      &p.HideDateReadable,
		"includeSigs":           &p.IncludeSigs,
		"includePubKeys":        &p.IncludePubKeys,
		"includeDeleteMessages": &p.IncludeDeleteMessages,
		"noDuplicates":          &p.NoDuplicates,
		"summarizeTags":         &p.SummarizeTags,
	} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return p, fmt.Errorf("%w: %s must be a boolean, got %q", types.ErrValidation, name, raw)
		}
		*dst = b
	}

	if raw := values.Get("sortBy"); raw != "" {
		if err := p.parseSortBy(raw); err != nil {
			return p, err
		}
	}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return p, fmt.Errorf("%w: limit must be a non-negative integer, got %q", types.ErrValidation, raw)
		}
		p.Limit = limit
	}
	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return p, fmt.Errorf("%w: page must be a positive integer, got %q", types.ErrValidation, raw)
		}
		p.Page = page
	}

	if err := p.applyScopeTypes(); err != nil {
		return p, err
	}
	return p, nil
}

func (p *Params) parseSortBy(raw string) error {
	field, dir, hasDir := strings.Cut(raw, ":")
	if !sortFields[field] {
		return fmt.Errorf("%w: unknown sortBy field %q", types.ErrValidation, field)
	}
	desc := true
	if hasDir {
		switch dir {
		case "asc":
			desc = false
		case "desc":
			desc = true
		default:
			return fmt.Errorf("%w: sortBy direction must be asc or desc, got %q", types.ErrValidation, dir)
		}
	}
	p.SortBy = field
	p.SortDesc = desc
	return nil
}

// applyScopeTypes pins the record type each domain scope requires.
// Supplying a scope for one type and recordType for another is a
// contradiction the caller should hear about.
func (p *Params) applyScopeTypes() error {
	for name, list := range map[string][]string{
		"exerciseNames":     p.ExerciseNames,
		"ingredientNames":   p.IngredientNames,
		"equipmentRequired": p.EquipmentRequired,
		"exerciseType":      p.ExerciseType,
		"cuisine":           p.Cuisine,
	} {
		if len(list) == 0 {
			continue
		}
		required := scopeRecordTypes[name]
		if p.RecordType == "" {
			p.RecordType = required
			continue
		}
		if p.RecordType != required {
			return fmt.Errorf("%w: %s applies to %s records, not %q", types.ErrValidation, name, required, p.RecordType)
		}
	}
	return nil
}

// SearchTokens returns the lowercased whitespace-split search terms.
func (p Params) SearchTokens() []string {
	if p.Search == "" {
		return nil
	}
	fields := strings.Fields(strings.ToLower(p.Search))
	return fields
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseOptFloat(values url.Values, name string) (*float64, error) {
	raw := values.Get(name)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number, got %q", types.ErrValidation, name, raw)
	}
	return &f, nil
}
