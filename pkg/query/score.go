package query

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// orderBonus rewards matched list items appearing in the requested
// order. The final score stays clamped to 1.
const orderBonus = 0.05

// scoredRecord carries a candidate through the pipeline together with
// the scores its matching parameters earned.
type scoredRecord struct {
	rec *types.Record

	matchCount    int
	hasMatchCount bool

	tagScore    float64
	hasTagScore bool

	scopeScores map[string]float64
	scopeCounts map[string]int
}

func (s *scoredRecord) setScope(scope string, score float64, matched int) {
	if s.scopeScores == nil {
		s.scopeScores = make(map[string]float64, 2)
		s.scopeCounts = make(map[string]int, 2)
	}
	s.scopeScores[scope] = score
	s.scopeCounts[scope] = matched
}

// scoreValue reads a computed sort key. ok is false when the record
// never earned that score.
func (s *scoredRecord) scoreValue(field string) (float64, bool) {
	switch field {
	case "matchCount":
		if s.hasMatchCount {
			return float64(s.matchCount), true
		}
	case "score":
		if s.hasTagScore {
			return s.tagScore, true
		}
	default:
		scope := strings.TrimSuffix(field, "Score")
		if v, ok := s.scopeScores[scope]; ok {
			return v, true
		}
	}
	return 0, false
}

// applyTagScore filters on the tags parameter and attaches the overlap
// score. Returns false when the record does not pass the match mode.
func (s *scoredRecord) applyTagScore(p Params) bool {
	if len(p.Tags) == 0 {
		return true
	}

	have := make(map[string]bool, len(s.rec.Tags()))
	for _, tag := range s.rec.Tags() {
		have[strings.ToLower(tag)] = true
	}
	overlap := 0
	for _, want := range p.Tags {
		if have[strings.ToLower(want)] {
			overlap++
		}
	}

	if p.TagsMatchMode == types.MatchAND && overlap < len(p.Tags) {
		return false
	}
	if overlap == 0 {
		return false
	}
	s.tagScore = float64(overlap) / float64(len(p.Tags))
	s.hasTagScore = true
	return true
}

// nameSource resolves a DID to the referenced record's name. Misses
// degrade to skipping the reference.
type nameSource func(ctx context.Context, did types.DID) (string, bool)

// listNames collects the candidate names a list scope matches against:
// values of fields in the given section whose name contains fieldHint,
// with DID references resolved to the referenced record's name. Order
// follows the stored arrays.
func listNames(ctx context.Context, rec *types.Record, section, fieldHint string, lookup nameSource) []string {
	fields := rec.Section(section)
	if len(fields) == 0 {
		return nil
	}

	fieldNames := make([]string, 0, len(fields))
	for name := range fields {
		if strings.Contains(strings.ToLower(name), fieldHint) {
			fieldNames = append(fieldNames, name)
		}
	}
	sort.Strings(fieldNames)

	var out []string
	for _, name := range fieldNames {
		for _, el := range stringList(fields[name]) {
			if types.IsDID(el) {
				if resolved, ok := lookup(ctx, types.DID(el)); ok && resolved != "" {
					out = append(out, resolved)
				}
				continue
			}
			if el != "" {
				out = append(out, el)
			}
		}
	}
	return out
}

// scoreNameList scores a requested name list against candidate names.
// A requested name matches when it is a case-insensitive substring of
// a candidate. The order bonus applies when at least two matches occur
// in the requested order.
func scoreNameList(requested, candidates []string) (score float64, matched int) {
	if len(requested) == 0 {
		return 0, 0
	}

	positions := make([]int, 0, len(requested))
	for _, want := range requested {
		pos := -1
		lw := strings.ToLower(want)
		for i, cand := range candidates {
			if strings.Contains(strings.ToLower(cand), lw) {
				pos = i
				break
			}
		}
		if pos >= 0 {
			matched++
			positions = append(positions, pos)
		}
	}
	if matched == 0 {
		return 0, 0
	}

	score = float64(matched) / float64(len(requested))
	if matched >= 2 && sort.IntsAreSorted(positions) {
		score += orderBonus
	}
	if score > 1 {
		score = 1
	}
	return score, matched
}

// fuzzyEquals reports whether two strings match loosely: equal, or one
// contains the other, case-insensitively.
func fuzzyEquals(a, b string) bool {
	la, lb := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if la == "" || lb == "" {
		return false
	}
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

// scoreEquipment scores equipmentRequired: every requested item must
// fuzzy-match some equipment entry (AND semantics).
func scoreEquipment(requested []string, rec *types.Record) (score float64, matched int, pass bool) {
	v, _ := rec.ValueAtPath("data.exercise.equipmentRequired")
	have := stringList(v)

	for _, want := range requested {
		for _, eq := range have {
			if fuzzyEquals(want, eq) {
				matched++
				break
			}
		}
	}
	score = float64(matched) / float64(len(requested))
	return score, matched, matched == len(requested)
}

// scoreExerciseType scores exerciseType: the record's value matches a
// requested enum code or label (OR semantics).
func scoreExerciseType(requested []string, rec *types.Record) (score float64, matched int) {
	v, ok := rec.ValueAtPath("data.exercise.exerciseType")
	if !ok {
		return 0, 0
	}

	for _, want := range requested {
		if matchesEnum(want, v) {
			matched++
		}
	}
	return float64(matched) / float64(len(requested)), matched
}

func matchesEnum(want string, v any) bool {
	if n, ok := types.NumericValue(v); ok {
		if wn, err := strconv.ParseFloat(want, 64); err == nil {
			return wn == n
		}
		return false
	}
	if s, ok := v.(string); ok {
		return strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(s))
	}
	return false
}

// scoreCuisine scores cuisine: requested values are case-insensitive
// substrings of the record's cuisine (OR semantics).
func scoreCuisine(requested []string, rec *types.Record) (score float64, matched int) {
	v, ok := rec.ValueAtPath("data.recipe.cuisine")
	if !ok {
		return 0, 0
	}
	cuisine := strings.ToLower(strings.TrimSpace(stringOf(v)))
	if cuisine == "" {
		return 0, 0
	}

	for _, want := range requested {
		if strings.Contains(cuisine, strings.ToLower(strings.TrimSpace(want))) {
			matched++
		}
	}
	return float64(matched) / float64(len(requested)), matched
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

// stringList widens StringSlice to also accept a bare scalar, since a
// list field holding a single value often arrives undecorated.
func stringList(v any) []string {
	if s, ok := v.(string); ok {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	return types.StringSlice(v)
}

// sortScored orders the pipeline. An explicit sortBy always wins; with
// none, the score of the first supplied scoring parameter takes
// precedence, and inArweaveBlock descending is the default. Ties break
// on date descending, then DID ascending, so pagination is stable.
func sortScored(scored []*scoredRecord, p Params) {
	field, desc := p.SortBy, p.SortDesc
	if field == "" {
		switch {
		case p.Search != "":
			field, desc = "matchCount", true
		case len(p.Tags) > 0:
			field, desc = "score", true
		case len(p.ExerciseNames) > 0:
			field, desc = "exerciseNamesScore", true
		case len(p.IngredientNames) > 0:
			field, desc = "ingredientNamesScore", true
		case len(p.EquipmentRequired) > 0:
			field, desc = "equipmentRequiredScore", true
		case len(p.ExerciseType) > 0:
			field, desc = "exerciseTypeScore", true
		case len(p.Cuisine) > 0:
			field, desc = "cuisineScore", true
		default:
			field, desc = "inArweaveBlock", true
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if less, decided := lessByField(scored[i], scored[j], field, desc); decided {
			return less
		}
		if less, decided := lessByField(scored[i], scored[j], "date", true); decided {
			return less
		}
		return scored[i].rec.Meta.DID < scored[j].rec.Meta.DID
	})
}

// lessByField compares one sort key. decided is false on ties and on
// both-missing so the caller can fall through to the tiebreak chain.
// A record carrying the field sorts before one missing it in either
// direction.
func lessByField(a, b *scoredRecord, field string, desc bool) (less, decided bool) {
	av, aok := fieldValue(a, field)
	bv, bok := fieldValue(b, field)
	if aok != bok {
		return aok, true
	}
	if !aok {
		return false, false
	}
	l, strict := storage.CompareValues(av, bv)
	if !strict {
		return false, false
	}
	if desc {
		return !l, true
	}
	return l, true
}

// recordSortFields sort on the record itself; everything else in the
// closed set is a computed score.
var recordSortFields = map[string]bool{
	"date":           true,
	"name":           true,
	"indexedAt":      true,
	"inArweaveBlock": true,
}

func fieldValue(s *scoredRecord, field string) (any, bool) {
	if recordSortFields[field] {
		return storage.SortValue(s.rec, field)
	}
	return s.scoreValue(field)
}

// dedupByName keeps the first record per data.basic.name, which after
// sorting is the best one under the active sort key. Unnamed records
// are never deduplicated.
func dedupByName(scored []*scoredRecord) []*scoredRecord {
	seen := make(map[string]bool, len(scored))
	out := scored[:0]
	for _, s := range scored {
		key := strings.ToLower(strings.TrimSpace(s.rec.Name()))
		if key != "" {
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, s)
	}
	return out
}
