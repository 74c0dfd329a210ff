package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// shapeRecord turns a resolved record into the response object:
// presentation fields added, withheld fields removed, scores attached.
func shapeRecord(rec *types.Record, sr *scoredRecord, p Params) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("shape record %s: %w", rec.Meta.DID, err)
	}
	var shaped map[string]any
	if err := json.Unmarshal(raw, &shaped); err != nil {
		return nil, fmt.Errorf("shape record %s: %w", rec.Meta.DID, err)
	}

	if !p.HideDateReadable {
		addDateReadable(shaped)
	}
	if !p.IncludeSigs {
		deletePath(shaped, "oip", "signature")
	}
	if !p.IncludePubKeys {
		deletePath(shaped, "oip", "creator", "publicKey")
		deletePath(shaped, "accessControl", "owner_public_key")
	}
	if p.HideNullValues {
		stripNulls(shaped)
	}

	if sr.hasMatchCount {
		shaped["matchCount"] = sr.matchCount
	}
	if sr.hasTagScore {
		shaped["score"] = sr.tagScore
	}
	for scope, score := range sr.scopeScores {
		shaped[scope+"Score"] = score
		shaped[scope+"MatchedCount"] = sr.scopeCounts[scope]
	}
	return shaped, nil
}

// addDateReadable derives a human-readable form next to the numeric
// publish date.
func addDateReadable(shaped map[string]any) {
	data, ok := shaped["data"].(map[string]any)
	if !ok {
		return
	}
	basic, ok := data["basic"].(map[string]any)
	if !ok {
		return
	}
	sec, ok := types.NumericValue(basic["date"])
	if !ok {
		return
	}
	basic["dateReadable"] = time.Unix(int64(sec), 0).UTC().Format(time.RFC1123)
}

// deletePath removes the leaf key of a nested map path, silently
// stopping if any step is missing.
func deletePath(shaped map[string]any, path ...string) {
	cur := shaped
	for i, key := range path {
		if i == len(path)-1 {
			delete(cur, key)
			return
		}
		next, ok := cur[key].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
}

// stripNulls removes null-valued fields from the object, recursing
// through nested objects and arrays of objects.
func stripNulls(m map[string]any) {
	for key, v := range m {
		switch val := v.(type) {
		case nil:
			delete(m, key)
		case map[string]any:
			stripNulls(val)
		case []any:
			for _, el := range val {
				if sub, ok := el.(map[string]any); ok {
					stripNulls(sub)
				}
			}
		}
	}
}

// summarizeTags builds a tag histogram over the matched records and
// pages through the histogram. Tags are counted case-insensitively;
// the first-seen spelling is reported.
func summarizeTags(scored []*scoredRecord, limit, page int) ([]TagCount, int) {
	counts := make(map[string]int)
	display := make(map[string]string)
	for _, sr := range scored {
		for _, tag := range sr.rec.Tags() {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if _, ok := display[key]; !ok {
				display[key] = tag
			}
			counts[key]++
		}
	}

	all := make([]TagCount, 0, len(counts))
	for key, n := range counts {
		all = append(all, TagCount{Tag: display[key], Count: n})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return strings.ToLower(all[i].Tag) < strings.ToLower(all[j].Tag)
	})

	total := len(all)
	if limit <= 0 {
		return nil, total
	}
	offset := (page - 1) * limit
	if offset >= total {
		return nil, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total
}

// filterToTags keeps the records carrying at least one tag from the
// current summary page. The record list is not re-paginated; the page
// unit in summary mode is the tag.
func filterToTags(scored []*scoredRecord, summary []TagCount) []*scoredRecord {
	if len(summary) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(summary))
	for _, tc := range summary {
		wanted[strings.ToLower(tc.Tag)] = true
	}
	keep := scored[:0]
	for _, sr := range scored {
		for _, tag := range sr.rec.Tags() {
			if wanted[strings.ToLower(strings.TrimSpace(tag))] {
				keep = append(keep, sr)
				break
			}
		}
	}
	return keep
}
