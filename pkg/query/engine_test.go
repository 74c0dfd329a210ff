package query

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

func qtxid(seed string) string {
	padded := seed + strings.Repeat("_", 43)
	return padded[:43]
}

func aliceRef() *types.CreatorRef {
	return &types.CreatorRef{
		DIDAddress: "did:arweave:" + qtxid("creator-alice"),
		PublicKey:  "alice-public-key",
	}
}

func recipeRec(seed, name, cuisine string, block int64, tags ...string) *types.Record {
	basic := map[string]any{
		"name":        name,
		"description": "weeknight favorite",
		"date":        float64(1714521600 + block),
	}
	if len(tags) > 0 {
		tagItems := make([]any, len(tags))
		for i, tag := range tags {
			tagItems[i] = tag
		}
		basic["tagItems"] = tagItems
	}
	return &types.Record{
		Data: types.RecordData{
			"basic": basic,
			"recipe": map[string]any{
				"cuisine":        cuisine,
				"prep_time_mins": float64(25),
			},
		},
		Meta: &types.RecordMeta{
			DID:            types.ArweaveDID(qtxid("rec-" + seed)),
			RecordType:     "recipe",
			Storage:        types.StorageArweave,
			Ver:            types.RecordVersion,
			Creator:        aliceRef(),
			InArweaveBlock: block,
			IndexedAt:      time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func exerciseRec(seed, name string, block int64, equipment ...string) *types.Record {
	eq := make([]any, len(equipment))
	for i, item := range equipment {
		eq[i] = item
	}
	return &types.Record{
		Data: types.RecordData{
			"basic": {"name": name, "date": float64(1714521600 + block)},
			"exercise": {
				"equipmentRequired": eq,
				"exerciseType":      "strength",
			},
		},
		Meta: &types.RecordMeta{
			DID:            types.ArweaveDID(qtxid("ex-" + seed)),
			RecordType:     "exercise",
			Storage:        types.StorageArweave,
			Ver:            types.RecordVersion,
			Creator:        aliceRef(),
			InArweaveBlock: block,
		},
	}
}

func workoutRec(seed, name string, block int64, exerciseDIDs ...string) *types.Record {
	refs := make([]any, len(exerciseDIDs))
	for i, did := range exerciseDIDs {
		refs[i] = did
	}
	return &types.Record{
		Data: types.RecordData{
			"basic":   {"name": name, "date": float64(1714521600 + block)},
			"workout": {"exercises": refs, "durationMins": float64(45)},
		},
		Meta: &types.RecordMeta{
			DID:            types.ArweaveDID(qtxid("wk-" + seed)),
			RecordType:     "workout",
			Storage:        types.StorageArweave,
			Ver:            types.RecordVersion,
			Creator:        aliceRef(),
			InArweaveBlock: block,
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewEngine(store), store
}

func putRecs(t *testing.T, store storage.Store, recs ...*types.Record) {
	t.Helper()
	for _, rec := range recs {
		require.NoError(t, store.PutRecord(context.Background(), rec))
	}
}

func run(t *testing.T, eng *Engine, rawQuery string, caller *Caller) *Result {
	t.Helper()
	values, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	params, err := ParseParams(values, Defaults{Limit: 10, MaxResolveDepth: 5})
	require.NoError(t, err)
	res, err := eng.Query(context.Background(), params, caller)
	require.NoError(t, err)
	return res
}

func basicField(t *testing.T, rec map[string]any, field string) any {
	t.Helper()
	data, ok := rec["data"].(map[string]any)
	require.True(t, ok, "record carries data")
	basic, ok := data["basic"].(map[string]any)
	require.True(t, ok, "record carries a basic section")
	return basic[field]
}

func resultNames(t *testing.T, res *Result) []string {
	t.Helper()
	names := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		name, _ := basicField(t, rec, "name").(string)
		names = append(names, name)
	}
	return names
}

func TestQueryByTypeAndSource(t *testing.T) {
	eng, store := newTestEngine(t)

	gunRecipe := recipeRec("stew", "Peer Stew", "Irish", 0)
	gunRecipe.Meta.DID = types.GunDID("alice-public-key", "peer-stew")
	gunRecipe.Meta.Storage = types.StorageGun
	putRecs(t, store,
		recipeRec("tart", "Apple Tart", "French", 100),
		gunRecipe,
		workoutRec("legs", "Leg Day", 200),
	)

	res := run(t, eng, "recordType=recipe", nil)
	assert.Equal(t, 2, res.SearchResults)
	assert.Equal(t, 3, res.TotalRecords)

	res = run(t, eng, "source=gun", nil)
	assert.Equal(t, []string{"Peer Stew"}, resultNames(t, res))

	res = run(t, eng, "recordType=recipe&source=arweave", nil)
	assert.Equal(t, []string{"Apple Tart"}, resultNames(t, res))
}

func TestQueryCuisineScoring(t *testing.T) {
	eng, store := newTestEngine(t)
	putRecs(t, store,
		recipeRec("greek", "Grilled Halloumi", "Mediterranean", 300),
		recipeRec("fusion", "Za'atar Bowl", "mediterranean fusion", 200),
		recipeRec("coq", "Coq au Vin", "French", 100),
	)

	res := run(t, eng, "cuisine=Mediterranean", nil)
	require.Equal(t, 2, res.SearchResults)
	assert.NotContains(t, resultNames(t, res), "Coq au Vin")
	for _, rec := range res.Records {
		assert.Equal(t, 1.0, rec["cuisineScore"])
		assert.Equal(t, 1, rec["cuisineMatchedCount"])
	}
}

func TestQueryPrivateRecordsOnlyForOwner(t *testing.T) {
	eng, store := newTestEngine(t)

	private := recipeRec("secret", "Secret Stew", "French", 200)
	private.Meta.DID = types.GunDID("alice-public-key", "secret-stew")
	private.Meta.Storage = types.StorageGun
	private.AccessControl = &types.AccessControl{
		AccessLevel:           types.AccessPrivate,
		OwnerPublicKey:        "alice-public-key",
		CreatedTimestamp:      1714521600000,
		LastModifiedTimestamp: 1714521600000,
		Version:               1,
	}
	putRecs(t, store, recipeRec("tart", "Apple Tart", "French", 100), private)

	res := run(t, eng, "", nil)
	assert.Equal(t, []string{"Apple Tart"}, resultNames(t, res), "anonymous callers never see private records")
	assert.Equal(t, 1, res.SearchResults)
	assert.Equal(t, 2, res.TotalRecords)

	res = run(t, eng, "", &Caller{PublicKey: "mallory-public-key"})
	assert.Equal(t, 1, res.SearchResults)

	res = run(t, eng, "", &Caller{PublicKey: "alice-public-key"})
	assert.Equal(t, 2, res.SearchResults)
	assert.Contains(t, resultNames(t, res), "Secret Stew")
}

func TestQueryTagScoring(t *testing.T) {
	eng, store := newTestEngine(t)
	putRecs(t, store,
		recipeRec("both", "Charred Corn", "Mexican", 100, "grilling", "summer"),
		recipeRec("grill", "Smash Burger", "American", 300, "grilling"),
		recipeRec("sun", "Melon Salad", "Spanish", 200, "summer"),
	)

	res := run(t, eng, "tags=grilling,summer&tagsMatchMode=AND", nil)
	require.Equal(t, []string{"Charred Corn"}, resultNames(t, res))
	assert.Equal(t, 1.0, res.Records[0]["score"])

	res = run(t, eng, "tags=grilling,summer", nil)
	require.Equal(t, 3, res.SearchResults)
	assert.Equal(t, []string{"Charred Corn", "Smash Burger", "Melon Salad"}, resultNames(t, res),
		"full overlap first, halves tie-broken by date descending")
	assert.Equal(t, 1.0, res.Records[0]["score"])
	assert.Equal(t, 0.5, res.Records[1]["score"])
	assert.Equal(t, 0.5, res.Records[2]["score"])
}

func TestQuerySearchMatchCount(t *testing.T) {
	eng, store := newTestEngine(t)
	putRecs(t, store,
		recipeRec("soup", "Chicken Soup", "American", 100),
		recipeRec("salad", "Chicken Salad", "American", 300),
		recipeRec("miso", "Miso Soup", "Japanese", 200),
	)

	res := run(t, eng, "search=chicken+soup", nil)
	assert.Equal(t, []string{"Chicken Soup"}, resultNames(t, res), "AND requires every term")

	res = run(t, eng, "search=chicken+soup&searchMatchMode=OR&sortBy=matchCount:desc", nil)
	require.Equal(t, 3, res.SearchResults)
	assert.Equal(t, []string{"Chicken Soup", "Chicken Salad", "Miso Soup"}, resultNames(t, res))
	assert.Equal(t, 2, res.Records[0]["matchCount"])
	assert.Equal(t, 1, res.Records[1]["matchCount"])
	assert.Equal(t, 1, res.Records[2]["matchCount"])
}

func TestQueryDefaultSortNewestBlockFirst(t *testing.T) {
	eng, store := newTestEngine(t)
	putRecs(t, store,
		recipeRec("old", "Oldest", "French", 100),
		recipeRec("new", "Newest", "French", 300),
		recipeRec("mid", "Middle", "French", 200),
	)

	res := run(t, eng, "", nil)
	assert.Equal(t, []string{"Newest", "Middle", "Oldest"}, resultNames(t, res))
}

func TestQuerySortByNameAscending(t *testing.T) {
	eng, store := newTestEngine(t)
	putRecs(t, store,
		recipeRec("c", "Cherry Pie", "American", 100),
		recipeRec("a", "Apple Pie", "American", 300),
		recipeRec("b", "Banana Bread", "American", 200),
	)

	res := run(t, eng, "sortBy=name:asc", nil)
	assert.Equal(t, []string{"Apple Pie", "Banana Bread", "Cherry Pie"}, resultNames(t, res))
}

func TestQueryPagination(t *testing.T) {
	eng, store := newTestEngine(t)
	for i, seed := range []string{"one", "two", "three", "four", "five"} {
		putRecs(t, store, recipeRec(seed, "Dish "+seed, "French", int64((i+1)*100)))
	}

	res := run(t, eng, "limit=2&page=1", nil)
	assert.Equal(t, []string{"Dish five", "Dish four"}, resultNames(t, res))
	assert.Equal(t, 5, res.SearchResults)
	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 2, res.PageSize)
	assert.Equal(t, 1, res.CurrentPage)

	res = run(t, eng, "limit=2&page=3", nil)
	assert.Equal(t, []string{"Dish one"}, resultNames(t, res))

	res = run(t, eng, "limit=2&page=4", nil)
	assert.Empty(t, res.Records, "a page past the end is empty, not an error")
	assert.Equal(t, 5, res.SearchResults)
}

func TestQueryLimitZeroCountsOnly(t *testing.T) {
	eng, store := newTestEngine(t)
	putRecs(t, store,
		recipeRec("tart", "Apple Tart", "French", 100),
		recipeRec("stew", "Beef Stew", "French", 200),
	)

	res := run(t, eng, "limit=0", nil)
	assert.Empty(t, res.Records)
	assert.Equal(t, 2, res.SearchResults)
	assert.Equal(t, 2, res.TotalRecords)
	assert.Equal(t, 0, res.TotalPages)
}

func TestQueryNoDuplicatesKeepsBestPerName(t *testing.T) {
	eng, store := newTestEngine(t)
	putRecs(t, store,
		recipeRec("pad1", "Pad Thai", "Thai", 200),
		recipeRec("pad2", "Pad Thai", "Thai", 100),
		recipeRec("tart", "Apple Tart", "French", 300),
	)

	res := run(t, eng, "noDuplicates=true", nil)
	require.Equal(t, 2, res.SearchResults)
	assert.Equal(t, []string{"Apple Tart", "Pad Thai"}, resultNames(t, res))

	kept := res.Records[1]
	oip, ok := kept["oip"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(200), oip["inArweaveBlock"], "the best-ranked duplicate survives")
}

func TestQueryResolvesReferences(t *testing.T) {
	eng, store := newTestEngine(t)
	squat := exerciseRec("squat", "Barbell Squat", 100, "barbell")
	putRecs(t, store, squat, workoutRec("legs", "Leg Day", 200, string(squat.Meta.DID)))

	res := run(t, eng, "recordType=workout", nil)
	require.Len(t, res.Records, 1)
	workout := res.Records[0]["data"].(map[string]any)["workout"].(map[string]any)
	exercises := workout["exercises"].([]any)
	embedded, ok := exercises[0].(map[string]any)
	require.True(t, ok, "default depth embeds the referenced record")
	assert.Equal(t, "Barbell Squat", basicField(t, embedded, "name"))

	res = run(t, eng, "recordType=workout&resolveDepth=0", nil)
	workout = res.Records[0]["data"].(map[string]any)["workout"].(map[string]any)
	assert.Equal(t, string(squat.Meta.DID), workout["exercises"].([]any)[0],
		"depth zero returns references untouched")

	res = run(t, eng, "recordType=workout&resolveNamesOnly=true", nil)
	workout = res.Records[0]["data"].(map[string]any)["workout"].(map[string]any)
	assert.Equal(t, "Barbell Squat", workout["exercises"].([]any)[0])
}

func TestQueryResolveRespectsPrivacy(t *testing.T) {
	eng, store := newTestEngine(t)

	squat := exerciseRec("squat", "Barbell Squat", 100, "barbell")
	squat.AccessControl = &types.AccessControl{
		AccessLevel:    types.AccessPrivate,
		OwnerPublicKey: "bob-public-key",
		Version:        1,
	}
	putRecs(t, store, squat, workoutRec("legs", "Leg Day", 200, string(squat.Meta.DID)))

	res := run(t, eng, "recordType=workout", nil)
	workout := res.Records[0]["data"].(map[string]any)["workout"].(map[string]any)
	assert.Equal(t, string(squat.Meta.DID), workout["exercises"].([]any)[0],
		"a foreign private record never embeds")

	res = run(t, eng, "recordType=workout", &Caller{PublicKey: "bob-public-key"})
	workout = res.Records[0]["data"].(map[string]any)["workout"].(map[string]any)
	_, ok := workout["exercises"].([]any)[0].(map[string]any)
	assert.True(t, ok, "the owner sees the reference resolved")
}

func TestQueryExerciseNamesScoring(t *testing.T) {
	eng, store := newTestEngine(t)
	squat := exerciseRec("squat", "Barbell Squat", 100, "barbell")
	bench := exerciseRec("bench", "Bench Press", 110, "barbell", "bench")
	dead := exerciseRec("dead", "Deadlift", 120, "barbell")
	putRecs(t, store, squat, bench, dead,
		workoutRec("legs", "Leg Day", 200, string(squat.Meta.DID), string(bench.Meta.DID)),
		workoutRec("pull", "Pull Day", 300, string(dead.Meta.DID)),
	)

	res := run(t, eng, "exerciseNames=Squat,Bench", nil)
	require.Equal(t, []string{"Leg Day"}, resultNames(t, res))
	assert.Equal(t, 1.0, res.Records[0]["exerciseNamesScore"])
	assert.Equal(t, 2, res.Records[0]["exerciseNamesMatchedCount"])

	res = run(t, eng, "exerciseNames=Squat,Deadlift", nil)
	require.Equal(t, 2, res.SearchResults)
	for _, rec := range res.Records {
		assert.Equal(t, 0.5, rec["exerciseNamesScore"])
		assert.Equal(t, 1, rec["exerciseNamesMatchedCount"])
	}
}

func TestQueryEquipmentRequiredAllMustMatch(t *testing.T) {
	eng, store := newTestEngine(t)
	putRecs(t, store,
		exerciseRec("bench", "Bench Press", 100, "barbell", "bench"),
		exerciseRec("curl", "Hammer Curl", 200, "dumbbells"),
	)

	res := run(t, eng, "equipmentRequired=barbell,bench", nil)
	require.Equal(t, []string{"Bench Press"}, resultNames(t, res))
	assert.Equal(t, 1.0, res.Records[0]["equipmentRequiredScore"])

	res = run(t, eng, "equipmentRequired=barbell,kettlebell", nil)
	assert.Zero(t, res.SearchResults, "every requested item must be present")
}

func TestQueryExerciseTypeEnumBridging(t *testing.T) {
	eng, store := newTestEngine(t)
	coded := exerciseRec("row", "Cable Row", 200)
	coded.Data["exercise"]["exerciseType"] = float64(2)
	putRecs(t, store, exerciseRec("bench", "Bench Press", 100, "barbell"), coded)

	res := run(t, eng, "exerciseType=strength", nil)
	assert.Equal(t, []string{"Bench Press"}, resultNames(t, res))

	res = run(t, eng, "exerciseType=2", nil)
	assert.Equal(t, []string{"Cable Row"}, resultNames(t, res), "numeric enum codes match numerically")
}

func TestQueryCreatorFilters(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, store.PutCreator(ctx, &types.Creator{
		DIDAddress:   aliceRef().DIDAddress,
		PublicKey:    "alice-public-key",
		Handle:       "Alice",
		RegisteredAt: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}))

	byBob := recipeRec("bob", "Bob Bowl", "Korean", 200)
	byBob.Meta.Creator = &types.CreatorRef{
		DIDAddress: "did:arweave:" + qtxid("creator-bob"),
		PublicKey:  "bob-public-key",
	}
	putRecs(t, store, recipeRec("tart", "Apple Tart", "French", 100), byBob)

	res := run(t, eng, "creatorHandle=alice", nil)
	assert.Equal(t, []string{"Apple Tart"}, resultNames(t, res), "handles match case-insensitively")

	res = run(t, eng, "creatorHandle=ghost", nil)
	assert.Zero(t, res.SearchResults, "an unknown handle matches nothing")

	res = run(t, eng, "creator_did_address="+url.QueryEscape(byBob.Meta.Creator.DIDAddress), nil)
	assert.Equal(t, []string{"Bob Bowl"}, resultNames(t, res))
}

func TestQueryDIDTxRef(t *testing.T) {
	eng, store := newTestEngine(t)
	squat := exerciseRec("squat", "Barbell Squat", 100, "barbell")
	putRecs(t, store, squat,
		workoutRec("legs", "Leg Day", 200, string(squat.Meta.DID)),
		workoutRec("arms", "Arm Day", 300),
	)

	res := run(t, eng, "didTxRef="+url.QueryEscape(string(squat.Meta.DID)), nil)
	assert.Equal(t, []string{"Leg Day"}, resultNames(t, res))
}

func TestQueryExactMatch(t *testing.T) {
	eng, store := newTestEngine(t)
	putRecs(t, store,
		recipeRec("coq", "Coq au Vin", "French", 100),
		recipeRec("pad", "Pad Thai", "Thai", 200),
	)

	res := run(t, eng, "exactMatch="+url.QueryEscape(`{"data.recipe.cuisine":"French"}`), nil)
	assert.Equal(t, []string{"Coq au Vin"}, resultNames(t, res))

	res = run(t, eng, "exactMatch="+url.QueryEscape(`{"data.recipe.spiciness":"mild"}`), nil)
	assert.Zero(t, res.SearchResults, "a path no record carries matches nothing")
}

func TestQueryDateRange(t *testing.T) {
	eng, store := newTestEngine(t)
	putRecs(t, store,
		recipeRec("day1", "Day One", "French", 0),
		recipeRec("day2", "Day Two", "French", 86400),
		recipeRec("day3", "Day Three", "French", 172800),
	)

	res := run(t, eng, "dateStart=1714608000", nil)
	assert.ElementsMatch(t, []string{"Day Two", "Day Three"}, resultNames(t, res))

	res = run(t, eng, "dateEnd=1714608000", nil)
	assert.ElementsMatch(t, []string{"Day One", "Day Two"}, resultNames(t, res))

	res = run(t, eng, "dateStart=1714608000&dateEnd=1714608000", nil)
	assert.Equal(t, []string{"Day Two"}, resultNames(t, res))
}

func TestQueryHasAudio(t *testing.T) {
	eng, store := newTestEngine(t)

	sectioned := recipeRec("cast", "Kitchen Podcast", "French", 300)
	sectioned.Data["audio"] = map[string]any{"durationSecs": float64(1800)}
	linked := recipeRec("link", "Narrated Recipe", "French", 200)
	linked.Data["basic"]["webUrl"] = "https://example.com/narrated.mp3"
	putRecs(t, store, sectioned, linked, recipeRec("plain", "Plain Toast", "French", 100))

	res := run(t, eng, "hasAudio=true", nil)
	assert.ElementsMatch(t, []string{"Kitchen Podcast", "Narrated Recipe"}, resultNames(t, res))

	res = run(t, eng, "hasAudio=false", nil)
	assert.Equal(t, []string{"Plain Toast"}, resultNames(t, res))
}

func TestQueryDeleteMessagesHidden(t *testing.T) {
	eng, store := newTestEngine(t)

	target := recipeRec("tart", "Apple Tart", "French", 100)
	del := &types.Record{
		Data: types.RecordData{
			"deleteMessage": {"didTx": string(target.Meta.DID)},
		},
		Meta: &types.RecordMeta{
			DID:            types.ArweaveDID(qtxid("del-tart")),
			RecordType:     types.RecordTypeDeleteMessage,
			Storage:        types.StorageArweave,
			Ver:            types.RecordVersion,
			Creator:        aliceRef(),
			InArweaveBlock: 200,
		},
	}
	putRecs(t, store, target, del)

	res := run(t, eng, "", nil)
	assert.Equal(t, []string{"Apple Tart"}, resultNames(t, res))
	assert.Equal(t, 2, res.TotalRecords)

	res = run(t, eng, "includeDeleteMessages=true", nil)
	assert.Equal(t, 2, res.SearchResults)

	res = run(t, eng, "recordType=deleteMessage", nil)
	require.Equal(t, 1, res.SearchResults)
	oip := res.Records[0]["oip"].(map[string]any)
	assert.Equal(t, types.RecordTypeDeleteMessage, oip["recordType"])
}

func TestQueryShapeDateReadable(t *testing.T) {
	eng, store := newTestEngine(t)
	putRecs(t, store, recipeRec("plain", "Plain Toast", "French", 0))

	res := run(t, eng, "", nil)
	assert.Equal(t, "Wed, 01 May 2024 00:00:00 UTC", basicField(t, res.Records[0], "dateReadable"))

	res = run(t, eng, "hideDateReadable=true", nil)
	assert.Nil(t, basicField(t, res.Records[0], "dateReadable"))
}

func TestQueryShapeWithholdsSignatureAndKeys(t *testing.T) {
	eng, store := newTestEngine(t)

	rec := recipeRec("tart", "Apple Tart", "French", 100)
	rec.Meta.Signature = "c2lnbmVkLWJ5LWFsaWNl"
	rec.AccessControl = &types.AccessControl{
		AccessLevel:    types.AccessPublic,
		OwnerPublicKey: "alice-public-key",
		Version:        1,
	}
	putRecs(t, store, rec)

	res := run(t, eng, "", nil)
	oip := res.Records[0]["oip"].(map[string]any)
	assert.NotContains(t, oip, "signature")
	creator := oip["creator"].(map[string]any)
	assert.NotContains(t, creator, "publicKey")
	ac := res.Records[0]["accessControl"].(map[string]any)
	assert.NotContains(t, ac, "owner_public_key")

	res = run(t, eng, "includeSigs=true&includePubKeys=true", nil)
	oip = res.Records[0]["oip"].(map[string]any)
	assert.Equal(t, "c2lnbmVkLWJ5LWFsaWNl", oip["signature"])
	creator = oip["creator"].(map[string]any)
	assert.Equal(t, "alice-public-key", creator["publicKey"])
	ac = res.Records[0]["accessControl"].(map[string]any)
	assert.Equal(t, "alice-public-key", ac["owner_public_key"])
}

func TestQueryHideNullValues(t *testing.T) {
	eng, store := newTestEngine(t)

	rec := recipeRec("tart", "Apple Tart", "French", 100)
	rec.Data["basic"]["notes"] = nil
	putRecs(t, store, rec)

	res := run(t, eng, "", nil)
	data := res.Records[0]["data"].(map[string]any)
	basic := data["basic"].(map[string]any)
	_, present := basic["notes"]
	assert.True(t, present)

	res = run(t, eng, "hideNullValues=true", nil)
	data = res.Records[0]["data"].(map[string]any)
	basic = data["basic"].(map[string]any)
	_, present = basic["notes"]
	assert.False(t, present)
}

func TestQuerySummarizeTags(t *testing.T) {
	eng, store := newTestEngine(t)
	putRecs(t, store,
		recipeRec("corn", "Charred Corn", "Mexican", 300, "grilling", "summer"),
		recipeRec("ribs", "Smoked Ribs", "American", 200, "grilling", "quick"),
		recipeRec("melon", "Melon Salad", "Spanish", 100, "grilling", "summer"),
	)

	res := run(t, eng, "summarizeTags=true&limit=2&page=1", nil)
	assert.Equal(t, []TagCount{{Tag: "grilling", Count: 3}, {Tag: "summer", Count: 2}}, res.TagSummary)
	assert.Equal(t, 3, res.TagTotal)
	assert.Equal(t, 2, res.TotalPages)
	assert.Equal(t, 3, res.SearchResults)
	assert.ElementsMatch(t, []string{"Charred Corn", "Smoked Ribs", "Melon Salad"}, resultNames(t, res),
		"records carrying a tag from the current page come along")

	res = run(t, eng, "summarizeTags=true&limit=2&page=2", nil)
	assert.Equal(t, []TagCount{{Tag: "quick", Count: 1}}, res.TagSummary)
	assert.Equal(t, []string{"Smoked Ribs"}, resultNames(t, res))
}

func TestQueryTemplateAndURLFilters(t *testing.T) {
	eng, store := newTestEngine(t)

	linked := recipeRec("pad", "Pad Thai", "Thai", 200)
	linked.Data["basic"]["webUrl"] = "https://example.com/recipes/pad-thai"
	putRecs(t, store, linked, workoutRec("legs", "Leg Day", 100))

	res := run(t, eng, "template=recipe", nil)
	assert.Equal(t, []string{"Pad Thai"}, resultNames(t, res))

	res = run(t, eng, "url=example.com%2Frecipes", nil)
	assert.Equal(t, []string{"Pad Thai"}, resultNames(t, res))

	res = run(t, eng, "inArweaveBlock=100", nil)
	assert.Equal(t, []string{"Leg Day"}, resultNames(t, res))
}
