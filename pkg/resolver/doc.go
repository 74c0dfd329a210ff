/*
Package resolver expands DID references inside record data.

A record field whose value is a DID string (a dref) points at another
record. Resolution replaces such strings with the referenced record's
JSON form, recursively, down to a caller-chosen depth. The traversal is
pure: the input record is never mutated and each call produces a fresh
copy.

# Depth Semantics

Depth counts reference hops, not map nesting. Plain nested objects
inside one record cost nothing; embedding another record costs one.
Depth 0 is the identity, the default query depth is 2, and MaxDepth (5)
is a hard clamp. Cycles between records need no detection; the budget
runs out.

Resolution is idempotent at a fixed depth: records already embedded in
the input are descended with a decremented budget instead of being
re-expanded, so Resolve(Resolve(x, d), d) == Resolve(x, d).

# Degradation

Resolution never fails. A DID whose target the corpus cannot supply
stays a plain string, which is also how depth exhaustion presents. The
query engine relies on this to keep partial resolve failures out of the
error path.

# Corpora

Two corpus shapes cover the two call sites:

	// batch: query results resolved against themselves
	corpus := resolver.NewSliceCorpus(page)

	// on-demand: backed by the index store
	corpus := resolver.FuncCorpus(func(ctx context.Context, did types.DID) (*types.Record, bool) {
		rec, err := store.GetRecord(ctx, string(did))
		return rec, err == nil
	})

	out := resolver.Resolve(ctx, rec, corpus, resolver.Options{Depth: 2})

NamesOnly mode collapses each resolved child to its data.basic.name
string; the ingredient and exercise name filters use this cheap path.
*/
package resolver
