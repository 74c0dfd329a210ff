/*
Package template loads, caches, and validates against on-chain template
definitions.

Templates are the schema layer of the record model: every section of a
record's data is keyed by a template name, and the template's fieldsJson
declares the field types that section must satisfy. Templates are
themselves records on the blockchain, so the registry treats them as
immutable once loaded.

# Architecture

	┌─────────────────── TEMPLATE REGISTRY ───────────────────┐
	│                                                           │
	│   Resolve(nameOrTxID)                                     │
	│        │                                                  │
	│        ▼                                                  │
	│   ┌─────────────┐   miss   ┌──────────────┐   miss      │
	│   │  LRU cache  │ ───────► │  index store │ ──────┐     │
	│   │  (512, by   │          │  (templates  │       │     │
	│   │  name+txid) │          │   bucket)    │       ▼     │
	│   └─────────────┘          └──────────────┘  txid only  │
	│        ▲                          ▲          ┌────────┐ │
	│        │                          │ re-index │ chain  │ │
	│        └────────── cache ◄────────┴──────────│ adapter│ │
	│                                              └────────┘ │
	└───────────────────────────────────────────────────────────┘

Load-through is asymmetric on purpose: a transaction id can be fetched
from the blockchain adapter and re-indexed, but a name cannot: there is
no name index upstream. Unknown names return types.ErrNotFound with no
side effects; templates enter the registry only via chain sync or
explicit registration.

# Schema Language

fieldsJson maps field names to type codes:

	{
	  "cuisine":       "enum",
	  "index_cuisine": 0,
	  "cuisineValues": ["Mediterranean", "French"],
	  "ingredient":       "repeated dref",
	  "index_ingredient": 1
	}

Type codes form a closed set: string, long, float, bool, enum, dref,
plus "repeated <code>" array forms. index_<field> entries assign stable
integer indices for compact encoding and must be unique per template.
<field>Values arrays define enum domains; entries may be plain strings
or {code, name} objects, and a value matching either form is accepted.

Unknown type codes are rejected at registration (ValidateTemplate) but
tolerated during record validation: templates newer than this build may
already be on-chain, and skipping their fields with a warning beats
wedging the sync loops.

# Validation Policy

ValidateRecord collects violations instead of stopping at the first:

  - unknown template (section name resolves to nothing)
  - missing index_<field> for a declared field
  - value type mismatch against the field's code
  - enum value outside <field>Values
  - array value on a non-repeated field (multiplicity exceeded)
  - dref value that is not a well-formed DID

Fields a record does not carry are not violations; templates declare
shapes, not required fields. The error return of ValidateRecord is
reserved for infrastructure failures so sync loops can distinguish "bad
record, skip it" from "store is down, halt".

# Usage

	reg := template.NewRegistry(store, chainAdapter)

	tpl, err := reg.Resolve(ctx, "recipe")
	if errors.Is(err, types.ErrNotFound) {
		// template not indexed and not resolvable upstream
	}

	violations, err := reg.ValidateRecord(ctx, record)
	if err != nil {
		return err // store/upstream failure
	}
	if len(violations) > 0 {
		return types.ValidationErrors(violations)
	}

# Integration Points

  - pkg/sync: validates records during block-walk and peer sync;
    registers templates that arrive as recordType "template"
  - pkg/publish: validates outgoing records before signing
  - pkg/query: supplies enum domains for label-or-code matching
  - pkg/storage: persistence and the chain adapter contract

# Concurrency

The LRU is internally locked and entries are immutable, so Resolve and
ValidateRecord are safe for concurrent use. Concurrent loads of the same
template may race; both re-index the same immutable document, so the
race is harmless.
*/
package template
