package types

import (
	"errors"
	"fmt"
)

// Error kinds. Adapters translate upstream failures into one of these so
// callers can branch with errors.Is instead of string matching.
var (
	// ErrValidation marks records failing template checks and malformed
	// request parameters. Surfaced as 4xx. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks unresolved DIDs and expired jobs. Sync treats
	// "not yet indexed" as not-found and retries later.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable marks refused or timed-out calls to the
	// blockchain gateway, a peer, or an external callout. Sync loops back
	// off and retry without advancing durable progress.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrStore marks index store read/write failures. Sync loops halt
	// and surface these.
	ErrStore = errors.New("store error")

	// ErrOwnershipDenied marks update or delete attempts by a key that
	// does not match owner_public_key. Queries never return this; they
	// filter silently so existence does not leak.
	ErrOwnershipDenied = errors.New("ownership denied")

	// ErrConflict marks peer-graph updates carrying a stale version.
	ErrConflict = errors.New("version conflict")

	// ErrCapacityExceeded marks job tracker overflow and resolver depth
	// exhaustion.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)

// Violation is one template validation failure. The validator collects
// violations instead of stopping at the first.
type Violation struct {
	Template string `json:"template"`
	Field    string `json:"field,omitempty"`
	Reason   string `json:"reason"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return fmt.Sprintf("%s: %s", v.Template, v.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", v.Template, v.Field, v.Reason)
}

// ValidationErrors bundles collected violations into a single error value
// that matches ErrValidation under errors.Is.
type ValidationErrors []Violation

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	msg := ve[0].String()
	if len(ve) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(ve)-1)
	}
	return "validation failed: " + msg
}

// Is lets errors.Is(err, ErrValidation) match collected violations.
func (ve ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}
