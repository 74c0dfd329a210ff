package template

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cuemby/burrow/pkg/types"
)

// ValidateRecord checks every data section of rec against its template.
// Violations are collected rather than returned on first failure; the
// error return is reserved for infrastructure failures (store or
// upstream unavailable), which callers must not treat as a bad record.
func (r *Registry) ValidateRecord(ctx context.Context, rec *types.Record) ([]types.Violation, error) {
	if rec == nil || len(rec.Data) == 0 {
		return []types.Violation{{Reason: "record has no data"}}, nil
	}

	// Deterministic section order keeps violation reports stable.
	names := make([]string, 0, len(rec.Data))
	for name := range rec.Data {
		names = append(names, name)
	}
	sort.Strings(names)

	var violations []types.Violation
	for _, name := range names {
		tpl, err := r.Resolve(ctx, name)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				violations = append(violations, types.Violation{Template: name, Reason: "unknown template"})
				continue
			}
			return nil, err
		}
		violations = append(violations, r.validateSection(tpl, rec.Data[name])...)
	}
	return violations, nil
}

// validateSection checks one template's field values. Fields the record
// does not carry are fine; templates declare shapes, not requirements.
func (r *Registry) validateSection(tpl *types.Template, section map[string]any) []types.Violation {
	var violations []types.Violation
	for _, f := range ParseFields(tpl) {
		if !f.KnownCode() {
			// Already-on-chain templates may carry codes this build does
			// not know. Tolerated here; registration rejects them.
			r.logger.Warn().Str("template", tpl.Name).Str("field", f.Name).
				Str("code", f.Code).Msg("Skipping field with unknown type code")
			continue
		}
		if !f.HasIndex {
			violations = append(violations, types.Violation{
				Template: tpl.Name, Field: f.Name,
				Reason: "missing index_" + f.Name,
			})
			continue
		}
		value, present := section[f.Name]
		if !present || value == nil {
			continue
		}
		violations = append(violations, validateValue(tpl.Name, f, value)...)
	}
	return violations
}

func validateValue(tplName string, f FieldSpec, value any) []types.Violation {
	if f.Repeated {
		elements, ok := arrayElements(value)
		if !ok {
			return []types.Violation{{
				Template: tplName, Field: f.Name,
				Reason: fmt.Sprintf("expected repeated %s, got %T", f.Code, value),
			}}
		}
		var violations []types.Violation
		for i, el := range elements {
			if v := validateScalar(tplName, f, el); v != nil {
				v.Reason = fmt.Sprintf("element %d: %s", i, v.Reason)
				violations = append(violations, *v)
			}
		}
		return violations
	}

	if _, isArray := arrayElements(value); isArray {
		return []types.Violation{{
			Template: tplName, Field: f.Name,
			Reason: "multiplicity exceeded: field is not repeated",
		}}
	}
	if v := validateScalar(tplName, f, value); v != nil {
		return []types.Violation{*v}
	}
	return nil
}

func validateScalar(tplName string, f FieldSpec, value any) *types.Violation {
	switch f.Code {
	case CodeString:
		if _, ok := value.(string); !ok {
			return typeMismatch(tplName, f, "string", value)
		}
	case CodeLong:
		n, ok := types.NumericValue(value)
		if !ok || n != math.Trunc(n) {
			return typeMismatch(tplName, f, "long", value)
		}
	case CodeFloat:
		if _, ok := types.NumericValue(value); !ok {
			return typeMismatch(tplName, f, "float", value)
		}
	case CodeBool:
		if _, ok := value.(bool); !ok {
			return typeMismatch(tplName, f, "bool", value)
		}
	case CodeEnum:
		s, ok := value.(string)
		if !ok {
			return typeMismatch(tplName, f, "enum", value)
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			return &types.Violation{
				Template: tplName, Field: f.Name,
				Reason: fmt.Sprintf("value %q not in %sValues", s, f.Name),
			}
		}
	case CodeDref:
		s, ok := value.(string)
		if !ok || !types.IsDID(s) {
			return &types.Violation{
				Template: tplName, Field: f.Name,
				Reason: fmt.Sprintf("dref value %v is not a well-formed DID", value),
			}
		}
	}
	return nil
}

func typeMismatch(tplName string, f FieldSpec, want string, got any) *types.Violation {
	return &types.Violation{
		Template: tplName, Field: f.Name,
		Reason: fmt.Sprintf("expected %s, got %T", want, got),
	}
}

// arrayElements normalizes the array shapes JSON decoding and builders
// produce. Strings are not arrays even though range would accept them.
func arrayElements(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		out := make([]any, len(arr))
		for i, s := range arr {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(arr))
		for i, n := range arr {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

func contains(list []string, s string) bool {
	for _, el := range list {
		if el == s {
			return true
		}
	}
	return false
}
