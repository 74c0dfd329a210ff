package template

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/burrow/pkg/types"
)

// Field type codes. A declared field's value in fieldsJson is one of
// these, optionally prefixed "repeated ".
const (
	CodeString = "string"
	CodeLong   = "long"
	CodeFloat  = "float"
	CodeBool   = "bool"
	CodeEnum   = "enum"
	CodeDref   = "dref"
)

const repeatedPrefix = "repeated "

// FieldSpec is one declared field of a parsed template schema.
type FieldSpec struct {
	Name     string
	Code     string
	Repeated bool

	// Index is the stable integer from the index_<field> entry used for
	// compact encoding. HasIndex is false when the entry is missing.
	Index    int
	HasIndex bool

	// Enum holds the allowed values from <field>Values. Elements may be
	// plain strings or {code, name} objects; both forms are accepted.
	Enum []string
}

// KnownCode reports whether the field's type code is in the closed set.
func (f FieldSpec) KnownCode() bool {
	switch f.Code {
	case CodeString, CodeLong, CodeFloat, CodeBool, CodeEnum, CodeDref:
		return true
	}
	return false
}

// ParseFields extracts declared fields from a template's fieldsJson.
// Entries named index_* and *Values annotate their field and are not
// fields themselves. Output is sorted by name for deterministic
// validation reports.
func ParseFields(tpl *types.Template) []FieldSpec {
	if tpl == nil || tpl.FieldsJSON == nil {
		return nil
	}

	fields := make([]FieldSpec, 0, len(tpl.FieldsJSON))
	for name, raw := range tpl.FieldsJSON {
		if strings.HasPrefix(name, "index_") || strings.HasSuffix(name, "Values") {
			continue
		}
		code, ok := raw.(string)
		if !ok {
			// Non-string declarations carry no type code; reported by
			// ValidateTemplate, skipped here.
			continue
		}
		spec := FieldSpec{Name: name, Code: code}
		if rest, found := strings.CutPrefix(code, repeatedPrefix); found {
			spec.Repeated = true
			spec.Code = rest
		}
		if idx, ok := tpl.FieldsJSON["index_"+name]; ok {
			if n, isNum := types.NumericValue(idx); isNum {
				spec.Index = int(n)
				spec.HasIndex = true
			}
		}
		if dom, ok := tpl.FieldsJSON[name+"Values"]; ok {
			spec.Enum = enumDomain(dom)
		}
		fields = append(fields, spec)
	}

	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}

// enumDomain flattens a <field>Values array. Object entries contribute
// both their code and their display name so queries may use either.
func enumDomain(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	var out []string
	for _, el := range arr {
		switch e := el.(type) {
		case string:
			out = append(out, e)
		case map[string]any:
			if code, ok := e["code"].(string); ok {
				out = append(out, code)
			}
			if name, ok := e["name"].(string); ok {
				out = append(out, name)
			}
		}
	}
	return out
}

// ValidateTemplate checks schema integrity at registration time: a
// non-empty name, a known type code per field, an index_<field> entry
// per field, and index uniqueness.
func ValidateTemplate(tpl *types.Template) []types.Violation {
	var violations []types.Violation
	if tpl == nil {
		return []types.Violation{{Template: "", Reason: "nil template"}}
	}
	if tpl.Name == "" {
		violations = append(violations, types.Violation{Template: tpl.Name, Reason: "template name is empty"})
	}

	fields := ParseFields(tpl)
	if len(fields) == 0 {
		violations = append(violations, types.Violation{Template: tpl.Name, Reason: "template declares no fields"})
		return violations
	}

	seen := map[int]string{}
	for _, f := range fields {
		if !f.KnownCode() {
			violations = append(violations, types.Violation{
				Template: tpl.Name, Field: f.Name,
				Reason: fmt.Sprintf("unknown type code %q", f.Code),
			})
		}
		if !f.HasIndex {
			violations = append(violations, types.Violation{
				Template: tpl.Name, Field: f.Name,
				Reason: "missing index_" + f.Name,
			})
			continue
		}
		if other, dup := seen[f.Index]; dup {
			violations = append(violations, types.Violation{
				Template: tpl.Name, Field: f.Name,
				Reason: fmt.Sprintf("index %d already used by %s", f.Index, other),
			})
			continue
		}
		seen[f.Index] = f.Name
	}
	return violations
}

// ParseTemplateRecord converts an indexed record of recordType
// "template" into its stored template form. The record carries a
// "template" section with name and fieldsJson; fieldsJson arriving from
// the peer graph may still be a JSON string.
func ParseTemplateRecord(rec *types.Record) (*types.Template, error) {
	if rec == nil || rec.Meta == nil {
		return nil, fmt.Errorf("%w: template record missing oip", types.ErrValidation)
	}
	section := rec.Section("template")
	if section == nil {
		return nil, fmt.Errorf("%w: record %s has no template section", types.ErrValidation, rec.Meta.DID)
	}

	name, _ := section["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("%w: template record %s missing name", types.ErrValidation, rec.Meta.DID)
	}

	fieldsJSON, err := fieldsMap(section["fieldsJson"])
	if err != nil {
		return nil, fmt.Errorf("%w: template %s: %v", types.ErrValidation, name, err)
	}

	if rec.Meta.DID.Method() != types.StorageArweave {
		return nil, fmt.Errorf("%w: template %s is not a blockchain record", types.ErrValidation, name)
	}

	return &types.Template{
		DID:        rec.Meta.DID,
		TxID:       rec.Meta.DID.Reference(),
		Name:       name,
		FieldsJSON: fieldsJSON,
		Creator:    rec.Meta.Creator,
		IndexedAt:  rec.Meta.IndexedAt,
	}, nil
}

func fieldsMap(v any) (map[string]any, error) {
	switch fv := v.(type) {
	case map[string]any:
		return fv, nil
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(fv), &m); err != nil {
			return nil, fmt.Errorf("fieldsJson does not decode: %v", err)
		}
		return m, nil
	case nil:
		return nil, fmt.Errorf("missing fieldsJson")
	default:
		return nil, fmt.Errorf("fieldsJson has unsupported shape %T", v)
	}
}
