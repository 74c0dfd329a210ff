package gun

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuemby/burrow/pkg/types"
)

// The peer graph cannot hold arrays natively, so the adapter carries
// them as JSON strings: put serializes on write, get deserializes on
// read. The rewrite is recursive through nested objects but arrays may
// only contain scalars; arrays of objects or of arrays are rejected so
// they never reach a relay in a shape other peers cannot read back.

// EncodeData rewrites every array in data into its transport form.
// The peer-server endpoints share it so served nodes read back the
// same on every relay.
func EncodeData(data types.RecordData) (types.RecordData, error) {
	out := make(types.RecordData, len(data))
	for section, fields := range data {
		outFields := make(map[string]any, len(fields))
		for field, v := range fields {
			enc, err := encodeValue(section+"."+field, v)
			if err != nil {
				return nil, err
			}
			outFields[field] = enc
		}
		out[section] = outFields
	}
	return out, nil
}

func encodeValue(path string, v any) (any, error) {
	switch val := v.(type) {
	case []any:
		for _, elem := range val {
			switch elem.(type) {
			case map[string]any, []any, []string:
				return nil, fmt.Errorf("%w: %s: arrays of objects are not transportable, flatten to parallel scalar arrays", types.ErrValidation, path)
			}
		}
		return marshalArray(path, val)
	case []string:
		return marshalArray(path, val)
	case []float64:
		return marshalArray(path, val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nested := range val {
			enc, err := encodeValue(path+"."+k, nested)
			if err != nil {
				return nil, err
			}
			out[k] = enc
		}
		return out, nil
	default:
		return v, nil
	}
}

func marshalArray(path string, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", types.ErrValidation, path, err)
	}
	return string(raw), nil
}

// DecodeData reverses EncodeData on a node read back from a relay.
func DecodeData(data types.RecordData) types.RecordData {
	out := make(types.RecordData, len(data))
	for section, fields := range data {
		outFields := make(map[string]any, len(fields))
		for field, v := range fields {
			outFields[field] = decodeValue(v)
		}
		out[section] = outFields
	}
	return out
}

// decodeValue turns transport strings back into arrays. Only strings
// that parse cleanly as JSON arrays are rewritten; record fields whose
// legitimate value merely resembles one are indistinguishable on the
// wire, which is inherent to the transport encoding.
func decodeValue(v any) any {
	switch val := v.(type) {
	case string:
		trimmed := strings.TrimSpace(val)
		if !strings.HasPrefix(trimmed, "[") {
			return v
		}
		var arr []any
		if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
			return v
		}
		return arr
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nested := range val {
			out[k] = decodeValue(nested)
		}
		return out
	default:
		return v
	}
}
