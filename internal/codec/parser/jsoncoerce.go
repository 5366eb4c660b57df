package parser

import (
	"bytes"
	"encoding/json"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

// isValidJSON reports whether raw decodes as exactly one JSON value,
// without allocating the decoded structure (used by the delimited
// parser's Json-typed token handling, which stores the raw token
// unchanged per the Json+anything coercion rule in spec §4.3).
func isValidJSON(raw []byte) bool {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&v); err != nil {
		return false
	}
	return dec.More() == false
}

// parseValueFromJSON implements spec §4.3's deterministic JSON → Value
// coercion policy. It returns (zero, false) on a type/shape mismatch,
// mirroring the original's Option-returning parse_value_from_json.
func parseValueFromJSON(raw json.RawMessage, dtype value.Type) (value.Value, bool) {
	if dtype.Kind == value.TypeKindJSON {
		return value.NewJSON(raw), true
	}

	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return value.Value{}, false
	}

	if probe == nil {
		if dtype.Kind == value.TypeKindOptional || dtype.Kind == value.TypeKindAny {
			return value.None, true
		}
		return value.Value{}, false
	}

	if dtype.Kind == value.TypeKindOptional {
		return parseValueFromJSON(raw, *dtype.Elem)
	}

	switch v := probe.(type) {
	case string:
		if dtype.Kind == value.TypeKindString || dtype.Kind == value.TypeKindAny {
			return value.NewString(v), true
		}
	case float64:
		switch dtype.Kind {
		case value.TypeKindInt:
			if i, exact := asExactInt64(v); exact {
				return value.NewInt(i), true
			}
			return value.Value{}, false
		case value.TypeKindFloat:
			return value.NewFloat(v), true
		case value.TypeKindAny:
			if i, exact := asExactInt64(v); exact {
				return value.NewInt(i), true
			}
			return value.NewFloat(v), true
		}
	case bool:
		if dtype.Kind == value.TypeKindBool || dtype.Kind == value.TypeKindAny {
			return value.NewBool(v), true
		}
	case []any:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return value.Value{}, false
		}
		switch dtype.Kind {
		case value.TypeKindTuple:
			if len(items) != len(dtype.Items) {
				return value.Value{}, false
			}
			parsed := make([]value.Value, len(items))
			for i, item := range items {
				pv, ok := parseValueFromJSON(item, dtype.Items[i])
				if !ok {
					return value.Value{}, false
				}
				parsed[i] = pv
			}
			return value.NewTuple(parsed), true
		case value.TypeKindList:
			parsed := make([]value.Value, len(items))
			for i, item := range items {
				pv, ok := parseValueFromJSON(item, *dtype.Elem)
				if !ok {
					return value.Value{}, false
				}
				parsed[i] = pv
			}
			return value.NewList(parsed), true
		case value.TypeKindAny:
			parsed := make([]value.Value, len(items))
			for i, item := range items {
				pv, ok := parseValueFromJSON(item, value.Any)
				if !ok {
					return value.Value{}, false
				}
				parsed[i] = pv
			}
			return value.NewList(parsed), true
		}
	}
	return value.Value{}, false
}

// asExactInt64 reports whether f is exactly representable as an int64,
// the same "representable" test the original applies before falling
// back from Int to Float under an Any-typed field (spec §4.3).
func asExactInt64(f float64) (int64, bool) {
	i := int64(f)
	if float64(i) == f {
		return i, true
	}
	return 0, false
}
