package workflow

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Field path prefixes understood by the condition evaluator. Anything else
// resolves to undefined.
const (
	pathPrefixInput     = "input."
	pathPrefixStep      = "step."
	pathPrefixVariables = "variables."
)

// lookupPath navigates a dotted path through nested string-keyed maps.
// A missing segment or a non-map intermediate value yields undefined.
func lookupPath(root map[string]any, path string) (any, bool) {
	if path == "" {
		return root, root != nil
	}
	var current any = root
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// toFloat coerces numeric types and numeric strings to float64 for the
// greaterThan/lessThan operators and for numeric-normalized equality.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toString coerces a value to its string form for the contains operators.
func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// equalValues compares with numeric normalization: any two numeric values
// (or numeric strings paired with numbers) compare by value, everything
// else by deep equality. YAML and JSON decode the "same" number to
// different Go types, so raw DeepEqual would be wrong here.
func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// containsValue reports whether list (any slice) has an element equal to v
// under equalValues.
func containsValue(list any, v any) bool {
	rv := reflect.ValueOf(list)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if equalValues(rv.Index(i).Interface(), v) {
			return true
		}
	}
	return false
}

// copyMapDeep deep-copies a string-keyed map. Nested maps and slices are
// copied recursively; scalars are shared (they are immutable values).
func copyMapDeep(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValueDeep(v)
	}
	return out
}

// copyValueDeep deep-copies the map/slice shapes produced by YAML and JSON
// decoding. Values of other types are returned as-is.
func copyValueDeep(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMapDeep(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValueDeep(item)
		}
		return out
	default:
		return v
	}
}
