package capability

import (
	"encoding/json"
	"math"
)

// StringArg returns args[key] when it is a string, otherwise def.
func StringArg(args map[string]interface{}, key, def string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return def
}

// IntArg returns args[key] when it is a whole number, otherwise def.
func IntArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt32 && v <= math.MaxInt32 {
			return int(v)
		}
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func BoolArg(args map[string]interface{}, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}

// StringSliceArg returns the string elements of an array argument. Elements
// of other types are skipped.
func StringSliceArg(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// StringMapArg returns the string-valued entries of an object argument.
func StringMapArg(args map[string]interface{}, key string) map[string]string {
	switch v := args[key].(type) {
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, item := range v {
			if s, ok := item.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}
