package filter

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// scalar normalizes v into the domain of kind: string for string fields, float64
// for numeric fields and unix milliseconds (float64) for time fields.
func scalar(v any, kind fieldKind) (any, bool) {
	switch kind {
	case kindString:
		s, ok := v.(string)
		return s, ok
	case kindNumber:
		return number(v)
	case kindTime:
		if s, ok := v.(string); ok {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, false
			}
			return float64(t.UnixMilli()), true
		}
		if t, ok := v.(time.Time); ok {
			return float64(t.UnixMilli()), true
		}
		return number(v)
	}
	return nil, false
}

func number(v any) (any, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return nil, false
}

func stringish(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	}
	if f, ok := number(v); ok {
		return strconv.FormatFloat(f.(float64), 'f', -1, 64), true
	}
	return "", false
}

func setKey(v any) string {
	switch x := v.(type) {
	case string:
		return "s:" + x
	case float64:
		return "n:" + strconv.FormatFloat(x, 'g', -1, 64)
	}
	return ""
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, true
	}
	return nil, false
}
