package filter

import (
	"reflect"
	"strings"
	"time"

	"github.com/arthur-debert/nanogrid/types"
)

// isBlank reports whether v counts as null for equality operators
func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

// valuesEqual compares values of possibly different numeric kinds
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}
	if sa, ok := a.(types.LocalDate); ok {
		sb, ok := b.(types.LocalDate)
		if !ok {
			s, isStr := b.(string)
			return isStr && string(sa) == s
		}
		return sa == sb
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders a against b. ok is false when the values cannot be
// ordered against each other.
func compareValues(a, b any) (cmp int, ok bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if na, isNum := number(a); isNum {
		nb, isNum := number(b)
		if !isNum {
			return 0, false
		}
		return sign(na - nb), true
	}
	switch x := a.(type) {
	case time.Time:
		y, isTime := b.(time.Time)
		if !isTime {
			return 0, false
		}
		return x.Compare(y), true
	case types.LocalDate:
		y, isDate := b.(types.LocalDate)
		if !isDate {
			return 0, false
		}
		return strings.Compare(string(x), string(y)), true
	case string:
		y, isStr := b.(string)
		if !isStr {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	return 0, false
}

// CompareValues orders values for display: nil first, then values of one
// kind in their natural order, falling back to their text
func CompareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}
	if c, ok := compareValues(a, b); ok {
		return c
	}
	return strings.Compare(text(a), text(b))
}

func number(v any) (float64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		n, err := types.ToFloat(v)
		return n, err == nil
	}
	return 0, false
}

func sign(f float64) int {
	switch {
	case f < 0:
		return -1
	case f > 0:
		return 1
	}
	return 0
}

// text renders a record value for the text operators
func text(v any) string {
	switch x := v.(type) {
	case []string:
		return strings.Join(x, ",")
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = types.ToString(item)
		}
		return strings.Join(parts, ",")
	}
	return types.ToString(v)
}

// asList converts slice values to []any; scalars become a one-element list
func asList(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// isList reports whether v is a slice value (other than []byte)
func isList(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if valuesEqual(item, v) {
			return true
		}
	}
	return false
}

// uniqValues removes duplicates preserving first occurrence order
func uniqValues(list []any) []any {
	out := make([]any, 0, len(list))
	for _, v := range list {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// sameValueSet compares two lists ignoring order and duplicates
func sameValueSet(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !containsValue(b, v) {
			return false
		}
	}
	for _, v := range b {
		if !containsValue(a, v) {
			return false
		}
	}
	return true
}
