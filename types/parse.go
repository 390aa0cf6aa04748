package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// LocalDate is a calendar date without a time zone, formatted YYYY-MM-DD.
// Its lexical order matches its chronological order.
type LocalDate string

// LocalDateLayout is the layout used to parse and format LocalDate values
const LocalDateLayout = "2006-01-02"

// ErrInvalidValue is returned when a raw value cannot be converted to a field type
var ErrInvalidValue = errors.New("invalid value")

// dateLayouts are tried in order when parsing dates from strings
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	LocalDateLayout,
}

// ParseFieldValue converts val into the typed representation for typ.
// A nil val is replaced by def. Conversion failures return ErrInvalidValue.
func ParseFieldValue(val any, typ FieldType, def any) (any, error) {
	if val == nil {
		val = def
	}
	if val == nil {
		return nil, nil
	}

	switch typ {
	case FieldTags:
		return parseTags(val), nil
	case FieldAuto, FieldJSON:
		return val, nil
	case FieldInt:
		n, err := ToFloat(val)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, nil
		}
		return int64(math.Trunc(n)), nil
	case FieldNumber:
		return ToFloat(val)
	case FieldBool:
		return truthy(val), nil
	case FieldString:
		return ToString(val), nil
	case FieldDate:
		return ParseDate(val)
	case FieldLocalDate:
		return ParseLocalDate(val)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownFieldType, typ)
}

// ToFloat converts numeric values and numeric strings to float64
func ToFloat(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %T is not a number", ErrInvalidValue, val)
}

// ToString renders a typed value as plain text
func ToString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case LocalDate:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(val)
}

// ParseDate converts time values, date strings and epoch milliseconds to time.Time
func ParseDate(val any) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case LocalDate:
		return time.Parse(LocalDateLayout, string(v))
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrInvalidValue, v)
	}
	ms, err := ToFloat(val)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %T is not a date", ErrInvalidValue, val)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// ParseLocalDate converts dates and YYYY-MM-DD strings to LocalDate
func ParseLocalDate(val any) (LocalDate, error) {
	switch v := val.(type) {
	case LocalDate:
		return v, nil
	case time.Time:
		return LocalDate(v.Format(LocalDateLayout)), nil
	case string:
		s := strings.TrimSpace(v)
		if len(s) == 8 && !strings.Contains(s, "-") {
			s = s[:4] + "-" + s[4:6] + "-" + s[6:]
		}
		if _, err := time.Parse(LocalDateLayout, s); err != nil {
			return "", fmt.Errorf("%w: %q is not a local date", ErrInvalidValue, v)
		}
		return LocalDate(s), nil
	}
	return "", fmt.Errorf("%w: %T is not a local date", ErrInvalidValue, val)
}

func parseTags(val any) []string {
	switch v := val.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item != nil {
				out = append(out, ToString(item))
			}
		}
		return out
	}
	return []string{ToString(val)}
}

func truthy(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case nil:
		return false
	}
	if n, err := ToFloat(val); err == nil {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}
