package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arthur-debert/nanogrid/types"
)

// TestFn decides whether a record passes a filter
type TestFn func(r *types.Record) bool

// FieldLookup resolves field metadata by name. A Store satisfies it.
type FieldLookup interface {
	GetField(name string) (types.Field, bool)
}

// Filter is a FieldFilter or a CompoundFilter. Filters are immutable.
type Filter interface {
	// Test builds a predicate. With a non-nil lookup, filter values are parsed
	// to the field's type and filters on unknown fields pass every record.
	Test(fields FieldLookup) TestFn
	// Equals compares filters structurally, ignoring sibling order
	Equals(other Filter) bool
	// Spec returns the wire representation
	Spec() Spec
	String() string
}

// Spec is the JSON-compatible form of a filter tree:
//
//	FieldFilter    := {field, op, value[, valueType]}
//	CompoundFilter := {op: "AND"|"OR", filters: [...]}
type Spec struct {
	Field     string          `json:"field,omitempty" yaml:"field,omitempty"`
	Op        string          `json:"op,omitempty" yaml:"op,omitempty"`
	Value     any             `json:"value,omitempty" yaml:"value,omitempty"`
	ValueType types.FieldType `json:"valueType,omitempty" yaml:"valueType,omitempty"`
	Filters   []Spec          `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// MarshalJSON emits compound specs as {op, filters} and field specs with an
// explicit value, so zero and null values survive a round trip
func (s Spec) MarshalJSON() ([]byte, error) {
	if s.IsCompound() {
		filters := s.Filters
		if filters == nil {
			filters = []Spec{}
		}
		return json.Marshal(struct {
			Op      string `json:"op"`
			Filters []Spec `json:"filters"`
		}{s.Op, filters})
	}
	out := map[string]any{"field": s.Field, "op": s.Op, "value": s.Value}
	if s.ValueType != "" {
		out["valueType"] = s.ValueType
	}
	return json.Marshal(out)
}

// IsCompound reports whether s describes a CompoundFilter
func (s Spec) IsCompound() bool {
	return s.Field == "" && s.Filters != nil
}

// FromSpec builds a filter from its spec. A compound with no children yields
// nil and a compound with one child yields that child.
func FromSpec(s Spec) (Filter, error) {
	if s.Field != "" {
		f, err := NewFieldFilterTyped(s.Field, Op(s.Op), s.Value, s.ValueType)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	if s.Filters == nil {
		return nil, fmt.Errorf("%w: spec has neither field nor filters", ErrInvalidFilter)
	}

	op := CompoundOp(strings.ToUpper(s.Op))
	if op == "" {
		op = And
	}
	children := make([]Filter, 0, len(s.Filters))
	for _, child := range s.Filters {
		f, err := FromSpec(child)
		if err != nil {
			return nil, err
		}
		if f != nil {
			children = append(children, f)
		}
	}
	return Combine(op, children...)
}

// Parse decodes a JSON filter. A JSON array is treated as an AND of its
// elements; null or an empty document yields a nil filter.
func Parse(data []byte) (Filter, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []Spec
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		if list == nil {
			list = []Spec{}
		}
		return FromSpec(Spec{Op: string(And), Filters: list})
	}

	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return FromSpec(s)
}

// Marshal encodes a possibly nil filter to JSON
func Marshal(f Filter) ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// Equal compares two possibly nil filters
func Equal(a, b Filter) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equals(b)
}

// FieldFilter tests one field against one or more values
type FieldFilter struct {
	Field string
	Op    Op
	Value any
}

// NewFieldFilter validates and builds a FieldFilter. List values are only
// accepted for array operators and are de-duplicated.
func NewFieldFilter(field string, op Op, value any) (*FieldFilter, error) {
	return NewFieldFilterTyped(field, op, value, "")
}

// NewFieldFilterTyped is NewFieldFilter with values parsed as valueType
func NewFieldFilterTyped(field string, op Op, value any, valueType types.FieldType) (*FieldFilter, error) {
	if field == "" {
		return nil, fmt.Errorf("%w: field is required", ErrInvalidFilter)
	}
	if !op.IsValid() {
		return nil, fmt.Errorf("%w: operator %q not recognized", ErrInvalidOperator, op)
	}

	parse := func(v any) (any, error) {
		if valueType == "" {
			return v, nil
		}
		return types.ParseFieldValue(v, valueType, nil)
	}

	if isList(value) {
		if !op.IsArrayOp() {
			return nil, fmt.Errorf("%w: operator %q does not support multiple values", ErrInvalidOperator, op)
		}
		list := uniqValues(asList(value))
		for i, v := range list {
			parsed, err := parse(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
			}
			list[i] = parsed
		}
		value = list
	} else {
		parsed, err := parse(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		value = parsed
	}

	return &FieldFilter{Field: field, Op: op, Value: value}, nil
}

// MustFieldFilter is NewFieldFilter for statically known filters; it panics
// on error
func MustFieldFilter(field string, op Op, value any) *FieldFilter {
	f, err := NewFieldFilter(field, op, value)
	if err != nil {
		panic(err)
	}
	return f
}

// Values returns the filter value as a list
func (f *FieldFilter) Values() []any {
	if isList(f.Value) {
		return asList(f.Value)
	}
	return []any{f.Value}
}

// Test implements Filter
func (f *FieldFilter) Test(fields FieldLookup) TestFn {
	value := f.Value
	if fields != nil {
		field, ok := fields.GetField(f.Field)
		if !ok {
			return func(*types.Record) bool { return true }
		}
		fieldType := field.Type
		if fieldType == types.FieldTags {
			fieldType = types.FieldString
		}
		parse := func(v any) any {
			parsed, err := types.ParseFieldValue(v, fieldType, nil)
			if err != nil {
				return nil
			}
			return parsed
		}
		if isList(value) {
			list := asList(value)
			parsed := make([]any, len(list))
			for i, v := range list {
				parsed[i] = parse(v)
			}
			value = parsed
		} else {
			value = parse(value)
		}
	}

	match := f.matcher(value)
	name := f.Field
	return func(r *types.Record) bool {
		return match(r.Get(name))
	}
}

func (f *FieldFilter) matcher(value any) func(v any) bool {
	var list []any
	if f.Op.IsArrayOp() {
		list = asList(value)
		if value == nil {
			list = []any{nil}
		}
	}

	lowered := func() []string {
		out := make([]string, len(list))
		for i, v := range list {
			out[i] = strings.ToLower(types.ToString(v))
		}
		return out
	}

	switch f.Op {
	case OpEq:
		return func(v any) bool {
			if isBlank(v) {
				v = nil
			}
			return containsValue(list, v)
		}
	case OpNe:
		return func(v any) bool {
			if isBlank(v) {
				v = nil
			}
			return !containsValue(list, v)
		}
	case OpGt, OpGte, OpLt, OpLte:
		op := f.Op
		return func(v any) bool {
			c, ok := compareValues(v, value)
			if !ok {
				return false
			}
			switch op {
			case OpGt:
				return c > 0
			case OpGte:
				return c >= 0
			case OpLt:
				return c < 0
			}
			return c <= 0
		}
	case OpLike, OpNotLike:
		patterns := lowered()
		negate := f.Op == OpNotLike
		return func(v any) bool {
			s := strings.ToLower(text(v))
			for _, p := range patterns {
				if strings.Contains(s, p) {
					return !negate
				}
			}
			return negate
		}
	case OpBegins:
		patterns := lowered()
		return func(v any) bool {
			s := strings.ToLower(text(v))
			for _, p := range patterns {
				if strings.HasPrefix(s, p) {
					return true
				}
			}
			return false
		}
	case OpEnds:
		patterns := lowered()
		return func(v any) bool {
			s := strings.ToLower(text(v))
			for _, p := range patterns {
				if strings.HasSuffix(s, p) {
					return true
				}
			}
			return false
		}
	case OpIncludes:
		return func(v any) bool {
			if v == nil {
				return false
			}
			for _, item := range asList(v) {
				if containsValue(list, item) {
					return true
				}
			}
			return false
		}
	case OpExcludes:
		return func(v any) bool {
			if v == nil {
				return true
			}
			for _, item := range asList(v) {
				if containsValue(list, item) {
					return false
				}
			}
			return true
		}
	}
	return func(any) bool { return false }
}

// Equals implements Filter
func (f *FieldFilter) Equals(other Filter) bool {
	o, ok := other.(*FieldFilter)
	if !ok || o == nil {
		return false
	}
	if o == f {
		return true
	}
	if o.Field != f.Field || o.Op != f.Op {
		return false
	}
	if isList(o.Value) && isList(f.Value) {
		return sameValueSet(asList(o.Value), asList(f.Value))
	}
	return valuesEqual(o.Value, f.Value)
}

// Spec implements Filter
func (f *FieldFilter) Spec() Spec {
	return Spec{
		Field:     f.Field,
		Op:        string(f.Op),
		Value:     wireValue(f.Value),
		ValueType: serializedValueType(f.Value),
	}
}

// MarshalJSON always emits the value key, including null values
func (f *FieldFilter) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"field": f.Field,
		"op":    string(f.Op),
		"value": wireValue(f.Value),
	}
	if vt := serializedValueType(f.Value); vt != "" {
		out["valueType"] = vt
	}
	return json.Marshal(out)
}

func (f *FieldFilter) String() string {
	return fmt.Sprintf("%s %s %s", f.Field, f.Op, formatValue(f.Value))
}

// CompoundFilter joins child filters with AND or OR
type CompoundFilter struct {
	Op      CompoundOp
	Filters []Filter
}

// NewCompoundFilter builds a compound filter, dropping nil children
func NewCompoundFilter(op CompoundOp, filters ...Filter) (*CompoundFilter, error) {
	op = CompoundOp(strings.ToUpper(string(op)))
	if op == "" {
		op = And
	}
	if op != And && op != Or {
		return nil, fmt.Errorf("%w: compound operator %q must be AND or OR", ErrInvalidOperator, op)
	}
	children := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			children = append(children, f)
		}
	}
	return &CompoundFilter{Op: op, Filters: children}, nil
}

// Field returns the field shared by every leaf of this compound, or "" when
// the leaves span several fields
func (c *CompoundFilter) Field() string {
	if len(c.Filters) == 0 {
		return ""
	}
	first := fieldOf(c.Filters[0])
	if first == "" {
		return ""
	}
	for _, f := range c.Filters[1:] {
		if fieldOf(f) != first {
			return ""
		}
	}
	return first
}

// Test implements Filter
func (c *CompoundFilter) Test(fields FieldLookup) TestFn {
	if len(c.Filters) == 0 {
		return func(*types.Record) bool { return true }
	}
	tests := make([]TestFn, len(c.Filters))
	for i, f := range c.Filters {
		tests[i] = f.Test(fields)
	}
	if c.Op == Or {
		return func(r *types.Record) bool {
			for _, t := range tests {
				if t(r) {
					return true
				}
			}
			return false
		}
	}
	return func(r *types.Record) bool {
		for _, t := range tests {
			if !t(r) {
				return false
			}
		}
		return true
	}
}

// Equals implements Filter. Sibling order is ignored.
func (c *CompoundFilter) Equals(other Filter) bool {
	o, ok := other.(*CompoundFilter)
	if !ok || o == nil {
		return false
	}
	if o == c {
		return true
	}
	if o.Op != c.Op || len(o.Filters) != len(c.Filters) {
		return false
	}
	used := make([]bool, len(o.Filters))
	for _, f := range c.Filters {
		found := false
		for j, g := range o.Filters {
			if !used[j] && f.Equals(g) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Spec implements Filter
func (c *CompoundFilter) Spec() Spec {
	children := make([]Spec, len(c.Filters))
	for i, f := range c.Filters {
		children[i] = f.Spec()
	}
	return Spec{Op: string(c.Op), Filters: children}
}

// MarshalJSON implements json.Marshaler
func (c *CompoundFilter) MarshalJSON() ([]byte, error) {
	filters := c.Filters
	if filters == nil {
		filters = []Filter{}
	}
	return json.Marshal(struct {
		Op      CompoundOp `json:"op"`
		Filters []Filter   `json:"filters"`
	}{c.Op, filters})
}

func (c *CompoundFilter) String() string {
	parts := make([]string, len(c.Filters))
	for i, f := range c.Filters {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, " "+string(c.Op)+" ") + ")"
}

func fieldOf(f Filter) string {
	switch x := f.(type) {
	case *FieldFilter:
		return x.Field
	case *CompoundFilter:
		return x.Field()
	}
	return ""
}

func serializedValueType(v any) types.FieldType {
	if isList(v) {
		list := asList(v)
		if len(list) == 0 {
			return ""
		}
		v = list[0]
	}
	switch v.(type) {
	case time.Time:
		return types.FieldDate
	case types.LocalDate:
		return types.FieldLocalDate
	}
	return ""
}

func wireValue(v any) any {
	if !isList(v) {
		return v
	}
	return asList(v)
}

func formatValue(v any) string {
	if isList(v) {
		list := asList(v)
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", x)
	}
	return types.ToString(v)
}
