// Package fieldspec describes how a single field can be filtered: which
// operators apply, whether discrete values are offered and how user input
// is parsed and rendered. The grid column filters and the typeahead filter
// chooser build their own specs on top of Base.
package fieldspec

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
	"github.com/arthur-debert/nanogrid/types"
)

var (
	// ErrFieldRequired is returned when a spec is configured without a field
	ErrFieldRequired = errors.New("field is required")
	// ErrDateParserRequired is returned for date fields configured without
	// a value parser
	ErrDateParserRequired = errors.New("date fields require a value parser")
	// ErrValuesRequired is returned when forceSelection is set but no values
	// are available
	ErrValuesRequired = errors.New("values are required when forcing selection")
)

// Source supplies field metadata and the unfiltered records values are
// drawn from. A store.Store satisfies it.
type Source interface {
	GetField(name string) (types.Field, bool)
	AllRecords() []*types.Record
	LastUpdated() int64
	Updates() reactive.Source
}

// Config declares a field spec. Zero values take defaults derived from the
// source field and the field type.
type Config struct {
	Field       string          `json:"field" yaml:"field"`
	FieldType   types.FieldType `json:"fieldType,omitempty" yaml:"fieldType,omitempty"`
	DisplayName string          `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Ops         []filter.Op     `json:"ops,omitempty" yaml:"ops,omitempty"`
	// EnableValues offers discrete values; nil defaults by field type
	EnableValues *bool `json:"enableValues,omitempty" yaml:"enableValues,omitempty"`
	// ForceSelection restricts = and != input to the available values
	ForceSelection bool  `json:"forceSelection,omitempty" yaml:"forceSelection,omitempty"`
	Values         []any `json:"values,omitempty" yaml:"values,omitempty"`

	Source Source `json:"-" yaml:"-"`
}

// Base holds the configuration shared by every field spec. Only the values
// list changes after construction.
type Base struct {
	field             string
	fieldType         types.FieldType
	displayName       string
	ops               []filter.Op
	source            Source
	sourceField       types.Field
	hasSourceField    bool
	enableValues      bool
	forceSelection    bool
	hasExplicitValues bool

	mu        sync.RWMutex
	values    []any
	valuesSig reactive.Signal
}

// NewBase resolves cfg into a Base. Supplied operators are narrowed to those
// valid for the field's filter type; none remaining is an error.
func NewBase(cfg Config) (*Base, error) {
	if cfg.Field == "" {
		return nil, ErrFieldRequired
	}
	b := &Base{
		field:          cfg.Field,
		source:         cfg.Source,
		forceSelection: cfg.ForceSelection,
	}
	if b.source != nil {
		b.sourceField, b.hasSourceField = b.source.GetField(cfg.Field)
	}

	switch {
	case cfg.FieldType != "":
		b.fieldType = cfg.FieldType
	case b.hasSourceField:
		b.fieldType = b.sourceField.Type
	default:
		b.fieldType = types.FieldAuto
	}
	if !b.fieldType.IsValid() {
		return nil, fmt.Errorf("field %q: %w: %q", cfg.Field, types.ErrUnknownFieldType, b.fieldType)
	}

	switch {
	case cfg.DisplayName != "":
		b.displayName = cfg.DisplayName
	case b.hasSourceField:
		b.displayName = b.sourceField.DisplayName
	default:
		b.displayName = types.GenDisplayName(cfg.Field)
	}

	ops, err := b.parseOperators(cfg.Ops)
	if err != nil {
		return nil, err
	}
	b.ops = ops

	switch {
	case cfg.Values != nil:
		b.values = slices.Clone(cfg.Values)
	case b.IsBoolFieldType():
		b.values = []any{true, false}
	}
	b.hasExplicitValues = len(b.values) > 0
	if cfg.EnableValues != nil {
		b.enableValues = b.hasExplicitValues || *cfg.EnableValues
	} else {
		b.enableValues = b.hasExplicitValues || b.isEnumerableByDefault()
	}
	return b, nil
}

func (b *Base) Field() string                { return b.field }
func (b *Base) FieldType() types.FieldType   { return b.fieldType }
func (b *Base) DisplayName() string          { return b.displayName }
func (b *Base) Source() Source               { return b.source }
func (b *Base) EnableValues() bool           { return b.enableValues }
func (b *Base) ForceSelection() bool         { return b.forceSelection }
func (b *Base) HasExplicitValues() bool      { return b.hasExplicitValues }
func (b *Base) FilterType() types.FilterType { return types.FilterTypeOf(b.fieldType) }

// Ops returns the operators offered for this field
func (b *Base) Ops() []filter.Op {
	return slices.Clone(b.ops)
}

// SourceField returns the matching field of the source, if any
func (b *Base) SourceField() (types.Field, bool) {
	return b.sourceField, b.hasSourceField
}

func (b *Base) IsRangeType() bool      { return b.FilterType() == types.FilterRange }
func (b *Base) IsValueType() bool      { return b.FilterType() == types.FilterValue }
func (b *Base) IsCollectionType() bool { return b.FilterType() == types.FilterCollection }
func (b *Base) IsBoolFieldType() bool  { return b.fieldType == types.FieldBool }

func (b *Base) IsDateBasedFieldType() bool {
	return b.fieldType == types.FieldDate || b.fieldType == types.FieldLocalDate
}

func (b *Base) IsNumericFieldType() bool {
	return b.fieldType == types.FieldInt || b.fieldType == types.FieldNumber
}

// Values returns the suggestible values, nil when none have been loaded
func (b *Base) Values() []any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.values == nil {
		return nil
	}
	return slices.Clone(b.values)
}

// SetValues replaces the suggestible values and notifies ValuesChanges
func (b *Base) SetValues(values []any) {
	b.mu.Lock()
	b.values = values
	b.mu.Unlock()
	b.valuesSig.Notify()
}

// ValuesChanges notifies after the values list is replaced
func (b *Base) ValuesChanges() reactive.Source {
	return &b.valuesSig
}

// ShouldLoadValues reports whether values come from the source rather than
// from configuration
func (b *Base) ShouldLoadValues() bool {
	return !b.hasExplicitValues && b.enableValues
}

// LoadValues refreshes values from the source's unfiltered records
func (b *Base) LoadValues() {
	if b.ShouldLoadValues() && b.source != nil {
		b.SetValues(b.ValuesFromSource())
	}
}

// ValuesFromSource collects the distinct non-null values of the field
// across the source's unfiltered records. Tag lists contribute their
// members rather than the lists themselves.
func (b *Base) ValuesFromSource() []any {
	if b.source == nil {
		return nil
	}
	field, ok := b.source.GetField(b.field)
	if !ok {
		return nil
	}

	out := []any{}
	seen := map[any]bool{}
	add := func(v any) {
		key := UniqueKey(v)
		if !seen[key] {
			seen[key] = true
			out = append(out, v)
		}
	}
	for _, r := range b.source.AllRecords() {
		v := r.Get(b.field)
		if v == nil {
			continue
		}
		if field.Type == types.FieldTags {
			for _, tag := range tagValues(v) {
				add(tag)
			}
			continue
		}
		add(v)
	}
	return out
}

// SupportsOperator reports whether op is offered for this field
func (b *Base) SupportsOperator(op filter.Op) bool {
	return slices.Contains(b.ops, op)
}

// SupportsSuggestions reports whether values should be suggested for op
func (b *Base) SupportsSuggestions(op filter.Op) bool {
	if !b.enableValues || b.Values() == nil || !b.SupportsOperator(op) {
		return false
	}
	switch op {
	case filter.OpEq, filter.OpNe, filter.OpIncludes, filter.OpExcludes:
		return true
	}
	return false
}

func (b *Base) parseOperators(ops []filter.Op) ([]filter.Op, error) {
	if ops == nil {
		return b.defaultOperators(), nil
	}
	valid := filter.ValidOps(b.FilterType())
	out := make([]filter.Op, 0, len(ops))
	for _, op := range ops {
		if slices.Contains(valid, op) && !slices.Contains(out, op) {
			out = append(out, op)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("field %q: %w: none of %v apply to %s fields",
			b.field, filter.ErrInvalidOperator, ops, b.FilterType())
	}
	return out, nil
}

func (b *Base) defaultOperators() []filter.Op {
	switch {
	case b.IsBoolFieldType():
		return []filter.Op{filter.OpEq}
	case b.IsCollectionType():
		return []filter.Op{filter.OpIncludes, filter.OpExcludes}
	case b.IsValueType():
		return []filter.Op{filter.OpEq, filter.OpNe, filter.OpLike, filter.OpNotLike, filter.OpBegins, filter.OpEnds}
	}
	return []filter.Op{filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte, filter.OpEq, filter.OpNe}
}

// Range fields hold too many distinct values to enumerate by default
func (b *Base) isEnumerableByDefault() bool {
	return !b.IsRangeType()
}

// UniqueKey maps a value to a comparable key used to de-duplicate values.
// Times compare by instant and numbers by magnitude.
func UniqueKey(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32:
		f, err := types.ToFloat(x)
		if err == nil {
			return f
		}
	case types.LocalDate:
		return "localDate:" + string(x)
	}
	if t, ok := v.(interface{ UnixNano() int64 }); ok {
		return t.UnixNano()
	}
	switch v.(type) {
	case string, float64, bool:
		return v
	}
	return fmt.Sprintf("%T:%v", v, v)
}

func tagValues(v any) []any {
	switch x := v.(type) {
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []any:
		return x
	}
	return []any{v}
}
