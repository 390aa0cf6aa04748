package gridfilter

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/arthur-debert/nanogrid/nanogrid/fieldspec"
	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/types"
)

// FieldSpecConfig declares a filterable column
type FieldSpecConfig struct {
	fieldspec.Config `yaml:",inline"`

	// Renderer formats values in the popover; markup is stripped
	Renderer func(value any) string `json:"-" yaml:"-"`
	// DefaultOp preselects the operator of new custom rows
	DefaultOp filter.Op `json:"defaultOp,omitempty" yaml:"defaultOp,omitempty"`
}

func (c FieldSpecConfig) withDefaults(d FieldSpecConfig) FieldSpecConfig {
	if c.FieldType == "" {
		c.FieldType = d.FieldType
	}
	if c.Ops == nil {
		c.Ops = d.Ops
	}
	if c.EnableValues == nil {
		c.EnableValues = d.EnableValues
	}
	if !c.ForceSelection {
		c.ForceSelection = d.ForceSelection
	}
	if c.Renderer == nil {
		c.Renderer = d.Renderer
	}
	if c.DefaultOp == "" {
		c.DefaultOp = d.DefaultOp
	}
	return c
}

// FieldSpec describes how one grid column is filtered. Its values are drawn
// from the bound store's records under every filter except the column's
// own, plus whatever the column's filter currently selects.
type FieldSpec struct {
	*fieldspec.Base

	model     *Model
	renderer  func(any) string
	defaultOp filter.Op

	mu         sync.RWMutex
	valueCount int
}

func newFieldSpec(m *Model, cfg FieldSpecConfig) (*FieldSpec, error) {
	cfg.Source = m.bind
	base, err := fieldspec.NewBase(cfg.Config)
	if err != nil {
		return nil, err
	}
	s := &FieldSpec{
		Base:      base,
		model:     m,
		renderer:  cfg.Renderer,
		defaultOp: cfg.DefaultOp,
	}
	if !s.SupportsOperator(s.defaultOp) {
		s.defaultOp = s.Ops()[0]
	}
	return s, nil
}

// DefaultOp returns the operator preselected for new custom rows
func (s *FieldSpec) DefaultOp() filter.Op {
	return s.defaultOp
}

// ValueCount returns the number of distinct values across all records,
// ignoring every filter
func (s *FieldSpec) ValueCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valueCount
}

// LoadValues refreshes values from the bound store
func (s *FieldSpec) LoadValues() {
	if !s.ShouldLoadValues() {
		return
	}
	m := s.model
	all := m.sourceRecords()
	filtered := all
	if f := filter.CleanField(m.bind.Filter(), s.Field()); f != nil {
		test := f.Test(m.bind)
		filtered = make([]*types.Record, 0, len(all))
		for _, r := range all {
			if test(r) {
				filtered = append(filtered, r)
			}
		}
	}

	values, count := collectValues(s.Field(), s.IsCollectionType(), filtered, all, m.columnValues(s.Field()))
	s.mu.Lock()
	s.valueCount = count
	s.mu.Unlock()
	s.SetValues(values)
}

// RenderValue formats a display value as plain text
func (s *FieldSpec) RenderValue(v any) string {
	var out string
	switch {
	case v == BlankStr:
		return BlankStr
	case s.renderer != nil:
		out = s.renderer(v)
	case v == nil:
		out = ""
	default:
		out = s.formatValue(v)
	}
	return fieldspec.StripTags(out)
}

// ParseInput converts custom row input to a value of the field's type.
// ok is false for blank or malformed input.
func (s *FieldSpec) ParseInput(input string) (value any, ok bool) {
	in := strings.TrimSpace(input)
	if in == "" {
		return nil, false
	}
	var (
		v   any
		err error
	)
	switch s.FieldType() {
	case types.FieldDate:
		v, err = types.ParseDate(in)
	case types.FieldLocalDate:
		v, err = types.ParseLocalDate(in)
	case types.FieldInt:
		var n float64
		n, err = fieldspec.ParseNumber(in)
		v = int64(math.Trunc(n))
	case types.FieldNumber:
		v, err = fieldspec.ParseNumber(in)
	case types.FieldBool:
		switch strings.ToLower(in) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return nil, false
	default:
		return in, true
	}
	if err != nil {
		return nil, false
	}
	return v, true
}

func (s *FieldSpec) formatValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.Format(fieldspec.DefaultDateLayout)
	case types.LocalDate:
		return string(x)
	}
	return types.ToString(v)
}

// recordValues returns the display values a record contributes. Tag lists
// contribute each member, or a blank when empty.
func recordValues(r *types.Record, field string, collection bool) []any {
	v := r.Get(field)
	if !collection {
		return []any{ToDisplayValue(v)}
	}
	var out []any
	switch tags := v.(type) {
	case []string:
		for _, t := range tags {
			out = append(out, ToDisplayValue(t))
		}
	case []any:
		for _, t := range tags {
			out = append(out, ToDisplayValue(t))
		}
	case nil:
	default:
		out = append(out, ToDisplayValue(v))
	}
	if len(out) == 0 {
		return []any{BlankStr}
	}
	return out
}

// collectValues returns the sorted distinct display values of filtered plus
// extra, and the number of distinct values across all plus extra
func collectValues(field string, collection bool, filtered, all []*types.Record, extra []any) ([]any, int) {
	values := valueSet{}
	for _, r := range filtered {
		values.add(recordValues(r, field, collection)...)
	}
	values.add(extra...)

	total := valueSet{}
	for _, r := range all {
		total.add(recordValues(r, field, collection)...)
	}
	total.add(extra...)

	return sortValues(values.list), len(total.list)
}

type valueSet struct {
	seen map[any]bool
	list []any
}

func (vs *valueSet) add(values ...any) {
	if vs.seen == nil {
		vs.seen = map[any]bool{}
	}
	for _, v := range values {
		k := fieldspec.UniqueKey(v)
		if !vs.seen[k] {
			vs.seen[k] = true
			vs.list = append(vs.list, v)
		}
	}
}

func (vs *valueSet) has(v any) bool {
	return vs.seen[fieldspec.UniqueKey(v)]
}

// sortValues orders display values naturally with BlankStr last
func sortValues(values []any) []any {
	if values == nil {
		values = []any{}
	}
	slices.SortStableFunc(values, func(a, b any) int {
		switch {
		case a == BlankStr && b == BlankStr:
			return 0
		case a == BlankStr:
			return 1
		case b == BlankStr:
			return -1
		}
		return filter.CompareValues(a, b)
	})
	return values
}
