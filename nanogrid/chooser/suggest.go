package chooser

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/arthur-debert/nanogrid/nanogrid/fieldspec"
	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/types"
)

// OptionType distinguishes suggestions
type OptionType string

const (
	// OptionField completes a field name
	OptionField OptionType = "field"
	// OptionFilter selects a ready filter
	OptionFilter OptionType = "filter"
)

// Option is one suggestion for a typed query
type Option struct {
	Type   OptionType    `json:"type"`
	Label  string        `json:"label"`
	Field  string        `json:"field"`
	Filter filter.Filter `json:"filter,omitempty"`
}

// queryPattern splits "field op value". Word operators need word
// boundaries so field names and values may contain them.
var queryPattern = regexp.MustCompile(`(?i)^(.*?)\s*(!=|>=|<=|=|>|<|\bnot like\b|\blike\b|\bbegins\b|\bends\b|\bincludes\b|\bexcludes\b)\s*(.*)$`)

func parseQuery(q string) (field string, op filter.Op, value string, ok bool) {
	m := queryPattern.FindStringSubmatch(q)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", "", "", false
	}
	return strings.TrimSpace(m[1]), filter.Op(strings.ToLower(m[2])), strings.TrimSpace(m[3]), true
}

// ParseFilter turns a typed "field op value" query into a filter the way
// committing the query in the chooser would. The field must match a spec
// exactly by name or display name.
func (m *Model) ParseFilter(query string) (filter.Filter, error) {
	field, op, value, ok := parseQuery(strings.TrimSpace(query))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidQuery, query)
	}
	for _, spec := range m.matchSpecs(field) {
		if !strings.EqualFold(spec.Field(), field) && !strings.EqualFold(spec.DisplayName(), field) {
			continue
		}
		if !spec.SupportsOperator(op) {
			return nil, fmt.Errorf("%w: %s does not support %q", filter.ErrInvalidOperator, spec.DisplayName(), op)
		}
		v, ok := spec.ParseValue(value, op)
		if !ok {
			return nil, fmt.Errorf("%w: cannot parse %q for %s", ErrInvalidQuery, value, spec.DisplayName())
		}
		return filter.NewFieldFilter(spec.Field(), op, v)
	}
	return nil, fmt.Errorf("%w %q", ErrNoFieldSpec, field)
}

// Suggest returns options for a partially typed query. A bare query
// completes field names and matches values of enumerable fields; a query of
// the form "field op value" suggests filters on the matching fields. A
// limit of zero or less means the configured MaxResults.
func (m *Model) Suggest(query string, limit int) []Option {
	if limit <= 0 {
		limit = m.maxResults
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil
	}

	var opts []Option
	if field, op, value, ok := parseQuery(q); ok {
		opts = m.filterOptions(field, op, value)
	} else {
		opts = append(m.fieldOptions(q), m.valueOptions(q)...)
	}
	if len(opts) > limit {
		opts = opts[:limit]
	}
	return opts
}

func (m *Model) fieldOptions(q string) []Option {
	var out []Option
	for _, spec := range m.specs {
		if hasPrefixFold(spec.DisplayName(), q) || hasPrefixFold(spec.Field(), q) {
			out = append(out, Option{Type: OptionField, Label: spec.DisplayName(), Field: spec.Field()})
		}
	}
	return out
}

// valueOptions matches q against the values of every enumerable field
func (m *Model) valueOptions(q string) []Option {
	var out []Option
	for _, spec := range m.specs {
		op, ok := valueOp(spec)
		if !ok {
			continue
		}
		out = append(out, m.matchValues(spec, op, q)...)
	}
	sortOptions(out, q)
	return out
}

// filterOptions suggests filters for "field op value" on the fields whose
// name matches field
func (m *Model) filterOptions(field string, op filter.Op, value string) []Option {
	var out []Option
	for _, spec := range m.matchSpecs(field) {
		if !spec.SupportsOperator(op) {
			continue
		}
		var matches []Option
		if spec.SupportsSuggestions(op) {
			matches = m.matchValues(spec, op, value)
			sortOptions(matches, value)
		}
		if value != "" && !restricted(spec, op) {
			if v, ok := spec.ParseValue(value, op); ok {
				f, err := filter.NewFieldFilter(spec.Field(), op, v)
				if err == nil && !containsFilter(matches, f) {
					out = append(out, m.filterOption(spec, f))
				}
			}
		}
		out = append(out, matches...)
	}
	return out
}

// matchSpecs returns the specs named exactly field, or else those whose
// name starts with it
func (m *Model) matchSpecs(field string) []*fieldspec.Chooser {
	var exact, prefix []*fieldspec.Chooser
	for _, spec := range m.specs {
		switch {
		case strings.EqualFold(spec.DisplayName(), field) || strings.EqualFold(spec.Field(), field):
			exact = append(exact, spec)
		case hasPrefixFold(spec.DisplayName(), field) || hasPrefixFold(spec.Field(), field):
			prefix = append(prefix, spec)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return prefix
}

func (m *Model) matchValues(spec *fieldspec.Chooser, op filter.Op, q string) []Option {
	needle := strings.ToLower(q)
	var out []Option
	for _, v := range spec.Values() {
		text := spec.RenderValue(v, op)
		if text == "" || !strings.Contains(strings.ToLower(text), needle) {
			continue
		}
		f, err := filter.NewFieldFilter(spec.Field(), op, v)
		if err != nil {
			continue
		}
		out = append(out, m.filterOption(spec, f))
	}
	return out
}

func (m *Model) filterOption(spec *fieldspec.Chooser, f *filter.FieldFilter) Option {
	return Option{Type: OptionFilter, Label: m.Label(f), Field: spec.Field(), Filter: f}
}

// valueOp is the operator a bare value search selects with
func valueOp(spec *fieldspec.Chooser) (filter.Op, bool) {
	for _, op := range []filter.Op{filter.OpEq, filter.OpIncludes} {
		if spec.SupportsSuggestions(op) {
			return op, true
		}
	}
	return "", false
}

// restricted reports whether op only accepts the field spec's known values
func restricted(spec *fieldspec.Chooser, op filter.Op) bool {
	return spec.ForceSelection() && (op == filter.OpEq || op == filter.OpNe)
}

func containsFilter(opts []Option, f filter.Filter) bool {
	for _, o := range opts {
		if filter.Equal(o.Filter, f) {
			return true
		}
	}
	return false
}

// sortOptions puts options whose value starts with q first, then orders by
// label
func sortOptions(opts []Option, q string) {
	rank := func(o Option) int {
		if ff, ok := o.Filter.(*filter.FieldFilter); ok && hasPrefixFold(types.ToString(ff.Value), q) {
			return 0
		}
		return 1
	}
	slices.SortStableFunc(opts, func(a, b Option) int {
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra - rb
		}
		return strings.Compare(a.Label, b.Label)
	})
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
