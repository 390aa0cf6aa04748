package filter

import "fmt"

// Combine joins filters under op. Nil filters are dropped; no filters yield
// nil and a single filter is returned unwrapped.
func Combine(op CompoundOp, filters ...Filter) (Filter, error) {
	c, err := NewCompoundFilter(op, filters...)
	if err != nil {
		return nil, err
	}
	switch len(c.Filters) {
	case 0:
		return nil, nil
	case 1:
		return c.Filters[0], nil
	}
	return c, nil
}

// MustCombine is Combine for operators known to be valid
func MustCombine(op CompoundOp, filters ...Filter) Filter {
	f, err := Combine(op, filters...)
	if err != nil {
		panic(err)
	}
	return f
}

// Flatten returns the leaf filters of a tree in depth-first order
func Flatten(f Filter) []Filter {
	switch x := f.(type) {
	case nil:
		return nil
	case *CompoundFilter:
		var out []Filter
		for _, child := range x.Filters {
			out = append(out, Flatten(child)...)
		}
		return out
	}
	return []Filter{f}
}

// FieldFilters returns every FieldFilter on field anywhere in the tree
func FieldFilters(f Filter, field string) []*FieldFilter {
	var out []*FieldFilter
	for _, leaf := range Flatten(f) {
		if ff, ok := leaf.(*FieldFilter); ok && ff.Field == field {
			out = append(out, ff)
		}
	}
	return out
}

// WithFilterByField replaces the top-level filters on field with
// replacements. Top-level filters on other fields are kept as-is and in
// order, and a compound's AND/OR operator is preserved. A nested compound
// counts as "on field" only when all its leaves are.
func WithFilterByField(current Filter, field string, replacements ...Filter) Filter {
	op := And
	var children []Filter
	switch x := current.(type) {
	case nil:
	case *CompoundFilter:
		op = x.Op
		children = x.Filters
	default:
		children = []Filter{current}
	}

	kept := make([]Filter, 0, len(children)+len(replacements))
	for _, child := range children {
		if child != nil && fieldOf(child) != field {
			kept = append(kept, child)
		}
	}
	kept = append(kept, replacements...)
	return MustCombine(op, kept...)
}

// CleanField removes every filter on field from the tree. Compounds left
// without children disappear and compounds left with one child collapse
// into it.
func CleanField(f Filter, field string) Filter {
	return prune(f, func(ff *FieldFilter) bool { return ff.Field == field })
}

// StripValueFilters removes the discrete-value filters (=, != and includes)
// on field from the tree, keeping any other operator on that field.
func StripValueFilters(f Filter, field string) Filter {
	return prune(f, func(ff *FieldFilter) bool {
		return ff.Field == field && ff.Op.IsValueOp()
	})
}

func prune(f Filter, drop func(*FieldFilter) bool) Filter {
	switch x := f.(type) {
	case nil:
		return nil
	case *FieldFilter:
		if drop(x) {
			return nil
		}
		return x
	case *CompoundFilter:
		children := make([]Filter, 0, len(x.Filters))
		changed := false
		for _, child := range x.Filters {
			kept := prune(child, drop)
			if kept != child {
				changed = true
			}
			if kept != nil {
				children = append(children, kept)
			}
		}
		if !changed {
			return x
		}
		switch len(children) {
		case 0:
			return nil
		case 1:
			return children[0]
		}
		return &CompoundFilter{Op: x.Op, Filters: children}
	}
	return f
}

// OuterCompound returns the outermost compound whose leaves are all on
// field, or nil if there is none or the match is ambiguous
func OuterCompound(f Filter, field string) *CompoundFilter {
	c, ok := f.(*CompoundFilter)
	if !ok {
		return nil
	}
	allOnField := len(c.Filters) > 0
	for _, child := range c.Filters {
		ff, isField := child.(*FieldFilter)
		if !isField || ff.Field != field {
			allOnField = false
			break
		}
	}
	if allOnField {
		return c
	}

	var found []*CompoundFilter
	for _, child := range c.Filters {
		if match := OuterCompound(child, field); match != nil {
			found = append(found, match)
		}
	}
	if len(found) == 1 {
		return found[0]
	}
	return nil
}

// CombineValueFilters merges field filters sharing a field and array
// operator into one filter with the union of their values
func CombineValueFilters(filters []*FieldFilter) []*FieldFilter {
	type key struct {
		field string
		op    Op
	}
	groups := make(map[key][]*FieldFilter)
	var order []key
	for _, f := range filters {
		k := key{f.Field, f.Op}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], f)
	}

	out := make([]*FieldFilter, 0, len(order))
	for _, k := range order {
		group := groups[k]
		if len(group) == 1 || !k.op.IsArrayOp() {
			out = append(out, group...)
			continue
		}
		var values []any
		for _, f := range group {
			values = append(values, f.Values()...)
		}
		out = append(out, &FieldFilter{Field: k.field, Op: k.op, Value: uniqValues(values)})
	}
	return out
}

// Validate checks every field filter against the declared fields. Filters
// on fields the lookup does not know are allowed; they match every record.
func Validate(f Filter, fields FieldLookup) error {
	if f == nil || fields == nil {
		return nil
	}
	for _, leaf := range Flatten(f) {
		ff, ok := leaf.(*FieldFilter)
		if !ok {
			continue
		}
		field, known := fields.GetField(ff.Field)
		if !known {
			continue
		}
		if !OpValidFor(ff.Op, field.Type) {
			return fmt.Errorf("%w: %q is not valid for %s field %q", ErrInvalidOperator, ff.Op, field.Type, ff.Field)
		}
	}
	return nil
}
