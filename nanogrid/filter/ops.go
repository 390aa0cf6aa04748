// Package filter defines the filter tree applied to grid stores: field
// predicates combined with AND/OR, their JSON wire shape, record matching
// and the structural helpers used to patch one column's filters in place.
package filter

import (
	"errors"
	"slices"

	"github.com/arthur-debert/nanogrid/types"
)

// Op is a field filter operator
type Op string

const (
	OpEq       Op = "="
	OpNe       Op = "!="
	OpGt       Op = ">"
	OpGte      Op = ">="
	OpLt       Op = "<"
	OpLte      Op = "<="
	OpLike     Op = "like"
	OpNotLike  Op = "not like"
	OpBegins   Op = "begins"
	OpEnds     Op = "ends"
	OpIncludes Op = "includes"
	OpExcludes Op = "excludes"
)

// Operators lists every supported field operator
var Operators = []Op{
	OpEq, OpNe, OpGt, OpGte, OpLt, OpLte,
	OpLike, OpNotLike, OpBegins, OpEnds, OpIncludes, OpExcludes,
}

// ArrayOperators accept a list of values, matching when any value matches
// (or, for negated operators, when none do)
var ArrayOperators = []Op{
	OpEq, OpNe, OpLike, OpNotLike, OpBegins, OpEnds, OpIncludes, OpExcludes,
}

// CompoundOp joins the children of a CompoundFilter
type CompoundOp string

const (
	And CompoundOp = "AND"
	Or  CompoundOp = "OR"
)

var (
	// ErrInvalidFilter is returned for malformed filter specs
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidOperator is returned when an operator is unknown or not valid
	// for the field it is applied to
	ErrInvalidOperator = errors.New("invalid operator")
)

// IsValid reports whether op is a known operator
func (op Op) IsValid() bool {
	return slices.Contains(Operators, op)
}

// IsArrayOp reports whether op accepts a list of values
func (op Op) IsArrayOp() bool {
	return slices.Contains(ArrayOperators, op)
}

// IsValueOp reports whether op selects discrete values, as offered by a
// values list rather than a free-form expression
func (op Op) IsValueOp() bool {
	return op == OpEq || op == OpNe || op == OpIncludes
}

var validOps = map[types.FilterType][]Op{
	types.FilterRange:      {OpGt, OpGte, OpLt, OpLte, OpEq, OpNe},
	types.FilterValue:      {OpEq, OpNe, OpLike, OpNotLike, OpBegins, OpEnds},
	types.FilterCollection: {OpIncludes, OpExcludes, OpEq, OpNe},
}

// ValidOps returns the operators that may be applied to fields of the given
// filter type
func ValidOps(ft types.FilterType) []Op {
	return slices.Clone(validOps[ft])
}

// OpValidFor reports whether op may be applied to a field of type ft.
// auto and json fields hold arbitrary values and accept any operator.
func OpValidFor(op Op, ft types.FieldType) bool {
	if !op.IsValid() {
		return false
	}
	if ft == types.FieldAuto || ft == types.FieldJSON {
		return true
	}
	return slices.Contains(validOps[types.FilterTypeOf(ft)], op)
}
