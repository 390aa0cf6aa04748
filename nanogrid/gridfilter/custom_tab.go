package gridfilter

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
)

// Pseudo operators offered by custom rows. They expand to = and != against
// null.
const (
	OpBlank    filter.Op = "blank"
	OpNotBlank filter.Op = "not blank"
)

// ErrRowIndex is returned for a custom row index out of range
var ErrRowIndex = errors.New("row index out of range")

// CustomRow is one expression of the custom tab
type CustomRow struct {
	Op    filter.Op
	Input string
	// Value is Input parsed for the field; nil when Input is blank or
	// malformed
	Value any
}

// IsValid reports whether the row contributes to the tab's filter
func (r CustomRow) IsValid() bool {
	return r.Op == OpBlank || r.Op == OpNotBlank || r.Value != nil
}

func (r CustomRow) fieldFilter(field string) (*filter.FieldFilter, error) {
	switch r.Op {
	case OpBlank:
		return filter.NewFieldFilter(field, filter.OpEq, nil)
	case OpNotBlank:
		return filter.NewFieldFilter(field, filter.OpNe, nil)
	}
	return filter.NewFieldFilter(field, r.Op, r.Value)
}

// CustomTab builds a column filter from free-form expressions joined by
// AND or OR
type CustomTab struct {
	header *HeaderFilter

	mu      sync.RWMutex
	rows    []CustomRow
	join    filter.CompoundOp
	changes reactive.Signal
}

func newCustomTab(h *HeaderFilter) *CustomTab {
	t := &CustomTab{header: h, join: filter.And}
	t.rows = []CustomRow{t.emptyRow()}
	return t
}

// ID implements pendingTab
func (t *CustomTab) ID() TabID {
	return CustomTabID
}

// Changes notifies after rows or the join change
func (t *CustomTab) Changes() reactive.Source {
	return &t.changes
}

// Ops returns the operators offered to rows, pseudo operators included
func (t *CustomTab) Ops() []filter.Op {
	spec := t.header.spec
	ops := spec.Ops()
	if spec.IsCollectionType() || spec.SupportsOperator(filter.OpEq) || spec.SupportsOperator(filter.OpNe) {
		ops = append(ops, OpBlank, OpNotBlank)
	}
	return ops
}

// Rows returns the rows in order
func (t *CustomTab) Rows() []CustomRow {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.rows)
}

// Join returns the operator joining rows
func (t *CustomTab) Join() filter.CompoundOp {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.join
}

// SetJoin sets the operator joining rows
func (t *CustomTab) SetJoin(op filter.CompoundOp) error {
	op = filter.CompoundOp(strings.ToUpper(string(op)))
	if op != filter.And && op != filter.Or {
		return fmt.Errorf("%w: compound operator %q must be AND or OR", filter.ErrInvalidOperator, op)
	}
	t.mu.Lock()
	changed := t.join != op
	t.join = op
	t.mu.Unlock()
	if changed {
		t.changes.Notify()
	}
	return nil
}

// AddRow appends a row
func (t *CustomTab) AddRow(op filter.Op, input string) error {
	row, err := t.newRow(op, input)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.rows = append(t.rows, row)
	t.mu.Unlock()
	t.changes.Notify()
	return nil
}

// SetRow replaces the row at i
func (t *CustomTab) SetRow(i int, op filter.Op, input string) error {
	row, err := t.newRow(op, input)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if i < 0 || i >= len(t.rows) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrRowIndex, i)
	}
	t.rows[i] = row
	t.mu.Unlock()
	t.changes.Notify()
	return nil
}

// RemoveRow deletes the row at i. Removing the last row leaves one empty
// row.
func (t *CustomTab) RemoveRow(i int) error {
	t.mu.Lock()
	if i < 0 || i >= len(t.rows) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrRowIndex, i)
	}
	t.rows = slices.Delete(t.rows, i, i+1)
	if len(t.rows) == 0 {
		t.rows = []CustomRow{t.emptyRow()}
	}
	t.mu.Unlock()
	t.changes.Notify()
	return nil
}

// Filter builds the column filter from the valid rows
func (t *CustomTab) Filter() filter.Filter {
	t.mu.RLock()
	rows := slices.Clone(t.rows)
	join := t.join
	t.mu.RUnlock()

	var filters []filter.Filter
	for _, r := range rows {
		if !r.IsValid() {
			continue
		}
		f, err := r.fieldFilter(t.header.Field())
		if err != nil {
			t.header.logger.Warn("dropping invalid custom row", "op", r.Op, "input", r.Input, "error", err)
			continue
		}
		filters = append(filters, f)
	}
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	}
	return &filter.CompoundFilter{Op: join, Filters: filters}
}

// Reset leaves a single empty row joined by AND
func (t *CustomTab) Reset() {
	t.mu.Lock()
	t.rows = []CustomRow{t.emptyRow()}
	t.join = filter.And
	t.mu.Unlock()
	t.changes.Notify()
}

// syncWithFilter rebuilds rows from the committed column filter
func (t *CustomTab) syncWithFilter() {
	h := t.header
	join := filter.And
	var leaves []*filter.FieldFilter
	if c := h.model.ColumnCompoundFilter(h.Field()); c != nil {
		join = c.Op
		leaves = filter.FieldFilters(c, h.Field())
	} else {
		leaves = h.model.ColumnFilters(h.Field())
	}

	rows := make([]CustomRow, 0, len(leaves))
	for _, f := range leaves {
		rows = append(rows, t.rowFromFilter(f))
	}
	if len(rows) == 0 {
		rows = append(rows, t.emptyRow())
	}

	t.mu.Lock()
	t.rows = rows
	t.join = join
	t.mu.Unlock()
	t.changes.Notify()
}

func (t *CustomTab) rowFromFilter(f *filter.FieldFilter) CustomRow {
	if f.Value == nil {
		switch f.Op {
		case filter.OpEq:
			return CustomRow{Op: OpBlank}
		case filter.OpNe:
			return CustomRow{Op: OpNotBlank}
		}
	}
	values := f.Values()
	rendered := make([]string, len(values))
	for i, v := range values {
		rendered[i] = t.header.spec.RenderValue(ToDisplayValue(v))
	}
	return CustomRow{Op: f.Op, Input: strings.Join(rendered, ", "), Value: f.Value}
}

func (t *CustomTab) newRow(op filter.Op, input string) (CustomRow, error) {
	if op == "" {
		op = t.header.spec.DefaultOp()
	}
	if !slices.Contains(t.Ops(), op) {
		return CustomRow{}, fmt.Errorf("%w: %q is not offered for %q", filter.ErrInvalidOperator, op, t.header.Field())
	}
	row := CustomRow{Op: op, Input: input}
	if op != OpBlank && op != OpNotBlank {
		if v, ok := t.header.spec.ParseInput(input); ok {
			row.Value = v
		}
	}
	return row, nil
}

func (t *CustomTab) emptyRow() CustomRow {
	return CustomRow{Op: t.header.spec.DefaultOp()}
}
