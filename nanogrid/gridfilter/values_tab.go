package gridfilter

import (
	"slices"
	"strings"
	"sync"

	"github.com/arthur-debert/nanogrid/nanogrid/fieldspec"
	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
)

// ValuesTab lets users pick the values a column may hold. Candidates come
// from the virtual store, so they reflect every other active filter.
type ValuesTab struct {
	header *HeaderFilter

	mu         sync.RWMutex
	values     []any
	valueCount int
	counts     map[any]int
	pending    valueSet
	filterText string
	changes    reactive.Signal
}

func newValuesTab(h *HeaderFilter) *ValuesTab {
	return &ValuesTab{header: h, values: []any{}, counts: map[any]int{}}
}

// ID implements pendingTab
func (t *ValuesTab) ID() TabID {
	return ValuesTabID
}

// Changes notifies after values, the selection or the text filter change
func (t *ValuesTab) Changes() reactive.Source {
	return &t.changes
}

// Values returns the candidate display values in display order
func (t *ValuesTab) Values() []any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.values)
}

// ValueCount returns the number of distinct values in the column,
// regardless of other filters
func (t *ValuesTab) ValueCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.valueCount
}

// Count returns how many records under the other filters hold value
func (t *ValuesTab) Count(value any) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[fieldspec.UniqueKey(value)]
}

// PendingValues returns the checked values in display order
func (t *ValuesTab) PendingValues() []any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pendingInOrder()
}

// IsChecked reports whether value is selected
func (t *ValuesTab) IsChecked(value any) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pending.has(value)
}

// SetRecsChecked checks or unchecks values
func (t *ValuesTab) SetRecsChecked(checked bool, values ...any) {
	t.mu.Lock()
	next := valueSet{}
	if checked {
		next.add(t.pending.list...)
		next.add(values...)
	} else {
		drop := valueSet{}
		drop.add(values...)
		for _, v := range t.pending.list {
			if !drop.has(v) {
				next.add(v)
			}
		}
	}
	t.pending = next
	t.mu.Unlock()
	t.changes.Notify()
}

// ToggleAll checks or unchecks every visible value
func (t *ValuesTab) ToggleAll(checked bool) {
	t.SetRecsChecked(checked, t.VisibleValues()...)
}

// AllVisibleChecked reports whether every visible value is checked
func (t *ValuesTab) AllVisibleChecked() bool {
	visible := t.VisibleValues()
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, v := range visible {
		if !t.pending.has(v) {
			return false
		}
	}
	return len(visible) > 0
}

// FilterText returns the text narrowing the visible values
func (t *ValuesTab) FilterText() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.filterText
}

// SetFilterText narrows the visible values to those whose rendered text
// contains text, ignoring case
func (t *ValuesTab) SetFilterText(text string) {
	t.mu.Lock()
	changed := t.filterText != text
	t.filterText = text
	t.mu.Unlock()
	if changed {
		t.changes.Notify()
	}
}

// VisibleValues returns the values matching the filter text
func (t *ValuesTab) VisibleValues() []any {
	t.mu.RLock()
	values := slices.Clone(t.values)
	text := strings.ToLower(t.filterText)
	t.mu.RUnlock()
	if text == "" {
		return values
	}
	out := make([]any, 0, len(values))
	for _, v := range values {
		if strings.Contains(strings.ToLower(t.header.spec.RenderValue(v)), text) {
			out = append(out, v)
		}
	}
	return out
}

// HasHiddenValues reports whether the filter text hides any value
func (t *ValuesTab) HasHiddenValues() bool {
	return len(t.VisibleValues()) < len(t.Values())
}

// Filter builds the column filter for the checked values. Whichever of =
// over the checked values or != over the unchecked ones is shorter wins,
// with = favored on short lists. Nothing or everything checked yields nil.
func (t *ValuesTab) Filter() filter.Filter {
	t.mu.RLock()
	included := t.pendingInOrder()
	var excluded []any
	for _, v := range t.values {
		if !t.pending.has(v) {
			excluded = append(excluded, v)
		}
	}
	valueCount := t.valueCount
	t.mu.RUnlock()

	if len(included) == valueCount || len(excluded) == valueCount {
		return nil
	}

	op, arr := filter.OpEq, included
	switch {
	case t.header.spec.IsCollectionType():
		op = filter.OpIncludes
	default:
		weight := 1.0
		if valueCount <= 10 {
			weight = 2.5
		}
		if float64(len(included)) > float64(len(excluded))*weight {
			op, arr = filter.OpNe, excluded
		}
	}
	if len(arr) == 0 {
		return nil
	}

	values := make([]any, len(arr))
	for i, v := range arr {
		values[i] = FromDisplayValue(v)
	}
	var value any = values
	if len(values) == 1 {
		value = values[0]
	}
	f, err := filter.NewFieldFilter(t.header.Field(), op, value)
	if err != nil {
		t.header.logger.Error("failed to build values filter", "error", err)
		return nil
	}
	return f
}

// loadValues refreshes candidates and counts from the virtual store. The
// selection is kept; values not seen before are checked when the committed
// column filter lets them through.
func (t *ValuesTab) loadValues() {
	h := t.header
	field := h.Field()
	collection := h.spec.IsCollectionType()
	records := h.virtual.Records()
	values, valueCount := collectValues(field, collection, records, h.virtual.AllRecords(), h.model.columnValues(field))

	counts := make(map[any]int, len(values))
	for _, r := range records {
		seen := valueSet{}
		seen.add(recordValues(r, field, collection)...)
		for _, v := range seen.list {
			counts[fieldspec.UniqueKey(v)]++
		}
	}

	sel := t.committedSelection()
	t.mu.Lock()
	known := valueSet{}
	known.add(t.values...)
	for _, v := range values {
		if !known.has(v) && sel.selects(v, collection) {
			t.pending.add(v)
		}
	}
	t.values = values
	t.valueCount = valueCount
	t.counts = counts
	t.mu.Unlock()
	t.changes.Notify()
}

// selection is what the committed column filter selects: the values named by
// its = or includes filters or, failing those, the values its != filters
// exclude
type selection struct {
	values   valueSet
	negated  bool
	filtered bool
}

// selects reports whether v is checked under the selection. Without value
// filters every value is checked, except on tags columns with no filter.
func (s selection) selects(v any, collection bool) bool {
	switch {
	case !s.filtered || len(s.values.list) == 0:
		return !collection || s.filtered
	case s.negated:
		return !s.values.has(v)
	default:
		return s.values.has(v)
	}
}

func (t *ValuesTab) committedSelection() selection {
	h := t.header
	columnFilters := h.model.ColumnFilters(h.Field())

	var selecting, excluding []*filter.FieldFilter
	for _, f := range columnFilters {
		switch f.Op {
		case filter.OpEq, filter.OpIncludes:
			selecting = append(selecting, f)
		case filter.OpNe:
			excluding = append(excluding, f)
		}
	}
	source, negated := selecting, false
	if len(source) == 0 {
		source, negated = excluding, true
	}

	sel := selection{negated: negated, filtered: len(columnFilters) > 0}
	for _, f := range source {
		for _, v := range f.Values() {
			sel.values.add(ToDisplayValue(v))
		}
	}
	return sel
}

// syncWithFilter checks the values selected by the committed filter
func (t *ValuesTab) syncWithFilter() {
	sel := t.committedSelection()
	collection := t.header.spec.IsCollectionType()

	next := valueSet{}
	t.mu.Lock()
	if sel.filtered && len(sel.values.list) > 0 && !sel.negated {
		next = sel.values
	} else {
		for _, v := range t.values {
			if sel.selects(v, collection) {
				next.add(v)
			}
		}
	}
	t.pending = next
	t.mu.Unlock()
	t.changes.Notify()
}

// Reset clears the text filter and reloads the candidates with the neutral
// selection: everything for value fields, nothing for tags
func (t *ValuesTab) Reset() {
	t.mu.Lock()
	t.filterText = ""
	t.mu.Unlock()
	t.loadValues()

	next := valueSet{}
	t.mu.Lock()
	if !t.header.spec.IsCollectionType() {
		next.add(t.values...)
	}
	t.pending = next
	t.mu.Unlock()
	t.changes.Notify()
}

// pendingInOrder must be called with t.mu held
func (t *ValuesTab) pendingInOrder() []any {
	return sortValues(slices.Clone(t.pending.list))
}
