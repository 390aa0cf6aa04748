// Package gridfilter implements the column filters of a grid: a Model bound
// to a store that patches one column's filters at a time, per-column field
// specs, and the header popover with its values and custom expression tabs.
//
// Each open popover keeps a private virtual store mirroring the bound store.
// The virtual store carries the bound filter minus the column's own value
// filters, so the values tab lists every candidate the other filters allow.
package gridfilter

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/arthur-debert/nanogrid/nanogrid/fieldspec"
	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
	"github.com/arthur-debert/nanogrid/nanogrid/task"
	"github.com/arthur-debert/nanogrid/types"
)

// BlankStr stands in for null and empty values in value lists
const BlankStr = "[blank]"

var (
	// ErrNoFieldSpec is returned when a column has no field spec
	ErrNoFieldSpec = errors.New("no field spec for field")
	// ErrBindRequired is returned when a model is configured without a store
	ErrBindRequired = errors.New("bind store is required")
)

// Store is the store contract the model filters. A store.Store satisfies it.
type Store interface {
	fieldspec.Source
	Fields() []types.Field
	FieldNames() []string
	LeafRecords() []*types.Record
	Filter() filter.Filter
	SetFilter(f filter.Filter) error
	FilterChanges() reactive.Source
}

// Config declares a grid filter model
type Config struct {
	Bind Store
	// CommitOnChange commits popover edits as they are made; defaults to true
	CommitOnChange *bool
	// FieldSpecs declares the filterable columns. Nil declares one spec per
	// field of the bound store.
	FieldSpecs []FieldSpecConfig
	// FieldSpecDefaults fills zero values of every entry in FieldSpecs
	FieldSpecDefaults FieldSpecConfig
	// TreeMode limits candidate values to leaf records
	TreeMode bool
	// Scheduler runs debounced reactions; defaults to the wall clock
	Scheduler reactive.Scheduler
	Logger    *slog.Logger
}

// Model applies column filters to a bound store
type Model struct {
	reactive.Reactive

	bind           Store
	commitOnChange *reactive.Observable[bool]
	fieldSpecs     []*FieldSpec
	filterTask     *task.Compound
	treeMode       bool
	logger         *slog.Logger
}

// New builds a model and loads the initial values of its field specs
func New(cfg Config) (*Model, error) {
	if cfg.Bind == nil {
		return nil, ErrBindRequired
	}
	m := &Model{
		bind:           cfg.Bind,
		commitOnChange: reactive.NewObservable(cfg.CommitOnChange == nil || *cfg.CommitOnChange),
		filterTask:     task.TrackLast("Filtering"),
		treeMode:       cfg.TreeMode,
		logger:         cfg.Logger,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if cfg.Scheduler != nil {
		m.UseScheduler(cfg.Scheduler)
	}

	specs := cfg.FieldSpecs
	if specs == nil {
		for _, name := range m.bind.FieldNames() {
			specs = append(specs, FieldSpecConfig{Config: fieldspec.Config{Field: name}})
		}
	}
	seen := make(map[string]bool, len(specs))
	for _, sc := range specs {
		sc = sc.withDefaults(cfg.FieldSpecDefaults)
		if seen[sc.Field] {
			return nil, fmt.Errorf("field spec %q declared twice", sc.Field)
		}
		seen[sc.Field] = true
		spec, err := newFieldSpec(m, sc)
		if err != nil {
			return nil, err
		}
		m.fieldSpecs = append(m.fieldSpecs, spec)
	}

	m.loadFieldSpecValues()
	bind := m.bind
	if _, err := m.AddReaction(reactive.ReactionSpec{
		Name:     "grid filter field spec values",
		Deps:     []reactive.Source{bind.Updates(), bind.FilterChanges()},
		Track:    func() any { return bindState{bind.LastUpdated(), bind.Filter()} },
		Run:      func(any) { m.loadFieldSpecValues() },
		Debounce: reactive.Debounce(fieldspec.ValuesDebounce),
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// bindState identifies a version of the bound store's records and filter
type bindState struct {
	lastUpdated int64
	filter      filter.Filter
}

// Bind returns the bound store
func (m *Model) Bind() Store {
	return m.bind
}

// FilterTask tracks filter application so views can mask while a large
// store refilters
func (m *Model) FilterTask() *task.Compound {
	return m.filterTask
}

// TreeMode reports whether candidate values come from leaf records only
func (m *Model) TreeMode() bool {
	return m.treeMode
}

// CommitOnChange reports whether popover edits commit as they are made
func (m *Model) CommitOnChange() bool {
	return m.commitOnChange.Get()
}

// SetCommitOnChange toggles commit on change
func (m *Model) SetCommitOnChange(v bool) {
	m.commitOnChange.Set(v)
}

// CommitOnChangeChanges notifies when CommitOnChange is toggled
func (m *Model) CommitOnChangeChanges() reactive.Source {
	return m.commitOnChange
}

// FieldSpecs returns the column specs in declaration order
func (m *Model) FieldSpecs() []*FieldSpec {
	out := make([]*FieldSpec, len(m.fieldSpecs))
	copy(out, m.fieldSpecs)
	return out
}

// FieldSpec returns the field spec for field
func (m *Model) FieldSpec(field string) (*FieldSpec, error) {
	for _, s := range m.fieldSpecs {
		if s.Field() == field {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrNoFieldSpec, field)
}

// ColumnFilters returns every field filter on field in the bound filter
func (m *Model) ColumnFilters(field string) []*filter.FieldFilter {
	return filter.FieldFilters(m.bind.Filter(), field)
}

// ColumnCompoundFilter returns the compound holding only field's filters,
// if the bound filter has exactly one
func (m *Model) ColumnCompoundFilter(field string) *filter.CompoundFilter {
	return filter.OuterCompound(m.bind.Filter(), field)
}

// SetColumnFilters replaces the filters on field with f, leaving filters on
// other fields and the surrounding AND/OR structure untouched. A nil f
// removes the column's filters.
func (m *Model) SetColumnFilters(field string, f filter.Filter) error {
	current := m.bind.Filter()
	// A compound scoped to one column is nested so that other columns are
	// ANDed alongside it rather than joined into it.
	if c, ok := current.(*filter.CompoundFilter); ok && c.Field() != "" {
		current = &filter.CompoundFilter{Op: filter.And, Filters: []filter.Filter{c}}
	}
	return m.setFilter(filter.WithFilterByField(current, field, f))
}

// MergeColumnFilters adds f to the filters on field. Filters sharing an
// array operator with an existing column filter are merged into it.
func (m *Model) MergeColumnFilters(field string, f filter.Filter) error {
	existing := m.ColumnFilters(field)
	if len(existing) == 0 {
		return m.SetColumnFilters(field, f)
	}
	merged := existing
	for _, leaf := range filter.Flatten(f) {
		ff, ok := leaf.(*filter.FieldFilter)
		if !ok || ff.Field != field {
			return fmt.Errorf("%w: cannot merge %v into column %q", filter.ErrInvalidFilter, leaf, field)
		}
		merged = append(merged, ff)
	}
	combined := filter.CombineValueFilters(merged)
	children := make([]filter.Filter, len(combined))
	for i, ff := range combined {
		children[i] = ff
	}
	next, err := filter.Combine(filter.And, children...)
	if err != nil {
		return err
	}
	return m.SetColumnFilters(field, next)
}

// Clear removes every filter from the bound store
func (m *Model) Clear() error {
	return m.setFilter(nil)
}

func (m *Model) setFilter(f filter.Filter) error {
	p := task.NewPromise().Track(m.filterTask, "Filtering")
	err := m.bind.SetFilter(f)
	p.Resolve(err)
	if err != nil {
		return err
	}
	m.logger.Debug("grid filter applied", "filter", fmt.Sprint(f))
	return nil
}

func (m *Model) loadFieldSpecValues() {
	for _, s := range m.fieldSpecs {
		s.LoadValues()
	}
}

// columnValues returns the display values selected by field's value filters
func (m *Model) columnValues(field string) []any {
	var out []any
	for _, f := range m.ColumnFilters(field) {
		if !f.Op.IsValueOp() {
			continue
		}
		for _, v := range f.Values() {
			out = append(out, ToDisplayValue(v))
		}
	}
	return out
}

// sourceRecords returns the records candidate values are drawn from
func (m *Model) sourceRecords() []*types.Record {
	if m.treeMode {
		return m.bind.LeafRecords()
	}
	return m.bind.AllRecords()
}

// ToDisplayValue maps null and empty values to BlankStr
func ToDisplayValue(v any) any {
	if v == nil || v == "" {
		return BlankStr
	}
	return v
}

// FromDisplayValue reverses ToDisplayValue
func FromDisplayValue(v any) any {
	if v == BlankStr {
		return nil
	}
	return v
}
