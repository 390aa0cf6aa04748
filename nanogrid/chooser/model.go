// Package chooser implements the typeahead filter chooser: a list of filter
// chips bound to a store, with suggestions for partially typed queries and
// a list of favorite chip sets. The selected chips and the favorites can be
// persisted through the persist package.
package chooser

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/arthur-debert/nanogrid/nanogrid/fieldspec"
	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/persist"
	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
	"github.com/arthur-debert/nanogrid/types"
)

const (
	// DefaultMaxResults caps suggestions when no limit is given
	DefaultMaxResults = 50
	// DefaultPersistPath is the path persisted state lives under when the
	// persistence options name none
	DefaultPersistPath = "filterChooser"
)

var (
	// ErrBindRequired is returned when a model is configured without a store
	ErrBindRequired = errors.New("bind store is required")
	// ErrNoFieldSpec is returned for filters on fields the chooser does not
	// offer
	ErrNoFieldSpec = errors.New("no field spec for field")
	// ErrFavoriteIndex is returned for a favorite index out of range
	ErrFavoriteIndex = errors.New("favorite index out of range")
	// ErrInvalidQuery is returned when a typed query cannot become a filter
	ErrInvalidQuery = errors.New("invalid filter query")
)

// Store is the store contract the chooser filters. A store.Store satisfies
// it.
type Store interface {
	fieldspec.Source
	FieldNames() []string
	Filter() filter.Filter
	SetFilter(f filter.Filter) error
	FilterChanges() reactive.Source
}

// Config declares a filter chooser
type Config struct {
	Bind Store
	// FieldSpecs declares the fields offered. Nil offers every field of the
	// bound store.
	FieldSpecs []fieldspec.ChooserConfig
	// MaxResults caps Suggest when called without a limit
	MaxResults int
	// PersistWith saves the selected chips and the favorites. The value is
	// kept at <path>.value and the favorites at <path>.favorites. The value
	// is restored by New; favorites bind on first use and read PersistWith
	// at that point.
	PersistWith *persist.Options
	Services    *persist.Services
	// Scheduler runs debounced reactions; defaults to the wall clock
	Scheduler reactive.Scheduler
	Logger    *slog.Logger
}

// Model holds the chips of a filter chooser. The chips are ANDed into the
// bound store's filter and follow it when the filter is set elsewhere.
type Model struct {
	reactive.Reactive

	bind       Store
	specs      []*fieldspec.Chooser
	maxResults int
	logger     *slog.Logger

	value     *reactive.Observable[[]filter.Spec]
	favorites favoriteList
}

// favoriteList holds the saved chip sets, either in memory or persisted
type favoriteList interface {
	reactive.Source
	Get() [][]filter.Spec
	Update(fn func([][]filter.Spec) [][]filter.Spec) bool
}

// New creates a chooser bound to cfg.Bind. Saved state, when persisted,
// takes precedence over the store's current filter.
func New(cfg Config) (*Model, error) {
	if cfg.Bind == nil {
		return nil, ErrBindRequired
	}
	m := &Model{
		bind:       cfg.Bind,
		maxResults: cfg.MaxResults,
		logger:     cfg.Logger,
		value:      reactive.NewObservable[[]filter.Spec](nil),
		favorites:  reactive.NewObservable[[][]filter.Spec](nil),
	}
	if m.maxResults <= 0 {
		m.maxResults = DefaultMaxResults
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if cfg.Scheduler != nil {
		m.UseScheduler(cfg.Scheduler)
	}

	if err := m.initSpecs(cfg.FieldSpecs); err != nil {
		m.Destroy()
		return nil, err
	}
	if cfg.PersistWith != nil {
		m.persist(cfg.PersistWith, cfg.Services)
	}

	if len(m.value.Get()) == 0 {
		m.pullFromBind()
	}
	m.pushToBind()

	if _, err := m.AddReaction(reactive.ReactionSpec{
		Name:  "chooser value to store",
		Deps:  []reactive.Source{m.value},
		Track: func() any { return m.value.Get() },
		Run:   func(any) { m.pushToBind() },
	}); err != nil {
		m.Destroy()
		return nil, err
	}
	if _, err := m.AddReaction(reactive.ReactionSpec{
		Name:   "store filter to chooser",
		Deps:   []reactive.Source{m.bind.FilterChanges()},
		Track:  func() any { return m.bind.Filter() },
		Equals: func(a, b any) bool { return filter.Equal(asFilter(a), asFilter(b)) },
		Run:    func(any) { m.pullFromBind() },
	}); err != nil {
		m.Destroy()
		return nil, err
	}
	return m, nil
}

func (m *Model) initSpecs(configs []fieldspec.ChooserConfig) error {
	if configs == nil {
		for _, name := range m.bind.FieldNames() {
			configs = append(configs, fieldspec.ChooserConfig{Config: fieldspec.Config{Field: name}})
		}
	}
	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if seen[cfg.Field] {
			return fmt.Errorf("field spec %q declared twice", cfg.Field)
		}
		seen[cfg.Field] = true
		if cfg.Source == nil {
			cfg.Source = m.bind
		}
		if cfg.Scheduler == nil {
			cfg.Scheduler = m.Scheduler()
		}
		spec, err := fieldspec.NewChooser(cfg)
		if err != nil {
			return err
		}
		m.Manage(spec)
		m.specs = append(m.specs, spec)
	}
	return nil
}

func (m *Model) persist(opts *persist.Options, svc *persist.Services) {
	services := persist.Services{}
	if svc != nil {
		services = *svc
	}
	if services.Scheduler == nil {
		services.Scheduler = m.Scheduler()
	}
	if services.Logger == nil {
		services.Logger = m.logger
	}

	at := func(name string) persist.Options {
		o := *opts
		base := o.Path
		if base == "" {
			base = DefaultPersistPath
		}
		o.Path = base + "." + name
		return o
	}
	persist.MarkPersistent(&m.Reactive, "value", m.value, at("value"), &services)
	m.favorites = persist.NewPersistent[[][]filter.Spec](&m.Reactive, "favorites", nil,
		func() persist.Options { return at("favorites") }, &services)
}

// FieldSpecs returns the offered fields in declaration order
func (m *Model) FieldSpecs() []*fieldspec.Chooser {
	return slices.Clone(m.specs)
}

// FieldSpec returns the field spec for field
func (m *Model) FieldSpec(field string) (*fieldspec.Chooser, error) {
	for _, s := range m.specs {
		if s.Field() == field {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrNoFieldSpec, field)
}

// Value returns the selected chips
func (m *Model) Value() []filter.Filter {
	return m.fromSpecs(m.value.Get())
}

// ValueChanges notifies when the selected chips change
func (m *Model) ValueChanges() reactive.Source {
	return m.value
}

// SetValue replaces the selected chips. Every chip must only use offered
// fields and operators.
func (m *Model) SetValue(filters ...filter.Filter) error {
	specs, err := m.toSpecs(filters)
	if err != nil {
		return err
	}
	m.value.Set(specs)
	return nil
}

// Clear removes every chip
func (m *Model) Clear() {
	m.value.Set(nil)
}

// Favorites returns the saved chip sets
func (m *Model) Favorites() [][]filter.Filter {
	saved := m.favorites.Get()
	out := make([][]filter.Filter, 0, len(saved))
	for _, specs := range saved {
		out = append(out, m.fromSpecs(specs))
	}
	return out
}

// FavoritesChanges notifies when favorites are added or removed
func (m *Model) FavoritesChanges() reactive.Source {
	return m.favorites
}

// AddFavorite saves filters as a favorite, or the current chips when none
// are given. Saving an existing favorite again does nothing.
func (m *Model) AddFavorite(filters ...filter.Filter) error {
	if len(filters) == 0 {
		filters = m.Value()
	}
	specs, err := m.toSpecs(filters)
	if err != nil || len(specs) == 0 {
		return err
	}
	if m.IsFavorite(filters...) {
		return nil
	}
	m.favorites.Update(func(saved [][]filter.Spec) [][]filter.Spec {
		return append(slices.Clone(saved), specs)
	})
	return nil
}

// RemoveFavorite deletes the favorite equal to filters
func (m *Model) RemoveFavorite(filters ...filter.Filter) {
	target := combine(filters)
	m.favorites.Update(func(saved [][]filter.Spec) [][]filter.Spec {
		out := make([][]filter.Spec, 0, len(saved))
		for _, specs := range saved {
			if !filter.Equal(combine(m.fromSpecs(specs)), target) {
				out = append(out, specs)
			}
		}
		return out
	})
}

// IsFavorite reports whether filters are saved as a favorite, regardless of
// chip order
func (m *Model) IsFavorite(filters ...filter.Filter) bool {
	target := combine(filters)
	for _, fav := range m.Favorites() {
		if filter.Equal(combine(fav), target) {
			return true
		}
	}
	return false
}

// SelectFavorite replaces the chips with the favorite at i
func (m *Model) SelectFavorite(i int) error {
	favorites := m.Favorites()
	if i < 0 || i >= len(favorites) {
		return fmt.Errorf("%w: %d", ErrFavoriteIndex, i)
	}
	return m.SetValue(favorites[i]...)
}

// Label renders a chip the way it is displayed
func (m *Model) Label(f filter.Filter) string {
	switch x := f.(type) {
	case *filter.FieldFilter:
		name, render := x.Field, func(v any) string { return types.ToString(v) }
		if spec, err := m.FieldSpec(x.Field); err == nil {
			name = spec.DisplayName()
			render = func(v any) string { return spec.RenderValue(v, x.Op) }
		}
		values := x.Values()
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = render(v)
		}
		return fmt.Sprintf("%s %s %s", name, x.Op, strings.Join(parts, " | "))
	case *filter.CompoundFilter:
		parts := make([]string, len(x.Filters))
		for i, child := range x.Filters {
			parts[i] = m.Label(child)
		}
		return "(" + strings.Join(parts, " "+string(x.Op)+" ") + ")"
	}
	return ""
}

func (m *Model) pushToBind() {
	f := combine(m.Value())
	if err := m.bind.SetFilter(f); err != nil {
		m.logger.Error("failed to apply chooser filter", "filter", fmt.Sprint(f), "error", err)
	}
}

// pullFromBind splits the store filter into chips. Chips the chooser cannot
// show are dropped.
func (m *Model) pullFromBind() {
	var chips []filter.Filter
	switch x := m.bind.Filter().(type) {
	case nil:
	case *filter.CompoundFilter:
		if x.Op == filter.And {
			chips = x.Filters
		} else {
			chips = []filter.Filter{x}
		}
	default:
		chips = []filter.Filter{x}
	}

	specs := make([]filter.Spec, 0, len(chips))
	for _, chip := range chips {
		if err := m.validate(chip); err != nil {
			m.logger.Warn("dropping filter not offered by chooser", "filter", chip.String(), "error", err)
			continue
		}
		specs = append(specs, chip.Spec())
	}
	if len(specs) == 0 {
		specs = nil
	}
	m.value.Set(specs)
}

func (m *Model) validate(f filter.Filter) error {
	for _, leaf := range filter.Flatten(f) {
		ff, ok := leaf.(*filter.FieldFilter)
		if !ok {
			continue
		}
		spec, err := m.FieldSpec(ff.Field)
		if err != nil {
			return err
		}
		if !spec.SupportsOperator(ff.Op) {
			return fmt.Errorf("%w: %q is not offered for %q", filter.ErrInvalidOperator, ff.Op, ff.Field)
		}
	}
	return nil
}

func (m *Model) toSpecs(filters []filter.Filter) ([]filter.Spec, error) {
	var specs []filter.Spec
	for _, f := range filters {
		if f == nil {
			continue
		}
		if err := m.validate(f); err != nil {
			return nil, err
		}
		specs = append(specs, f.Spec())
	}
	return specs, nil
}

func (m *Model) fromSpecs(specs []filter.Spec) []filter.Filter {
	out := make([]filter.Filter, 0, len(specs))
	for _, s := range specs {
		f, err := filter.FromSpec(s)
		if err != nil {
			m.logger.Error("failed to restore chooser filter", "error", err)
			continue
		}
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func combine(filters []filter.Filter) filter.Filter {
	f, _ := filter.Combine(filter.And, filters...)
	return f
}

func asFilter(v any) filter.Filter {
	f, _ := v.(filter.Filter)
	return f
}
