package gridfilter

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
	"github.com/arthur-debert/nanogrid/nanogrid/store"
	"github.com/arthur-debert/nanogrid/types"
)

// State is the lifecycle state of a header filter popover
type State string

const (
	StateClosed     State = "closed"
	StateSyncing    State = "syncing"
	StateIdle       State = "idle"
	StateCommitting State = "committing"
	StateCancelling State = "cancelling"
)

// TabID names a popover tab
type TabID string

const (
	ValuesTabID TabID = "valuesFilter"
	CustomTabID TabID = "customFilter"
)

// CommitOnChangeDebounce delays commits of tab edits when committing on
// change
const CommitOnChangeDebounce = 100 * time.Millisecond

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the popover's current state
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrUnknownTab is returned when activating a tab that does not exist
	ErrUnknownTab = errors.New("unknown tab")
)

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateClosed:
		return to == StateSyncing
	case StateSyncing:
		return to == StateIdle || to == StateClosed
	case StateIdle:
		return to == StateCommitting || to == StateCancelling || to == StateClosed
	case StateCommitting, StateCancelling:
		return to == StateIdle || to == StateClosed
	}
	return false
}

// HeaderOption customizes a HeaderFilter
type HeaderOption func(*HeaderFilter)

// WithSyncDebounce delays virtual store syncs after the bound store changes.
// By default syncs run as soon as the bound store notifies.
func WithSyncDebounce(d time.Duration) HeaderOption {
	return func(h *HeaderFilter) {
		h.syncDebounce = d
	}
}

// HeaderFilter is the filter popover of one column. Pending edits live in
// its values and custom tabs until committed to the bound store.
type HeaderFilter struct {
	reactive.Reactive

	model        *Model
	spec         *FieldSpec
	virtual      *store.Store
	valuesTab    *ValuesTab
	customTab    *CustomTab
	activeTab    *reactive.Observable[TabID]
	syncDebounce time.Duration
	logger       *slog.Logger

	mu            sync.Mutex
	state         State
	loadedAt      int64
	openDisposers []reactive.Disposer
	stateSig      reactive.Signal
}

// NewHeaderFilter creates the closed popover for field
func (m *Model) NewHeaderFilter(field string, opts ...HeaderOption) (*HeaderFilter, error) {
	spec, err := m.FieldSpec(field)
	if err != nil {
		return nil, err
	}
	fields := m.bind.Fields()
	configs := make([]types.FieldConfig, len(fields))
	for i, f := range fields {
		configs[i] = f.Config()
	}
	virtual, err := store.New(store.Config{Fields: configs})
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual store for %q: %w", field, err)
	}

	h := &HeaderFilter{
		model:     m,
		spec:      spec,
		virtual:   virtual,
		activeTab: reactive.NewObservable(ValuesTabID),
		logger:    m.logger.With("field", field),
		state:     StateClosed,
		loadedAt:  -1,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.UseScheduler(m.Scheduler())
	h.valuesTab = newValuesTab(h)
	h.customTab = newCustomTab(h)
	m.Manage(h)

	for _, tab := range []pendingTab{h.valuesTab, h.customTab} {
		if err := h.addCommitOnChange(tab); err != nil {
			h.Destroy()
			return nil, err
		}
	}
	return h, nil
}

// pendingTab is a popover tab holding an uncommitted filter
type pendingTab interface {
	ID() TabID
	Filter() filter.Filter
	Changes() reactive.Source
	syncWithFilter()
}

func (h *HeaderFilter) addCommitOnChange(tab pendingTab) error {
	_, err := h.AddReaction(reactive.ReactionSpec{
		Name:   "commit on change " + string(tab.ID()),
		Deps:   []reactive.Source{tab.Changes()},
		Track:  func() any { return tab.Filter() },
		Equals: func(a, b any) bool { return filter.Equal(asFilter(a), asFilter(b)) },
		Run: func(any) {
			if !h.model.CommitOnChange() || h.ActiveTab() != tab.ID() || h.State() != StateIdle || !h.IsDirty() {
				return
			}
			if err := h.Commit(false); err != nil {
				h.logger.Error("failed to commit column filter", "error", err)
			}
		},
		Debounce: reactive.Debounce(CommitOnChangeDebounce),
	})
	return err
}

func asFilter(v any) filter.Filter {
	f, _ := v.(filter.Filter)
	return f
}

func (h *HeaderFilter) Field() string              { return h.spec.Field() }
func (h *HeaderFilter) FieldSpec() *FieldSpec      { return h.spec }
func (h *HeaderFilter) Model() *Model              { return h.model }
func (h *HeaderFilter) ValuesTab() *ValuesTab      { return h.valuesTab }
func (h *HeaderFilter) CustomTab() *CustomTab      { return h.customTab }
func (h *HeaderFilter) VirtualStore() *store.Store { return h.virtual }

// State returns the popover state
func (h *HeaderFilter) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// StateChanges notifies after every state transition
func (h *HeaderFilter) StateChanges() reactive.Source {
	return &h.stateSig
}

// IsOpen reports whether the popover is showing
func (h *HeaderFilter) IsOpen() bool {
	return h.State() != StateClosed
}

// ActiveTab returns the tab whose filter Commit applies
func (h *HeaderFilter) ActiveTab() TabID {
	return h.activeTab.Get()
}

// ActiveTabChanges notifies when the active tab switches
func (h *HeaderFilter) ActiveTabChanges() reactive.Source {
	return h.activeTab
}

// ActivateTab switches the active tab, first reverting it to the committed
// filter
func (h *HeaderFilter) ActivateTab(id TabID) error {
	var tab pendingTab
	switch id {
	case ValuesTabID:
		tab = h.valuesTab
	case CustomTabID:
		tab = h.customTab
	default:
		return fmt.Errorf("%w %q", ErrUnknownTab, id)
	}
	tab.syncWithFilter()
	h.activeTab.Set(id)
	return nil
}

// Open shows the popover, starts mirroring the bound store into the virtual
// store and syncs both tabs with the committed filter
func (h *HeaderFilter) Open() error {
	if err := h.transition(StateSyncing); err != nil {
		return err
	}

	bind := h.model.bind
	h.syncVirtualStore()
	dispose, err := h.AddReaction(reactive.ReactionSpec{
		Name:     "virtual store " + h.Field(),
		Deps:     []reactive.Source{bind.Updates(), bind.FilterChanges()},
		Track:    func() any { return bindState{bind.LastUpdated(), bind.Filter()} },
		Run:      func(any) { h.syncVirtualStore() },
		Debounce: reactive.Debounce(h.syncDebounce),
	})
	if err != nil {
		h.forceState(StateClosed)
		return err
	}
	h.mu.Lock()
	h.openDisposers = append(h.openDisposers, dispose)
	h.mu.Unlock()

	h.syncWithFilter()
	return h.transition(StateIdle)
}

// Commit applies the active tab's filter to the column. With close false
// the popover stays open and the other tab is resynced.
func (h *HeaderFilter) Commit(close bool) error {
	if err := h.transition(StateCommitting); err != nil {
		return err
	}
	active, other := h.tabs()
	if err := h.model.SetColumnFilters(h.Field(), active.Filter()); err != nil {
		h.forceState(StateIdle)
		return err
	}
	if close {
		return h.close()
	}
	other.syncWithFilter()
	return h.transition(StateIdle)
}

// ClearFilter removes the column's filters from the bound store
func (h *HeaderFilter) ClearFilter(close bool) error {
	if err := h.transition(StateCommitting); err != nil {
		return err
	}
	if err := h.model.SetColumnFilters(h.Field(), nil); err != nil {
		h.forceState(StateIdle)
		return err
	}
	if close {
		return h.close()
	}
	h.syncWithFilter()
	return h.transition(StateIdle)
}

// Cancel discards pending edits and closes
func (h *HeaderFilter) Cancel() error {
	if err := h.transition(StateCancelling); err != nil {
		return err
	}
	h.syncWithFilter()
	return h.close()
}

// Reset discards pending edits, reverting both tabs to the committed filter
func (h *HeaderFilter) Reset() error {
	if err := h.transition(StateCancelling); err != nil {
		return err
	}
	h.syncWithFilter()
	return h.transition(StateIdle)
}

// Close hides the popover without committing. Closing a closed popover
// does nothing.
func (h *HeaderFilter) Close() error {
	if h.State() == StateClosed {
		return nil
	}
	return h.close()
}

// Destroy closes the popover and disposes its reactions
func (h *HeaderFilter) Destroy() {
	h.disposeOpen()
	h.forceState(StateClosed)
	h.Reactive.Destroy()
}

// IsCustomFilter reports whether the committed column filter can only be
// shown by the custom tab. On tags columns that includes is blank and is
// not blank.
func (h *HeaderFilter) IsCustomFilter() bool {
	if h.model.ColumnCompoundFilter(h.Field()) != nil {
		return true
	}
	for _, f := range h.model.ColumnFilters(h.Field()) {
		if !f.Op.IsValueOp() {
			return true
		}
		if h.spec.IsCollectionType() && f.Op != filter.OpIncludes && f.Value == nil {
			return true
		}
	}
	return false
}

// HasFilter reports whether the column has a committed filter
func (h *HeaderFilter) HasFilter() bool {
	return len(h.model.ColumnFilters(h.Field())) > 0
}

// PendingFilter returns the active tab's uncommitted filter
func (h *HeaderFilter) PendingFilter() filter.Filter {
	active, _ := h.tabs()
	return active.Filter()
}

// HasPendingFilter reports whether committing would set a filter
func (h *HeaderFilter) HasPendingFilter() bool {
	return h.PendingFilter() != nil
}

// CommittedFilter returns the column's filters in the bound store
func (h *HeaderFilter) CommittedFilter() filter.Filter {
	if c := h.model.ColumnCompoundFilter(h.Field()); c != nil {
		return c
	}
	filters := h.model.ColumnFilters(h.Field())
	children := make([]filter.Filter, len(filters))
	for i, f := range filters {
		children[i] = f
	}
	return filter.MustCombine(filter.And, children...)
}

// IsDirty reports whether the pending filter differs from the committed one
func (h *HeaderFilter) IsDirty() bool {
	return !filter.Equal(h.PendingFilter(), h.CommittedFilter())
}

func (h *HeaderFilter) tabs() (active, other pendingTab) {
	if h.ActiveTab() == CustomTabID {
		return h.customTab, h.valuesTab
	}
	return h.valuesTab, h.customTab
}

// syncWithFilter reverts both tabs to the committed filter and picks the
// tab able to show it
func (h *HeaderFilter) syncWithFilter() {
	h.valuesTab.syncWithFilter()
	h.customTab.syncWithFilter()
	tab := ValuesTabID
	if !h.spec.EnableValues() || h.IsCustomFilter() {
		tab = CustomTabID
	}
	h.activeTab.Set(tab)
}

// syncVirtualStore reloads the virtual store when the bound records changed
// and applies the bound filter without this column's value filters
func (h *HeaderFilter) syncVirtualStore() {
	bind := h.model.bind
	lastUpdated := bind.LastUpdated()
	h.mu.Lock()
	reload := lastUpdated != h.loadedAt
	h.loadedAt = lastUpdated
	h.mu.Unlock()

	if reload {
		if err := h.virtual.LoadRecords(h.model.sourceRecords()); err != nil {
			h.logger.Error("failed to load virtual store", "error", err)
		}
	}
	if err := h.virtual.SetFilter(filter.StripValueFilters(bind.Filter(), h.Field())); err != nil {
		h.logger.Error("failed to filter virtual store", "error", err)
	}
	h.valuesTab.loadValues()
	h.logger.Debug("virtual store synced", "reloaded", reload, "records", h.virtual.Count())
}

func (h *HeaderFilter) close() error {
	if err := h.transition(StateClosed); err != nil {
		return err
	}
	h.disposeOpen()
	return nil
}

func (h *HeaderFilter) disposeOpen() {
	h.mu.Lock()
	disposers := h.openDisposers
	h.openDisposers = nil
	h.loadedAt = -1
	h.mu.Unlock()
	for _, d := range disposers {
		d()
	}
}

func (h *HeaderFilter) transition(to State) error {
	h.mu.Lock()
	from := h.state
	if !isAllowedTransition(from, to) {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	h.state = to
	h.mu.Unlock()
	h.stateSig.Notify()
	return nil
}

func (h *HeaderFilter) forceState(to State) {
	h.mu.Lock()
	changed := h.state != to
	h.state = to
	h.mu.Unlock()
	if changed {
		h.stateSig.Notify()
	}
}
