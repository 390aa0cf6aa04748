package gridfilter

import (
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/store"
	"github.com/arthur-debert/nanogrid/testutil"
	"github.com/arthur-debert/nanogrid/types"
	"github.com/google/go-cmp/cmp"
)

func noCommitOnChange(cfg *Config) {
	off := false
	cfg.CommitOnChange = &off
}

func openHeader(t *testing.T, m *Model, field string) *HeaderFilter {
	t.Helper()
	h, err := m.NewHeaderFilter(field)
	if err != nil {
		t.Fatalf("NewHeaderFilter(%q) failed: %v", field, err)
	}
	if err := h.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return h
}

func TestValuesTabCommitKeepsOtherFilters(t *testing.T) {
	s, _ := testutil.LoadOrders(t)
	m, _ := newModel(t, s, noCommitOnChange)
	priority := filter.MustFieldFilter("priority", filter.OpGte, 3)
	setFilter(t, s, priority)

	h := openHeader(t, m, "status")
	vt := h.ValuesTab()
	assertFilter(t, priority, h.VirtualStore().Filter())
	if diff := cmp.Diff([]any{"closed", "open", "pending", BlankStr}, vt.Values()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if vt.Count("open") != 2 || vt.Count(BlankStr) != 1 {
		t.Errorf("unexpected counts: open=%d blank=%d", vt.Count("open"), vt.Count(BlankStr))
	}
	if h.ActiveTab() != ValuesTabID || h.IsDirty() {
		t.Errorf("expected a clean values tab, got %s dirty=%v", h.ActiveTab(), h.IsDirty())
	}

	vt.ToggleAll(false)
	vt.SetRecsChecked(true, "open")
	assertFilter(t, filter.MustFieldFilter("status", filter.OpEq, "open"), vt.Filter())
	if !h.IsDirty() || !h.HasPendingFilter() {
		t.Error("expected pending selection to be dirty")
	}

	if err := h.Commit(true); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if h.State() != StateClosed {
		t.Errorf("expected popover to close, got %s", h.State())
	}
	want := filter.MustCombine(filter.And, priority, filter.MustFieldFilter("status", filter.OpEq, "open"))
	assertFilter(t, want, s.Filter())
	if diff := cmp.Diff([]string{"o1", "o4"}, testutil.IDs(s.Records())); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	t.Run("reopening excludes the column's own filter", func(t *testing.T) {
		if err := h.Open(); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer h.Close()
		assertFilter(t, priority, h.VirtualStore().Filter())
		if diff := cmp.Diff([]any{"closed", "open", "pending", BlankStr}, vt.Values()); diff != "" {
			t.Errorf("values mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]any{"open"}, vt.PendingValues()); diff != "" {
			t.Errorf("pending values mismatch (-want +got):\n%s", diff)
		}
		if !h.HasFilter() || h.IsDirty() {
			t.Errorf("expected committed filter to be synced, dirty=%v", h.IsDirty())
		}
	})
}

func TestValuesTabFilterWeighting(t *testing.T) {
	s, _ := testutil.LoadOrders(t)
	m, _ := newModel(t, s, noCommitOnChange)
	vt := openHeader(t, m, "status").ValuesTab()

	tests := []struct {
		name      string
		unchecked []any
		want      filter.Filter
	}{
		{"everything checked", nil, nil},
		{"nothing checked", []any{"closed", "open", "pending", BlankStr}, nil},
		{"one unchecked", []any{"closed"}, filter.MustFieldFilter("status", filter.OpNe, "closed")},
		{"short lists favor =", []any{"closed", "pending"}, filter.MustFieldFilter("status", filter.OpEq, []any{"open", nil})},
		{"blank unchecked", []any{BlankStr}, filter.MustFieldFilter("status", filter.OpNe, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vt.ToggleAll(true)
			vt.SetRecsChecked(false, tt.unchecked...)
			assertFilter(t, tt.want, vt.Filter())
		})
	}

	t.Run("long lists pick the shorter side", func(t *testing.T) {
		var data []map[string]any
		for i := 1; i <= 12; i++ {
			data = append(data, map[string]any{"code": fmt.Sprintf("c%02d", i)})
		}
		codes, err := store.New(store.Config{Fields: []types.FieldConfig{{Name: "code", Type: types.FieldString}}, Data: data})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		cm, _ := newModel(t, codes, noCommitOnChange)
		ct := openHeader(t, cm, "code").ValuesTab()

		ct.SetRecsChecked(false, "c01")
		assertFilter(t, filter.MustFieldFilter("code", filter.OpNe, "c01"), ct.Filter())

		ct.SetRecsChecked(false, "c02", "c03", "c04", "c05", "c06")
		assertFilter(t, filter.MustFieldFilter("code", filter.OpEq, []any{"c07", "c08", "c09", "c10", "c11", "c12"}), ct.Filter())
	})

	t.Run("tags always use includes", func(t *testing.T) {
		tt := openHeader(t, m, "tags").ValuesTab()
		if len(tt.PendingValues()) != 0 {
			t.Errorf("expected no tags checked by default, got %v", tt.PendingValues())
		}
		tt.SetRecsChecked(true, "gift", "urgent", "wholesale")
		assertFilter(t, filter.MustFieldFilter("tags", filter.OpIncludes, []any{"gift", "urgent", "wholesale"}), tt.Filter())
	})
}

func TestValuesTabTextFilter(t *testing.T) {
	s, _ := testutil.LoadOrders(t)
	m, _ := newModel(t, s, noCommitOnChange)
	vt := openHeader(t, m, "customer").ValuesTab()

	vt.SetFilterText("AC")
	if diff := cmp.Diff([]any{"Acme"}, vt.VisibleValues()); diff != "" {
		t.Errorf("visible values mismatch (-want +got):\n%s", diff)
	}
	if !vt.HasHiddenValues() {
		t.Error("expected hidden values")
	}

	vt.ToggleAll(false)
	if vt.IsChecked("Acme") || !vt.IsChecked("Birch") {
		t.Error("expected toggle to affect visible values only")
	}
	if vt.AllVisibleChecked() {
		t.Error("expected visible values to be unchecked")
	}

	vt.Reset()
	if vt.FilterText() != "" || vt.HasHiddenValues() || !vt.IsChecked("Acme") {
		t.Error("expected reset to clear the text filter and check every value")
	}
}

func TestSyncWithFilter(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		filter  filter.Filter
		tab     TabID
		pending []any
		rows    []CustomRow
		join    filter.CompoundOp
	}{
		{
			name:    "no filter",
			field:   "status",
			tab:     ValuesTabID,
			pending: []any{"closed", "open", "pending", BlankStr},
			rows:    []CustomRow{{Op: filter.OpEq}},
		},
		{
			name:    "negated values",
			field:   "status",
			filter:  filter.MustFieldFilter("status", filter.OpNe, "closed"),
			tab:     ValuesTabID,
			pending: []any{"open", "pending", BlankStr},
			rows:    []CustomRow{{Op: filter.OpNe, Input: "closed", Value: "closed"}},
		},
		{
			name:    "blank",
			field:   "status",
			filter:  filter.MustFieldFilter("status", filter.OpEq, nil),
			tab:     ValuesTabID,
			pending: []any{BlankStr},
			rows:    []CustomRow{{Op: OpBlank}},
		},
		{
			name:    "text operator forces the custom tab",
			field:   "status",
			filter:  filter.MustFieldFilter("status", filter.OpLike, "pe"),
			tab:     CustomTabID,
			pending: []any{"open", "pending"},
			rows:    []CustomRow{{Op: filter.OpLike, Input: "pe", Value: "pe"}},
		},
		{
			name:  "range column compound",
			field: "priority",
			filter: filter.MustCombine(filter.Or,
				filter.MustFieldFilter("priority", filter.OpLt, 2),
				filter.MustFieldFilter("priority", filter.OpGt, 4),
			),
			tab: CustomTabID,
			rows: []CustomRow{
				{Op: filter.OpLt, Input: "2", Value: 2},
				{Op: filter.OpGt, Input: "4", Value: 4},
			},
			join: filter.Or,
		},
		{
			name:    "tags",
			field:   "tags",
			filter:  filter.MustFieldFilter("tags", filter.OpIncludes, []any{"gift"}),
			tab:     ValuesTabID,
			pending: []any{"gift"},
			rows:    []CustomRow{{Op: filter.OpIncludes, Input: "gift", Value: []any{"gift"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := testutil.LoadOrders(t)
			m, _ := newModel(t, s, noCommitOnChange)
			setFilter(t, s, tt.filter)
			h := openHeader(t, m, tt.field)

			if h.ActiveTab() != tt.tab {
				t.Errorf("expected %s tab, got %s", tt.tab, h.ActiveTab())
			}
			if tt.pending != nil {
				if diff := cmp.Diff(tt.pending, h.ValuesTab().PendingValues()); diff != "" {
					t.Errorf("pending values mismatch (-want +got):\n%s", diff)
				}
			}
			if diff := cmp.Diff(tt.rows, h.CustomTab().Rows()); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
			join := tt.join
			if join == "" {
				join = filter.And
			}
			if h.CustomTab().Join() != join {
				t.Errorf("expected join %s, got %s", join, h.CustomTab().Join())
			}
		})
	}
}

func TestHeaderFilterTransitions(t *testing.T) {
	s, _ := testutil.LoadOrders(t)
	m, _ := newModel(t, s, noCommitOnChange)
	h, err := m.NewHeaderFilter("status")
	if err != nil {
		t.Fatalf("NewHeaderFilter failed: %v", err)
	}

	var states []State
	h.StateChanges().Subscribe(func() { states = append(states, h.State()) })

	for name, op := range map[string]func() error{
		"commit": func() error { return h.Commit(true) },
		"cancel": h.Cancel,
		"reset":  h.Reset,
	} {
		if err := op(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s while closed: expected ErrInvalidTransition, got %v", name, err)
		}
	}
	if err := h.Close(); err != nil {
		t.Errorf("expected closing a closed popover to be a no-op, got %v", err)
	}

	if err := h.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := h.Open(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected second Open to fail, got %v", err)
	}

	filterChanges := 0
	s.FilterChanges().Subscribe(func() { filterChanges++ })

	t.Run("reset reverts pending edits", func(t *testing.T) {
		h.ValuesTab().SetRecsChecked(false, "open")
		if err := h.Reset(); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		if h.State() != StateIdle || !h.ValuesTab().IsChecked("open") {
			t.Errorf("expected idle popover with reverted selection, got %s", h.State())
		}
	})

	t.Run("cancel reverts and closes", func(t *testing.T) {
		h.ValuesTab().SetRecsChecked(false, "open")
		if err := h.Cancel(); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		if h.IsOpen() || !h.ValuesTab().IsChecked("open") {
			t.Error("expected closed popover with reverted selection")
		}
		if filterChanges != 0 {
			t.Errorf("expected the store to be untouched, got %d filter changes", filterChanges)
		}
	})

	want := []State{StateSyncing, StateIdle, StateCancelling, StateIdle, StateCancelling, StateClosed}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Errorf("state sequence mismatch (-want +got):\n%s", diff)
	}

	t.Run("clear filter", func(t *testing.T) {
		setFilter(t, s, filter.MustFieldFilter("status", filter.OpEq, "open"))
		if err := h.Open(); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if err := h.ClearFilter(false); err != nil {
			t.Fatalf("ClearFilter failed: %v", err)
		}
		if s.Filter() != nil || h.State() != StateIdle || h.HasFilter() {
			t.Errorf("expected cleared filter with open popover, got %v in %s", s.Filter(), h.State())
		}
		if !h.ValuesTab().IsChecked("closed") {
			t.Error("expected every value to be checked after clearing")
		}
	})

	t.Run("unknown tab", func(t *testing.T) {
		if err := h.ActivateTab("chart"); !errors.Is(err, ErrUnknownTab) {
			t.Errorf("expected ErrUnknownTab, got %v", err)
		}
	})

	t.Run("destroy stops syncing", func(t *testing.T) {
		h.Destroy()
		if h.IsOpen() {
			t.Error("expected destroyed popover to be closed")
		}
		before := h.VirtualStore().Count()
		if err := s.LoadData([]map[string]any{{"id": "x", "status": "new"}}); err != nil {
			t.Fatalf("LoadData failed: %v", err)
		}
		if h.VirtualStore().Count() != before {
			t.Error("expected destroyed popover to stop mirroring the store")
		}
	})
}

func TestVirtualStoreFollowsBind(t *testing.T) {
	s, _ := testutil.LoadOrders(t)
	m, _ := newModel(t, s, noCommitOnChange)
	h := openHeader(t, m, "status")
	virtual := h.VirtualStore()

	east := filter.MustFieldFilter("region", filter.OpEq, "east")
	setFilter(t, s, east)
	assertFilter(t, east, virtual.Filter())
	if diff := cmp.Diff([]any{"closed", "open", "pending"}, h.ValuesTab().Values()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if h.ValuesTab().ValueCount() != 4 {
		t.Errorf("expected value count to ignore other filters, got %d", h.ValuesTab().ValueCount())
	}

	if err := s.LoadData([]map[string]any{
		{"id": "n1", "status": "new", "region": "east"},
		{"id": "n2", "status": "open", "region": "west"},
	}); err != nil {
		t.Fatalf("LoadData failed: %v", err)
	}
	if diff := cmp.Diff([]string{"n1", "n2"}, testutil.IDs(virtual.AllRecords())); diff != "" {
		t.Errorf("expected virtual store to reload (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"new"}, h.ValuesTab().Values()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	s.Clear()
	if virtual.Count() == 0 {
		t.Error("expected a closed popover to stop mirroring the store")
	}

	t.Run("tree mode loads leaves only", func(t *testing.T) {
		tree, _ := testutil.LoadOrderTree(t)
		for _, treeMode := range []bool{false, true} {
			tm, _ := newModel(t, tree, noCommitOnChange, func(cfg *Config) { cfg.TreeMode = treeMode })
			th := openHeader(t, tm, "region")
			want := 11
			if treeMode {
				want = 8
			}
			if got := len(th.VirtualStore().AllRecords()); got != want {
				t.Errorf("treeMode=%v: expected %d records, got %d", treeMode, want, got)
			}
		}
	})
}

func TestCustomTab(t *testing.T) {
	s, _ := testutil.LoadOrders(t)
	m, _ := newModel(t, s, noCommitOnChange)
	h := openHeader(t, m, "priority")
	ct := h.CustomTab()

	if h.ActiveTab() != CustomTabID {
		t.Errorf("expected range columns to open on the custom tab, got %s", h.ActiveTab())
	}
	if diff := cmp.Diff([]CustomRow{{Op: filter.OpGt}}, ct.Rows()); diff != "" {
		t.Errorf("initial rows mismatch (-want +got):\n%s", diff)
	}
	if ct.Filter() != nil {
		t.Errorf("expected empty rows to yield no filter, got %v", ct.Filter())
	}

	if err := ct.SetRow(0, filter.OpGte, "3"); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	if err := ct.AddRow(filter.OpLte, "4"); err != nil {
		t.Fatalf("AddRow failed: %v", err)
	}
	if err := ct.AddRow(filter.OpGt, "lots"); err != nil {
		t.Fatalf("AddRow failed: %v", err)
	}
	want := filter.MustCombine(filter.And,
		filter.MustFieldFilter("priority", filter.OpGte, int64(3)),
		filter.MustFieldFilter("priority", filter.OpLte, int64(4)),
	)
	assertFilter(t, want, ct.Filter())

	if err := ct.AddRow(filter.OpLike, "x"); !errors.Is(err, filter.ErrInvalidOperator) {
		t.Errorf("expected ErrInvalidOperator, got %v", err)
	}
	if err := ct.RemoveRow(9); !errors.Is(err, ErrRowIndex) {
		t.Errorf("expected ErrRowIndex, got %v", err)
	}
	if err := ct.SetJoin("xor"); !errors.Is(err, filter.ErrInvalidOperator) {
		t.Errorf("expected ErrInvalidOperator, got %v", err)
	}

	if err := h.Commit(true); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	assertFilter(t, want, s.Filter())
	if diff := cmp.Diff([]string{"o2", "o4", "o6"}, testutil.IDs(s.Records())); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	t.Run("reopen restores rows", func(t *testing.T) {
		if err := h.Open(); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		wantRows := []CustomRow{
			{Op: filter.OpGte, Input: "3", Value: int64(3)},
			{Op: filter.OpLte, Input: "4", Value: int64(4)},
		}
		if diff := cmp.Diff(wantRows, ct.Rows()); diff != "" {
			t.Errorf("rows mismatch (-want +got):\n%s", diff)
		}
		if h.IsDirty() {
			t.Error("expected synced rows to match the committed filter")
		}
	})

	t.Run("or join and blank rows", func(t *testing.T) {
		if err := ct.SetJoin("or"); err != nil {
			t.Fatalf("SetJoin failed: %v", err)
		}
		if err := ct.AddRow(OpBlank, ""); err != nil {
			t.Fatalf("AddRow failed: %v", err)
		}
		want := filter.MustCombine(filter.Or,
			filter.MustFieldFilter("priority", filter.OpGte, int64(3)),
			filter.MustFieldFilter("priority", filter.OpLte, int64(4)),
			filter.MustFieldFilter("priority", filter.OpEq, nil),
		)
		assertFilter(t, want, ct.Filter())
	})

	t.Run("removing every row leaves an empty one", func(t *testing.T) {
		for len(ct.Rows()) > 1 {
			if err := ct.RemoveRow(0); err != nil {
				t.Fatalf("RemoveRow failed: %v", err)
			}
		}
		if err := ct.RemoveRow(0); err != nil {
			t.Fatalf("RemoveRow failed: %v", err)
		}
		if diff := cmp.Diff([]CustomRow{{Op: filter.OpGt}}, ct.Rows()); diff != "" {
			t.Errorf("rows mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestCommitOnChange(t *testing.T) {
	s, _ := testutil.LoadOrders(t)
	m, sched := newModel(t, s)
	h := openHeader(t, m, "status")

	h.ValuesTab().SetRecsChecked(false, "closed")
	if s.Filter() != nil {
		t.Fatal("expected commit to wait for the debounce")
	}
	sched.Advance(CommitOnChangeDebounce)
	assertFilter(t, filter.MustFieldFilter("status", filter.OpNe, "closed"), s.Filter())
	if h.State() != StateIdle {
		t.Errorf("expected popover to stay open, got %s", h.State())
	}

	t.Run("custom tab", func(t *testing.T) {
		if err := h.ActivateTab(CustomTabID); err != nil {
			t.Fatalf("ActivateTab failed: %v", err)
		}
		if err := h.CustomTab().SetRow(0, filter.OpBegins, "pen"); err != nil {
			t.Fatalf("SetRow failed: %v", err)
		}
		sched.Advance(CommitOnChangeDebounce)
		assertFilter(t, filter.MustFieldFilter("status", filter.OpBegins, "pen"), s.Filter())
	})

	t.Run("disabled", func(t *testing.T) {
		m.SetCommitOnChange(false)
		before := s.Filter()
		if err := h.CustomTab().SetRow(0, filter.OpBegins, "op"); err != nil {
			t.Fatalf("SetRow failed: %v", err)
		}
		sched.Advance(CommitOnChangeDebounce)
		if s.Filter() != before {
			t.Errorf("expected no commit, got %v", s.Filter())
		}
	})
}

func TestNewValuesFollowCommittedFilter(t *testing.T) {
	archived := map[string]any{"id": "o9", "status": "archived", "region": "east"}

	tests := []struct {
		name        string
		committed   filter.Filter
		wantChecked bool
	}{
		{name: "no filter", wantChecked: true},
		{name: "excluding other values", committed: filter.MustFieldFilter("status", filter.OpNe, "closed"), wantChecked: true},
		{name: "selecting other values", committed: filter.MustFieldFilter("status", filter.OpEq, "open"), wantChecked: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, data := testutil.LoadOrders(t)
			m, sched := newModel(t, s)
			if tt.committed != nil {
				setFilter(t, s, tt.committed)
			}
			h := openHeader(t, m, "status")

			if err := s.LoadData(append(slices.Clone(data.Records), archived)); err != nil {
				t.Fatalf("LoadData failed: %v", err)
			}
			sched.Advance(time.Second)

			if got := h.ValuesTab().IsChecked("archived"); got != tt.wantChecked {
				t.Errorf("expected archived checked=%v, got %v", tt.wantChecked, got)
			}
			if h.IsDirty() {
				t.Errorf("expected no pending edit, got %v", h.PendingFilter())
			}
			assertFilter(t, tt.committed, s.Filter())
		})
	}

	t.Run("other column filter cleared", func(t *testing.T) {
		s, _ := testutil.LoadOrders(t)
		m, sched := newModel(t, s)
		setFilter(t, s, filter.MustFieldFilter("region", filter.OpEq, "east"))
		h := openHeader(t, m, "status")
		if h.ValuesTab().IsChecked(BlankStr) {
			t.Fatal("expected blank status to be absent under region = east")
		}

		if err := m.SetColumnFilters("region", nil); err != nil {
			t.Fatalf("SetColumnFilters failed: %v", err)
		}
		sched.Advance(time.Second)

		if !h.ValuesTab().IsChecked(BlankStr) {
			t.Error("expected the blank status to be checked once visible")
		}
		if s.Filter() != nil {
			t.Errorf("expected no filter, got %v", s.Filter())
		}
		if got := s.Count(); got != 8 {
			t.Errorf("expected all 8 records, got %d", got)
		}
	})
}

func TestActivateTabShowsCommittedFilter(t *testing.T) {
	s, _ := testutil.LoadOrders(t)
	m, _ := newModel(t, s, noCommitOnChange)
	setFilter(t, s, filter.MustFieldFilter("status", filter.OpEq, "open"))
	h := openHeader(t, m, "status")
	if h.ActiveTab() != ValuesTabID {
		t.Fatalf("expected the values tab, got %s", h.ActiveTab())
	}

	ct := h.CustomTab()
	if err := ct.SetRow(0, filter.OpBegins, "pen"); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	if err := h.ActivateTab(CustomTabID); err != nil {
		t.Fatalf("ActivateTab failed: %v", err)
	}
	want := []CustomRow{{Op: filter.OpEq, Input: "open", Value: "open"}}
	if diff := cmp.Diff(want, ct.Rows()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	h.ValuesTab().SetRecsChecked(true, "closed")
	if err := h.ActivateTab(ValuesTabID); err != nil {
		t.Fatalf("ActivateTab failed: %v", err)
	}
	if diff := cmp.Diff([]any{"open"}, h.ValuesTab().PendingValues()); diff != "" {
		t.Errorf("pending values mismatch (-want +got):\n%s", diff)
	}
	if h.IsDirty() {
		t.Errorf("expected no pending edit, got %v", h.PendingFilter())
	}
}

func TestIsCustomFilter(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		filter filter.Filter
		custom bool
	}{
		{"no filter", "status", nil, false},
		{"status equals", "status", filter.MustFieldFilter("status", filter.OpEq, "open"), false},
		{"status begins", "status", filter.MustFieldFilter("status", filter.OpBegins, "op"), true},
		{"status compound", "status", filter.MustCombine(filter.Or,
			filter.MustFieldFilter("status", filter.OpEq, "open"),
			filter.MustFieldFilter("status", filter.OpBegins, "pen"),
		), true},
		{"tags includes", "tags", filter.MustFieldFilter("tags", filter.OpIncludes, "gift"), false},
		{"tags equals", "tags", filter.MustFieldFilter("tags", filter.OpEq, "gift"), false},
		{"tags not equal", "tags", filter.MustFieldFilter("tags", filter.OpNe, "gift"), false},
		{"tags is blank", "tags", filter.MustFieldFilter("tags", filter.OpEq, nil), true},
		{"tags is not blank", "tags", filter.MustFieldFilter("tags", filter.OpNe, nil), true},
		{"tags excludes", "tags", filter.MustFieldFilter("tags", filter.OpExcludes, "gift"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := testutil.LoadOrders(t)
			m, _ := newModel(t, s, noCommitOnChange)
			if tt.filter != nil {
				setFilter(t, s, tt.filter)
			}
			h := openHeader(t, m, tt.field)

			if got := h.IsCustomFilter(); got != tt.custom {
				t.Errorf("expected custom=%v, got %v", tt.custom, got)
			}
			want := ValuesTabID
			if tt.custom {
				want = CustomTabID
			}
			if h.ActiveTab() != want {
				t.Errorf("expected active tab %s, got %s", want, h.ActiveTab())
			}
		})
	}
}
