package persist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPrefStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	prefs, err := OpenPrefStore(path)
	if err != nil {
		t.Fatalf("OpenPrefStore failed: %v", err)
	}
	defer func() { _ = prefs.Close() }()

	if _, ok, err := prefs.Get("grid"); ok || err != nil {
		t.Fatalf("expected missing pref, got ok=%v err=%v", ok, err)
	}

	p, err := Create(Options{PrefKey: "grid", Path: "columns.order", Debounce: noDebounce()}, &Services{Prefs: prefs})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	p.Write([]string{"b", "a"})

	v, ok, err := prefs.Get("grid")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	want := map[string]any{"columns": map[string]any{"order": []any{"b", "a"}}}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("pref mismatch (-want +got):\n%s", diff)
	}

	keys, err := prefs.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if diff := cmp.Diff([]string{"grid"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	if err := p.ClearAll(); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	if _, ok, _ := prefs.Get("grid"); ok {
		t.Error("expected pref to be reset")
	}
}

func TestViewStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	views, err := OpenViewStore(filepath.Join(t.TempDir(), "views.db"), WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("OpenViewStore failed: %v", err)
	}
	defer func() { _ = views.Close() }()

	open, err := views.Create(ctx, "grid", "Open orders", map[string]any{"filter": "status = open"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := views.Create(ctx, "grid", "All orders", nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := views.Create(ctx, "chooser", "Favorites", nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := views.Get(ctx, open.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff(open, got); diff != "" {
		t.Errorf("view mismatch (-want +got):\n%s", diff)
	}

	list, err := views.List(ctx, "grid")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var names []string
	for _, v := range list {
		names = append(names, v.Name)
	}
	if diff := cmp.Diff([]string{"All orders", "Open orders"}, names); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	t.Run("provider", func(t *testing.T) {
		p, err := Create(Options{ViewID: open.ID, Path: "grid.sort", Debounce: noDebounce()}, &Services{Views: views})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		p.Write("name")
		v, err := views.Get(ctx, open.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		want := map[string]any{"filter": "status = open", "grid": map[string]any{"sort": "name"}}
		if diff := cmp.Diff(want, v.Value); diff != "" {
			t.Errorf("view value mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing views", func(t *testing.T) {
		if _, err := views.Get(ctx, "nope"); !errors.Is(err, ErrViewNotFound) {
			t.Errorf("expected ErrViewNotFound, got %v", err)
		}
		if err := views.Update(ctx, "nope", nil); !errors.Is(err, ErrViewNotFound) {
			t.Errorf("expected ErrViewNotFound, got %v", err)
		}
	})

	if err := views.Delete(ctx, open.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := views.Delete(ctx, open.ID); !errors.Is(err, ErrViewNotFound) {
		t.Errorf("expected second delete to fail with ErrViewNotFound, got %v", err)
	}
}

func TestPathHelpers(t *testing.T) {
	doc := map[string]any{}
	setPath(doc, "a.b.c", 1)
	setPath(doc, "a.x", "y")
	if v, ok := getPath(doc, "a.b.c"); !ok || v != 1 {
		t.Errorf("getPath = %v, %v", v, ok)
	}
	if _, ok := getPath(doc, "a.x.z"); ok {
		t.Error("expected path through a scalar to be missing")
	}
	setPath(doc, "a.x.z", 2)
	if v, _ := getPath(doc, "a.x.z"); v != 2 {
		t.Errorf("expected scalar to be replaced by a map, got %v", v)
	}
	if !unsetPath(doc, "a.b.c") || unsetPath(doc, "a.b.c") {
		t.Error("expected unset to succeed once")
	}
	if diff := cmp.Diff(map[string]any{"a": map[string]any{"b": map[string]any{}, "x": map[string]any{"z": 2}}}, doc); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}
