package reactive

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestAddReactionValidation(t *testing.T) {
	var r Reactive
	defer r.Destroy()

	tests := []struct {
		name string
		spec ReactionSpec
	}{
		{"neither track nor when", ReactionSpec{Run: func(any) {}}},
		{"both track and when", ReactionSpec{
			Track: func() any { return 1 },
			When:  func() bool { return true },
			Run:   func(any) {},
		}},
		{"missing run", ReactionSpec{Track: func() any { return 1 }}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.AddReaction(tt.spec); !errors.Is(err, ErrInvalidReaction) {
				t.Errorf("expected ErrInvalidReaction, got %v", err)
			}
		})
	}
}

func TestReactionFiresOnValueChange(t *testing.T) {
	var r Reactive
	defer r.Destroy()

	page := NewObservable(1)
	size := NewObservable(10)

	var seen []any
	_, err := r.AddReaction(ReactionSpec{
		Deps:  []Source{page, size},
		Track: func() any { return page.Get() * 2 },
		Run:   func(v any) { seen = append(seen, v) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page.Set(2)
	size.Set(20) // tracked value unchanged
	page.Set(2)  // no-op set
	page.Set(3)

	if diff := cmp.Diff([]any{4, 6}, seen); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestReactionFireImmediately(t *testing.T) {
	var r Reactive
	defer r.Destroy()

	obs := NewObservable("a")
	var seen []any
	_, _ = r.AddReaction(ReactionSpec{
		Deps:            []Source{obs},
		Track:           obs.Value,
		Run:             func(v any) { seen = append(seen, v) },
		FireImmediately: true,
	})
	obs.Set("b")

	if diff := cmp.Diff([]any{"a", "b"}, seen); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestWhenReactionRunsOnce(t *testing.T) {
	var r Reactive
	defer r.Destroy()

	count := NewObservable(0)
	runs := 0
	_, err := r.AddReaction(ReactionSpec{
		Deps: []Source{count},
		When: func() bool { return count.Get() >= 2 },
		Run:  func(any) { runs++ },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count.Set(1)
	count.Set(2)
	count.Set(3)

	if runs != 1 {
		t.Errorf("expected one run, got %d", runs)
	}
	if count.signal.Len() != 0 {
		t.Errorf("expected when reaction to unsubscribe, %d subscribers left", count.signal.Len())
	}
}

func TestDebouncedReaction(t *testing.T) {
	sched := NewManualScheduler(time.Unix(0, 0))
	var r Reactive
	r.UseScheduler(sched)
	defer r.Destroy()

	obs := NewObservable(0)
	var seen []any
	_, _ = r.AddReaction(ReactionSpec{
		Deps:     []Source{obs},
		Track:    obs.Value,
		Run:      func(v any) { seen = append(seen, v) },
		Debounce: Debounce(100 * time.Millisecond),
	})

	for i := 1; i <= 5; i++ {
		obs.Set(i)
		sched.Advance(50 * time.Millisecond)
	}
	if len(seen) != 0 {
		t.Fatalf("expected no runs inside the debounce window, got %v", seen)
	}

	sched.Advance(100 * time.Millisecond)
	if diff := cmp.Diff([]any{5}, seen); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestDestroyDisposesEverything(t *testing.T) {
	sched := NewManualScheduler(time.Unix(0, 0))
	var r Reactive
	r.UseScheduler(sched)

	obs := NewObservable(0)
	runs := 0
	_, _ = r.AddReaction(ReactionSpec{
		Deps:     []Source{obs},
		Track:    obs.Value,
		Run:      func(any) { runs++ },
		Debounce: Debounce(time.Second),
	})

	managed := &countingDestroyer{}
	r.Manage(managed)

	obs.Set(1)
	r.Destroy()
	r.Destroy()
	sched.Advance(2 * time.Second)
	obs.Set(2)

	if runs != 0 {
		t.Errorf("expected no runs after destroy, got %d", runs)
	}
	if managed.calls != 1 {
		t.Errorf("expected managed object destroyed once, got %d", managed.calls)
	}
	if obs.signal.Len() != 0 {
		t.Errorf("expected all subscriptions removed, %d left", obs.signal.Len())
	}
	if _, err := r.AddReaction(ReactionSpec{Track: obs.Value, Run: func(any) {}}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
}

func TestAutorun(t *testing.T) {
	var r Reactive
	defer r.Destroy()

	a := NewObservable(1)
	b := NewObservable(1)
	runs := 0
	_, err := r.AddAutorun(AutorunSpec{
		Deps: []Source{a, b},
		Run:  func() { runs++ },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a.Set(2)
	b.Set(2)

	if runs != 3 {
		t.Errorf("expected 3 runs, got %d", runs)
	}
}

func TestDisposerIsIdempotent(t *testing.T) {
	var r Reactive
	obs := NewObservable(0)
	runs := 0
	dispose, _ := r.AddReaction(ReactionSpec{
		Deps:  []Source{obs},
		Track: obs.Value,
		Run:   func(any) { runs++ },
	})
	dispose()
	dispose()
	obs.Set(1)
	r.Destroy()

	if runs != 0 {
		t.Errorf("expected no runs, got %d", runs)
	}
}

type countingDestroyer struct{ calls int }

func (c *countingDestroyer) Destroy() { c.calls++ }
