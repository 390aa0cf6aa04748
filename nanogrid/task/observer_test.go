package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPromiseObserverSettles(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		p := NewPromise()
		obs := ForPromise(p, "loading")
		if !obs.IsPending() || obs.Message() != "loading" {
			t.Fatalf("expected pending with message, got pending=%v message=%q", obs.IsPending(), obs.Message())
		}
		p.Resolve(nil)
		if obs.IsPending() {
			t.Error("expected observer idle after resolve")
		}
		if obs.Message() != "" {
			t.Errorf("expected empty message when idle, got %q", obs.Message())
		}
	})

	t.Run("failure still flips to idle", func(t *testing.T) {
		boom := errors.New("boom")
		p := NewPromise()
		obs := ForPromise(p, "saving")
		p.Resolve(boom)
		if obs.IsPending() {
			t.Error("expected observer idle after rejection")
		}
		if !errors.Is(p.Err(), boom) {
			t.Errorf("expected error to remain on the promise, got %v", p.Err())
		}
	})

	t.Run("settles once", func(t *testing.T) {
		p := NewPromise()
		if !p.Resolve(nil) {
			t.Fatal("expected first resolve to settle")
		}
		if p.Resolve(errors.New("late")) {
			t.Error("expected second resolve to be ignored")
		}
		if p.Err() != nil {
			t.Errorf("expected nil error, got %v", p.Err())
		}
	})
}

func TestCompoundPendingSemantics(t *testing.T) {
	c := TrackAll("working")
	if c.IsPending() {
		t.Fatal("expected empty compound to be idle")
	}

	c.SetPending(true)
	if !c.IsPending() || c.Message() != "working" {
		t.Errorf("expected own flag to make compound pending with own message")
	}
	c.SetPending(false)

	p1, p2 := NewPromise(), NewPromise()
	p1.Track(c, "first")
	p2.Track(c, "second")
	if !c.IsPending() || c.PendingCount() != 2 {
		t.Fatalf("expected 2 pending, got pending=%v count=%d", c.IsPending(), c.PendingCount())
	}
	if c.Message() != "first" {
		t.Errorf("expected first pending subtask message, got %q", c.Message())
	}

	p1.Resolve(nil)
	if c.Message() != "second" {
		t.Errorf("expected message of remaining pending subtask, got %q", c.Message())
	}
	p2.Resolve(nil)
	if c.IsPending() {
		t.Error("expected compound idle once all subtasks settle")
	}
}

func TestCompoundPrunesResolvedPromises(t *testing.T) {
	c := TrackAll("")
	done := Resolved(nil)
	done.Track(c, "done")
	if got := len(c.Subtasks()); got != 1 {
		t.Fatalf("expected 1 subtask, got %d", got)
	}

	nested := TrackAll("nested")
	c.LinkTo(nested)

	open := NewPromise()
	open.Track(c, "open")

	subtasks := c.Subtasks()
	if len(subtasks) != 2 {
		t.Fatalf("expected resolved promise pruned leaving 2 subtasks, got %d", len(subtasks))
	}
	if subtasks[0] != Observer(nested) {
		t.Error("expected compound subtask to survive pruning")
	}
	if !c.IsPending() {
		t.Error("expected compound pending while open promise is pending")
	}
	open.Resolve(nil)
}

func TestTrackLastIgnoresSupersededTasks(t *testing.T) {
	c := TrackLast("")
	slow, fast := NewPromise(), NewPromise()
	slow.Track(c, "slow")
	fast.Track(c, "fast")

	if got := len(c.Subtasks()); got != 1 {
		t.Fatalf("expected a single tracked subtask, got %d", got)
	}
	fast.Resolve(nil)
	if c.IsPending() {
		t.Error("expected superseded task not to keep compound pending")
	}
	slow.Resolve(nil)
}

func TestCompoundNotifiesOnSubtaskChange(t *testing.T) {
	c := TrackAll("")
	notified := 0
	unsub := c.Subscribe(func() { notified++ })
	defer unsub()

	p := NewPromise()
	p.Track(c, "x")
	before := notified
	p.Resolve(nil)
	if notified <= before {
		t.Error("expected compound to notify when a subtask settles")
	}

	c.Clear()
	if len(c.Subtasks()) != 0 {
		t.Error("expected Clear to drop subtasks")
	}
}

func TestGoSettlesWithResult(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	boom := errors.New("load failed")
	p := Go(ctx, func(ctx context.Context) error { return boom })
	if err := p.Wait(ctx); !errors.Is(err, boom) {
		t.Errorf("expected load error, got %v", err)
	}

	panicky := Go(ctx, func(ctx context.Context) error { panic("bad") })
	if err := panicky.Wait(ctx); err == nil {
		t.Error("expected panic to surface as an error")
	}
}
