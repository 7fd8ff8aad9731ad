package targets

import (
	"context"
	"sync"
	"testing"
	"time"

	"raise-and-raze/editor/internal/entity"
	"raise-and-raze/editor/internal/mirror"
	"raise-and-raze/editor/internal/selection"
	"raise-and-raze/editor/logging"
	loggingresolution "raise-and-raze/editor/logging/resolution"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []logging.Event
}

func (r *eventRecorder) publisher() logging.Publisher {
	return logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		r.mu.Lock()
		r.events = append(r.events, event)
		r.mu.Unlock()
	})
}

func (r *eventRecorder) ofType(eventType logging.EventType) []logging.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]logging.Event, 0, len(r.events))
	for _, event := range r.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func newTestLoop(t *testing.T, hooks Hooks) (*Loop, *selection.Cell, *mirror.Mirror, *eventRecorder) {
	t.Helper()
	cell := selection.NewCell()
	world := mirror.New()
	rec := &eventRecorder{}
	loop := NewLoop(cell, world, LoopConfig{Publisher: rec.publisher()}, hooks)
	if loop == nil {
		t.Fatalf("expected loop construction to succeed")
	}
	return loop, cell, world, rec
}

func TestResolveOncePublishesOnlyOnChange(t *testing.T) {
	var published [][]entity.UID
	loop, cell, world, _ := newTestLoop(t, Hooks{
		OnChange: func(resolved []entity.UID) {
			published = append(published, resolved)
		},
	})
	world.ApplySpawn("uid-a", "crate", [3]float64{})
	world.ApplySpawn("uid-b", "crate", [3]float64{})
	cell.Replace(selection.Selection{"uid-a", "uid-b"})

	if !loop.ResolveOnce() {
		t.Fatalf("expected the first pass to publish")
	}
	if loop.ResolveOnce() {
		t.Fatalf("expected an identical pass to stay silent")
	}
	if len(published) != 1 {
		t.Fatalf("expected one change notification, got %d", len(published))
	}
	if got := loop.Targets(); len(got) != 2 || got[0] != "uid-a" || got[1] != "uid-b" {
		t.Fatalf("expected published targets [uid-a uid-b], got %v", got)
	}
}

func TestResolveOnceFollowsSelectionOrder(t *testing.T) {
	loop, cell, world, _ := newTestLoop(t, Hooks{})
	world.ApplySpawn("uid-a", "crate", [3]float64{})
	world.ApplySpawn("uid-b", "crate", [3]float64{})

	cell.Replace(selection.Selection{"uid-b", "uid-a"})
	loop.ResolveOnce()
	if got := loop.Targets(); len(got) != 2 || got[0] != "uid-b" || got[1] != "uid-a" {
		t.Fatalf("expected selection order [uid-b uid-a], got %v", got)
	}

	// Reordering the same membership is a change.
	cell.Replace(selection.Selection{"uid-a", "uid-b"})
	if !loop.ResolveOnce() {
		t.Fatalf("expected a reorder to publish")
	}
}

func TestDespawnRemovesTargetOnNextPass(t *testing.T) {
	loop, cell, world, _ := newTestLoop(t, Hooks{})
	world.ApplySpawn("uid-a", "crate", [3]float64{})
	world.ApplySpawn("uid-b", "crate", [3]float64{})
	cell.Replace(selection.Selection{"uid-a", "uid-b"})
	loop.ResolveOnce()

	world.ApplyDespawn("uid-b")
	if !loop.ResolveOnce() {
		t.Fatalf("expected the despawn to publish a change")
	}
	if got := loop.Targets(); len(got) != 1 || got[0] != "uid-a" {
		t.Fatalf("expected [uid-a] after despawn, got %v", got)
	}
}

func TestUnresolvedEntryLoggedOncePerDisappearance(t *testing.T) {
	loop, cell, world, rec := newTestLoop(t, Hooks{})
	world.ApplySpawn("uid-a", "crate", [3]float64{})
	cell.Replace(selection.Selection{"uid-a", "uid-ghost"})

	loop.ResolveOnce()
	loop.ResolveOnce()
	loop.ResolveOnce()
	if got := len(rec.ofType(loggingresolution.EventEntryUnresolved)); got != 1 {
		t.Fatalf("expected one unresolved diagnostic across repeat polls, got %d", got)
	}

	// The entry resolving and disappearing again is a fresh disappearance.
	world.ApplySpawn("uid-ghost", "crate", [3]float64{})
	loop.ResolveOnce()
	world.ApplyDespawn("uid-ghost")
	loop.ResolveOnce()
	if got := len(rec.ofType(loggingresolution.EventEntryUnresolved)); got != 2 {
		t.Fatalf("expected a second unresolved diagnostic, got %d", got)
	}
}

func TestTargetsChangedEventCarriesCounts(t *testing.T) {
	loop, cell, world, rec := newTestLoop(t, Hooks{})
	world.ApplySpawn("uid-a", "crate", [3]float64{})
	cell.Replace(selection.Selection{"uid-a", "uid-ghost"})
	loop.ResolveOnce()

	events := rec.ofType(loggingresolution.EventTargetsChanged)
	if len(events) != 1 {
		t.Fatalf("expected one targets_changed event, got %d", len(events))
	}
	payload, ok := events[0].Payload.(loggingresolution.ChangePayload)
	if !ok {
		t.Fatalf("expected a ChangePayload, got %T", events[0].Payload)
	}
	if payload.Selected != 2 || payload.Resolved != 1 {
		t.Fatalf("expected selected=2 resolved=1, got %+v", payload)
	}
	if len(events[0].Targets) != 1 || events[0].Targets[0] != "uid-a" {
		t.Fatalf("expected event targets [uid-a], got %v", events[0].Targets)
	}
}

func TestOnChangeRunsOutsideLocks(t *testing.T) {
	var fromHook []entity.UID
	var loop *Loop
	var world *mirror.Mirror
	var cell *selection.Cell
	loop, cell, world, _ = newTestLoop(t, Hooks{
		OnChange: func(resolved []entity.UID) {
			// Touching the loop and the mirror from the hook must not
			// deadlock; both locks are released before publishing.
			fromHook = loop.Targets()
			world.ApplySpawn("uid-extra", "crate", [3]float64{})
		},
	})
	world.ApplySpawn("uid-a", "crate", [3]float64{})
	cell.Replace(selection.Selection{"uid-a"})

	done := make(chan struct{})
	go func() {
		loop.ResolveOnce()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the pass to finish with a reentrant hook")
	}
	if len(fromHook) != 1 || fromHook[0] != "uid-a" {
		t.Fatalf("expected the hook to observe the published targets, got %v", fromHook)
	}
}

func TestRunKickResolvesImmediately(t *testing.T) {
	loop, cell, world, _ := newTestLoop(t, Hooks{})
	loop.config.Interval = time.Hour

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go loop.Run(stop)

	world.ApplySpawn("uid-a", "crate", [3]float64{})
	cell.Replace(selection.Selection{"uid-a"})
	loop.Kick()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := loop.Targets(); len(got) == 1 && got[0] == "uid-a" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected the kick to publish without waiting for the ticker, got %v", loop.Targets())
}

func TestNilLoopIsInert(t *testing.T) {
	if NewLoop(nil, nil, LoopConfig{}, Hooks{}) != nil {
		t.Fatalf("expected construction without dependencies to fail")
	}
	var loop *Loop
	loop.Kick()
	if loop.ResolveOnce() {
		t.Fatalf("expected a nil loop to report no change")
	}
	if loop.Targets() != nil {
		t.Fatalf("expected a nil loop to report no targets")
	}
	loop.Run(nil)
}
