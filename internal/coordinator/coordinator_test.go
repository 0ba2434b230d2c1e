package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"family-organizer/internal/directory"
	"family-organizer/internal/docstore"
	"family-organizer/internal/docstore/memory"
	"family-organizer/internal/items"
	"family-organizer/internal/membership"
	"family-organizer/internal/metrics"
	"family-organizer/internal/models"
)

var testPaths = docstore.NewPaths("test-deployment")

type fixture struct {
	store   *memory.Store
	members *membership.Resolver
	items   *items.Store
	coord   *Coordinator

	mu    sync.Mutex
	views []View
}

func newFixture(t *testing.T, codes ...string) *fixture {
	t.Helper()
	store := memory.New()
	dir := directory.New(store, testPaths)

	next := 0
	opts := membership.Options{}
	if len(codes) > 0 {
		opts.NewCode = func() (string, error) {
			code := codes[next%len(codes)]
			next++
			return code, nil
		}
	}

	f := &fixture{
		store:   store,
		members: membership.NewResolver(store, testPaths, dir, opts),
		items:   items.NewStore(store, testPaths, nil),
	}
	f.coord = New(context.Background(), f.members, dir, f.items, metrics.New(), f.record)
	t.Cleanup(func() {
		f.coord.Close()
		_ = store.Close()
	})
	return f
}

func (f *fixture) record(v View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = append(f.views, v)
}

func (f *fixture) waitView(t *testing.T, what string, cond func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v := f.coord.View(); cond(v) {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; last view %+v", what, f.coord.View())
	return View{}
}

func inState(s State) func(View) bool {
	return func(v View) bool { return v.State == s }
}

func TestCoordinator_StartsUnauthenticated(t *testing.T) {
	f := newFixture(t)
	if got := f.coord.State(); got != StateUnauthenticated {
		t.Errorf("State() = %s, want %s", got, StateUnauthenticated)
	}
}

func TestCoordinator_UserWithoutFamily(t *testing.T) {
	f := newFixture(t)
	f.coord.SetUser("alice")

	v := f.waitView(t, "no family", inState(StateNoFamily))
	if v.UserID != "alice" || v.Family != nil || len(v.Items) != 0 {
		t.Errorf("view = %+v", v)
	}
}

func TestCoordinator_CreateFamilyReachesReady(t *testing.T) {
	f := newFixture(t, "HOME01")
	ctx := context.Background()

	f.coord.SetUser("alice")
	f.waitView(t, "no family", inState(StateNoFamily))

	if _, err := f.members.CreateFamily(ctx, "alice", "Home"); err != nil {
		t.Fatalf("CreateFamily() failed: %v", err)
	}
	v := f.waitView(t, "ready", inState(StateReady))
	if v.Family == nil || v.Family.ID != "HOME01" || v.Family.Name != "Home" {
		t.Errorf("Family = %+v", v.Family)
	}

	_, _ = f.items.AddItem(ctx, "HOME01", "alice", models.ItemDraft{Type: models.ItemShopping, Title: "Milk"})
	_, _ = f.items.AddItem(ctx, "ELSE01", "mallory", models.ItemDraft{Type: models.ItemShopping, Title: "Not ours"})

	v = f.waitView(t, "item in view", func(v View) bool {
		return v.State == StateReady && len(v.Items) == 1
	})
	if v.Items[0].Title != "Milk" {
		t.Errorf("Items = %+v", v.Items)
	}
	// The foreign item must never show up.
	time.Sleep(20 * time.Millisecond)
	for _, item := range f.coord.View().Items {
		if item.FamilyID != "HOME01" {
			t.Errorf("foreign item %+v in view", item)
		}
	}
}

func TestCoordinator_LeaveAndSwitchFamily(t *testing.T) {
	f := newFixture(t, "FIRST1", "SECND2")
	ctx := context.Background()

	_, _ = f.members.CreateFamily(ctx, "owner", "First")
	_, _ = f.members.CreateFamily(ctx, "owner2", "Second")
	_, _ = f.items.AddItem(ctx, "FIRST1", "owner", models.ItemDraft{Type: models.ItemRoutine, Title: "first chore"})
	_, _ = f.items.AddItem(ctx, "SECND2", "owner2", models.ItemDraft{Type: models.ItemRoutine, Title: "second chore"})

	if _, err := f.members.JoinFamily(ctx, "alice", "FIRST1"); err != nil {
		t.Fatalf("JoinFamily(FIRST1) failed: %v", err)
	}
	f.coord.SetUser("alice")
	f.waitView(t, "first family", func(v View) bool {
		return v.State == StateReady && v.Family != nil && v.Family.ID == "FIRST1" && len(v.Items) == 1
	})

	if _, err := f.members.JoinFamily(ctx, "alice", "SECND2"); err != nil {
		t.Fatalf("JoinFamily(SECND2) failed: %v", err)
	}
	v := f.waitView(t, "second family", func(v View) bool {
		return v.State == StateReady && v.Family != nil && v.Family.ID == "SECND2" && len(v.Items) == 1
	})
	if v.Items[0].Title != "second chore" {
		t.Errorf("Items = %+v, want only the second family's", v.Items)
	}

	if err := f.members.LeaveFamily(ctx, "alice"); err != nil {
		t.Fatalf("LeaveFamily() failed: %v", err)
	}
	v = f.waitView(t, "no family after leave", inState(StateNoFamily))
	if v.Family != nil || len(v.Items) != 0 {
		t.Errorf("view after leave = %+v", v)
	}
}

func TestCoordinator_ProfilePointsAtMissingFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.store.Set(ctx, testPaths.Profile("alice"), models.ProfileFields("GONE99"))
	f.coord.SetUser("alice")

	v := f.waitView(t, "no family", inState(StateNoFamily))
	if v.Family != nil {
		t.Errorf("Family = %+v, want nil", v.Family)
	}
}

func TestCoordinator_SignOut(t *testing.T) {
	f := newFixture(t, "HOME01")
	ctx := context.Background()
	_, _ = f.members.CreateFamily(ctx, "alice", "Home")

	f.coord.SetUser("alice")
	f.waitView(t, "ready", inState(StateReady))

	f.coord.SignOut()
	v := f.coord.View()
	if v.State != StateUnauthenticated || v.UserID != "" || v.Family != nil || len(v.Items) != 0 {
		t.Fatalf("view after sign out = %+v", v)
	}

	// Writes after sign-out must not revive the view.
	_, _ = f.items.AddItem(ctx, "HOME01", "alice", models.ItemDraft{Type: models.ItemShopping, Title: "late"})
	time.Sleep(50 * time.Millisecond)
	if v := f.coord.View(); v.State != StateUnauthenticated || len(v.Items) != 0 {
		t.Errorf("view changed after sign out: %+v", v)
	}
}

func TestCoordinator_SwitchUser(t *testing.T) {
	f := newFixture(t, "ALICE1", "BOBBY2")
	ctx := context.Background()
	_, _ = f.members.CreateFamily(ctx, "alice", "Alice's")
	_, _ = f.members.CreateFamily(ctx, "bob", "Bob's")

	f.coord.SetUser("alice")
	f.waitView(t, "alice ready", func(v View) bool {
		return v.State == StateReady && v.Family != nil && v.Family.ID == "ALICE1"
	})

	f.coord.SetUser("bob")
	v := f.waitView(t, "bob ready", func(v View) bool {
		return v.State == StateReady && v.Family != nil && v.Family.ID == "BOBBY2"
	})
	if v.UserID != "bob" {
		t.Errorf("UserID = %q, want bob", v.UserID)
	}
}

func TestCoordinator_ViewsAreDeliveredInOrder(t *testing.T) {
	f := newFixture(t, "HOME01")
	ctx := context.Background()
	_, _ = f.members.CreateFamily(ctx, "alice", "Home")

	f.coord.SetUser("alice")
	f.waitView(t, "ready", inState(StateReady))
	for i := 0; i < 10; i++ {
		_, _ = f.items.AddItem(ctx, "HOME01", "alice", models.ItemDraft{Type: models.ItemShopping, Title: "x"})
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		last := f.views[len(f.views)-1]
		f.mu.Unlock()
		if last.State == StateReady && len(last.Items) == 10 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("last delivered view = %s with %d items", last.State, len(last.Items))
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// Item counts only grow while nothing is deleted.
	maxSeen := 0
	for _, v := range f.views {
		if v.State != StateReady {
			continue
		}
		if len(v.Items) < maxSeen {
			t.Fatalf("observer saw %d items after %d", len(v.Items), maxSeen)
		}
		maxSeen = len(v.Items)
	}
}

func TestCoordinator_CloseStopsViews(t *testing.T) {
	f := newFixture(t, "HOME01")
	ctx := context.Background()
	_, _ = f.members.CreateFamily(ctx, "alice", "Home")

	f.coord.SetUser("alice")
	f.waitView(t, "ready", inState(StateReady))
	f.coord.Close()

	f.mu.Lock()
	n := len(f.views)
	f.mu.Unlock()

	_, _ = f.items.AddItem(ctx, "HOME01", "alice", models.ItemDraft{Type: models.ItemShopping, Title: "after close"})
	time.Sleep(50 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.views) != n {
		t.Errorf("%d views delivered after Close", len(f.views)-n)
	}
}

func TestCoordinator_CloseDropsViewInFlight(t *testing.T) {
	f := newFixture(t)
	f.coord.SetUser("alice")
	f.waitView(t, "no family", inState(StateNoFamily))

	// A callback that built its view before Close but emits after it.
	f.coord.mu.Lock()
	view, seq := f.coord.viewLocked()
	f.coord.mu.Unlock()

	f.coord.Close()
	f.mu.Lock()
	n := len(f.views)
	f.mu.Unlock()

	f.coord.emit(view, seq)

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.views) != n {
		t.Errorf("view with seq %d delivered after Close", seq)
	}
}
