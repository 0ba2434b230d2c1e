package docstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFeed_DeliversInOrderAndCoalesces(t *testing.T) {
	var (
		mu  sync.Mutex
		got []int
	)
	f := NewFeed(context.Background(), nil)
	defer f.Cancel()

	for i := 1; i <= 200; i++ {
		i := i
		f.Push(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := len(got) > 0 && got[len(got)-1] == 200
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("final push was never delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("delivery %d came after %d", got[i], got[i-1])
		}
	}
}

func TestFeed_CancelRunsOnStopOnce(t *testing.T) {
	calls := 0
	f := NewFeed(context.Background(), func() { calls++ })
	f.Cancel()
	f.Cancel()

	select {
	case <-f.Done():
	default:
		t.Fatal("Done() not closed after Cancel()")
	}
	if calls != 1 {
		t.Errorf("onStop called %d times, want 1", calls)
	}
}

func TestFeed_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	f := NewFeed(ctx, func() { close(stopped) })
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop when its context ended")
	}
	delivered := false
	f.Push(func() { delivered = true })
	time.Sleep(20 * time.Millisecond)
	if delivered {
		t.Error("push delivered after the feed stopped")
	}
}

func TestPathsAndSplit(t *testing.T) {
	p := NewPaths("dep")
	tests := []struct {
		got, want string
	}{
		{p.Profile("u1"), "artifacts/dep/users/u1/profile/main"},
		{p.Family("ABC123"), "artifacts/dep/public/data/families/ABC123"},
		{p.Item("i1"), "artifacts/dep/public/data/family_items/i1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("path = %q, want %q", tt.got, tt.want)
		}
	}

	collection, id := Split(p.Item("i1"))
	if collection != p.Items() || id != "i1" {
		t.Errorf("Split() = %q, %q", collection, id)
	}
}

func TestResolve(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	in := Fields{"a": 1, "ts": ServerTimestamp}
	out := Resolve(in, now)

	if out["a"] != 1 || out["ts"] != now {
		t.Errorf("Resolve() = %v", out)
	}
	if !IsServerTimestamp(in["ts"]) {
		t.Error("Resolve() modified its input")
	}
}
