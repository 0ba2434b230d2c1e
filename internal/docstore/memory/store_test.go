package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"family-organizer/internal/docstore"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id%03d", n)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStore_GetMissing(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "c/missing")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_SetResolvesServerTimestamp(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithClock(fixedClock(now)))
	ctx := context.Background()

	if err := s.Set(ctx, "c/a", docstore.Fields{"name": "x", "createdAt": docstore.ServerTimestamp}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	doc, err := s.Get(ctx, "c/a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if doc.ID != "a" || doc.Path != "c/a" {
		t.Errorf("Get() id/path = %q/%q, want a/c/a", doc.ID, doc.Path)
	}
	if got, _ := doc.Fields["createdAt"].(time.Time); !got.Equal(now) {
		t.Errorf("createdAt = %v, want %v", doc.Fields["createdAt"], now)
	}
}

func TestStore_UpdateMerges(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Update(ctx, "c/a", docstore.Fields{"k": 1}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("Update() on missing doc error = %v, want ErrNotFound", err)
	}

	_ = s.Set(ctx, "c/a", docstore.Fields{"keep": "yes", "k": 1})
	before, _ := s.Get(ctx, "c/a")
	if err := s.Update(ctx, "c/a", docstore.Fields{"k": 2}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	doc, _ := s.Get(ctx, "c/a")
	if doc.Fields["keep"] != "yes" || doc.Fields["k"] != 2 {
		t.Errorf("Update() fields = %v", doc.Fields)
	}
	if doc.Version <= before.Version {
		t.Errorf("version did not advance: %d -> %d", before.Version, doc.Version)
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Set(ctx, "c/a", docstore.Fields{})

	for i := 0; i < 2; i++ {
		if err := s.Delete(ctx, "c/a"); err != nil {
			t.Fatalf("Delete() #%d failed: %v", i+1, err)
		}
	}
	if _, err := s.Get(ctx, "c/a"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestStore_AddAndList(t *testing.T) {
	s := New(WithIDGenerator(sequentialIDs()))
	ctx := context.Background()

	id1, err := s.Add(ctx, "c", docstore.Fields{"n": 1})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	id2, _ := s.Add(ctx, "c", docstore.Fields{"n": 2})
	_ = s.Set(ctx, "other/x", docstore.Fields{})
	_ = s.Set(ctx, "c/id001/sub/y", docstore.Fields{})

	docs, err := s.List(ctx, "c")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("List() returned %d docs, want 2", len(docs))
	}
	if docs[0].ID != id1 || docs[1].ID != id2 {
		t.Errorf("List() ids = %s,%s, want %s,%s", docs[0].ID, docs[1].ID, id1, id2)
	}
}

func TestStore_CommitIsAllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Set(ctx, "c/a", docstore.Fields{})
	_ = s.Set(ctx, "c/b", docstore.Fields{"done": false})

	err := s.Commit(ctx, []docstore.Op{
		docstore.Delete("c/a"),
		docstore.Update("c/missing", docstore.Fields{"x": 1}),
	})
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("Commit() error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "c/a"); err != nil {
		t.Errorf("c/a was deleted by a failed batch: %v", err)
	}

	err = s.Commit(ctx, []docstore.Op{
		docstore.Delete("c/a"),
		docstore.Update("c/b", docstore.Fields{"done": true}),
	})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if _, err := s.Get(ctx, "c/a"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("c/a still present after batch")
	}
	b, _ := s.Get(ctx, "c/b")
	if b.Fields["done"] != true {
		t.Errorf("c/b done = %v, want true", b.Fields["done"])
	}
}

func TestStore_AppendUnique(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.AppendUnique(ctx, "f/x", "members", "a"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("AppendUnique() on missing doc error = %v, want ErrNotFound", err)
	}

	_ = s.Set(ctx, "f/x", docstore.Fields{"members": []string{"a"}})
	for _, v := range []string{"b", "a", "b", "c"} {
		if err := s.AppendUnique(ctx, "f/x", "members", v); err != nil {
			t.Fatalf("AppendUnique(%s) failed: %v", v, err)
		}
	}

	doc, _ := s.Get(ctx, "f/x")
	got, _ := doc.Fields["members"].([]interface{})
	want := []interface{}{"a", "b", "c"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("members = %v, want %v", got, want)
	}
}

func TestStore_AppendUniqueConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Set(ctx, "f/x", docstore.Fields{"members": []interface{}{}})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.AppendUnique(ctx, "f/x", "members", fmt.Sprintf("u%d", i))
		}(i)
	}
	wg.Wait()

	doc, _ := s.Get(ctx, "f/x")
	if got := len(doc.Fields["members"].([]interface{})); got != 20 {
		t.Errorf("members length = %d, want 20", got)
	}
}

func TestStore_UpdateIfVersion(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.UpdateIfVersion(ctx, "c/a", 1, docstore.Fields{}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("UpdateIfVersion() on missing doc error = %v, want ErrNotFound", err)
	}

	_ = s.Set(ctx, "c/a", docstore.Fields{"n": 0})
	doc, _ := s.Get(ctx, "c/a")

	if err := s.UpdateIfVersion(ctx, "c/a", doc.Version, docstore.Fields{"n": 1}); err != nil {
		t.Fatalf("UpdateIfVersion() with current version failed: %v", err)
	}
	if err := s.UpdateIfVersion(ctx, "c/a", doc.Version, docstore.Fields{"n": 2}); !errors.Is(err, docstore.ErrVersionConflict) {
		t.Fatalf("UpdateIfVersion() with stale version error = %v, want ErrVersionConflict", err)
	}
	doc, _ = s.Get(ctx, "c/a")
	if doc.Fields["n"] != 1 {
		t.Errorf("n = %v, want 1", doc.Fields["n"])
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Set(ctx, "c/a", docstore.Fields{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Set() error = %v, want context.Canceled", err)
	}
	if _, err := s.SubscribeDoc(ctx, "c/a", func(*docstore.Document) {}); !errors.Is(err, context.Canceled) {
		t.Errorf("SubscribeDoc() error = %v, want context.Canceled", err)
	}
}

type docRecorder struct {
	mu   sync.Mutex
	docs []*docstore.Document
}

func (r *docRecorder) record(doc *docstore.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
}

func (r *docRecorder) last() (*docstore.Document, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.docs) == 0 {
		return nil, 0
	}
	return r.docs[len(r.docs)-1], len(r.docs)
}

func TestStore_SubscribeDoc(t *testing.T) {
	s := New()
	ctx := context.Background()
	rec := &docRecorder{}

	cancel, err := s.SubscribeDoc(ctx, "c/a", rec.record)
	if err != nil {
		t.Fatalf("SubscribeDoc() failed: %v", err)
	}
	defer cancel()

	waitFor(t, "initial snapshot", func() bool {
		doc, n := rec.last()
		return n == 1 && doc == nil
	})

	_ = s.Set(ctx, "c/a", docstore.Fields{"v": 1})
	waitFor(t, "document snapshot", func() bool {
		doc, _ := rec.last()
		return doc != nil && doc.Fields["v"] == 1
	})

	_ = s.Delete(ctx, "c/a")
	waitFor(t, "deletion snapshot", func() bool {
		doc, n := rec.last()
		return n > 2 && doc == nil
	})
}

func TestStore_NoDeliveryAfterCancel(t *testing.T) {
	s := New()
	ctx := context.Background()
	rec := &docRecorder{}

	cancel, _ := s.SubscribeDoc(ctx, "c/a", rec.record)
	waitFor(t, "initial snapshot", func() bool { _, n := rec.last(); return n == 1 })

	cancel()
	cancel()
	_ = s.Set(ctx, "c/a", docstore.Fields{"v": "after"})
	time.Sleep(50 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, doc := range rec.docs {
		if doc != nil && doc.Fields["v"] == "after" {
			t.Fatal("listener received a snapshot after cancel")
		}
	}
}

func TestStore_SubscribeCollection(t *testing.T) {
	s := New(WithIDGenerator(sequentialIDs()))
	ctx := context.Background()

	var (
		mu   sync.Mutex
		last []docstore.Document
	)
	cancel, err := s.SubscribeCollection(ctx, "items", func(docs []docstore.Document) {
		mu.Lock()
		last = docs
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("SubscribeCollection() failed: %v", err)
	}
	defer cancel()

	_, _ = s.Add(ctx, "items", docstore.Fields{"n": 1})
	_, _ = s.Add(ctx, "items", docstore.Fields{"n": 2})
	_ = s.Set(ctx, "elsewhere/z", docstore.Fields{})

	waitFor(t, "two items", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 2
	})
}

func TestStore_ListenerMayCallStore(t *testing.T) {
	s := New()
	ctx := context.Background()
	got := make(chan error, 10)

	cancel, _ := s.SubscribeDoc(ctx, "c/a", func(doc *docstore.Document) {
		if doc == nil {
			return
		}
		_, err := s.Get(ctx, "c/a")
		got <- err
	})
	defer cancel()

	_ = s.Set(ctx, "c/a", docstore.Fields{})
	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("Get() from listener failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener never ran")
	}
}

func TestStore_CloseStopsSubscriptions(t *testing.T) {
	s := New()
	ctx := context.Background()
	rec := &docRecorder{}

	_, _ = s.SubscribeDoc(ctx, "c/a", rec.record)
	waitFor(t, "initial snapshot", func() bool { _, n := rec.last(); return n == 1 })

	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, err := s.SubscribeDoc(ctx, "c/a", rec.record); err == nil {
		t.Error("SubscribeDoc() after Close() succeeded")
	}
}
