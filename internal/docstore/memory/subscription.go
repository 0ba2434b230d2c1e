package memory

import (
	"context"
	"errors"

	"family-organizer/internal/docstore"
)

var errClosed = errors.New("memory store closed")

type subscription struct {
	path       string
	collection string
	docFn      docstore.DocListener
	colFn      docstore.CollectionListener
	feed       *docstore.Feed
}

func (s *Store) SubscribeDoc(ctx context.Context, path string, fn docstore.DocListener) (docstore.CancelFunc, error) {
	return s.register(ctx, &subscription{path: path, docFn: fn})
}

func (s *Store) SubscribeCollection(ctx context.Context, collection string, fn docstore.CollectionListener) (docstore.CancelFunc, error) {
	return s.register(ctx, &subscription{collection: collection, colFn: fn})
}

func (s *Store) register(ctx context.Context, sub *subscription) (docstore.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	sub.feed = docstore.NewFeed(ctx, func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	})
	s.subs[sub] = struct{}{}
	s.snapshot(sub)
	return sub.feed.Cancel, nil
}

// notify must be called with s.mu held.
func (s *Store) notify(path string) {
	parent, _ := docstore.Split(path)
	for sub := range s.subs {
		if (sub.docFn != nil && sub.path == path) || (sub.colFn != nil && sub.collection == parent) {
			s.snapshot(sub)
		}
	}
}

// snapshot captures the current state for sub and queues it; must be called
// with s.mu held.
func (s *Store) snapshot(sub *subscription) {
	if sub.docFn != nil {
		var doc *docstore.Document
		if e, ok := s.docs[sub.path]; ok {
			doc = s.document(sub.path, e)
		}
		fn := sub.docFn
		sub.feed.Push(func() { fn(doc) })
		return
	}
	docs := s.collection(sub.collection)
	fn := sub.colFn
	sub.feed.Push(func() { fn(docs) })
}
