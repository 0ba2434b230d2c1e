// Package memory provides an in-process document store used for tests,
// local development and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"family-organizer/internal/docstore"

	"github.com/google/uuid"
)

var _ docstore.Store = (*Store)(nil)

type entry struct {
	fields  docstore.Fields
	version int64
}

// Store keeps documents in a map guarded by a single mutex. Listeners are
// fed from their own goroutine so a callback may call back into the store.
type Store struct {
	mu     sync.Mutex
	docs   map[string]*entry
	seq    int64
	now    func() time.Time
	newID  func() string
	subs   map[*subscription]struct{}
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used to resolve server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the generator used by Add.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func New(opts ...Option) *Store {
	s := &Store{
		docs:  make(map[string]*entry),
		now:   time.Now,
		newID: uuid.NewString,
		subs:  make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[path]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return s.document(path, e), nil
}

func (s *Store) Set(ctx context.Context, path string, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(path, docstore.Resolve(fields, s.now()))
	s.notify(path)
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.merge(path, fields); err != nil {
		return err
	}
	s.notify(path)
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.notify(path)
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	path := collection + "/" + id
	s.put(path, docstore.Resolve(fields, s.now()))
	s.notify(path)
	return id, nil
}

func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.collection(collection), nil
}

// Commit validates every op before applying any of them.
func (s *Store) Commit(ctx context.Context, ops []docstore.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		switch op.Kind {
		case docstore.OpDelete:
		case docstore.OpUpdate:
			if _, ok := s.docs[op.Path]; !ok {
				return fmt.Errorf("batch update %s: %w", op.Path, docstore.ErrNotFound)
			}
		default:
			return fmt.Errorf("batch op %d: unsupported kind", op.Kind)
		}
	}

	for _, op := range ops {
		switch op.Kind {
		case docstore.OpDelete:
			delete(s.docs, op.Path)
		case docstore.OpUpdate:
			_ = s.merge(op.Path, op.Fields)
		}
	}
	for _, op := range ops {
		s.notify(op.Path)
	}
	return nil
}

func (s *Store) AppendUnique(ctx context.Context, path, field string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[path]
	if !ok {
		return docstore.ErrNotFound
	}
	current, _ := e.fields[field].([]interface{})
	for _, v := range current {
		if reflect.DeepEqual(v, value) {
			return nil
		}
	}
	next := make([]interface{}, len(current), len(current)+1)
	copy(next, current)
	next = append(next, value)

	fields := cloneFields(e.fields)
	fields[field] = next
	s.put(path, fields)
	s.notify(path)
	return nil
}

func (s *Store) UpdateIfVersion(ctx context.Context, path string, version int64, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[path]
	if !ok {
		return docstore.ErrNotFound
	}
	if e.version != version {
		return docstore.ErrVersionConflict
	}
	if err := s.merge(path, fields); err != nil {
		return err
	}
	s.notify(path)
	return nil
}

// Close cancels every live subscription.
func (s *Store) Close() error {
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.closed = true
	s.mu.Unlock()

	for _, sub := range subs {
		sub.feed.Cancel()
	}
	return nil
}

func (s *Store) put(path string, fields docstore.Fields) {
	s.seq++
	s.docs[path] = &entry{fields: cloneFields(fields), version: s.seq}
}

func (s *Store) merge(path string, fields docstore.Fields) error {
	e, ok := s.docs[path]
	if !ok {
		return docstore.ErrNotFound
	}
	merged := cloneFields(e.fields)
	for k, v := range docstore.Resolve(fields, s.now()) {
		merged[k] = v
	}
	s.put(path, merged)
	return nil
}

func (s *Store) document(path string, e *entry) *docstore.Document {
	_, id := docstore.Split(path)
	return &docstore.Document{
		ID:      id,
		Path:    path,
		Fields:  cloneFields(e.fields),
		Version: e.version,
	}
}

// collection must be called with s.mu held.
func (s *Store) collection(name string) []docstore.Document {
	var docs []docstore.Document
	for path, e := range s.docs {
		if parent, _ := docstore.Split(path); parent == name {
			docs = append(docs, *s.document(path, e))
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs
}

func cloneFields(in docstore.Fields) docstore.Fields {
	out := make(docstore.Fields, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case []interface{}:
			out[k] = append([]interface{}(nil), t...)
		case []string:
			cp := make([]interface{}, len(t))
			for i, s := range t {
				cp[i] = s
			}
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
