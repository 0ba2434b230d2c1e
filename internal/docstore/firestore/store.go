// Package firestore backs the document store with Cloud Firestore. Paths are
// used verbatim as Firestore document and collection paths.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"family-organizer/internal/docstore"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ docstore.Store = (*Store)(nil)

type Store struct {
	client *firestore.Client
}

func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) doc(path string) (*firestore.DocumentRef, error) {
	ref := s.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("invalid document path %q", path)
	}
	return ref, nil
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	ref, err := s.doc(path)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return toDocument(snap), nil
}

func (s *Store) Set(ctx context.Context, path string, fields docstore.Fields) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, toData(fields)); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields docstore.Fields) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, toUpdates(fields))
	if status.Code(err) == codes.NotFound {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, toData(fields))
	if err != nil {
		return "", fmt.Errorf("failed to add to %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	snaps, err := s.client.Collection(collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	docs := make([]docstore.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, *toDocument(snap))
	}
	return docs, nil
}

// Commit runs the ops inside a transaction so they apply together.
func (s *Store) Commit(ctx context.Context, ops []docstore.Op) error {
	refs := make([]*firestore.DocumentRef, len(ops))
	for i, op := range ops {
		ref, err := s.doc(op.Path)
		if err != nil {
			return err
		}
		refs[i] = ref
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for i, op := range ops {
			switch op.Kind {
			case docstore.OpDelete:
				if err := tx.Delete(refs[i]); err != nil {
					return err
				}
			case docstore.OpUpdate:
				if err := tx.Update(refs[i], toUpdates(op.Fields)); err != nil {
					return err
				}
			default:
				return fmt.Errorf("batch op %d: unsupported kind", op.Kind)
			}
		}
		return nil
	})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("failed to commit batch: %w", docstore.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *Store) AppendUnique(ctx context.Context, path, field string, value interface{}) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, []firestore.Update{{Path: field, Value: firestore.ArrayUnion(value)}})
	if status.Code(err) == codes.NotFound {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return nil
}

// UpdateIfVersion treats the version as the document's update time in
// nanoseconds and enforces it with a precondition.
func (s *Store) UpdateIfVersion(ctx context.Context, path string, version int64, fields docstore.Fields) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, toUpdates(fields), firestore.LastUpdateTime(time.Unix(0, version)))
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.NotFound:
		return docstore.ErrNotFound
	case codes.FailedPrecondition, codes.Aborted:
		return docstore.ErrVersionConflict
	default:
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
}

func (s *Store) SubscribeDoc(ctx context.Context, path string, fn docstore.DocListener) (docstore.CancelFunc, error) {
	ref, err := s.doc(path)
	if err != nil {
		return nil, err
	}

	sctx, stop := context.WithCancel(ctx)
	it := ref.Snapshots(sctx)
	feed := docstore.NewFeed(sctx, stop)
	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if status.Code(err) == codes.NotFound && snap != nil {
				err = nil
			}
			if err != nil {
				if !stopped(sctx, err) {
					log.Printf("Document subscription %s ended: %v", path, err)
				}
				feed.Cancel()
				return
			}
			var doc *docstore.Document
			if snap != nil && snap.Exists() {
				doc = toDocument(snap)
			}
			feed.Push(func() { fn(doc) })
		}
	}()
	return feed.Cancel, nil
}

func (s *Store) SubscribeCollection(ctx context.Context, collection string, fn docstore.CollectionListener) (docstore.CancelFunc, error) {
	sctx, stop := context.WithCancel(ctx)
	it := s.client.Collection(collection).Snapshots(sctx)
	feed := docstore.NewFeed(sctx, stop)
	go func() {
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err == nil {
				var snaps []*firestore.DocumentSnapshot
				snaps, err = qs.Documents.GetAll()
				if err == nil {
					docs := make([]docstore.Document, 0, len(snaps))
					for _, snap := range snaps {
						docs = append(docs, *toDocument(snap))
					}
					feed.Push(func() { fn(docs) })
					continue
				}
			}
			if !stopped(sctx, err) {
				log.Printf("Collection subscription %s ended: %v", collection, err)
			}
			feed.Cancel()
			return
		}
	}()
	return feed.Cancel, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func stopped(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled
}

func toDocument(snap *firestore.DocumentSnapshot) *docstore.Document {
	return &docstore.Document{
		ID:      snap.Ref.ID,
		Path:    docPath(snap.Ref),
		Fields:  docstore.Fields(snap.Data()),
		Version: snap.UpdateTime.UnixNano(),
	}
}

// docPath strips the project and database prefix from a ref.
func docPath(ref *firestore.DocumentRef) string {
	p := ref.ID
	for parent := ref.Parent; parent != nil; {
		p = parent.ID + "/" + p
		if parent.Parent == nil {
			break
		}
		p = parent.Parent.ID + "/" + p
		parent = parent.Parent.Parent
	}
	return p
}

func toData(fields docstore.Fields) map[string]interface{} {
	data := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		data[k] = toValue(v)
	}
	return data
}

func toUpdates(fields docstore.Fields) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: toValue(v)})
	}
	return updates
}

func toValue(v interface{}) interface{} {
	if docstore.IsServerTimestamp(v) {
		return firestore.ServerTimestamp
	}
	return v
}
