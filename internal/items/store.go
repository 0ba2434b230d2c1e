// Package items manages the family item collection: routine tasks, shopping
// entries, school deadlines and events.
package items

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"family-organizer/internal/docstore"
	"family-organizer/internal/metrics"
	"family-organizer/internal/models"
)

var (
	ErrInvalidTitle = errors.New("item title is required")
	ErrInvalidType  = errors.New("invalid item type")
	ErrItemNotFound = errors.New("item not found")
	// ErrBatchFailed means the clear batch was rejected as a whole; nothing
	// was removed and the call can be retried.
	ErrBatchFailed = errors.New("clear completed batch failed")
)

type Store struct {
	store   docstore.Store
	paths   docstore.Paths
	metrics *metrics.Metrics
}

func NewStore(store docstore.Store, paths docstore.Paths, m *metrics.Metrics) *Store {
	return &Store{store: store, paths: paths, metrics: m}
}

// AddItem creates an item owned by familyID. The creation time is assigned
// by the store.
func (s *Store) AddItem(ctx context.Context, familyID, userID string, draft models.ItemDraft) (*models.Item, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Details = strings.TrimSpace(draft.Details)
	if draft.Title == "" {
		s.metrics.Operation("add_item", metrics.ResultInvalid)
		return nil, ErrInvalidTitle
	}
	if !draft.Type.Valid() {
		s.metrics.Operation("add_item", metrics.ResultInvalid)
		return nil, ErrInvalidType
	}

	id, err := s.store.Add(ctx, s.paths.Items(), models.NewItemFields(familyID, userID, draft))
	if err != nil {
		s.metrics.Operation("add_item", metrics.ResultError)
		return nil, fmt.Errorf("failed to add item: %w", err)
	}
	s.metrics.Operation("add_item", metrics.ResultOK)

	doc, err := s.store.Get(ctx, s.paths.Item(id))
	if err != nil {
		// The write went through; the echo will arrive through subscriptions.
		item := models.ItemFromDocument(docstore.Document{ID: id, Fields: models.NewItemFields(familyID, userID, draft)})
		return &item, nil
	}
	item := models.ItemFromDocument(*doc)
	return &item, nil
}

// ToggleCompleted writes !current. The caller is expected to pass an item
// already filtered into its family view.
func (s *Store) ToggleCompleted(ctx context.Context, itemID string, current bool) error {
	err := s.store.Update(ctx, s.paths.Item(itemID), docstore.Fields{models.FieldCompleted: !current})
	if errors.Is(err, docstore.ErrNotFound) {
		s.metrics.Operation("toggle_item", metrics.ResultNotFound)
		return ErrItemNotFound
	}
	if err != nil {
		s.metrics.Operation("toggle_item", metrics.ResultError)
		return fmt.Errorf("failed to toggle item: %w", err)
	}
	s.metrics.Operation("toggle_item", metrics.ResultOK)
	return nil
}

// DeleteItem removes the item. Deleting an item that is already gone is not
// an error.
func (s *Store) DeleteItem(ctx context.Context, itemID string) error {
	if err := s.store.Delete(ctx, s.paths.Item(itemID)); err != nil {
		s.metrics.Operation("delete_item", metrics.ResultError)
		return fmt.Errorf("failed to delete item: %w", err)
	}
	s.metrics.Operation("delete_item", metrics.ResultOK)
	return nil
}

// GetItem reads a single item.
func (s *Store) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	doc, err := s.store.Get(ctx, s.paths.Item(itemID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	item := models.ItemFromDocument(*doc)
	return &item, nil
}

// ListItems returns the family's items, newest first.
func (s *Store) ListItems(ctx context.Context, familyID string) ([]models.Item, error) {
	docs, err := s.store.List(ctx, s.paths.Items())
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return SortNewestFirst(ForFamily(fromDocuments(docs), familyID)), nil
}

// ClearCompleted removes every completed shopping item of the family in a
// single atomic batch and returns how many were removed.
func (s *Store) ClearCompleted(ctx context.Context, familyID string) (int, error) {
	docs, err := s.store.List(ctx, s.paths.Items())
	if err != nil {
		s.metrics.Operation("clear_completed", metrics.ResultError)
		return 0, fmt.Errorf("failed to list items: %w", err)
	}

	var ops []docstore.Op
	for _, item := range fromDocuments(docs) {
		if item.FamilyID == familyID && item.Type == models.ItemShopping && item.Completed {
			ops = append(ops, docstore.Delete(s.paths.Item(item.ID)))
		}
	}
	if len(ops) == 0 {
		s.metrics.Operation("clear_completed", metrics.ResultOK)
		return 0, nil
	}

	if err := s.store.Commit(ctx, ops); err != nil {
		s.metrics.Operation("clear_completed", metrics.ResultError)
		log.Printf("Clear completed for family %s failed: %v", familyID, err)
		return 0, fmt.Errorf("%w: %w", ErrBatchFailed, err)
	}
	s.metrics.Operation("clear_completed", metrics.ResultOK)
	return len(ops), nil
}

// SubscribeItems pushes every item of every family on each change. Callers
// narrow the set with ForFamily.
func (s *Store) SubscribeItems(ctx context.Context, fn func([]models.Item)) (docstore.CancelFunc, error) {
	cancel, err := s.store.SubscribeCollection(ctx, s.paths.Items(), func(docs []docstore.Document) {
		s.metrics.ItemSnapshot()
		fn(SortNewestFirst(fromDocuments(docs)))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to items: %w", err)
	}
	return cancel, nil
}

func fromDocuments(docs []docstore.Document) []models.Item {
	out := make([]models.Item, 0, len(docs))
	for _, doc := range docs {
		out = append(out, models.ItemFromDocument(doc))
	}
	return out
}
