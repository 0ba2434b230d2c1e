// Package directory exposes the shared family records.
package directory

import (
	"context"
	"errors"
	"fmt"

	"family-organizer/internal/docstore"
	"family-organizer/internal/models"
)

var ErrFamilyNotFound = errors.New("family not found")

// Directory reads family records. The member-list append performed on join
// is the only write and lives in the membership package.
type Directory struct {
	store docstore.Store
	paths docstore.Paths
}

func New(store docstore.Store, paths docstore.Paths) *Directory {
	return &Directory{store: store, paths: paths}
}

// GetFamily returns the family whose invite code is id.
func (d *Directory) GetFamily(ctx context.Context, id string) (*models.Family, error) {
	if id == "" {
		return nil, ErrFamilyNotFound
	}
	doc, err := d.store.Get(ctx, d.paths.Family(id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrFamilyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family %s: %w", id, err)
	}
	return models.FamilyFromDocument(doc), nil
}

// SubscribeFamily pushes the family record on every change. fn receives nil
// while the document does not exist.
func (d *Directory) SubscribeFamily(ctx context.Context, id string, fn func(*models.Family)) (docstore.CancelFunc, error) {
	cancel, err := d.store.SubscribeDoc(ctx, d.paths.Family(id), func(doc *docstore.Document) {
		fn(models.FamilyFromDocument(doc))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to family %s: %w", id, err)
	}
	return cancel, nil
}
