// Package docstore defines the document-store contract the organizer core is
// written against. Backends live in the memory, postgres and firestore
// subpackages.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionConflict = errors.New("document version conflict")
)

// Fields is the body of a document.
type Fields map[string]interface{}

type serverTimestamp struct{}

// ServerTimestamp is a sentinel field value replaced by the backend with its
// own clock at write time.
var ServerTimestamp interface{} = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v interface{}) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Document is a point-in-time read of a single document.
type Document struct {
	ID      string
	Path    string
	Fields  Fields
	Version int64
}

// CancelFunc stops a subscription. It is safe to call more than once and
// never waits for an in-flight delivery. Listeners are never invoked
// synchronously from inside a Subscribe call.
type CancelFunc func()

// DocListener receives the current document, or nil when it does not exist.
type DocListener func(doc *Document)

// CollectionListener receives the full current contents of a collection.
type CollectionListener func(docs []Document)

// OpKind identifies a batched write.
type OpKind int

const (
	OpDelete OpKind = iota
	OpUpdate
)

// Op is one write inside an atomic batch.
type Op struct {
	Kind   OpKind
	Path   string
	Fields Fields
}

// Store is the contract every backend satisfies.
type Store interface {
	Get(ctx context.Context, path string) (*Document, error)
	// Set overwrites the document.
	Set(ctx context.Context, path string, fields Fields) error
	// Update merges fields into an existing document.
	Update(ctx context.Context, path string, fields Fields) error
	// Delete removes the document; deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error
	// Add creates a document with a generated id inside collection.
	Add(ctx context.Context, collection string, fields Fields) (string, error)
	// List reads every document directly inside collection.
	List(ctx context.Context, collection string) ([]Document, error)

	SubscribeDoc(ctx context.Context, path string, fn DocListener) (CancelFunc, error)
	SubscribeCollection(ctx context.Context, collection string, fn CollectionListener) (CancelFunc, error)

	// Commit applies all ops or none of them.
	Commit(ctx context.Context, ops []Op) error

	// AppendUnique atomically adds value to the array field unless present.
	AppendUnique(ctx context.Context, path, field string, value interface{}) error
	// UpdateIfVersion merges fields only if the stored version still matches.
	UpdateIfVersion(ctx context.Context, path string, version int64, fields Fields) error

	Close() error
}

// Delete returns a batch delete op.
func Delete(path string) Op { return Op{Kind: OpDelete, Path: path} }

// Update returns a batch merge op.
func Update(path string, fields Fields) Op { return Op{Kind: OpUpdate, Path: path, Fields: fields} }

// Resolve returns a copy of fields with every ServerTimestamp replaced by now.
func Resolve(fields Fields, now time.Time) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if IsServerTimestamp(v) {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}
