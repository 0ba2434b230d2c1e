// Package postgres stores documents as JSONB rows and fans out changes with
// LISTEN/NOTIFY, so several server instances can share one database.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"family-organizer/internal/database"
	"family-organizer/internal/docstore"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var _ docstore.Store = (*Store)(nil)

type Store struct {
	db       *database.DB
	listener *listener
}

// New starts the change listener on a dedicated connection.
func New(ctx context.Context, db *database.DB) (*Store, error) {
	s := &Store{db: db}
	l, err := startListener(ctx, listenOn(db), s, minReconnectWait)
	if err != nil {
		return nil, fmt.Errorf("failed to start document listener: %w", err)
	}
	s.listener = l
	return s, nil
}

// stamped is the SQL for the encoded body at parameter data merged with the
// database clock under every key of the text[] at parameter keys.
func stamped(data, keys int) string {
	return fmt.Sprintf(
		`($%d::jsonb || COALESCE((SELECT jsonb_object_agg(k, to_jsonb(now())) FROM unnest($%d::text[]) AS k), '{}'::jsonb))`,
		data, keys)
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	var (
		raw     []byte
		version int64
	)
	err := s.db.QueryRow(ctx,
		"SELECT data, version FROM documents WHERE path = $1", path).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return decode(path, raw, version)
}

func (s *Store) Set(ctx context.Context, path string, fields docstore.Fields) error {
	data, stamps, err := encode(fields)
	if err != nil {
		return err
	}
	collection, id := docstore.Split(path)
	_, err = s.db.Exec(ctx,
		`INSERT INTO documents (path, collection, id, data)
		 VALUES ($1, $2, $3, `+stamped(4, 5)+`)
		 ON CONFLICT (path) DO UPDATE
		 SET data = EXCLUDED.data, version = nextval('document_versions'), updated_at = CURRENT_TIMESTAMP`,
		path, collection, id, data, stamps)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields docstore.Fields) error {
	data, stamps, err := encode(fields)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE documents
		 SET data = data || `+stamped(2, 3)+`, version = nextval('document_versions'), updated_at = CURRENT_TIMESTAMP
		 WHERE path = $1`,
		path, data, stamps)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM documents WHERE path = $1", path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection+"/"+id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	rows, err := s.db.Query(ctx,
		"SELECT path, data, version FROM documents WHERE collection = $1 ORDER BY path", collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			path    string
			raw     []byte
			version int64
		)
		if err := rows.Scan(&path, &raw, &version); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decode(path, raw, version)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	return docs, nil
}

// Commit runs every op in one transaction.
func (s *Store) Commit(ctx context.Context, ops []docstore.Op) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, op := range ops {
		switch op.Kind {
		case docstore.OpDelete:
			if _, err := tx.Exec(ctx, "DELETE FROM documents WHERE path = $1", op.Path); err != nil {
				return fmt.Errorf("batch delete %s: %w", op.Path, err)
			}
		case docstore.OpUpdate:
			data, stamps, err := encode(op.Fields)
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx,
				`UPDATE documents
				 SET data = data || `+stamped(2, 3)+`, version = nextval('document_versions'), updated_at = CURRENT_TIMESTAMP
				 WHERE path = $1`,
				op.Path, data, stamps)
			if err != nil {
				return fmt.Errorf("batch update %s: %w", op.Path, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("batch update %s: %w", op.Path, docstore.ErrNotFound)
			}
		default:
			return fmt.Errorf("batch op %d: unsupported kind", op.Kind)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// AppendUnique is a single UPDATE, so the row lock serializes concurrent
// appends and each one sees the others' results.
func (s *Store) AppendUnique(ctx context.Context, path, field string, value interface{}) error {
	element, err := json.Marshal([]interface{}{value})
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE documents
		 SET data = jsonb_set(data, ARRAY[$2::text], COALESCE(data->($2::text), '[]'::jsonb) || $3::jsonb),
		     version = nextval('document_versions'), updated_at = CURRENT_TIMESTAMP
		 WHERE path = $1 AND NOT (COALESCE(data->($2::text), '[]'::jsonb) @> $3::jsonb)`,
		path, field, element)
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	// Either already present or missing.
	return s.exists(ctx, path)
}

func (s *Store) UpdateIfVersion(ctx context.Context, path string, version int64, fields docstore.Fields) error {
	data, stamps, err := encode(fields)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE documents
		 SET data = data || `+stamped(3, 4)+`, version = nextval('document_versions'), updated_at = CURRENT_TIMESTAMP
		 WHERE path = $1 AND version = $2`,
		path, version, data, stamps)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if err := s.exists(ctx, path); err != nil {
		return err
	}
	return docstore.ErrVersionConflict
}

func (s *Store) SubscribeDoc(ctx context.Context, path string, fn docstore.DocListener) (docstore.CancelFunc, error) {
	return s.listener.subscribe(ctx, &subscription{path: path, docFn: fn})
}

func (s *Store) SubscribeCollection(ctx context.Context, collection string, fn docstore.CollectionListener) (docstore.CancelFunc, error) {
	return s.listener.subscribe(ctx, &subscription{collection: collection, colFn: fn})
}

// Close stops the listener. The pool belongs to the caller.
func (s *Store) Close() error {
	s.listener.close()
	return nil
}

func (s *Store) exists(ctx context.Context, path string) error {
	var found bool
	err := s.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM documents WHERE path = $1)", path).Scan(&found)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
	if !found {
		return docstore.ErrNotFound
	}
	return nil
}

// encode marshals fields without their ServerTimestamp entries and returns
// those keys separately, to be filled from the database clock.
func encode(fields docstore.Fields) ([]byte, []string, error) {
	body := make(docstore.Fields, len(fields))
	stamps := []string{}
	for k, v := range fields {
		if docstore.IsServerTimestamp(v) {
			stamps = append(stamps, k)
			continue
		}
		body[k] = v
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode document: %w", err)
	}
	sort.Strings(stamps)
	return data, stamps, nil
}

func decode(path string, raw []byte, version int64) (*docstore.Document, error) {
	fields := docstore.Fields{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	_, id := docstore.Split(path)
	return &docstore.Document{ID: id, Path: path, Fields: fields, Version: version}, nil
}
