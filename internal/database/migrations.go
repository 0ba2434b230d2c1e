package database

import (
	"context"
	"fmt"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying changed document paths.
const NotifyChannel = "documents_changed"

func Migrate(ctx context.Context, db *DB) error {
	var exists bool
	err := db.QueryRow(ctx,
		"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'documents')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if tables exist: %w", err)
	}

	if !exists {
		_, err = db.Exec(ctx, `
			CREATE SEQUENCE IF NOT EXISTS document_versions;

			CREATE TABLE documents (
				path       TEXT PRIMARY KEY,
				collection TEXT NOT NULL,
				id         TEXT NOT NULL,
				data       JSONB NOT NULL DEFAULT '{}'::jsonb,
				version    BIGINT NOT NULL DEFAULT nextval('document_versions'),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX idx_documents_collection ON documents(collection);
		`)
		if err != nil {
			return fmt.Errorf("failed to create documents table: %w", err)
		}
	}

	// Every write announces the changed path so subscribers on any instance
	// can refresh.
	_, err = db.Exec(ctx, `
		CREATE OR REPLACE FUNCTION notify_document_change() RETURNS trigger AS $$
		BEGIN
			IF TG_OP = 'DELETE' THEN
				PERFORM pg_notify('`+NotifyChannel+`', OLD.path);
				RETURN OLD;
			END IF;
			PERFORM pg_notify('`+NotifyChannel+`', NEW.path);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS documents_notify ON documents;
		CREATE TRIGGER documents_notify
			AFTER INSERT OR UPDATE OR DELETE ON documents
			FOR EACH ROW EXECUTE FUNCTION notify_document_change();
	`)
	if err != nil {
		return fmt.Errorf("failed to install change trigger: %w", err)
	}

	return nil
}
