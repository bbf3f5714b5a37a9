package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const schema = `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		item_id TEXT,
		item_type VARCHAR(50) NOT NULL,
		event VARCHAR(20) NOT NULL,
		actor_id TEXT,
		actor_type VARCHAR(10) NOT NULL,
		object_changes JSONB,
		ip VARCHAR(64),
		user_agent TEXT,
		request_id VARCHAR(100),
		source VARCHAR(50),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_item ON audit_logs(item_type, item_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at DESC);
	`

// EnsureSchema creates the audit_logs table and its indexes if missing. The
// layout is identical in the shared database and in every tenant database.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}
	return nil
}

// SQLStore appends entries to the audit_logs table of one database
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store writing to db
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLStore{db: db}, nil
}

// Append inserts entry and sets its ID. Entries are never updated.
func (s *SQLStore) Append(ctx context.Context, entry *LogEntry) error {
	var changes interface{}
	if entry.ObjectChanges != nil {
		data, err := json.Marshal(entry.ObjectChanges)
		if err != nil {
			return fmt.Errorf("failed to marshal object changes: %w", err)
		}
		changes = string(data)
	}

	query := `
		INSERT INTO audit_logs (
			item_id, item_type, event,
			actor_id, actor_type, object_changes,
			ip, user_agent, request_id, source,
			created_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9, $10,
			$11
		) RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		entry.ItemID, string(entry.ItemType), string(entry.Event),
		entry.ActorID, string(entry.ActorType), changes,
		entry.IP, entry.UserAgent, entry.RequestID, entry.Source,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// DBSource hands out database handles per partition
type DBSource interface {
	Shared(ctx context.Context) (*sql.DB, error)
	Tenant(ctx context.Context, key string) (*sql.DB, error)
}

// SQLResolver adapts a DBSource to HandleResolver
type SQLResolver struct {
	source DBSource
}

// NewSQLResolver creates a resolver over source
func NewSQLResolver(source DBSource) *SQLResolver {
	return &SQLResolver{source: source}
}

// Handle returns a SQLStore for the database of p
func (r *SQLResolver) Handle(ctx context.Context, p Partition) (Store, error) {
	var (
		db  *sql.DB
		err error
	)
	if p.Shared {
		db, err = r.source.Shared(ctx)
	} else {
		db, err = r.source.Tenant(ctx, p.Tenant)
	}
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db)
}
