package seen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/news"
	"github.com/RobinCoderZhao/newsdigest/pkg/storage"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS seen_items (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    item_key TEXT NOT NULL UNIQUE,
    seen_at  TEXT NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS seen_items (
    id       BIGSERIAL PRIMARY KEY,
    item_key TEXT NOT NULL UNIQUE,
    seen_at  TEXT NOT NULL
);
`

// SQLStore keeps the seen set in a seen_items table.
type SQLStore struct {
	db  *storage.DB
	now func() time.Time
}

// NewSQLStore creates the schema if needed and returns the store.
func NewSQLStore(ctx context.Context, db *storage.DB) (*SQLStore, error) {
	schema := sqliteSchema
	if db.DriverType() == storage.Postgres {
		schema = postgresSchema
	}
	if err := db.Migrate(ctx, schema); err != nil {
		return nil, fmt.Errorf("create seen schema: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

func (s *SQLStore) Has(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT 1 FROM seen_items WHERE item_key = ? LIMIT 1`), key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &Error{Op: OpHas, Key: key, Err: err}
	}
	return true, nil
}

func (s *SQLStore) Record(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO seen_items (item_key, seen_at) VALUES (?, ?) ON CONFLICT (item_key) DO NOTHING`),
		key, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &Error{Op: OpRecord, Key: key, Err: err}
	}
	return nil
}

// Count returns the number of recorded keys.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_items`).Scan(&n); err != nil {
		return 0, &Error{Op: OpList, Err: err}
	}
	return n, nil
}

// Recent returns the most recently recorded keys, newest first.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]news.SeenRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT item_key, seen_at FROM seen_items ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, &Error{Op: OpList, Err: err}
	}
	defer rows.Close()

	var out []news.SeenRecord
	for rows.Next() {
		var rec news.SeenRecord
		var seenAt string
		if err := rows.Scan(&rec.Key, &seenAt); err != nil {
			return nil, &Error{Op: OpList, Err: err}
		}
		rec.SeenAt, _ = time.Parse(time.RFC3339Nano, seenAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: OpList, Err: err}
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
