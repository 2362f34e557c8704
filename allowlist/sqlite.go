package allowlist

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hupe1980/vecfuse/filter"

	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS asset_metadata (
	asset_id TEXT NOT NULL,
	key      TEXT NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY (asset_id, key, value)
);
CREATE INDEX IF NOT EXISTS idx_asset_metadata_key_value ON asset_metadata(key, value);
`

var _ filter.AllowlistLookup = (*SQLite)(nil)

// SQLite looks metadata up in an asset_metadata table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the database at dsn.
// Use ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	if dsn != ":memory:" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// NewSQLite wraps an existing database that already has the asset_metadata table.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Set records that assetID has key=value.
func (s *SQLite) Set(ctx context.Context, assetID, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO asset_metadata(asset_id, key, value) VALUES (?, ?, ?)`,
		assetID, key, value)
	if err != nil {
		return fmt.Errorf("inserting metadata: %w", err)
	}
	return nil
}

// AssetsFor returns the sorted ids of assets with key equal to any of values.
func (s *SQLite) AssetsFor(ctx context.Context, key string, values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(values)+1)
	args = append(args, key)
	for _, v := range values {
		args = append(args, v)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
	query := `SELECT DISTINCT asset_id FROM asset_metadata WHERE key = ? AND value IN (` + placeholders + `) ORDER BY asset_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning metadata: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
