package remote

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Supported database/sql drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	auth_user_id TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS folders (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	folder_id  TEXT,
	title      TEXT NOT NULL DEFAULT '',
	paragraphs TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_user_updated ON notes(user_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_folders_user ON folders(user_id);
`

// SQLStore implements Store on database/sql for SQLite and Postgres.
type SQLStore struct {
	conn   *sql.DB
	driver string
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database and applies the schema.
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("remote: unsupported driver %q", driver)
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("remote: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("remote: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("remote: apply schema: %w", err)
	}
	return &SQLStore{conn: conn, driver: driver}, nil
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.conn.Close()
}

// rebind rewrites ? placeholders as $1..$n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
