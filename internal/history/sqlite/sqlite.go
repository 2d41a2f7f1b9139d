// Package sqlite opens the SQLite history store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/vpnr/internal/history"
)

// New opens (creating if needed) a SQLite history table. Accepted DSNs:
// "sqlite:///path/to/file.db", "sqlite://:memory:", a bare path or ":memory:".
func New(dsn string) (*history.SQLSink, error) {
	path := strings.TrimSpace(dsn)
	if len(path) >= len("sqlite://") && strings.EqualFold(path[:len("sqlite://")], "sqlite://") {
		path = path[len("sqlite://"):]
	}
	if path == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	db, err := sql.Open(history.SQLiteDialect.Driver, path)
	if err != nil {
		return nil, err
	}
	// one connection: :memory: databases are per connection, and writers serialize anyway
	db.SetMaxOpenConns(1)

	sink, err := history.NewSQLSink(context.Background(), db, history.SQLiteDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}
