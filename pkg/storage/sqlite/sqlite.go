// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/nestlog/pkg/storage"
	"github.com/papercomputeco/nestlog/pkg/storage/sqlstore"
)

// Driver implements storage.Driver using SQLite.
type Driver struct {
	*sqlstore.Store
}

var _ storage.Driver = (*Driver)(nil)

// NewDriver creates a new SQLite-backed store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// from fanning out into several independent databases.
	db.SetMaxOpenConns(1)

	store, err := sqlstore.New(ctx, db, dialect.SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Driver{Store: store}, nil
}

// dsn appends the pragmas the store relies on: foreign keys for projection
// integrity and a busy timeout for concurrent CLI access.
func dsn(dbPath string) string {
	const params = "_fk=1&_busy_timeout=5000"

	if dbPath == ":memory:" {
		return "file::memory:?" + params
	}
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + params
	}
	return "file:" + dbPath + "?" + params + "&_journal_mode=WAL"
}
