// Package db opens the target datastore and carries the few per-provider
// differences the engine needs: placeholder style, conflict clause and
// catalog queries.
package db

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/bypabloc/portfolio-db/internal/errs"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Connection wraps the shared *sql.DB pool. It is the only shared mutable
// resource of a run; all seeding goes through one transaction per table.
type Connection struct {
	DB       *sql.DB
	Provider string
}

// Open connects to the datastore named by provider and verifies it is
// reachable. maxConns bounds the pool to the engine's worker count plus
// one connection for verification queries.
func Open(ctx context.Context, provider, url string, maxConns int) (*Connection, error) {
	var driverName string
	switch provider {
	case "postgresql", "postgres":
		driverName = "pgx"
		provider = "postgres"
	case "mysql":
		driverName = "mysql"
	case "sqlite", "sqlite3":
		driverName = "sqlite3"
		provider = "sqlite"
	default:
		driverName = "pgx"
		provider = "postgres"
	}

	database, err := sql.Open(driverName, url)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, err, "failed to open database connection")
	}
	if maxConns > 0 {
		database.SetMaxOpenConns(maxConns + 1)
	}

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, errs.Wrap(errs.KindConnection, err, "failed to ping database")
	}

	return &Connection{DB: database, Provider: provider}, nil
}

// Close closes the underlying pool.
func (c *Connection) Close() error {
	return c.DB.Close()
}

// Builder returns a statement builder with the provider's placeholder
// format applied.
func (c *Connection) Builder() sq.StatementBuilderType {
	if c.Provider == "postgres" {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// SkipConflicts decorates an insert so that a primary-key conflict leaves
// the existing row unchanged instead of failing.
func (c *Connection) SkipConflicts(ins sq.InsertBuilder) sq.InsertBuilder {
	if c.Provider == "mysql" {
		return ins.Options("IGNORE")
	}
	return ins.Suffix("ON CONFLICT DO NOTHING")
}

// TableExistsQuery returns the catalog query reporting whether a table is
// present, with the table name as its single argument.
func (c *Connection) TableExistsQuery() string {
	switch c.Provider {
	case "mysql":
		return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`
	case "sqlite":
		return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	default:
		return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1`
	}
}

// ColumnCountQuery returns the catalog query counting a table's applied
// columns, with the table name as its single argument.
func (c *Connection) ColumnCountQuery() string {
	switch c.Provider {
	case "mysql":
		return `SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?`
	case "sqlite":
		return `SELECT COUNT(*) FROM pragma_table_info(?)`
	default:
		return `SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1`
	}
}
