// Package store opens the agent database, applies migrations, and bundles
// the repositories built on top of it.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/appconnect/internal/store/clipboard"
	"github.com/dmitrijs2005/appconnect/internal/store/migrations"
	"github.com/dmitrijs2005/appconnect/internal/store/trust"
)

// Repositories bundles the agent's persistence layer.
type Repositories struct {
	Clipboard clipboard.Repository
	Trust     trust.Repository

	db *sql.DB
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the sqlite database at dsn, migrates it, and returns the
// repositories. Clipboard content is sealed with atRestKey.
func InitDatabase(ctx context.Context, dsn string, atRestKey []byte) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	trustRepo, err := trust.NewSQLiteRepository(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Repositories{
		Clipboard: clipboard.NewSQLiteRepository(db, atRestKey),
		Trust:     trustRepo,
		db:        db,
	}, nil
}

// Close releases the underlying database handle.
func (r *Repositories) Close() error {
	return r.db.Close()
}
