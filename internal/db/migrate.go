package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/r3hensler/base-client-server/internal/db/migrations"
)

// RunMigrations applies the embedded goose migrations. It opens a separate
// database/sql connection because goose does not speak pgxpool; the connection
// is closed before the function returns.
func (db *Postgres) RunMigrations(ctx context.Context) error {
	sqlDB, err := sql.Open("pgx", db.Pool.Config().ConnString())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
