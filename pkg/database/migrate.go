package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path"

	"github.com/golang-migrate/migrate/v4"
	mpg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations
var migrationFS embed.FS

// Migrate applies the embedded schema of one store. Each store tracks its own
// schema_migrations table inside its own database.
func Migrate(ctx context.Context, db *sqlx.DB, store string) error {
	src, err := iofs.New(migrationFS, path.Join("migrations", store))
	if err != nil {
		return fmt.Errorf("load %s migrations: %w", store, err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire %s connection: %w", store, err)
	}
	// Closing the migrate instance closes conn but leaves the pool open.
	driver, err := mpg.WithConnection(ctx, conn, &mpg.Config{})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("init %s migration driver: %w", store, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("init %s migrator: %w", store, err)
	}
	defer m.Close() //nolint:errcheck

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s store: %w", store, err)
	}
	return nil
}
