// Package migrations embeds the remote schema and applies it with
// golang-migrate. The fallback store manages its own schema; this package
// only touches the hosted database.
package migrations

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"shiftboard/internal/utils"
)

//go:embed *.sql
var files embed.FS

// Up applies all pending migrations to the hosted database.
func Up(databaseURL string) error {
	m, closeFn, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return utils.ErrMigrationFailed(err)
	}
	return nil
}

// Down rolls back the most recent migration.
func Down(databaseURL string) error {
	m, closeFn, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return utils.ErrMigrationFailed(err)
	}
	return nil
}

func newMigrator(databaseURL string) (*migrate.Migrate, func(), error) {
	source, err := iofs.New(files, ".")
	if err != nil {
		return nil, nil, utils.ErrMigrationFailed(err)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, utils.ErrMigrationFailed(err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		db.Close()
		return nil, nil, utils.ErrMigrationFailed(err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, utils.ErrMigrationFailed(err)
	}
	return m, func() { m.Close() }, nil
}
