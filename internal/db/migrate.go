package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/walkpal/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateUp applies every pending migration. Being current is not an error.
func (db *DB) MigrateUp() error {
	return db.migrate("up", func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown reverts the most recent migration.
func (db *DB) MigrateDown() error {
	return db.migrate("down", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// MigrateVersion reports the applied schema version. A fresh database is
// version 0 and clean.
func (db *DB) MigrateVersion() (uint, bool, error) {
	m, err := db.migrator()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (db *DB) migrate(direction string, step func(*migrate.Migrate) error) error {
	m, err := db.migrator()
	if err != nil {
		return err
	}
	// m is not closed: that would close db.DB as well.
	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	return nil
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	drv, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return nil, err
	}
	m.Log = migrateLog{}
	return m, nil
}

type migrateLog struct{}

func (migrateLog) Printf(format string, v ...any) { monitoring.Logf("[migrate] "+format, v...) }
func (migrateLog) Verbose() bool                  { return false }
