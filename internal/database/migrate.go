package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var schema embed.FS

// Migrator applies the schema embedded in the binary
type Migrator struct {
	m      *migrate.Migrate
	dbName string
}

func NewMigrator(db *sql.DB, dbName string) (*Migrator, error) {
	source, err := iofs.New(schema, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{DatabaseName: dbName})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return nil, fmt.Errorf("init migrator for %s: %w", dbName, err)
	}

	return &Migrator{m: m, dbName: dbName}, nil
}

// Up is a no-op on a current schema
func (m *Migrator) Up() error {
	return m.run("up", m.m.Up)
}

// Down reverts one migration
func (m *Migrator) Down() error {
	return m.run("down", func() error { return m.m.Steps(-1) })
}

// Force marks version as applied without running it; used to clear a dirty state
func (m *Migrator) Force(version int) error {
	return m.run("force", func() error { return m.m.Force(version) })
}

func (m *Migrator) run(op string, fn func() error) error {
	if err := fn(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s on %s: %w", op, m.dbName, err)
	}
	return nil
}

// Version reports 0 for an empty database
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// Migrate brings the schema behind dsn to the latest version; cmd/api runs it at boot.
func Migrate(ctx context.Context, dsn, dbName string, logger *slog.Logger) error {
	db, err := OpenSQL(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	migrator, err := NewMigrator(db, dbName)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()

	if err := migrator.Up(); err != nil {
		return err
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("schema %s is dirty at version %d", dbName, version)
	}

	logger.Info("database schema up to date", slog.String("database", dbName), slog.Uint64("version", uint64(version)))
	return nil
}
