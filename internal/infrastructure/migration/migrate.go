// Package migration applies the versioned PostgreSQL schema with golang-migrate.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/erp/retailcore/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// Migrator drives one database through the migration set.
type Migrator struct {
	m   *migrate.Migrate
	log *zap.Logger
}

// New opens a migrator over db reading migrations from src. A nil src uses
// the set compiled into the binary.
func New(db *sql.DB, src fs.FS, log *zap.Logger) (*Migrator, error) {
	if src == nil {
		src = migrations.FS
	}
	source, err := iofs.New(src, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return &Migrator{m: m, log: log.Named("migrate")}, nil
}

// run treats ErrNoChange as success and logs the resulting version.
func (mg *Migrator) run(op string, fn func() error, fields ...zap.Field) error {
	mg.log.Info("Migration started", append(fields, zap.String("op", op))...)
	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		mg.log.Info("Schema already current", zap.String("op", op))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	version, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	mg.log.Info("Migration finished", zap.String("op", op), zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func (mg *Migrator) Up() error { return mg.run("up", mg.m.Up) }

func (mg *Migrator) Down() error { return mg.run("down", mg.m.Down) }

// Steps applies n migrations; negative n rolls back.
func (mg *Migrator) Steps(n int) error {
	return mg.run("steps", func() error { return mg.m.Steps(n) }, zap.Int("n", n))
}

func (mg *Migrator) GoTo(version uint) error {
	return mg.run("goto", func() error { return mg.m.Migrate(version) }, zap.Uint("target", version))
}

// Version reports 0 when no migration has been applied.
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Force records version as applied and clean without running anything.
// It is the way out of a dirty schema after a failed migration was fixed by hand.
func (mg *Migrator) Force(version int) error {
	mg.log.Warn("Forcing schema version", zap.Int("version", version))
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

func (mg *Migrator) Drop() error {
	mg.log.Warn("Dropping every database object")
	if err := mg.m.Drop(); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}

func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}
