package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erp/retailcore/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Database is an open gorm session plus the driver it was opened with.
type Database struct {
	DB     *gorm.DB
	driver string
}

// Option adjusts the gorm.Config before the connection is opened.
type Option func(*gorm.Config)

func WithLogger(l logger.Interface) Option {
	return func(c *gorm.Config) { c.Logger = l }
}

// NewDatabase opens PostgreSQL (the default) or SQLite and verifies the
// connection.
func NewDatabase(cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	gormCfg := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
	for _, opt := range opts {
		opt(gormCfg)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN())
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN())
		gormCfg.PrepareStmt = true
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	d := &Database{DB: db, driver: driver}
	sqlDB, err := d.pool()
	if err != nil {
		return nil, err
	}
	tunePool(sqlDB, driver, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return d, nil
}

// tunePool sizes the connection pool. SQLite gets a single connection: it
// has no row locks, so transactions must run one at a time for balance and
// counter checks to hold.
func tunePool(db *sql.DB, driver string, cfg *config.DatabaseConfig) {
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		return
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
}

func (d *Database) Driver() string { return d.driver }

func (d *Database) pool() (*sql.DB, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("underlying sql.DB: %w", err)
	}
	return sqlDB, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.pool()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.pool()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats reports the connection pool counters.
func (d *Database) Stats() (sql.DBStats, error) {
	sqlDB, err := d.pool()
	if err != nil {
		return sql.DBStats{}, err
	}
	return sqlDB.Stats(), nil
}
