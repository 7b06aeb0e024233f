package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/infrastructure/config"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newTestDB opens a migrated in-memory SQLite database
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, AutoMigrate(database.DB))
	return database.DB
}

func newDrawer(t *testing.T, db *gorm.DB) *accounting.Account {
	t.Helper()
	acct, err := accounting.NewAccount("Till 1", accounting.AccountTypeCash, accounting.OwnerCompany, nil)
	require.NoError(t, err)
	require.NoError(t, NewGormAccountRepository(db).Create(context.Background(), acct))
	return acct
}

// newMockDatabase opens a postgres-dialect Database over sqlmock for tests
// that assert on the statements a repository issues
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return &Database{DB: gormDB, driver: DriverPostgres}, mock, mockDB
}
