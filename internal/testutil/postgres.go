//go:build integration

package testutil

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/erp/retailcore/internal/infrastructure/config"
	"github.com/erp/retailcore/internal/infrastructure/migration"
	"github.com/erp/retailcore/internal/infrastructure/persistence"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewPostgresDB starts a PostgreSQL container, applies the embedded
// migrations and returns a connection that is torn down with the test.
func NewPostgresDB(t testing.TB) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("retail_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("retail123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	var opts []persistence.Option
	if os.Getenv("TEST_DB_DEBUG") != "" {
		opts = append(opts, persistence.WithLogger(logger.Default.LogMode(logger.Info)))
	}
	database, err := persistence.NewDatabase(&config.DatabaseConfig{
		Driver:          "postgres",
		Host:            host,
		Port:            portNum,
		User:            "postgres",
		Password:        "retail123",
		DBName:          "retail_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
		ConnMaxIdleTime: 5,
	}, opts...)
	require.NoError(t, err, "Failed to connect to database")
	t.Cleanup(func() { _ = database.Close() })

	sqlDB, err := database.DB.DB()
	require.NoError(t, err)
	migrator, err := migration.New(sqlDB, nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up(), "Failed to run migrations")

	return database.DB
}
