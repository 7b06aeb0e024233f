package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "retailcore", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "retail", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5*time.Minute, cfg.Reconcile.PendingAge)
		assert.Equal(t, 10*time.Second, cfg.Shift.OpenLockTTL)
		require.Len(t, cfg.Payments.Methods, 1)
		assert.Equal(t, "cash", cfg.Payments.Methods[0].Name)
		assert.True(t, cfg.Payments.Methods[0].Cash)
	})

	t.Run("loads values from environment variables with RETAIL prefix", func(t *testing.T) {
		t.Setenv("RETAIL_APP_PORT", "9000")
		t.Setenv("RETAIL_DATABASE_DRIVER", "sqlite")
		t.Setenv("RETAIL_DATABASE_PATH", ":memory:")
		t.Setenv("RETAIL_RECONCILE_PENDING_AGE", "90s")
		t.Setenv("RETAIL_REDIS_ENABLED", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, ":memory:", cfg.Database.DSN())
		assert.Equal(t, 90*time.Second, cfg.Reconcile.PendingAge)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		t.Setenv("RETAIL_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("RETAIL_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("RETAIL_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("production requires database password", func(t *testing.T) {
		t.Setenv("RETAIL_APP_ENV", "production")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password")
	})
}

func TestLoadFile_Payments(t *testing.T) {
	company := uuid.New()
	card := uuid.New()
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[payments]
company_account_id = "` + company.String() + `"

[[payments.methods]]
name = "cash"
cash = true

[[payments.methods]]
name = "card"
account_id = "` + card.String() + `"

[[payments.methods]]
name = "transfer"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Payments.Methods, 3)

	gotCompany, methods, err := cfg.Payments.PaymentMethods()
	require.NoError(t, err)
	assert.Equal(t, company, gotCompany)
	assert.True(t, methods[0].Cash)
	assert.Equal(t, card, methods[1].AccountID)
	assert.Equal(t, uuid.Nil, methods[2].AccountID)
}

func TestLoadFile_InvalidAccountID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[[payments.methods]]
name = "card"
account_id = "not-a-uuid"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payments.methods[card]")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Driver:   "postgres",
		Host:     "db",
		Port:     5432,
		User:     "retail",
		Password: "p@ss word",
		DBName:   "retail",
		SSLMode:  "require",
	}
	assert.Equal(t, "postgres://retail:p%40ss%20word@db:5432/retail?sslmode=require", d.DSN())
}
