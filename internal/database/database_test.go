package database

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/judyrop/storefront-analytics/internal/config"
	"github.com/judyrop/storefront-analytics/models"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:database_test?mode=memory&cache=shared",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}
	db, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, table := range []string{"products", "customers", "orders", "order_items", "carts", "cart_items", "analytics_events"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	require.NoError(t, db.Create(&models.Product{Name: "Mug", Price: 4.5, Category: "Kitchen", Stock: 3}).Error)
	var count int64
	require.NoError(t, db.Model(&models.Product{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestOpenKeepsSQLLogOffStdout(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	stdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = stdout }()

	var sqlLog bytes.Buffer
	db, err := Open(config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:database_log_test?mode=memory&cache=shared",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "warn",
	}, zap.NewNop(), WithLogWriter(&sqlLog))
	require.NoError(t, err)

	// No migration, so the table is missing and gorm logs the failure.
	var count int64
	assert.Error(t, db.Table("order_items").Count(&count).Error)

	os.Stdout = stdout
	require.NoError(t, w.Close())
	leaked, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Empty(t, string(leaked))
	assert.Contains(t, sqlLog.String(), "no such table: order_items")
	assert.NotContains(t, sqlLog.String(), "\x1b[", "colour codes are for terminals only")
}
