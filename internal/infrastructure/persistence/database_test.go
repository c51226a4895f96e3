package persistence

import (
	"testing"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestNewDatabase(t *testing.T) {
	t.Run("opens sqlite in memory", func(t *testing.T) {
		db, err := NewDatabase(&config.DatabaseConfig{
			Driver:   "sqlite",
			Path:     ":memory:",
			LogLevel: "silent",
		}, zap.NewNop())
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, "sqlite", db.Driver)
		assert.NoError(t, db.Ping())
		assert.NoError(t, AutoMigrate(db.DB))
		assert.True(t, db.DB.Migrator().HasTable("ledger_documents"))
		assert.True(t, db.DB.Migrator().HasTable("stock_batches"))
		assert.True(t, db.DB.Migrator().HasTable("settlements"))

		sqlDB, err := db.DB.DB()
		require.NoError(t, err)
		assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	})

	t.Run("nil logger is allowed", func(t *testing.T) {
		db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, nil)
		require.NoError(t, err)
		assert.NoError(t, db.Close())
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		db, err := NewDatabase(&config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
		assert.Nil(t, db)
		assert.ErrorContains(t, err, "unsupported database driver")
	})
}

func TestDatabase_Transaction(t *testing.T) {
	db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, AutoMigrate(db.DB))

	repo := NewGormDocumentRepository(db.DB)
	gr := newReceipt(t, day(1), "GR-000001")

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := NewGormDocumentRepository(tx).Save(t.Context(), gr); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = repo.FindByID(t.Context(), gr.ID)
	assert.Error(t, err)
}
