package persistence

import (
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database holds the database connection and provides methods for database operations
type Database struct {
	DB     *gorm.DB
	Driver string
}

// NewDatabase opens the database selected by cfg.Driver. SQL statements
// are logged through zapLogger at cfg.LogLevel.
func NewDatabase(cfg *config.DatabaseConfig, zapLogger *zap.Logger) (*Database, error) {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLogger(zapLogger.Named("gorm"), logger.MapGormLogLevel(cfg.LogLevel)),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// one writer; concurrent writers would fail with SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db, Driver: cfg.Driver}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

// Transaction executes a function within a database transaction
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	return d.DB.Transaction(fn)
}

// AutoMigrate creates the ledger tables on db and starts missing counters
// after the documents already stored. Postgres deployments apply the SQL
// files under migrations/ instead.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.DocumentModel{},
		&models.StockBatchModel{},
		&models.SettlementModel{},
		&models.CounterModel{},
	); err != nil {
		return err
	}
	return seedCounters(db)
}

func seedCounters(db *gorm.DB) error {
	var rows []models.DocumentModel
	if err := db.Select("kind", "number", "confirm_seq").Find(&rows).Error; err != nil {
		return err
	}
	seeds := map[string]int64{confirmSeqCounter: 0}
	for _, m := range rows {
		kind := inventory.DocumentKind(m.Kind)
		if n, ok := kind.ParseNumber(m.Number); ok && int64(n) > seeds[numberCounter(kind)] {
			seeds[numberCounter(kind)] = int64(n)
		}
		if m.ConfirmSeq > seeds[confirmSeqCounter] {
			seeds[confirmSeqCounter] = m.ConfirmSeq
		}
	}
	for name, seq := range seeds {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.CounterModel{Name: name, Seq: seq}).Error; err != nil {
			return fmt.Errorf("seeding %s: %w", name, err)
		}
	}
	return nil
}
