package database

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/judyrop/storefront-analytics/internal/config"
	"github.com/judyrop/storefront-analytics/models"
)

const slowQueryThreshold = 200 * time.Millisecond

type openOptions struct {
	logWriter io.Writer
}

// Option customises Open.
type Option func(*openOptions)

// WithLogWriter sends gorm's SQL log to w instead of stdout. Processes that
// speak a protocol on stdout must pass stderr here.
func WithLogWriter(w io.Writer) Option {
	return func(o *openOptions) { o.logWriter = w }
}

// Open connects with the dialector named by cfg.Driver and applies the pool
// settings.
func Open(cfg config.DatabaseConfig, log *zap.Logger, opts ...Option) (*gorm.DB, error) {
	o := openOptions{logWriter: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger(o.logWriter, logLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnLifetime())

	log.Info("Database connected",
		zap.String("driver", cfg.Driver),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))
	return db, nil
}

// Migrate creates or updates every storefront table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	return nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres", "":
		return postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		}), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func gormLogger(w io.Writer, level logger.LogLevel) logger.Interface {
	return logger.New(stdlog.New(w, "\r\n", stdlog.LstdFlags), logger.Config{
		SlowThreshold: slowQueryThreshold,
		LogLevel:      level,
		Colorful:      w == os.Stdout,
	})
}

func logLevel(s string) logger.LogLevel {
	switch s {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
