// Package store persists conversations, message trees and the LLM config.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/pkg/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures the database connection.
type Options struct {
	Driver string
	DSN    string
	Logger *logger.Logger
}

// Store is the tree-structured message store.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open connects to the database and migrates the schema.
func Open(opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(opts.DSN))
	case DriverPostgres:
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(
			zap.NewStdLog(log.Logger),
			gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
				ParameterizedQueries:      true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := configurePool(db, opts.Driver); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&conversationRecord{}, &messageRecord{}, &configRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// sqliteDSN turns on foreign keys and a busy timeout unless the caller set them.
func sqliteDSN(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "_foreign_keys") && !strings.Contains(dsn, "_fk") {
		params = append(params, "_foreign_keys=on")
	}
	if !strings.Contains(dsn, "_busy_timeout") {
		params = append(params, "_busy_timeout=5000")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func configurePool(db *gorm.DB, driver string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if driver == DriverPostgres {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
		return nil
	}

	// One connection serializes sqlite writers, which keeps the order_index
	// read-then-insert of CreateMessage race free.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// classify passes error kinds through and marks everything else as a storage failure.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrInvalidInput),
		errors.Is(err, model.ErrConfigMissing),
		errors.Is(err, model.ErrStorage):
		return err
	default:
		return fmt.Errorf("%s: %w: %w", op, model.ErrStorage, err)
	}
}
