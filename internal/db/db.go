package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/EmpoweredVote/sr311/internal/logging"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func gormConfig() *gorm.Config {
	// Surface slow queries; routine SQL only at debug level.
	lg := logger.New(
		logging.GormWriter{},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return &gorm.Config{Logger: lg}
}

// Open connects to Postgres and applies pool defaults.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("open database: empty DSN")
	}

	d, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := d.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return d, nil
}

// FromSQL wraps an existing *sql.DB (for example one opened with the pgx
// stdlib driver) in a gorm handle.
func FromSQL(sqlDB *sql.DB) (*gorm.DB, error) {
	d, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("wrap sql.DB: %w", err)
	}
	return d, nil
}

// Connect opens the package-level DB used by the API server.
func Connect(dsn string) error {
	d, err := Open(dsn)
	if err != nil {
		return err
	}
	DB = d
	l := logging.Component("db")
	l.Info().Msg("Connected to database")
	return nil
}

func Ping(ctx context.Context, d *gorm.DB) error {
	sqlDB, err := d.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(d *gorm.DB) {
	if d == nil {
		return
	}
	if sqlDB, err := d.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
