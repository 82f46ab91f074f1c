package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"liyu1981.xyz/greenhouse-relay/pkg/common"
	"liyu1981.xyz/greenhouse-relay/pkg/models"
)

// DB is the process-wide storage client. It is built once by Open, handed to
// the relay core, and closed on shutdown.
type DB struct {
	Conn *gorm.DB
}

// Open connects with exponential backoff until connectTimeout has elapsed,
// then creates the readings and commands tables if they are missing.
func Open(dialector gorm.Dialector, connectTimeout time.Duration) (*DB, error) {
	logger := common.GetLoggerWith(common.LoggerNameStorage)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectTimeout

	var conn *gorm.DB
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		c, err := gorm.Open(dialector, &gorm.Config{})
		if err != nil {
			closeQuietly(c)
			logger.Warn("Failed to connect to database",
				zap.String("dialector", dialector.Name()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		conn = c
		return nil
	}, bo)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s database after %d attempts: %w", dialector.Name(), attempt, err)
	}

	logger.Info("Connected to database with dialector:", zap.String("dialector", dialector.Name()))

	instance := &DB{Conn: conn}

	if dialector.Name() == "sqlite" {
		if err := instance.tuneSqlite(); err != nil {
			_ = instance.Close()
			return nil, err
		}
	}

	if err := instance.Conn.AutoMigrate(&models.Reading{}, &models.Command{}); err != nil {
		_ = instance.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Database migration completed")

	return instance, nil
}

func (d *DB) tuneSqlite() error {
	sqlDB, err := d.Conn.DB()
	if err != nil {
		return err
	}
	// one writer at a time, and shared-cache memory databases lock tables across connections
	sqlDB.SetMaxOpenConns(1)

	if err := d.Conn.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return fmt.Errorf("failed to set sqlite journal mode: %w", err)
	}
	if err := d.Conn.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return fmt.Errorf("failed to set sqlite busy timeout: %w", err)
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.Conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *DB) Close() error {
	sqlDB, err := d.Conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeQuietly(c *gorm.DB) {
	if c == nil || c.ConnPool == nil {
		return
	}
	if sqlDB, err := c.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func UsePostgresDialector(databaseURL string) gorm.Dialector {
	return postgres.Open(databaseURL)
}

func UseSqliteDialector(dbPath string) gorm.Dialector {
	if dbPath == "" {
		dbPath = common.DefaultDBPath
	}
	return sqlite.Open(dbPath)
}

func UseMemorySqliteDialector() gorm.Dialector {
	return sqlite.Open("file::memory:?cache=shared")
}

// UseNamedMemorySqliteDialector gives every name its own in-memory database,
// tests use it to stay isolated from each other.
func UseNamedMemorySqliteDialector(name string) gorm.Dialector {
	return sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}
