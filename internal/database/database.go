package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/killallgit/sensitive-data-api/internal/models"
)

// sqlite pragmas for file databases: concurrent readers while the training
// worker writes, and a wait instead of SQLITE_BUSY
const fileOptions = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// DB holds feedback, training examples, model versions, runs and jobs
type DB struct {
	*gorm.DB
}

// Initialize opens the sqlite database at path, creating its directory. An
// empty path or ":memory:" gives a private in-memory database for tests.
func Initialize(path string, verbose bool) (*DB, error) {
	inMemory := path == "" || strings.Contains(path, ":memory:")
	if !inMemory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
	}

	level := logger.Error
	if verbose {
		level = logger.Info
	}
	gdb, err := gorm.Open(sqlite.Open(dsn(path, inMemory)), &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if inMemory {
		// a second connection would open a second, empty database
		pool.SetMaxOpenConns(1)
	} else {
		pool.SetMaxOpenConns(100)
		pool.SetMaxIdleConns(10)
	}
	pool.SetConnMaxLifetime(time.Hour)

	return &DB{DB: gdb}, nil
}

func dsn(path string, inMemory bool) string {
	switch {
	case inMemory:
		return ":memory:"
	case strings.Contains(path, "?"):
		return path
	default:
		return path + "?" + fileOptions
	}
}

func (db *DB) Close() error {
	pool, err := db.DB.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// HealthCheck pings the database with a one second budget
func (db *DB) HealthCheck() error {
	if db == nil || db.DB == nil {
		return errors.New("database not initialized")
	}
	pool, err := db.DB.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Migrate creates or alters the tables of every persisted model
func (db *DB) Migrate(log *zap.Logger) error {
	all := models.All()
	if err := db.AutoMigrate(all...); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	log.Info("database migrated", zap.Int("models", len(all)))
	return nil
}

// Tables lists the table of every persisted model in migration order
func (db *DB) Tables() []string {
	tables := make([]string, 0, len(models.All()))
	for _, m := range models.All() {
		if name, ok := db.tableName(m); ok {
			tables = append(tables, name)
		}
	}
	return tables
}

// PendingTables lists the tables Migrate would create
func (db *DB) PendingTables() []string {
	var pending []string
	for _, m := range models.All() {
		if db.Migrator().HasTable(m) {
			continue
		}
		if name, ok := db.tableName(m); ok {
			pending = append(pending, name)
		}
	}
	return pending
}

func (db *DB) tableName(model any) (string, bool) {
	stmt := &gorm.Statement{DB: db.DB}
	if err := stmt.Parse(model); err != nil {
		return "", false
	}
	return stmt.Schema.Table, true
}
