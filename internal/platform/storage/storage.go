package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"paylink-server-go/internal/platform/storage/migrations"
)

// Open initialises the sqlite database, applying automigration and the
// versioned migrations.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "data/paylink.db"
	}

	if dir := filepath.Dir(dsn); dir != "" && dir != "." &&
		dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&Credential{}, &Profile{}, &PaymentRecord{}, &DomainEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	migrationManager := NewMigrationManager(db)
	migrationManager.AddMigration(&migrations.Migration001Initial{})

	if err := migrationManager.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

var memSeq atomic.Int64

// OpenInMemory returns a fresh, isolated in-memory database, used by
// tests. The shared cache keeps the database alive across pooled
// connections; the sequence number keeps databases apart.
func OpenInMemory() (*gorm.DB, error) {
	return Open(fmt.Sprintf("file:mem%d?mode=memory&cache=shared", memSeq.Add(1)))
}
