// Package testdb opens throwaway SQLite databases for service tests so they
// run against the same gorm schema the server migrates, without a Postgres
// instance.
package testdb

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"finbot/models"
)

// Open returns a migrated gorm handle backed by a temp-file SQLite database.
// The pool is capped at one connection so concurrent test writers serialize
// the way sqlite expects instead of failing with "database is locked".
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "finbot_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Category{},
		&models.Wallet{},
		&models.Transaction{},
		&models.Goal{},
		&models.Wish{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}
