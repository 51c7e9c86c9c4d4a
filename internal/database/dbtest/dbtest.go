package dbtest

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"loyalpay/config"
	"loyalpay/internal/database"

	"gorm.io/gorm"
)

// New returns a migrated in-memory sqlite database private to t.
// A single connection keeps every statement on the same shared-cache database.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	db, err := database.NewDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// AfterFirstQuery runs fn once, right after the first SELECT against table completes.
// Tests use it to slip a competing row in between a read and the insert that follows.
// fn gets the root handle, so the triggering SELECT must not run inside a transaction.
func AfterFirstQuery(t testing.TB, db *gorm.DB, table string, fn func(db *gorm.DB)) {
	t.Helper()
	var once sync.Once
	name := "dbtest:after_first_query:" + table
	err := db.Callback().Query().After("gorm:query").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table != table {
			return
		}
		once.Do(func() { fn(db) })
	})
	if err != nil {
		t.Fatalf("register query hook: %v", err)
	}
	t.Cleanup(func() { _ = db.Callback().Query().Remove(name) })
}
