package database

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"loyalpay/config"
	"loyalpay/internal/domain"
	"loyalpay/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres", "postgresql":
		return postgres.Open(cfg.DSN), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Error
	}
}

// NewDB opens the configured driver. TranslateError is required: the ledger and the
// order service detect idempotency conflicts through gorm.ErrDuplicatedKey.
func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel(cfg.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models, including the unique indexes
// on orders.idempotency_key and ledger_entries(gateway, gateway_ref).
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Wallet{},
		&models.Partner{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.LedgerEntry{},
		&models.SystemSetting{},
	)
}

// SeedAdmin creates the admin account and its wallet when it does not exist yet.
// Nothing happens when email or password is empty.
func SeedAdmin(db *gorm.DB, email, password string) {
	if email == "" || password == "" {
		return
	}
	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("[database] seed admin lookup: %v", err)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[database] seed admin hash: %v", err)
		return
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		u := &models.User{
			Email:        email,
			Username:     "admin",
			PasswordHash: string(hash),
			Role:         domain.RoleAdmin,
		}
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		return tx.Create(&models.Wallet{UserID: u.ID}).Error
	})
	if err != nil {
		log.Printf("[database] seed admin: %v", err)
		return
	}
	log.Printf("[database] admin %s created", email)
}
