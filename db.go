package main

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"finbot/models"
)

var db *gorm.DB

func initDB(cfg *Config) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database DSN is not set (config database.dsn or FINBOT_DATABASE_DSN)")
	}
	var err error
	db, err = gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("unwrap sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if cfg.Database.AutoMigrate {
		if err := migrateDB(db); err != nil {
			return err
		}
	}
	return seedDB(db)
}

// migrateDB migrates models individually so a failure on one doesn't block
// the others; warnings are logged, the first hard error is returned.
func migrateDB(db *gorm.DB) error {
	for _, m := range []interface{}{
		&models.User{},
		&models.RefreshToken{},
		&models.Category{},
		&models.Wallet{},
		&models.Transaction{},
		&models.Goal{},
		&models.Wish{},
	} {
		if err := db.AutoMigrate(m); err != nil {
			log.Printf("migration warning (%T): %v", m, err)
			return err
		}
	}
	return nil
}

// seedDB ensures the shared system categories exist, including the Savings
// pair used for goal deposits and withdrawals. Idempotent.
func seedDB(db *gorm.DB) error {
	shared := []models.Category{
		{Name: "Salary", Icon: "💼", Kind: models.KindIncome},
		{Name: "Gifts", Icon: "🎁", Kind: models.KindIncome},
		{Name: models.SavingsCategory, Icon: "💰", Kind: models.KindIncome},
		{Name: "Food", Icon: "🍔", Kind: models.KindExpense},
		{Name: "Transport", Icon: "🚌", Kind: models.KindExpense},
		{Name: "Entertainment", Icon: "🎬", Kind: models.KindExpense},
		{Name: "Health", Icon: "💊", Kind: models.KindExpense},
		{Name: models.SavingsCategory, Icon: "💰", Kind: models.KindExpense},
	}
	for _, c := range shared {
		var cnt int64
		if err := db.Model(&models.Category{}).
			Where("user_id IS NULL AND name = ? AND kind = ?", c.Name, c.Kind).
			Count(&cnt).Error; err != nil {
			return err
		}
		if cnt == 0 {
			if err := db.Create(&c).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
