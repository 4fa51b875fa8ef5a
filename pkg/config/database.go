package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"copycontrol/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB initializes the database connection
func InitDB() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		envOr("DB_HOST", "localhost"),
		envOr("DB_USER", "postgres"),
		os.Getenv("DB_PASSWORD"),
		envOr("DB_NAME", "copycontrol"),
		envOr("DB_PORT", "5432"),
		envOr("DB_SSLMODE", "disable"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get database instance:", err)
	}

	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db

	// Auto migrate all models
	err = DB.AutoMigrate(
		&models.MasterTrader{},
		&models.AlgoStrategy{},
		&models.StrategyMasterTrader{},
		&models.CopySubscription{},
		&models.Trade{},
		&models.ReplicationRecord{},
		&models.CommissionEntry{},
		&models.SymbolConfig{},
		&models.EventCursor{},
		&models.SystemLog{},
		&models.SystemParams{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
}
