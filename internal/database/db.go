package database

import (
	"fmt"

	"coffee-backend/internal/config"
	"coffee-backend/internal/models"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("could not connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("could not get connection pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	if err := Migrate(db); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	DB = db
	log.Info("database connected, migrations applied")
}

// Migrate creates or updates every table the service uses.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.AuditLog{},
		&models.Farmer{},
		&models.Batch{},
		&models.ReferenceMapping{},
		&models.ProcessingRecord{},
		&models.WetMillWeightMeasurement{},
		&models.SubBatch{},
		&models.BagDetail{},
		&models.DailyCounter{},
		&models.LotSequenceCounter{},
		&models.RejectBatchSource{},
		&models.CherryInventoryStatus{},
		&models.GreenBeansInventoryStatus{},
		&models.QCRecord{},
		&models.WetMillEvent{},
		&models.DryingEvent{},
		&models.DryMillEvent{},
		&models.RFIDScan{},
		&models.Order{},
		&models.OrderItem{},
	)
	if err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
