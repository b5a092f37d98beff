// Package testutil opens throwaway databases and seeds fixtures for
// service and handler tests.
package testutil

import (
	"testing"
	"time"

	"coffee-backend/internal/database"
	"coffee-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory SQLite database. The pool is capped
// at one connection so concurrent transactions queue instead of failing
// with SQLITE_BUSY.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// UseGlobal points database.DB at db for handler tests.
func UseGlobal(t *testing.T, db *gorm.DB) {
	t.Helper()
	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })
}

func Clock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func SeedFarmer(t *testing.T, db *gorm.DB, name string, producer models.Producer) models.Farmer {
	t.Helper()
	f := models.Farmer{Name: name, Producer: producer}
	if err := db.Create(&f).Error; err != nil {
		t.Fatalf("seed farmer: %v", err)
	}
	return f
}

// SeedBatch inserts a received cherry batch with its inventory row.
func SeedBatch(t *testing.T, db *gorm.DB, batchNumber string, farmerID uint, weight string, producer models.Producer) models.Batch {
	t.Helper()
	received, err := time.Parse("2006-01-02", batchNumber[:10])
	if err != nil {
		received = time.Now()
	}
	b := models.Batch{
		BatchNumber:   batchNumber,
		FarmerID:      farmerID,
		Weight:        Dec(weight),
		Type:          models.CoffeeArabica,
		CommodityType: models.CommodityCherry,
		Producer:      producer,
		ReceivedAt:    received,
	}
	if err := db.Create(&b).Error; err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	status := models.CherryInventoryStatus{
		BatchNumber: batchNumber,
		Status:      models.InventoryStored,
		EnteredAt:   received,
	}
	if err := db.Create(&status).Error; err != nil {
		t.Fatalf("seed cherry status: %v", err)
	}
	return b
}

func SeedReferenceMapping(t *testing.T, db *gorm.DB, productLine, processingType string, producer models.Producer, ref string) {
	t.Helper()
	m := models.ReferenceMapping{
		ProductLine:     productLine,
		ProcessingType:  processingType,
		Producer:        producer,
		Type:            models.CoffeeArabica,
		ReferenceNumber: ref,
	}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("seed reference mapping: %v", err)
	}
}

func SeedProcessing(t *testing.T, db *gorm.DB, batchNumber, productLine, processingType, weight, lot string) models.ProcessingRecord {
	t.Helper()
	var b models.Batch
	if err := db.Take(&b, "batch_number = ?", batchNumber).Error; err != nil {
		t.Fatalf("load batch: %v", err)
	}
	r := models.ProcessingRecord{
		BatchNumber:     batchNumber,
		Producer:        b.Producer,
		ProductLine:     productLine,
		ProcessingType:  processingType,
		WeightProcessed: Dec(weight),
		LotNumber:       lot,
		ReferenceNumber: "REF-" + processingType,
		ProcessedAt:     b.ReceivedAt,
	}
	if err := db.Create(&r).Error; err != nil {
		t.Fatalf("seed processing: %v", err)
	}
	return r
}

// AdvanceToDryMill records QC and the wet-mill and drying stages as
// finished and the dry mill as entered.
func AdvanceToDryMill(t *testing.T, db *gorm.DB, batchNumber string) {
	t.Helper()
	AdvanceToDrying(t, db, batchNumber)
	now := time.Now()
	if err := db.Model(&models.DryingEvent{}).Where("batch_number = ?", batchNumber).
		Update("exited_at", now).Error; err != nil {
		t.Fatalf("exit drying: %v", err)
	}
	if err := db.Create(&models.DryMillEvent{StageEvent: models.StageEvent{BatchNumber: batchNumber, EnteredAt: now}}).Error; err != nil {
		t.Fatalf("enter dry mill: %v", err)
	}
}

// AdvanceToDrying leaves the batch inside the drying stage.
func AdvanceToDrying(t *testing.T, db *gorm.DB, batchNumber string) {
	t.Helper()
	now := time.Now()
	qc := models.QCRecord{BatchNumber: batchNumber, Status: models.QCDone, StartedAt: now, CompletedAt: &now}
	if err := db.Create(&qc).Error; err != nil {
		t.Fatalf("qc: %v", err)
	}
	if err := db.Create(&models.WetMillEvent{StageEvent: models.StageEvent{BatchNumber: batchNumber, EnteredAt: now, ExitedAt: &now}}).Error; err != nil {
		t.Fatalf("wet mill: %v", err)
	}
	if err := db.Create(&models.DryingEvent{StageEvent: models.StageEvent{BatchNumber: batchNumber, EnteredAt: now}}).Error; err != nil {
		t.Fatalf("drying: %v", err)
	}
}
