// Package receiving registers incoming cherry batches and the reference
// data they depend on.
package receiving

import (
	"errors"
	"fmt"
	"time"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/models"
	"coffee-backend/internal/rfid"
	"coffee-backend/internal/sequence"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReceiveInput struct {
	FarmerID  uint
	Weight    decimal.Decimal
	Type      string
	Producer  string
	TotalBags int
	RFID      string
	Operator  string
}

type Service struct {
	alloc *sequence.Allocator
	tags  *rfid.Manager
	now   func() time.Time
}

// NewService takes a clock already set to the plant's local time zone;
// batch numbers roll over at its midnight.
func NewService(alloc *sequence.Allocator, tags *rfid.Manager, now func() time.Time) *Service {
	return &Service{alloc: alloc, tags: tags, now: now}
}

func (s *Service) Receive(tx *gorm.DB, in ReceiveInput) (*models.Batch, error) {
	if !in.Weight.IsPositive() {
		return nil, apperr.Validation("invalid_weight", "weight must be positive")
	}
	if in.TotalBags < 0 {
		return nil, apperr.Validation("invalid_bags", "totalBags cannot be negative")
	}
	coffeeType, ok := models.ParseCoffeeType(in.Type)
	if !ok {
		return nil, apperr.Validation("unknown_coffee_type", "unknown coffee type %q", in.Type)
	}
	producer, ok := models.ParseProducer(in.Producer)
	if !ok {
		return nil, apperr.Validation("unknown_producer", "unknown producer %q", in.Producer)
	}

	var farmer models.Farmer
	err := tx.Take(&farmer, in.FarmerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("farmer_not_found", "farmer %d not found", in.FarmerID)
	}
	if err != nil {
		return nil, fmt.Errorf("load farmer: %w", err)
	}
	if farmer.Producer != producer {
		return nil, apperr.Validation("producer_mismatch", "farmer %s delivers to %s, not %s", farmer.Name, farmer.Producer, producer)
	}

	now := s.now()
	batchNumber, err := s.alloc.DailyBatchNumber(tx, now)
	if err != nil {
		return nil, err
	}

	b := models.Batch{
		BatchNumber:   batchNumber,
		FarmerID:      farmer.ID,
		Weight:        in.Weight,
		Type:          coffeeType,
		CommodityType: models.CommodityCherry,
		Producer:      producer,
		TotalBags:     in.TotalBags,
		ReceivedAt:    now,
		CreatedBy:     in.Operator,
	}
	if err := tx.Create(&b).Error; err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	if in.RFID != "" {
		assigned, err := s.tags.Assign(tx, batchNumber, in.RFID)
		if err != nil {
			return nil, err
		}
		if err := s.tags.ConsumeScans(tx, in.RFID, batchNumber); err != nil {
			return nil, fmt.Errorf("consume rfid scans: %w", err)
		}
		b = *assigned
	}

	status := models.CherryInventoryStatus{
		BatchNumber: batchNumber,
		Status:      models.InventoryStored,
		EnteredAt:   now,
	}
	if err := tx.Create(&status).Error; err != nil {
		return nil, fmt.Errorf("create cherry inventory: %w", err)
	}

	log.Infof("received %s: %s kg from farmer %d", batchNumber, in.Weight.StringFixed(2), farmer.ID)
	return &b, nil
}

func (s *Service) Batch(tx *gorm.DB, batchNumber string) (*models.Batch, error) {
	var b models.Batch
	err := tx.Take(&b, "batch_number = ?", batchNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("batch_not_found", "batch %s not found", batchNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("load batch: %w", err)
	}
	return &b, nil
}
