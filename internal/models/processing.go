package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcessingRecord is one preprocessing pass over a received batch.
type ProcessingRecord struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	BatchNumber     string          `gorm:"size:32;index;not null" json:"batch_number"`
	Producer        Producer        `gorm:"size:10;not null" json:"producer"`
	ProductLine     string          `gorm:"size:50;not null" json:"product_line"`
	ProcessingType  string          `gorm:"size:50;not null" json:"processing_type"`
	WeightProcessed decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"weight_processed"`
	LotNumber       string          `gorm:"size:64;index;not null" json:"lot_number"`
	ReferenceNumber string          `gorm:"size:64;not null" json:"reference_number"`
	Finished        bool            `gorm:"not null;default:false" json:"finished"`
	FinishedAt      *time.Time      `json:"finished_at"`
	ProcessedAt     time.Time       `gorm:"not null" json:"processed_at"`
	CreatedBy       string          `gorm:"size:100" json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ReferenceMapping resolves label reference numbers.
type ReferenceMapping struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ProductLine     string     `gorm:"size:50;not null;uniqueIndex:idx_reference_mapping_key" json:"product_line"`
	ProcessingType  string     `gorm:"size:50;not null;uniqueIndex:idx_reference_mapping_key" json:"processing_type"`
	Producer        Producer   `gorm:"size:10;not null;uniqueIndex:idx_reference_mapping_key" json:"producer"`
	Type            CoffeeType `gorm:"size:20;not null;uniqueIndex:idx_reference_mapping_key" json:"type"`
	ReferenceNumber string     `gorm:"size:64;not null" json:"reference_number"`
	CreatedAt       time.Time  `json:"created_at"`
}

type WetMillWeightMeasurement struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	BatchNumber    string          `gorm:"size:32;index;not null" json:"batch_number"`
	ProcessingType string          `gorm:"size:50;not null" json:"processing_type"`
	Producer       Producer        `gorm:"size:10;not null" json:"producer"`
	Weight         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"weight"`
	MeasuredAt     time.Time       `gorm:"not null" json:"measured_at"`
	CreatedBy      string          `gorm:"size:100" json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}
