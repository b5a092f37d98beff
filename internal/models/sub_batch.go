package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubBatch is a graded output of the dry mill.
// Invariant: the bags under its ID sum to Weight within 0.01 kg.
type SubBatch struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	BatchNumber       string          `gorm:"size:48;uniqueIndex;not null" json:"batch_number"`
	ParentBatchNumber string          `gorm:"size:32;index;not null" json:"parent_batch_number"`
	ProcessingType    string          `gorm:"size:50;not null" json:"processing_type"`
	Quality           string          `gorm:"size:20;not null" json:"quality"`
	Weight            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"weight"`
	TotalBags         int             `gorm:"not null" json:"total_bags"`
	LotNumber         string          `gorm:"size:64;not null" json:"lot_number"`
	ReferenceNumber   string          `gorm:"size:64;not null" json:"reference_number"`
	BaggedAt          *time.Time      `json:"bagged_at"`
	IsStored          bool            `gorm:"not null;default:false" json:"is_stored"`
	StoredDate        *time.Time      `json:"stored_date"`
	CreatedBy         string          `gorm:"size:100" json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	Bags []BagDetail `gorm:"foreignKey:GradeID;constraint:OnDelete:CASCADE" json:"bags,omitempty"`
}

type BagDetail struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	GradeID   uint            `gorm:"index;not null" json:"grade_id"`
	BagNumber int             `gorm:"not null" json:"bag_number"`
	Weight    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"weight"`
	IsStored  bool            `gorm:"not null;default:false" json:"is_stored"`
	CreatedAt time.Time       `json:"created_at"`
}
