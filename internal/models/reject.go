package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RejectBatchSource links a reject batch to the batches it consumed.
type RejectBatchSource struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	RejectBatchNumber string          `gorm:"size:32;index;not null" json:"reject_batch_number"`
	SourceBatchNumber string          `gorm:"size:32;index;not null" json:"source_batch_number"`
	FarmerID          uint            `gorm:"not null" json:"farmer_id"`
	RejectWeight      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"reject_weight"`
	Stage             string          `gorm:"size:30;not null" json:"stage"`
	Producer          Producer        `gorm:"size:10;not null" json:"producer"`
	CreatedBy         string          `gorm:"size:100" json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
}
