package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InventoryStatus string

const (
	InventoryStored InventoryStatus = "Stored"
	InventoryPicked InventoryStatus = "Picked"
)

// CherryInventoryStatus tracks a received batch in stock. A non-nil
// OrderID reserves it for an open order.
type CherryInventoryStatus struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	BatchNumber string          `gorm:"size:32;uniqueIndex;not null" json:"batch_number"`
	Status      InventoryStatus `gorm:"size:20;not null" json:"status"`
	EnteredAt   time.Time       `gorm:"not null" json:"entered_at"`
	ExitedAt    *time.Time      `json:"exited_at"`
	OrderID     *uuid.UUID      `gorm:"type:uuid;index" json:"order_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type GreenBeansInventoryStatus struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	BatchNumber       string          `gorm:"size:48;uniqueIndex;not null" json:"batch_number"`
	ParentBatchNumber string          `gorm:"size:32;index;not null" json:"parent_batch_number"`
	ProcessingType    string          `gorm:"size:50" json:"processing_type"`
	Quality           string          `gorm:"size:20" json:"quality"`
	Weight            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"weight"`
	Status            InventoryStatus `gorm:"size:20;not null" json:"status"`
	EnteredAt         time.Time       `gorm:"not null" json:"entered_at"`
	ExitedAt          *time.Time      `json:"exited_at"`
	OrderID           *uuid.UUID      `gorm:"type:uuid;index" json:"order_id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
