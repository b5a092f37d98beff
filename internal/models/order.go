package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderOpen      OrderStatus = "Open"
	OrderFulfilled OrderStatus = "Fulfilled"
	OrderCancelled OrderStatus = "Cancelled"
)

type Order struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Customer  string      `gorm:"size:100;not null" json:"customer"`
	Status    OrderStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedBy string      `gorm:"size:100" json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem allocates part of a batch's weight to an order.
type OrderItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderID     uuid.UUID       `gorm:"type:uuid;index;not null" json:"order_id"`
	BatchNumber string          `gorm:"size:32;index;not null" json:"batch_number"`
	Weight      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"weight"`
	CreatedAt   time.Time       `json:"created_at"`
}
