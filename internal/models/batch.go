package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Producer string

const (
	ProducerHQ  Producer = "HQ"
	ProducerBTM Producer = "BTM"
)

// ParseProducer accepts the producer code case-insensitively.
func ParseProducer(s string) (Producer, bool) {
	switch Producer(strings.ToUpper(strings.TrimSpace(s))) {
	case ProducerHQ:
		return ProducerHQ, true
	case ProducerBTM:
		return ProducerBTM, true
	}
	return "", false
}

type CoffeeType string

const (
	CoffeeArabica CoffeeType = "Arabica"
	CoffeeRobusta CoffeeType = "Robusta"
)

func ParseCoffeeType(s string) (CoffeeType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arabica":
		return CoffeeArabica, true
	case "robusta":
		return CoffeeRobusta, true
	}
	return "", false
}

type CommodityType string

const (
	CommodityCherry     CommodityType = "Cherry"
	CommodityGreenBeans CommodityType = "GreenBeans"
	CommodityReject     CommodityType = "Reject"
)

type Farmer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Producer  Producer  `gorm:"size:10;not null;index" json:"producer"`
	Village   string    `gorm:"size:100" json:"village"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Batch is created at receiving and never deleted, only transitioned.
type Batch struct {
	BatchNumber   string          `gorm:"primaryKey;size:32" json:"batch_number"`
	FarmerID      uint            `gorm:"index;not null" json:"farmer_id"`
	Weight        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"weight"`
	Type          CoffeeType      `gorm:"size:20;not null" json:"type"`
	CommodityType CommodityType   `gorm:"size:20;not null" json:"commodity_type"`
	Producer      Producer        `gorm:"size:10;not null;index" json:"producer"`
	TotalBags     int             `json:"total_bags"`

	// At most one batch may hold a tag with CurrentAssign set.
	RFID          *string `gorm:"column:rfid;size:64;uniqueIndex:idx_batches_active_rfid,where:current_assign = true" json:"rfid"`
	CurrentAssign bool    `gorm:"not null;default:false" json:"current_assign"`

	ReceivedAt time.Time `gorm:"not null" json:"received_at"`
	CreatedBy  string    `gorm:"size:100" json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
