package models

import "time"

const ScannerReceiving = "Receiving"

// RFIDScan is a raw read from a scanner station, consumed when a batch
// is bound to the tag.
type RFIDScan struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RFID       string    `gorm:"column:rfid;size:64;index;not null" json:"rfid"`
	Scanner    string    `gorm:"size:30;index;not null" json:"scanner"`
	Consumed   bool      `gorm:"not null;default:false" json:"consumed"`
	ConsumedBy *string   `gorm:"size:32" json:"consumed_by"`
	CreatedAt  time.Time `json:"created_at"`
}
