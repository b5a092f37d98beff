package models

import "time"

type QCStatus string

const (
	QCPending QCStatus = "Pending"
	QCDone    QCStatus = "Done"
)

type QCRecord struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	BatchNumber string     `gorm:"size:32;uniqueIndex;not null" json:"batch_number"`
	Status      QCStatus   `gorm:"size:20;not null" json:"status"`
	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Notes       string     `gorm:"size:255" json:"notes"`
	CreatedBy   string     `gorm:"size:100" json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// StageEvent is the shape shared by the physical stage tables: one row
// per batch, entered once and exited once.
type StageEvent struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	BatchNumber string     `gorm:"size:32;uniqueIndex;not null" json:"batch_number"`
	EnteredAt   time.Time  `gorm:"not null" json:"entered_at"`
	ExitedAt    *time.Time `json:"exited_at"`
	EnteredBy   string     `gorm:"size:100" json:"entered_by"`
	ExitedBy    string     `gorm:"size:100" json:"exited_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type WetMillEvent struct{ StageEvent }

func (WetMillEvent) TableName() string { return "wet_mill_events" }

type DryingEvent struct{ StageEvent }

func (DryingEvent) TableName() string { return "drying_events" }

type DryMillEvent struct{ StageEvent }

func (DryMillEvent) TableName() string { return "dry_mill_events" }
