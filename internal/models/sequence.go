package models

import "time"

// DailyCounter holds the last number handed out for a scope on a day.
type DailyCounter struct {
	Scope     string `gorm:"primaryKey;size:32"`
	Day       string `gorm:"primaryKey;size:10"` // YYYY-MM-DD
	Value     int    `gorm:"not null"`
	UpdatedAt time.Time
}

// LotSequenceCounter holds the next lot sequence for its key.
// Grade is empty for ungraded lots.
type LotSequenceCounter struct {
	Producer       Producer `gorm:"primaryKey;size:10"`
	ProductLine    string   `gorm:"primaryKey;size:50"`
	ProcessingType string   `gorm:"primaryKey;size:50"`
	Year           int      `gorm:"primaryKey;autoIncrement:false"`
	Grade          string   `gorm:"primaryKey;size:20"`
	Value          int      `gorm:"not null"`
	UpdatedAt      time.Time
}
