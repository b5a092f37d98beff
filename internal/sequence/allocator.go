// Package sequence hands out batch numbers and lot sequences.
//
// Every allocation seeds its counter row with INSERT ... ON CONFLICT DO
// NOTHING and then takes SELECT ... FOR UPDATE on it, so concurrent
// callers serialize on the row and a number is only spent when the
// caller's transaction commits.
package sequence

import (
	"fmt"
	"time"

	"coffee-backend/internal/metrics"
	"coffee-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ScopeReceiving = "receiving"
	ScopeReject    = "reject"
)

const dayLayout = "2006-01-02"

// LotKey scopes a lot sequence. ProductLine and ProcessingType hold
// canonical abbreviations; Grade is empty for ungraded lots.
type LotKey struct {
	Producer       models.Producer
	ProductLine    string
	ProcessingType string
	Year           int
	Grade          string
}

type Allocator struct{}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// DailyBatchNumber returns the next YYYY-MM-DD-NNNN for day. The caller
// decides which calendar the day belongs to.
func (a *Allocator) DailyBatchNumber(tx *gorm.DB, day time.Time) (string, error) {
	d := day.Format(dayLayout)
	row, err := lockDaily(tx, ScopeReceiving, d)
	if err != nil {
		return "", err
	}
	next := row.Value + 1
	if next > 9999 {
		return "", fmt.Errorf("daily batch sequence for %s exhausted", d)
	}
	if err := tx.Model(&models.DailyCounter{}).
		Where("scope = ? AND day = ?", ScopeReceiving, d).
		Update("value", next).Error; err != nil {
		return "", fmt.Errorf("advance daily counter: %w", err)
	}
	metrics.SequenceAllocations.WithLabelValues(ScopeReceiving).Inc()
	return fmt.Sprintf("%s-%04d", d, next), nil
}

// Serialize takes the (scope, day) counter lock without numbering
// anything. Callers that derive numbers from their own queries use it to
// keep concurrent writers apart until commit.
func (a *Allocator) Serialize(tx *gorm.DB, scope string, day time.Time) error {
	_, err := lockDaily(tx, scope, day.Format(dayLayout))
	return err
}

// LotSequence returns the current value for key and stores value+1.
// An absent key starts at 1.
func (a *Allocator) LotSequence(tx *gorm.DB, key LotKey) (int, error) {
	seed := models.LotSequenceCounter{
		Producer:       key.Producer,
		ProductLine:    key.ProductLine,
		ProcessingType: key.ProcessingType,
		Year:           key.Year,
		Grade:          key.Grade,
		Value:          1,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return 0, fmt.Errorf("seed lot counter: %w", err)
	}

	where := tx.Where("producer = ? AND product_line = ? AND processing_type = ? AND year = ? AND grade = ?",
		key.Producer, key.ProductLine, key.ProcessingType, key.Year, key.Grade)

	var row models.LotSequenceCounter
	if err := where.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&row).Error; err != nil {
		return 0, fmt.Errorf("lock lot counter: %w", err)
	}

	if err := tx.Model(&models.LotSequenceCounter{}).
		Where("producer = ? AND product_line = ? AND processing_type = ? AND year = ? AND grade = ?",
			key.Producer, key.ProductLine, key.ProcessingType, key.Year, key.Grade).
		Update("value", row.Value+1).Error; err != nil {
		return 0, fmt.Errorf("advance lot counter: %w", err)
	}

	scope := "lot"
	if key.Grade != "" {
		scope = "graded_lot"
	}
	metrics.SequenceAllocations.WithLabelValues(scope).Inc()
	return row.Value, nil
}

func lockDaily(tx *gorm.DB, scope, day string) (*models.DailyCounter, error) {
	seed := models.DailyCounter{Scope: scope, Day: day}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("seed %s counter: %w", scope, err)
	}

	var row models.DailyCounter
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("scope = ? AND day = ?", scope, day).
		Take(&row).Error; err != nil {
		return nil, fmt.Errorf("lock %s counter: %w", scope, err)
	}
	return &row, nil
}
