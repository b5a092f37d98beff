package lotnumber

import (
	"errors"
	"fmt"

	"coffee-backend/internal/models"

	"gorm.io/gorm"
)

// ReferenceNumber looks up the label reference for a product line,
// processing type, producer and coffee type. ok is false when no mapping
// exists; callers decide how severe that is.
func ReferenceNumber(tx *gorm.DB, productLine, processingType string, producer models.Producer, coffeeType models.CoffeeType) (ref string, ok bool, err error) {
	var m models.ReferenceMapping
	err = tx.Where("LOWER(product_line) = LOWER(?) AND LOWER(processing_type) = LOWER(?) AND producer = ? AND type = ?",
		productLine, processingType, producer, coffeeType).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("look up reference mapping: %w", err)
	}
	return m.ReferenceNumber, true, nil
}
