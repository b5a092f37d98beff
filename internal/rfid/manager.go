// Package rfid binds physical tags to batches. A tag is active on at
// most one batch and a batch holds at most one active tag; both are
// checked before every assignment.
package rfid

import (
	"errors"
	"fmt"
	"strings"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/metrics"
	"coffee-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HandlingChecker reports whether a batch has left physical handling,
// which is when its tag may be reused.
type HandlingChecker interface {
	HasExitedHandling(tx *gorm.DB, batchNumber string) (bool, error)
}

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

func Normalize(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}

func (m *Manager) RecordScan(tx *gorm.DB, tag, scanner string) (*models.RFIDScan, error) {
	tag = Normalize(tag)
	if tag == "" {
		return nil, apperr.Validation("rfid_required", "rfid is required")
	}
	if strings.TrimSpace(scanner) == "" {
		scanner = models.ScannerReceiving
	}
	scan := models.RFIDScan{RFID: tag, Scanner: scanner}
	if err := tx.Create(&scan).Error; err != nil {
		return nil, fmt.Errorf("record rfid scan: %w", err)
	}
	return &scan, nil
}

// LatestUnconsumedScan returns the newest scan from scanner that has not
// been bound to a batch yet.
func (m *Manager) LatestUnconsumedScan(tx *gorm.DB, scanner string) (*models.RFIDScan, error) {
	var scan models.RFIDScan
	err := tx.Where("scanner = ? AND consumed = ?", scanner, false).
		Order("created_at DESC, id DESC").
		Take(&scan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Validation("rfid_scan_required", "no unconsumed %s RFID scan available", scanner)
	}
	if err != nil {
		return nil, fmt.Errorf("load rfid scan: %w", err)
	}
	return &scan, nil
}

// ConsumeScans marks every open scan of tag as used by batchNumber.
func (m *Manager) ConsumeScans(tx *gorm.DB, tag, batchNumber string) error {
	return tx.Model(&models.RFIDScan{}).
		Where("rfid = ? AND consumed = ?", Normalize(tag), false).
		Updates(map[string]any{"consumed": true, "consumed_by": batchNumber}).Error
}

// Holder returns the batch the tag is active on, or nil.
func (m *Manager) Holder(tx *gorm.DB, tag string) (*models.Batch, error) {
	var b models.Batch
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("rfid = ? AND current_assign = ?", Normalize(tag), true).
		Take(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up rfid holder: %w", err)
	}
	return &b, nil
}

// Assign activates tag on batchNumber. Re-assigning the tag a batch
// already holds is a no-op.
func (m *Manager) Assign(tx *gorm.DB, batchNumber, tag string) (*models.Batch, error) {
	tag = Normalize(tag)
	if tag == "" {
		return nil, apperr.Validation("rfid_required", "rfid is required")
	}

	var target models.Batch
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&target, "batch_number = ?", batchNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("batch_not_found", "batch %s not found", batchNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("load batch: %w", err)
	}

	holder, err := m.Holder(tx, tag)
	if err != nil {
		return nil, err
	}
	if holder != nil && holder.BatchNumber != batchNumber {
		metrics.RFIDConflicts.Inc()
		return nil, apperr.Conflict("rfid_in_use", "rfid %s is already assigned", tag).
			WithDetails("active on batch %s", holder.BatchNumber)
	}
	if target.CurrentAssign && target.RFID != nil {
		if *target.RFID == tag {
			return &target, nil
		}
		metrics.RFIDConflicts.Inc()
		return nil, apperr.Conflict("batch_has_rfid", "batch %s already holds an active rfid", batchNumber).
			WithDetails("active tag %s", *target.RFID)
	}

	if err := tx.Model(&target).Updates(map[string]any{"rfid": tag, "current_assign": true}).Error; err != nil {
		return nil, fmt.Errorf("assign rfid: %w", err)
	}
	target.RFID = &tag
	target.CurrentAssign = true
	return &target, nil
}

// Release frees whatever tag the batch holds.
func (m *Manager) Release(tx *gorm.DB, batchNumber string) error {
	err := tx.Model(&models.Batch{}).
		Where("batch_number = ?", batchNumber).
		Updates(map[string]any{"rfid": nil, "current_assign": false}).Error
	if err != nil {
		return fmt.Errorf("release rfid: %w", err)
	}
	return nil
}

// Reuse frees tag from the batch holding it once that batch has left
// physical handling. batchNumber is optional; when given it must be the
// holder.
func (m *Manager) Reuse(tx *gorm.DB, tag, batchNumber string, checker HandlingChecker) (*models.Batch, error) {
	tag = Normalize(tag)
	if tag == "" {
		return nil, apperr.Validation("rfid_required", "rfid is required")
	}

	holder, err := m.Holder(tx, tag)
	if err != nil {
		return nil, err
	}
	if holder == nil {
		return nil, apperr.NotFound("rfid_not_assigned", "rfid %s is not assigned to any batch", tag)
	}
	if batchNumber != "" && holder.BatchNumber != batchNumber {
		return nil, apperr.Conflict("rfid_held_elsewhere", "rfid %s is held by another batch", tag).
			WithDetails("active on batch %s", holder.BatchNumber)
	}

	exited, err := checker.HasExitedHandling(tx, holder.BatchNumber)
	if err != nil {
		return nil, err
	}
	if !exited {
		return nil, apperr.Conflict("batch_in_handling", "batch %s is still in physical handling", holder.BatchNumber)
	}

	if err := m.Release(tx, holder.BatchNumber); err != nil {
		return nil, err
	}
	holder.RFID = nil
	holder.CurrentAssign = false
	return holder, nil
}
