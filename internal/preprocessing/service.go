// Package preprocessing records which product line and processing type
// each part of a received batch goes into, and assigns its lot number.
package preprocessing

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/lineage"
	"coffee-backend/internal/lotnumber"
	"coffee-backend/internal/models"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Input struct {
	BatchNumber     string
	ProductLine     string
	ProcessingType  string
	WeightProcessed decimal.Decimal
	Operator        string
}

type Service struct {
	lots *lotnumber.Registry
	now  func() time.Time
}

func NewService(lots *lotnumber.Registry, now func() time.Time) *Service {
	return &Service{lots: lots, now: now}
}

func (s *Service) Create(tx *gorm.DB, in Input) (*models.ProcessingRecord, error) {
	if in.ProductLine == "" || in.ProcessingType == "" {
		return nil, apperr.Validation("missing_fields", "productLine and processingType are required")
	}
	if !in.WeightProcessed.IsPositive() {
		return nil, apperr.Validation("invalid_weight", "weightProcessed must be positive")
	}
	if _, err := lotnumber.ProductLineAbbrev(in.ProductLine); err != nil {
		return nil, err
	}
	if _, err := lotnumber.ProcessingAbbrev(in.ProcessingType); err != nil {
		return nil, err
	}

	b, err := lineage.LockBatch(tx, in.BatchNumber)
	if err != nil {
		return nil, err
	}
	if err := requireQCDone(tx, b.BatchNumber); err != nil {
		return nil, err
	}

	var graded int64
	if err := tx.Model(&models.SubBatch{}).Where("parent_batch_number = ?", b.BatchNumber).Count(&graded).Error; err != nil {
		return nil, fmt.Errorf("count sub-batches: %w", err)
	}
	if graded > 0 {
		return nil, apperr.Validation("batch_already_graded", "batch %s has already been graded", b.BatchNumber)
	}

	var existing []models.ProcessingRecord
	if err := tx.Where("batch_number = ?", b.BatchNumber).Order("id").Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("load processing records: %w", err)
	}
	processed := in.WeightProcessed
	for _, r := range existing {
		if r.Finished {
			return nil, apperr.Conflict("preprocessing_finished", "preprocessing of %s is already finished", b.BatchNumber)
		}
		processed = processed.Add(r.WeightProcessed)
	}
	if processed.GreaterThan(b.Weight) {
		return nil, apperr.Validation("weight_exceeds_batch", "processed weight exceeds batch %s", b.BatchNumber).
			WithDetails("processed %s kg, batch %s kg", processed.StringFixed(2), b.Weight.StringFixed(2))
	}

	ref, ok, err := lotnumber.ReferenceNumber(tx, in.ProductLine, in.ProcessingType, b.Producer, b.Type)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Integrity(http.StatusBadRequest, "reference_mapping_missing", "no reference mapping for %s/%s", in.ProductLine, in.ProcessingType).
			WithDetails("producer %s, type %s", b.Producer, b.Type)
	}

	lot := ""
	for _, r := range existing {
		if sameLine(r, in) {
			lot = r.LotNumber
			break
		}
	}
	if lot == "" {
		lot, err = s.lots.LotNumber(tx, lotnumber.Input{
			Producer:       b.Producer,
			ProductLine:    in.ProductLine,
			ProcessingType: in.ProcessingType,
			Type:           b.Type,
			Year:           b.ReceivedAt.Year(),
		})
		if err != nil {
			return nil, err
		}
	}

	rec := models.ProcessingRecord{
		BatchNumber:     b.BatchNumber,
		Producer:        b.Producer,
		ProductLine:     in.ProductLine,
		ProcessingType:  in.ProcessingType,
		WeightProcessed: in.WeightProcessed,
		LotNumber:       lot,
		ReferenceNumber: ref,
		ProcessedAt:     s.now(),
		CreatedBy:       in.Operator,
	}
	if err := tx.Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("create processing record: %w", err)
	}
	log.Infof("preprocessing %s: %s %s kg as %s", b.BatchNumber, in.ProcessingType, in.WeightProcessed.StringFixed(2), lot)
	return &rec, nil
}

// Finish closes preprocessing for a batch; no further records may be added.
func (s *Service) Finish(tx *gorm.DB, batchNumber string) ([]models.ProcessingRecord, error) {
	if _, err := lineage.LockBatch(tx, batchNumber); err != nil {
		return nil, err
	}
	records, err := s.Records(tx, batchNumber)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.NotFound("processing_not_found", "batch %s has no preprocessing records", batchNumber)
	}
	for _, r := range records {
		if r.Finished {
			return nil, apperr.Conflict("preprocessing_finished", "preprocessing of %s is already finished", batchNumber)
		}
	}

	now := s.now()
	if err := tx.Model(&models.ProcessingRecord{}).
		Where("batch_number = ?", batchNumber).
		Updates(map[string]any{"finished": true, "finished_at": now}).Error; err != nil {
		return nil, fmt.Errorf("finish preprocessing: %w", err)
	}
	for i := range records {
		records[i].Finished = true
		records[i].FinishedAt = &now
	}
	return records, nil
}

func (s *Service) Records(tx *gorm.DB, batchNumber string) ([]models.ProcessingRecord, error) {
	var out []models.ProcessingRecord
	if err := tx.Where("batch_number = ?", batchNumber).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load processing records: %w", err)
	}
	return out, nil
}

func requireQCDone(tx *gorm.DB, batchNumber string) error {
	var qc models.QCRecord
	err := tx.Where("batch_number = ?", batchNumber).Take(&qc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && qc.Status != models.QCDone) {
		return apperr.Validation("qc_not_finished", "batch %s has not finished QC", batchNumber)
	}
	if err != nil {
		return fmt.Errorf("load qc record: %w", err)
	}
	return nil
}

func sameLine(r models.ProcessingRecord, in Input) bool {
	return strings.EqualFold(strings.TrimSpace(r.ProductLine), strings.TrimSpace(in.ProductLine)) &&
		strings.EqualFold(strings.TrimSpace(r.ProcessingType), strings.TrimSpace(in.ProcessingType))
}
