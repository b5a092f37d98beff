// Package lineage records how parent batches split into graded
// sub-batches and how much of a parent is still unallocated.
package lineage

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/lotnumber"
	"coffee-backend/internal/metrics"
	"coffee-backend/internal/models"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WeightTolerance is how far bag weights may drift from a declared weight.
var WeightTolerance = decimal.RequireFromString("0.01")

type GradeInput struct {
	Quality    string            `json:"quality"`
	Weight     decimal.Decimal   `json:"weight"`
	BagWeights []decimal.Decimal `json:"bagWeights"`
}

type SplitInput struct {
	ParentBatchNumber string
	ProcessingType    string
	Grades            []GradeInput
	Operator          string
}

type UpdateBagsInput struct {
	ParentBatchNumber string
	ProcessingType    string
	Quality           string
	Weight            decimal.Decimal
	BagWeights        []decimal.Decimal
	Operator          string
}

type Registry struct {
	seq  lotnumber.Sequencer
	lots *lotnumber.Registry
	now  func() time.Time
}

func NewRegistry(seq lotnumber.Sequencer, lots *lotnumber.Registry, now func() time.Time) *Registry {
	return &Registry{seq: seq, lots: lots, now: now}
}

// LockBatch loads a batch with a row lock held until the transaction
// ends. Splits and order allocations against the same parent serialize
// on it.
func LockBatch(tx *gorm.DB, batchNumber string) (*models.Batch, error) {
	var b models.Batch
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&b, "batch_number = ?", batchNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("batch_not_found", "batch %s not found", batchNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", batchNumber, err)
	}
	return &b, nil
}

// AvailableWeight is the parent's weight minus everything allocated to
// live orders or sub-batches.
func (r *Registry) AvailableWeight(tx *gorm.DB, batchNumber string) (decimal.Decimal, error) {
	var b models.Batch
	err := tx.Take(&b, "batch_number = ?", batchNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, apperr.NotFound("batch_not_found", "batch %s not found", batchNumber)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load batch %s: %w", batchNumber, err)
	}
	return AvailableWeight(tx, &b)
}

// AvailableWeight computes the unallocated weight of an already loaded
// batch. Sub-batches listed in exclude are treated as unallocated, which
// is how a grade being rewritten frees its own weight.
func AvailableWeight(tx *gorm.DB, b *models.Batch, exclude ...uint) (decimal.Decimal, error) {
	live := tx.Model(&models.Order{}).Select("id").Where("status <> ?", models.OrderCancelled)

	var ordered []decimal.Decimal
	if err := tx.Model(&models.OrderItem{}).
		Where("batch_number = ? AND order_id IN (?)", b.BatchNumber, live).
		Pluck("weight", &ordered).Error; err != nil {
		return decimal.Zero, fmt.Errorf("sum order items: %w", err)
	}

	q := tx.Model(&models.SubBatch{}).Where("parent_batch_number = ?", b.BatchNumber)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	var split []decimal.Decimal
	if err := q.Pluck("weight", &split).Error; err != nil {
		return decimal.Zero, fmt.Errorf("sum sub-batches: %w", err)
	}

	return b.Weight.Sub(decimal.Sum(decimal.Zero, ordered...)).Sub(decimal.Sum(decimal.Zero, split...)), nil
}

func InsufficientStock(batchNumber string, requested, available decimal.Decimal) *apperr.Error {
	return apperr.Validation("insufficient_stock", "insufficient stock on batch %s", batchNumber).
		WithDetails("requested %s kg, available %s kg", requested.StringFixed(2), available.StringFixed(2))
}

type gradePlan struct {
	quality  string
	abbrev   string
	weight   decimal.Decimal
	bags     []decimal.Decimal
	existing *models.SubBatch
}

// Split records one or more graded sub-batches for a processing type of
// the parent. A grade that already has a sub-batch is rewritten in place
// and keeps its batch number.
func (r *Registry) Split(tx *gorm.DB, in SplitInput) ([]models.SubBatch, error) {
	if len(in.Grades) == 0 {
		return nil, apperr.Validation("grades_required", "at least one grade is required")
	}

	parent, err := LockBatch(tx, in.ParentBatchNumber)
	if err != nil {
		return nil, err
	}
	if err := requireOpenDryMill(tx, parent.BatchNumber); err != nil {
		return nil, err
	}
	rec, err := processingRecord(tx, parent.BatchNumber, in.ProcessingType)
	if err != nil {
		return nil, err
	}

	plans := make([]gradePlan, 0, len(in.Grades))
	seen := map[string]bool{}
	requested, replaced := decimal.Zero, decimal.Zero
	for _, g := range in.Grades {
		name, abbrev, err := lotnumber.ParseGrade(g.Quality)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, apperr.Validation("duplicate_grade", "grade %s appears more than once", name)
		}
		seen[name] = true

		weight, err := checkBags(name, g.Weight, g.BagWeights)
		if err != nil {
			return nil, err
		}
		existing, err := findSubBatch(tx, parent.BatchNumber, rec.ProcessingType, name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.IsStored {
				return nil, apperr.Conflict("grade_already_stored", "grade %s of %s is already stored", name, parent.BatchNumber)
			}
			replaced = replaced.Add(existing.Weight)
		}
		requested = requested.Add(weight)
		plans = append(plans, gradePlan{quality: name, abbrev: abbrev, weight: weight, bags: g.BagWeights, existing: existing})
	}

	available, err := AvailableWeight(tx, parent)
	if err != nil {
		return nil, err
	}
	if requested.Sub(replaced).GreaterThan(available) {
		return nil, InsufficientStock(parent.BatchNumber, requested.Sub(replaced), available)
	}

	ref, ok, err := lotnumber.ReferenceNumber(tx, rec.ProductLine, rec.ProcessingType, parent.Producer, parent.Type)
	if err != nil {
		return nil, err
	}
	if !ok {
		// preprocessing resolved this mapping already, so the table changed underneath us
		return nil, apperr.Integrity(http.StatusInternalServerError, "reference_mapping_missing", "no reference mapping for %s/%s", rec.ProductLine, rec.ProcessingType).
			WithDetails("producer %s, type %s", parent.Producer, parent.Type)
	}

	now := r.now()
	out := make([]models.SubBatch, 0, len(plans))
	for _, p := range plans {
		sb := p.existing
		if sb == nil {
			sb, err = r.newSubBatch(tx, parent, rec, p, in.Operator)
			if err != nil {
				return nil, err
			}
		}
		sb.Weight = p.weight
		sb.TotalBags = len(p.bags)
		sb.ReferenceNumber = ref
		sb.BaggedAt = &now

		if err := tx.Save(sb).Error; err != nil {
			return nil, fmt.Errorf("save sub-batch %s: %w", sb.BatchNumber, err)
		}
		bags, err := replaceBags(tx, sb.ID, p.bags)
		if err != nil {
			return nil, err
		}
		sb.Bags = bags
		metrics.SubBatchesRecorded.WithLabelValues(p.abbrev).Inc()
		out = append(out, *sb)
	}

	log.Debugf("split %s/%s into %d grades", parent.BatchNumber, rec.ProcessingType, len(out))
	return out, nil
}

func (r *Registry) newSubBatch(tx *gorm.DB, parent *models.Batch, rec *models.ProcessingRecord, p gradePlan, operator string) (*models.SubBatch, error) {
	in := lotnumber.Input{
		Producer:       parent.Producer,
		ProductLine:    rec.ProductLine,
		ProcessingType: rec.ProcessingType,
		Type:           parent.Type,
		Year:           parent.ReceivedAt.Year(),
		Grade:          p.quality,
	}
	key, err := lotnumber.SequenceKey(in)
	if err != nil {
		return nil, err
	}
	if in.Sequence, err = r.seq.LotSequence(tx, key); err != nil {
		return nil, err
	}
	lot, err := r.lots.LotNumber(tx, in)
	if err != nil {
		return nil, err
	}

	// the processing abbreviation keeps grades of different processing
	// types on one parent apart
	return &models.SubBatch{
		BatchNumber:       fmt.Sprintf("%s-%s-%04d-%s", parent.BatchNumber, key.ProcessingType, in.Sequence, p.abbrev),
		ParentBatchNumber: parent.BatchNumber,
		ProcessingType:    rec.ProcessingType,
		Quality:           p.quality,
		LotNumber:         lot,
		CreatedBy:         operator,
	}, nil
}

// UpdateBags rewrites the bags of an existing, not yet stored grade.
func (r *Registry) UpdateBags(tx *gorm.DB, in UpdateBagsInput) (*models.SubBatch, error) {
	parent, err := LockBatch(tx, in.ParentBatchNumber)
	if err != nil {
		return nil, err
	}
	name, abbrev, err := lotnumber.ParseGrade(in.Quality)
	if err != nil {
		return nil, err
	}
	sb, err := findSubBatch(tx, parent.BatchNumber, in.ProcessingType, name)
	if err != nil {
		return nil, err
	}
	if sb == nil {
		return nil, apperr.NotFound("sub_batch_not_found", "no %s sub-batch for %s/%s", name, parent.BatchNumber, in.ProcessingType)
	}
	if sb.IsStored {
		return nil, apperr.Conflict("grade_already_stored", "grade %s of %s is already stored", name, parent.BatchNumber)
	}

	weight, err := checkBags(name, in.Weight, in.BagWeights)
	if err != nil {
		return nil, err
	}
	available, err := AvailableWeight(tx, parent, sb.ID)
	if err != nil {
		return nil, err
	}
	if weight.GreaterThan(available) {
		return nil, InsufficientStock(parent.BatchNumber, weight, available)
	}

	now := r.now()
	sb.Weight = weight
	sb.TotalBags = len(in.BagWeights)
	sb.BaggedAt = &now
	if err := tx.Save(sb).Error; err != nil {
		return nil, fmt.Errorf("save sub-batch %s: %w", sb.BatchNumber, err)
	}
	bags, err := replaceBags(tx, sb.ID, in.BagWeights)
	if err != nil {
		return nil, err
	}
	sb.Bags = bags
	metrics.SubBatchesRecorded.WithLabelValues(abbrev).Inc()
	return sb, nil
}

// SubBatches lists a parent's sub-batches with their bags.
func (r *Registry) SubBatches(tx *gorm.DB, parentBatchNumber string) ([]models.SubBatch, error) {
	var out []models.SubBatch
	err := tx.Preload("Bags", func(db *gorm.DB) *gorm.DB { return db.Order("bag_number") }).
		Where("parent_batch_number = ?", parentBatchNumber).
		Order("processing_type, quality").
		Find(&out).Error
	return out, err
}

// checkBags validates bag weights against the declared weight and
// returns their sum, which becomes the recorded weight.
func checkBags(quality string, declared decimal.Decimal, bags []decimal.Decimal) (decimal.Decimal, error) {
	if len(bags) == 0 {
		return decimal.Zero, apperr.Validation("bags_required", "grade %s needs at least one bag", quality)
	}
	if !declared.IsPositive() {
		return decimal.Zero, apperr.Validation("invalid_weight", "grade %s weight must be positive", quality)
	}
	for i, w := range bags {
		if !w.IsPositive() {
			return decimal.Zero, apperr.Validation("invalid_bag_weight", "bag %d of grade %s must weigh more than zero", i+1, quality)
		}
	}
	sum := decimal.Sum(decimal.Zero, bags...)
	if sum.Sub(declared).Abs().GreaterThan(WeightTolerance) {
		return decimal.Zero, apperr.Integrity(http.StatusBadRequest, "weight_mismatch", "bag weights of grade %s do not add up to its weight", quality).
			WithDetails("bags %s kg, declared %s kg", sum.StringFixed(2), declared.StringFixed(2))
	}
	return sum, nil
}

// replaceBags swaps every bag of a grade with a single batched insert.
func replaceBags(tx *gorm.DB, gradeID uint, weights []decimal.Decimal) ([]models.BagDetail, error) {
	if err := tx.Where("grade_id = ?", gradeID).Delete(&models.BagDetail{}).Error; err != nil {
		return nil, fmt.Errorf("clear bags: %w", err)
	}
	bags := make([]models.BagDetail, len(weights))
	for i, w := range weights {
		bags[i] = models.BagDetail{GradeID: gradeID, BagNumber: i + 1, Weight: w}
	}
	if err := tx.Create(&bags).Error; err != nil {
		return nil, fmt.Errorf("insert bags: %w", err)
	}
	return bags, nil
}

func requireOpenDryMill(tx *gorm.DB, batchNumber string) error {
	var ev models.DryMillEvent
	err := tx.Where("batch_number = ?", batchNumber).Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Validation("dry_mill_not_entered", "batch %s has not entered the dry mill", batchNumber)
	}
	if err != nil {
		return fmt.Errorf("load dry mill event: %w", err)
	}
	if ev.ExitedAt != nil {
		return apperr.Conflict("batch_already_completed", "batch %s has already left the dry mill", batchNumber)
	}
	return nil
}

func processingRecord(tx *gorm.DB, batchNumber, processingType string) (*models.ProcessingRecord, error) {
	var rec models.ProcessingRecord
	err := tx.Where("batch_number = ? AND LOWER(processing_type) = LOWER(?)", batchNumber, processingType).
		Order("id").
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Validation("processing_type_not_recorded", "batch %s has no %q preprocessing", batchNumber, processingType)
	}
	if err != nil {
		return nil, fmt.Errorf("load processing record: %w", err)
	}
	return &rec, nil
}

func findSubBatch(tx *gorm.DB, parent, processingType, quality string) (*models.SubBatch, error) {
	var sb models.SubBatch
	err := tx.Where("parent_batch_number = ? AND LOWER(processing_type) = LOWER(?) AND quality = ?", parent, processingType, quality).
		Take(&sb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sub-batch: %w", err)
	}
	return &sb, nil
}
