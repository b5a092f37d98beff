package inventory

import (
	"errors"
	"fmt"
	"time"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/lineage"
	"coffee-backend/internal/lotnumber"
	"coffee-backend/internal/metrics"
	"coffee-backend/internal/models"
	"coffee-backend/internal/rfid"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Machine struct {
	tags *rfid.Manager
	now  func() time.Time
}

func NewMachine(tags *rfid.Manager, now func() time.Time) *Machine {
	return &Machine{tags: tags, now: now}
}

// advance locks the batch and checks that it may move to state to.
func (m *Machine) advance(tx *gorm.DB, batchNumber string, to State) (*models.Batch, error) {
	b, err := lineage.LockBatch(tx, batchNumber)
	if err != nil {
		return nil, err
	}
	from, err := StateOf(tx, batchNumber)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(batchNumber, from, to); err != nil {
		return nil, err
	}
	return b, nil
}

func (m *Machine) StartQC(tx *gorm.DB, batchNumber, operator string) (*models.QCRecord, error) {
	if _, err := m.advance(tx, batchNumber, StateQCPending); err != nil {
		return nil, err
	}
	qc := models.QCRecord{
		BatchNumber: batchNumber,
		Status:      models.QCPending,
		StartedAt:   m.now(),
		CreatedBy:   operator,
	}
	if err := tx.Create(&qc).Error; err != nil {
		return nil, fmt.Errorf("start qc: %w", err)
	}
	metrics.StageTransitions.WithLabelValues("qc", "start").Inc()
	return &qc, nil
}

// FinishQC completes QC, starting it implicitly when it was never started.
func (m *Machine) FinishQC(tx *gorm.DB, batchNumber, notes, operator string) (*models.QCRecord, error) {
	if _, err := m.advance(tx, batchNumber, StateQCDone); err != nil {
		return nil, err
	}
	now := m.now()

	var qc models.QCRecord
	err := tx.Where("batch_number = ?", batchNumber).Take(&qc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		qc = models.QCRecord{BatchNumber: batchNumber, StartedAt: now, CreatedBy: operator}
	} else if err != nil {
		return nil, fmt.Errorf("load qc record: %w", err)
	}
	qc.Status = models.QCDone
	qc.CompletedAt = &now
	qc.Notes = notes
	if err := tx.Save(&qc).Error; err != nil {
		return nil, fmt.Errorf("finish qc: %w", err)
	}
	metrics.StageTransitions.WithLabelValues("qc", "finish").Inc()
	return &qc, nil
}

func (m *Machine) EnterWetMill(tx *gorm.DB, batchNumber, operator string) error {
	return m.enter(tx, batchNumber, operator, StateWetMillEntered, models.WetMillEvent{}.TableName(), "wet_mill")
}

func (m *Machine) ExitWetMill(tx *gorm.DB, batchNumber, operator string) error {
	return m.exit(tx, batchNumber, operator, StateWetMillExited, models.WetMillEvent{}.TableName(), "wet_mill")
}

func (m *Machine) EnterDrying(tx *gorm.DB, batchNumber, operator string) error {
	return m.enter(tx, batchNumber, operator, StateDryingEntered, models.DryingEvent{}.TableName(), "drying")
}

func (m *Machine) ExitDrying(tx *gorm.DB, batchNumber, operator string) error {
	return m.exit(tx, batchNumber, operator, StateDryingExited, models.DryingEvent{}.TableName(), "drying")
}

func (m *Machine) EnterDryMill(tx *gorm.DB, batchNumber, operator string) error {
	return m.enter(tx, batchNumber, operator, StateDryMillEntered, models.DryMillEvent{}.TableName(), "dry_mill")
}

func (m *Machine) enter(tx *gorm.DB, batchNumber, operator string, to State, table, stage string) error {
	if _, err := m.advance(tx, batchNumber, to); err != nil {
		return err
	}
	ev := models.StageEvent{BatchNumber: batchNumber, EnteredAt: m.now(), EnteredBy: operator}
	if err := tx.Table(table).Create(&ev).Error; err != nil {
		return fmt.Errorf("enter %s: %w", stage, err)
	}
	metrics.StageTransitions.WithLabelValues(stage, "enter").Inc()
	return nil
}

func (m *Machine) exit(tx *gorm.DB, batchNumber, operator string, to State, table, stage string) error {
	if _, err := m.advance(tx, batchNumber, to); err != nil {
		return err
	}
	if err := tx.Table(table).
		Where("batch_number = ?", batchNumber).
		Updates(map[string]any{"exited_at": m.now(), "exited_by": operator}).Error; err != nil {
		return fmt.Errorf("exit %s: %w", stage, err)
	}
	metrics.StageTransitions.WithLabelValues(stage, "exit").Inc()
	return nil
}

// Complete closes the dry mill for a batch once every preprocessed
// processing type has an unstored, bagged sub-batch. The batch's tag is
// freed and its sub-batches enter green-bean inventory.
func (m *Machine) Complete(tx *gorm.DB, batchNumber, operator string) ([]models.GreenBeansInventoryStatus, error) {
	if _, err := lineage.LockBatch(tx, batchNumber); err != nil {
		return nil, err
	}
	from, err := StateOf(tx, batchNumber)
	if err != nil {
		return nil, err
	}
	if from == StateGraded || from == StateStored {
		return nil, apperr.Validation("batch_already_completed", "batch %s has already been completed", batchNumber)
	}
	if err := checkTransition(batchNumber, from, StateGraded); err != nil {
		return nil, err
	}

	var types []string
	if err := tx.Model(&models.ProcessingRecord{}).
		Where("batch_number = ?", batchNumber).
		Distinct("processing_type").Pluck("processing_type", &types).Error; err != nil {
		return nil, fmt.Errorf("load processing types: %w", err)
	}
	if len(types) == 0 {
		return nil, apperr.Validation("no_processing_records", "batch %s has no preprocessing records", batchNumber)
	}
	for _, pt := range types {
		var n int64
		if err := tx.Model(&models.SubBatch{}).
			Where("parent_batch_number = ? AND LOWER(processing_type) = LOWER(?)", batchNumber, pt).
			Where("weight > 0 AND bagged_at IS NOT NULL AND is_stored = ?", false).
			Count(&n).Error; err != nil {
			return nil, fmt.Errorf("check sub-batches: %w", err)
		}
		if n == 0 {
			return nil, apperr.Validation("grade_missing", "processing type %s of %s has no bagged sub-batch", pt, batchNumber)
		}
	}

	var cherry models.CherryInventoryStatus
	err = tx.Where("batch_number = ?", batchNumber).Take(&cherry).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load inventory status: %w", err)
	}
	if err == nil && cherry.OrderID != nil {
		return nil, apperr.Conflict("batch_reserved", "batch %s is reserved by order %s", batchNumber, cherry.OrderID)
	}

	now := m.now()
	if err := m.tags.Release(tx, batchNumber); err != nil {
		return nil, err
	}

	var subs []models.SubBatch
	if err := tx.Where("parent_batch_number = ?", batchNumber).Order("id").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("load sub-batches: %w", err)
	}
	rows := make([]models.GreenBeansInventoryStatus, 0, len(subs))
	for _, sb := range subs {
		rows = append(rows, greenBeans(sb, models.InventoryStored, now))
	}
	if len(rows) > 0 {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_number"}},
			DoNothing: true,
		}).Create(&rows).Error; err != nil {
			return nil, fmt.Errorf("create green bean inventory: %w", err)
		}
	}

	if err := tx.Model(&models.CherryInventoryStatus{}).
		Where("batch_number = ?", batchNumber).
		Updates(map[string]any{"status": models.InventoryPicked, "exited_at": now}).Error; err != nil {
		return nil, fmt.Errorf("close cherry inventory: %w", err)
	}
	if err := tx.Model(&models.DryMillEvent{}).
		Where("batch_number = ?", batchNumber).
		Updates(map[string]any{"exited_at": now, "exited_by": operator}).Error; err != nil {
		return nil, fmt.Errorf("exit dry mill: %w", err)
	}

	var out []models.GreenBeansInventoryStatus
	if err := tx.Where("parent_batch_number = ?", batchNumber).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load green bean inventory: %w", err)
	}
	metrics.StageTransitions.WithLabelValues("dry_mill", "complete").Inc()
	log.Infof("batch %s completed with %d sub-batches", batchNumber, len(subs))
	return out, nil
}

// WarehouseScan stores exactly one graded sub-batch and its bags. The
// parent must have completed the dry mill.
func (m *Machine) WarehouseScan(tx *gorm.DB, subBatchNumber string) (*models.SubBatch, error) {
	var sb models.SubBatch
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&sb, "batch_number = ?", subBatchNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("sub_batch_not_found", "sub-batch %s not found", subBatchNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("load sub-batch: %w", err)
	}
	if sb.IsStored {
		return nil, apperr.Conflict("grade_already_stored", "sub-batch %s is already stored", subBatchNumber)
	}
	if sb.BaggedAt == nil || !sb.Weight.IsPositive() {
		return nil, apperr.Validation("sub_batch_not_graded", "sub-batch %s has not been bagged", subBatchNumber)
	}
	state, err := StateOf(tx, sb.ParentBatchNumber)
	if err != nil {
		return nil, err
	}
	if state != StateGraded && state != StateStored {
		return nil, apperr.Validation("stage_out_of_order", "sub-batch %s cannot be stored while %s is %s", subBatchNumber, sb.ParentBatchNumber, state).
			WithDetails("complete the dry mill first")
	}

	now := m.now()
	if err := tx.Model(&sb).Updates(map[string]any{"is_stored": true, "stored_date": now}).Error; err != nil {
		return nil, fmt.Errorf("store sub-batch: %w", err)
	}
	sb.IsStored = true
	sb.StoredDate = &now
	if err := tx.Model(&models.BagDetail{}).Where("grade_id = ?", sb.ID).Update("is_stored", true).Error; err != nil {
		return nil, fmt.Errorf("store bags: %w", err)
	}

	row := greenBeans(sb, models.InventoryStored, now)
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "batch_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "weight", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("upsert green bean inventory: %w", err)
	}

	if err := m.tags.Release(tx, sb.ParentBatchNumber); err != nil {
		return nil, err
	}
	metrics.StageTransitions.WithLabelValues("warehouse", "store").Inc()
	return &sb, nil
}

// HasExitedHandling reports whether the batch has been completed at the
// dry mill. Warehouse scans require completion, so this also covers
// batches with stored grades.
func (m *Machine) HasExitedHandling(tx *gorm.DB, batchNumber string) (bool, error) {
	var n int64
	if err := tx.Model(&models.DryMillEvent{}).
		Where("batch_number = ? AND exited_at IS NOT NULL", batchNumber).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("check dry mill exit: %w", err)
	}
	return n > 0, nil
}

type MeasurementInput struct {
	BatchNumber    string
	ProcessingType string
	Weight         decimal.Decimal
	Operator       string
}

// RecordWeightMeasurement logs a wet-mill weighing for a batch that has
// entered the wet mill and not yet moved on to drying.
func (m *Machine) RecordWeightMeasurement(tx *gorm.DB, in MeasurementInput) (*models.WetMillWeightMeasurement, error) {
	if !in.Weight.IsPositive() {
		return nil, apperr.Validation("invalid_weight", "weight must be positive")
	}
	if _, err := lotnumber.ProcessingAbbrev(in.ProcessingType); err != nil {
		return nil, err
	}
	b, err := lineage.LockBatch(tx, in.BatchNumber)
	if err != nil {
		return nil, err
	}
	st, err := StateOf(tx, in.BatchNumber)
	if err != nil {
		return nil, err
	}
	if st != StateWetMillEntered && st != StateWetMillExited {
		return nil, apperr.Validation("wet_mill_not_entered", "batch %s is not at the wet mill", in.BatchNumber).
			WithDetails("current state %s", st)
	}

	ms := models.WetMillWeightMeasurement{
		BatchNumber:    b.BatchNumber,
		ProcessingType: in.ProcessingType,
		Producer:       b.Producer,
		Weight:         in.Weight,
		MeasuredAt:     m.now(),
		CreatedBy:      in.Operator,
	}
	if err := tx.Create(&ms).Error; err != nil {
		return nil, fmt.Errorf("record weight measurement: %w", err)
	}
	return &ms, nil
}

func greenBeans(sb models.SubBatch, status models.InventoryStatus, at time.Time) models.GreenBeansInventoryStatus {
	return models.GreenBeansInventoryStatus{
		BatchNumber:       sb.BatchNumber,
		ParentBatchNumber: sb.ParentBatchNumber,
		ProcessingType:    sb.ProcessingType,
		Quality:           sb.Quality,
		Weight:            sb.Weight,
		Status:            status,
		EnteredAt:         at,
	}
}
