// Package reject merges wet-mill rejects from several source batches into
// one new reject batch while keeping per-source provenance.
package reject

import (
	"fmt"
	"sort"
	"time"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/lineage"
	"coffee-backend/internal/metrics"
	"coffee-backend/internal/models"
	"coffee-backend/internal/rfid"
	"coffee-backend/internal/sequence"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	stageWetMill   = "WetMill"
	processingType = "Reject"
)

type SourceInput struct {
	BatchNumber  string          `json:"batchNumber"`
	RejectWeight decimal.Decimal `json:"rejectWeight"`
}

type MergeInput struct {
	Sources  []SourceInput
	Producer string
	Operator string
}

type MergeResult struct {
	Batch   models.Batch               `json:"batch"`
	Sources []models.RejectBatchSource `json:"sources"`
}

type Consolidator struct {
	alloc *sequence.Allocator
	tags  *rfid.Manager
	now   func() time.Time
}

func NewConsolidator(alloc *sequence.Allocator, tags *rfid.Manager, now func() time.Time) *Consolidator {
	return &Consolidator{alloc: alloc, tags: tags, now: now}
}

// Merge creates one reject batch from at least two sources of the same
// producer. The farmer contributing the most reject weight is attributed;
// on a tie the farmer seen first in the input wins.
func (c *Consolidator) Merge(tx *gorm.DB, in MergeInput) (*MergeResult, error) {
	if len(in.Sources) < 2 {
		return nil, apperr.Validation("insufficient_sources", "a reject merge needs at least two source batches")
	}
	producer, ok := models.ParseProducer(in.Producer)
	if !ok {
		return nil, apperr.Validation("unknown_producer", "unknown producer %q", in.Producer)
	}

	seen := map[string]bool{}
	for _, s := range in.Sources {
		if seen[s.BatchNumber] {
			return nil, apperr.Validation("duplicate_source", "batch %s is listed more than once", s.BatchNumber)
		}
		seen[s.BatchNumber] = true
		if !s.RejectWeight.IsPositive() {
			return nil, apperr.Validation("invalid_weight", "reject weight for %s must be positive", s.BatchNumber)
		}
	}

	// lock in a stable order, but keep input order for attribution
	locked := make([]string, 0, len(in.Sources))
	for bn := range seen {
		locked = append(locked, bn)
	}
	sort.Strings(locked)
	batches := make(map[string]*models.Batch, len(locked))
	for _, bn := range locked {
		b, err := lineage.LockBatch(tx, bn)
		if err != nil {
			return nil, err
		}
		batches[bn] = b
	}

	total := decimal.Zero
	perFarmer := map[uint]decimal.Decimal{}
	var farmerOrder []uint
	for _, s := range in.Sources {
		b := batches[s.BatchNumber]
		if b.Producer != producer {
			return nil, apperr.Validation("producer_mismatch", "batch %s belongs to %s, not %s", b.BatchNumber, b.Producer, producer)
		}
		if s.RejectWeight.GreaterThan(b.Weight) {
			return nil, apperr.Validation("reject_exceeds_batch", "reject weight exceeds batch %s", b.BatchNumber).
				WithDetails("reject %s kg, batch %s kg", s.RejectWeight.StringFixed(2), b.Weight.StringFixed(2))
		}
		if _, ok := perFarmer[b.FarmerID]; !ok {
			farmerOrder = append(farmerOrder, b.FarmerID)
		}
		perFarmer[b.FarmerID] = perFarmer[b.FarmerID].Add(s.RejectWeight)
		total = total.Add(s.RejectWeight)
	}
	farmerID := DominantFarmer(farmerOrder, perFarmer)

	now := c.now()
	batchNumber, err := c.nextNumber(tx, now)
	if err != nil {
		return nil, err
	}

	scan, err := c.tags.LatestUnconsumedScan(tx, models.ScannerReceiving)
	if err != nil {
		return nil, err
	}

	first := batches[in.Sources[0].BatchNumber]
	batch := models.Batch{
		BatchNumber:   batchNumber,
		FarmerID:      farmerID,
		Weight:        total,
		Type:          first.Type,
		CommodityType: models.CommodityReject,
		Producer:      producer,
		ReceivedAt:    now,
		CreatedBy:     in.Operator,
	}
	if err := tx.Create(&batch).Error; err != nil {
		return nil, fmt.Errorf("create reject batch: %w", err)
	}
	assigned, err := c.tags.Assign(tx, batchNumber, scan.RFID)
	if err != nil {
		return nil, err
	}
	batch = *assigned
	if err := c.tags.ConsumeScans(tx, scan.RFID, batchNumber); err != nil {
		return nil, fmt.Errorf("consume rfid scan: %w", err)
	}

	ms := models.WetMillWeightMeasurement{
		BatchNumber:    batchNumber,
		ProcessingType: processingType,
		Producer:       producer,
		Weight:         total,
		MeasuredAt:     now,
		CreatedBy:      in.Operator,
	}
	if err := tx.Create(&ms).Error; err != nil {
		return nil, fmt.Errorf("record reject weight: %w", err)
	}

	sources := make([]models.RejectBatchSource, len(in.Sources))
	for i, s := range in.Sources {
		sources[i] = models.RejectBatchSource{
			RejectBatchNumber: batchNumber,
			SourceBatchNumber: s.BatchNumber,
			FarmerID:          batches[s.BatchNumber].FarmerID,
			RejectWeight:      s.RejectWeight,
			Stage:             stageWetMill,
			Producer:          producer,
			CreatedBy:         in.Operator,
		}
	}
	if err := tx.Create(&sources).Error; err != nil {
		return nil, fmt.Errorf("record reject sources: %w", err)
	}

	status := models.CherryInventoryStatus{
		BatchNumber: batchNumber,
		Status:      models.InventoryStored,
		EnteredAt:   now,
	}
	if err := tx.Create(&status).Error; err != nil {
		return nil, fmt.Errorf("create reject inventory: %w", err)
	}

	metrics.RejectMerges.Inc()
	log.Infof("reject batch %s: %s kg from %d sources, farmer %d", batchNumber, total.StringFixed(2), len(sources), farmerID)
	return &MergeResult{Batch: batch, Sources: sources}, nil
}

// nextNumber counts today's reject batches under the reject counter lock
// and returns {day}-{count+1}-RJ.
func (c *Consolidator) nextNumber(tx *gorm.DB, now time.Time) (string, error) {
	if err := c.alloc.Serialize(tx, sequence.ScopeReject, now); err != nil {
		return "", err
	}
	day := now.Format("2006-01-02")
	var n int64
	if err := tx.Model(&models.Batch{}).
		Where("batch_number LIKE ?", day+"-%-RJ").
		Count(&n).Error; err != nil {
		return "", fmt.Errorf("count reject batches: %w", err)
	}
	return fmt.Sprintf("%s-%04d-RJ", day, n+1), nil
}

// DominantFarmer picks the farmer with the largest weight. order is the
// first-seen order; only a strictly larger weight displaces the leader.
func DominantFarmer(order []uint, weights map[uint]decimal.Decimal) uint {
	var best uint
	bestWeight := decimal.Zero
	for i, id := range order {
		if i == 0 || weights[id].GreaterThan(bestWeight) {
			best, bestWeight = id, weights[id]
		}
	}
	return best
}

func (c *Consolidator) Sources(tx *gorm.DB, rejectBatchNumber string) ([]models.RejectBatchSource, error) {
	var out []models.RejectBatchSource
	if err := tx.Where("reject_batch_number = ?", rejectBatchNumber).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load reject sources: %w", err)
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("reject_batch_not_found", "reject batch %s not found", rejectBatchNumber)
	}
	return out, nil
}
