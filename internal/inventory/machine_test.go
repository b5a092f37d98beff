package inventory

import (
	"testing"
	"time"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/lineage"
	"coffee-backend/internal/lotnumber"
	"coffee-backend/internal/models"
	"coffee-backend/internal/rfid"
	"coffee-backend/internal/sequence"
	"coffee-backend/internal/testutil"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const bn = "2024-05-01-0001"

type fixture struct {
	db    *gorm.DB
	m     *Machine
	tags  *rfid.Manager
	lines *lineage.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := testutil.SeedFarmer(t, db, "Ibu Sari", models.ProducerHQ)
	testutil.SeedBatch(t, db, bn, f.ID, "200", models.ProducerHQ)
	testutil.SeedReferenceMapping(t, db, "Regional Lot", "Natural", models.ProducerHQ, "REF-RL-N")

	clock := testutil.Clock(time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC))
	alloc := sequence.NewAllocator()
	tags := rfid.NewManager()
	return fixture{
		db:    db,
		m:     NewMachine(tags, clock),
		tags:  tags,
		lines: lineage.NewRegistry(alloc, lotnumber.NewRegistry(alloc), clock),
	}
}

func (f fixture) state(t *testing.T) State {
	t.Helper()
	st, err := StateOf(f.db, bn)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return st
}

// toDryMill walks the batch through every stage up to the dry mill.
func (f fixture) toDryMill(t *testing.T) {
	t.Helper()
	steps := []struct {
		name string
		run  func() error
		want State
	}{
		{"start qc", func() error { _, err := f.m.StartQC(f.db, bn, "op"); return err }, StateQCPending},
		{"finish qc", func() error { _, err := f.m.FinishQC(f.db, bn, "ok", "op"); return err }, StateQCDone},
		{"enter wet mill", func() error { return f.m.EnterWetMill(f.db, bn, "op") }, StateWetMillEntered},
		{"exit wet mill", func() error { return f.m.ExitWetMill(f.db, bn, "op") }, StateWetMillExited},
		{"enter drying", func() error { return f.m.EnterDrying(f.db, bn, "op") }, StateDryingEntered},
		{"exit drying", func() error { return f.m.ExitDrying(f.db, bn, "op") }, StateDryingExited},
		{"enter dry mill", func() error { return f.m.EnterDryMill(f.db, bn, "op") }, StateDryMillEntered},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if got := f.state(t); got != s.want {
			t.Fatalf("after %s: state %s, want %s", s.name, got, s.want)
		}
	}
}

func (f fixture) split(t *testing.T, processingType, quality string, bags ...string) models.SubBatch {
	t.Helper()
	weights := make([]decimal.Decimal, len(bags))
	for i, b := range bags {
		weights[i] = testutil.Dec(b)
	}
	var subs []models.SubBatch
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		subs, err = f.lines.Split(tx, lineage.SplitInput{
			ParentBatchNumber: bn,
			ProcessingType:    processingType,
			Grades: []lineage.GradeInput{{
				Quality:    quality,
				Weight:     decimal.Sum(decimal.Zero, weights...),
				BagWeights: weights,
			}},
		})
		return err
	})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	return subs[0]
}

func (f fixture) complete() ([]models.GreenBeansInventoryStatus, error) {
	var rows []models.GreenBeansInventoryStatus
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		rows, err = f.m.Complete(tx, bn, "op")
		return err
	})
	return rows, err
}

func TestFullFlow(t *testing.T) {
	f := newFixture(t)
	if got := f.state(t); got != StateReceived {
		t.Fatalf("initial state %s", got)
	}
	if _, err := f.tags.Assign(f.db, bn, "TAG-01"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	f.toDryMill(t)
	testutil.SeedProcessing(t, f.db, bn, "Regional Lot", "Natural", "200", "HQ24RL-N-0001")
	sb := f.split(t, "Natural", "Specialty", "50", "50")

	rows, err := f.complete()
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(rows) != 1 || rows[0].BatchNumber != sb.BatchNumber || rows[0].Status != models.InventoryStored {
		t.Fatalf("unexpected green bean rows %+v", rows)
	}
	if got := f.state(t); got != StateGraded {
		t.Fatalf("state after complete %s", got)
	}

	var parent models.Batch
	f.db.Take(&parent, "batch_number = ?", bn)
	if parent.RFID != nil || parent.CurrentAssign {
		t.Fatalf("tag not released: %+v", parent)
	}
	var cherry models.CherryInventoryStatus
	f.db.Take(&cherry, "batch_number = ?", bn)
	if cherry.Status != models.InventoryPicked || cherry.ExitedAt == nil {
		t.Fatalf("cherry inventory not closed: %+v", cherry)
	}

	// completing twice is rejected and changes nothing
	if _, err := f.complete(); apperr.CodeOf(err) != "batch_already_completed" || !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected batch_already_completed, got %v", err)
	}
	var n int64
	f.db.Model(&models.GreenBeansInventoryStatus{}).Count(&n)
	if n != 1 {
		t.Fatalf("green bean rows after second complete: %d", n)
	}

	stored, err := f.m.WarehouseScan(f.db, sb.BatchNumber)
	if err != nil {
		t.Fatalf("warehouse scan: %v", err)
	}
	if !stored.IsStored || stored.StoredDate == nil {
		t.Fatalf("sub-batch not stored: %+v", stored)
	}
	f.db.Model(&models.BagDetail{}).Where("grade_id = ? AND is_stored = ?", sb.ID, false).Count(&n)
	if n != 0 {
		t.Fatalf("%d bags left unstored", n)
	}
	if got := f.state(t); got != StateStored {
		t.Fatalf("state after warehouse scan %s", got)
	}

	if _, err := f.m.WarehouseScan(f.db, sb.BatchNumber); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("second scan should conflict, got %v", err)
	}
	if _, err := f.m.WarehouseScan(f.db, "nope"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStageGuards(t *testing.T) {
	f := newFixture(t)

	if err := f.m.EnterDrying(f.db, bn, "op"); apperr.CodeOf(err) != "stage_out_of_order" {
		t.Fatalf("expected stage_out_of_order, got %v", err)
	}
	if err := f.m.EnterWetMill(f.db, bn, "op"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("wet mill before qc should be a validation error, got %v", err)
	}

	// QC may be finished without being started
	if _, err := f.m.FinishQC(f.db, bn, "", "op"); err != nil {
		t.Fatalf("finish qc: %v", err)
	}
	if _, err := f.m.StartQC(f.db, bn, "op"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("restarting qc should conflict, got %v", err)
	}

	if err := f.m.EnterWetMill(f.db, bn, "op"); err != nil {
		t.Fatalf("enter wet mill: %v", err)
	}
	if err := f.m.EnterWetMill(f.db, bn, "op"); apperr.CodeOf(err) != "stage_already_recorded" {
		t.Fatalf("expected stage_already_recorded, got %v", err)
	}
	if err := f.m.EnterDrying(f.db, bn, "op"); apperr.CodeOf(err) != "stage_out_of_order" {
		t.Fatalf("drying before wet mill exit: %v", err)
	}

	if _, err := StateOf(f.db, "2099-01-01-0001"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCompleteGuards(t *testing.T) {
	f := newFixture(t)
	f.toDryMill(t)
	testutil.SeedReferenceMapping(t, f.db, "Regional Lot", "Washed", models.ProducerHQ, "REF-RL-W")
	testutil.SeedProcessing(t, f.db, bn, "Regional Lot", "Natural", "100", "HQ24RL-N-0001")
	testutil.SeedProcessing(t, f.db, bn, "Regional Lot", "Washed", "100", "HQ24RL-W-0001")
	f.split(t, "Natural", "Grade 1", "40")

	if _, err := f.complete(); apperr.CodeOf(err) != "grade_missing" {
		t.Fatalf("expected grade_missing, got %v", err)
	}
	f.split(t, "Washed", "Specialty", "30", "30")

	order := models.Order{Customer: "Roastery A", Status: models.OrderOpen,
		Items: []models.OrderItem{{BatchNumber: bn, Weight: testutil.Dec("10")}}}
	if err := f.db.Create(&order).Error; err != nil {
		t.Fatalf("order: %v", err)
	}
	f.db.Model(&models.CherryInventoryStatus{}).Where("batch_number = ?", bn).Update("order_id", order.ID)

	if _, err := f.complete(); apperr.CodeOf(err) != "batch_reserved" || !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected batch_reserved conflict, got %v", err)
	}
	if got := f.state(t); got != StateDryMillEntered {
		t.Fatalf("failed complete moved state to %s", got)
	}

	f.db.Model(&models.CherryInventoryStatus{}).Where("batch_number = ?", bn).Update("order_id", nil)
	rows, err := f.complete()
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 green bean rows, got %d", len(rows))
	}
}

func TestSameGradeUnderTwoProcessingTypesCompletes(t *testing.T) {
	f := newFixture(t)
	f.toDryMill(t)
	testutil.SeedReferenceMapping(t, f.db, "Regional Lot", "Washed", models.ProducerHQ, "REF-RL-W")
	testutil.SeedProcessing(t, f.db, bn, "Regional Lot", "Natural", "100", "HQ24RL-N-0001")
	testutil.SeedProcessing(t, f.db, bn, "Regional Lot", "Washed", "100", "HQ24RL-W-0001")

	natural := f.split(t, "Natural", "Specialty", "50")
	washed := f.split(t, "Washed", "Specialty", "40")
	if natural.BatchNumber == washed.BatchNumber {
		t.Fatalf("processing types share sub-batch %s", natural.BatchNumber)
	}

	rows, err := f.complete()
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 green bean rows, got %d", len(rows))
	}
	for _, sb := range []models.SubBatch{natural, washed} {
		if _, err := f.m.WarehouseScan(f.db, sb.BatchNumber); err != nil {
			t.Fatalf("scan %s: %v", sb.BatchNumber, err)
		}
	}
	if got := f.state(t); got != StateStored {
		t.Fatalf("state %s, want %s", got, StateStored)
	}
}

func TestWarehouseScanBeforeComplete(t *testing.T) {
	f := newFixture(t)
	if _, err := f.tags.Assign(f.db, bn, "TAG-03"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	f.toDryMill(t)
	testutil.SeedProcessing(t, f.db, bn, "Regional Lot", "Natural", "200", "HQ24RL-N-0001")
	sb := f.split(t, "Natural", "Specialty", "50")

	_, err := f.m.WarehouseScan(f.db, sb.BatchNumber)
	if apperr.CodeOf(err) != "stage_out_of_order" || !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected stage_out_of_order, got %v", err)
	}
	var reloaded models.SubBatch
	f.db.Take(&reloaded, sb.ID)
	if reloaded.IsStored {
		t.Fatal("refused scan stored the sub-batch")
	}
	var parent models.Batch
	f.db.Take(&parent, "batch_number = ?", bn)
	if parent.RFID == nil || !parent.CurrentAssign {
		t.Fatalf("refused scan released the tag: %+v", parent)
	}

	if _, err := f.complete(); err != nil {
		t.Fatalf("complete after refused scan: %v", err)
	}
	if _, err := f.m.WarehouseScan(f.db, sb.BatchNumber); err != nil {
		t.Fatalf("scan after complete: %v", err)
	}
	if got := f.state(t); got != StateStored {
		t.Fatalf("state %s, want %s", got, StateStored)
	}
}

func TestTagReuseAfterHandling(t *testing.T) {
	f := newFixture(t)
	if _, err := f.tags.Assign(f.db, bn, "TAG-07"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	f.toDryMill(t)

	if _, err := f.tags.Reuse(f.db, "TAG-07", bn, f.m); apperr.CodeOf(err) != "batch_in_handling" {
		t.Fatalf("expected batch_in_handling, got %v", err)
	}

	testutil.SeedProcessing(t, f.db, bn, "Regional Lot", "Natural", "200", "HQ24RL-N-0001")
	f.split(t, "Natural", "Specialty", "20")
	if _, err := f.complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}

	exited, err := f.m.HasExitedHandling(f.db, bn)
	if err != nil || !exited {
		t.Fatalf("completed batch should have exited handling: %v %v", exited, err)
	}
	// completion already freed the tag
	if _, err := f.tags.Reuse(f.db, "TAG-07", bn, f.m); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for a freed tag, got %v", err)
	}
}

func TestWeightMeasurement(t *testing.T) {
	f := newFixture(t)
	in := MeasurementInput{BatchNumber: bn, ProcessingType: "Natural", Weight: testutil.Dec("180.5"), Operator: "op"}

	if _, err := f.m.RecordWeightMeasurement(f.db, in); apperr.CodeOf(err) != "wet_mill_not_entered" {
		t.Fatalf("expected wet_mill_not_entered, got %v", err)
	}
	if _, err := f.m.FinishQC(f.db, bn, "", "op"); err != nil {
		t.Fatalf("qc: %v", err)
	}
	if err := f.m.EnterWetMill(f.db, bn, "op"); err != nil {
		t.Fatalf("enter wet mill: %v", err)
	}
	ms, err := f.m.RecordWeightMeasurement(f.db, in)
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	if ms.Producer != models.ProducerHQ || !ms.Weight.Equal(testutil.Dec("180.5")) {
		t.Fatalf("unexpected measurement %+v", ms)
	}
}
