package reject

import (
	"testing"
	"time"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/models"
	"coffee-backend/internal/rfid"
	"coffee-backend/internal/sequence"
	"coffee-backend/internal/testutil"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	cons *Consolidator
	tags *rfid.Manager
	f1   models.Farmer
	f2   models.Farmer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f1 := testutil.SeedFarmer(t, db, "F1", models.ProducerHQ)
	f2 := testutil.SeedFarmer(t, db, "F2", models.ProducerHQ)
	testutil.SeedBatch(t, db, "2024-05-01-0001", f1.ID, "100", models.ProducerHQ)
	testutil.SeedBatch(t, db, "2024-05-01-0002", f2.ID, "100", models.ProducerHQ)

	tags := rfid.NewManager()
	clock := testutil.Clock(time.Date(2024, 5, 2, 14, 0, 0, 0, time.UTC))
	return fixture{db: db, cons: NewConsolidator(sequence.NewAllocator(), tags, clock), tags: tags, f1: f1, f2: f2}
}

func (f fixture) scan(t *testing.T, tag string) {
	t.Helper()
	if _, err := f.tags.RecordScan(f.db, tag, models.ScannerReceiving); err != nil {
		t.Fatalf("scan: %v", err)
	}
}

func (f fixture) merge(sources ...SourceInput) (*MergeResult, error) {
	var res *MergeResult
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = f.cons.Merge(tx, MergeInput{Sources: sources, Producer: "HQ", Operator: "op"})
		return err
	})
	return res, err
}

func src(bn, w string) SourceInput {
	return SourceInput{BatchNumber: bn, RejectWeight: testutil.Dec(w)}
}

func TestMergeAttributesDominantFarmer(t *testing.T) {
	f := newFixture(t)
	f.scan(t, "TAG-RJ")

	res, err := f.merge(src("2024-05-01-0001", "10"), src("2024-05-01-0002", "15"))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	b := res.Batch
	if b.BatchNumber != "2024-05-02-0001-RJ" {
		t.Fatalf("batch number %s", b.BatchNumber)
	}
	if !b.Weight.Equal(testutil.Dec("25")) || b.FarmerID != f.f2.ID || b.CommodityType != models.CommodityReject {
		t.Fatalf("unexpected reject batch %+v", b)
	}
	if b.RFID == nil || *b.RFID != "TAG-RJ" || !b.CurrentAssign {
		t.Fatalf("tag not bound: %+v", b)
	}

	sources, err := f.cons.Sources(f.db, b.BatchNumber)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 source rows, got %d", len(sources))
	}
	sum := decimal.Zero
	for _, s := range sources {
		sum = sum.Add(s.RejectWeight)
	}
	if !sum.Equal(b.Weight) {
		t.Fatalf("sources sum to %s, batch weighs %s", sum, b.Weight)
	}

	var ms models.WetMillWeightMeasurement
	if err := f.db.Take(&ms, "batch_number = ?", b.BatchNumber).Error; err != nil {
		t.Fatalf("measurement: %v", err)
	}
	if !ms.Weight.Equal(b.Weight) {
		t.Fatalf("measurement %s", ms.Weight)
	}

	if _, err := f.tags.LatestUnconsumedScan(f.db, models.ScannerReceiving); err == nil {
		t.Fatal("scan was not consumed")
	}

	f.scan(t, "TAG-RJ2")
	second, err := f.merge(src("2024-05-01-0001", "1"), src("2024-05-01-0002", "1"))
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if second.Batch.BatchNumber != "2024-05-02-0002-RJ" {
		t.Fatalf("second reject number %s", second.Batch.BatchNumber)
	}
}

func TestDominantFarmerTieGoesToFirstSeen(t *testing.T) {
	w := map[uint]decimal.Decimal{7: testutil.Dec("10"), 3: testutil.Dec("10"), 9: testutil.Dec("4")}
	if got := DominantFarmer([]uint{7, 3, 9}, w); got != 7 {
		t.Fatalf("tie should go to first seen, got %d", got)
	}
	if got := DominantFarmer([]uint{9, 3}, w); got != 3 {
		t.Fatalf("larger weight should win, got %d", got)
	}
}

func TestMergeFailuresLeaveNothing(t *testing.T) {
	f := newFixture(t)
	other := testutil.SeedFarmer(t, f.db, "F3", models.ProducerBTM)
	testutil.SeedBatch(t, f.db, "2024-05-01-0003", other.ID, "50", models.ProducerBTM)

	tests := []struct {
		name    string
		sources []SourceInput
		code    string
	}{
		{"one source", []SourceInput{src("2024-05-01-0001", "10")}, "insufficient_sources"},
		{"producer mismatch", []SourceInput{src("2024-05-01-0001", "10"), src("2024-05-01-0003", "5")}, "producer_mismatch"},
		{"zero weight", []SourceInput{src("2024-05-01-0001", "10"), src("2024-05-01-0002", "0")}, "invalid_weight"},
		{"duplicate", []SourceInput{src("2024-05-01-0001", "10"), src("2024-05-01-0001", "5")}, "duplicate_source"},
		{"too heavy", []SourceInput{src("2024-05-01-0001", "100.5"), src("2024-05-01-0002", "5")}, "reject_exceeds_batch"},
		{"missing batch", []SourceInput{src("2024-05-01-0001", "10"), src("2099-01-01-0001", "5")}, "batch_not_found"},
		{"no scan", []SourceInput{src("2024-05-01-0001", "10"), src("2024-05-01-0002", "5")}, "rfid_scan_required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.merge(tc.sources...); apperr.CodeOf(err) != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}

	var batches, sources int64
	f.db.Model(&models.Batch{}).Where("commodity_type = ?", models.CommodityReject).Count(&batches)
	f.db.Model(&models.RejectBatchSource{}).Count(&sources)
	if batches != 0 || sources != 0 {
		t.Fatalf("failed merges left %d batches and %d sources", batches, sources)
	}
}

func TestMergeRollsBackWhenTagBusy(t *testing.T) {
	f := newFixture(t)
	if _, err := f.tags.Assign(f.db, "2024-05-01-0001", "TAG-BUSY"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	f.scan(t, "TAG-BUSY")

	_, err := f.merge(src("2024-05-01-0001", "10"), src("2024-05-01-0002", "15"))
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var n int64
	f.db.Model(&models.Batch{}).Where("batch_number LIKE ?", "%-RJ").Count(&n)
	if n != 0 {
		t.Fatalf("rolled back merge left %d reject batches", n)
	}
}
