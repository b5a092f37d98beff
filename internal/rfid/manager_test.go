package rfid

import (
	"testing"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/models"
	"coffee-backend/internal/testutil"

	"gorm.io/gorm"
)

type stubChecker map[string]bool

func (s stubChecker) HasExitedHandling(_ *gorm.DB, batchNumber string) (bool, error) {
	return s[batchNumber], nil
}

func seed(t *testing.T) *gorm.DB {
	db := testutil.NewDB(t)
	f := testutil.SeedFarmer(t, db, "Pak Budi", models.ProducerHQ)
	testutil.SeedBatch(t, db, "2024-05-01-0001", f.ID, "100", models.ProducerHQ)
	testutil.SeedBatch(t, db, "2024-05-01-0002", f.ID, "80", models.ProducerHQ)
	return db
}

func activeHolders(t *testing.T, db *gorm.DB, tag string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.Batch{}).Where("rfid = ? AND current_assign = ?", tag, true).Count(&n).Error; err != nil {
		t.Fatalf("count holders: %v", err)
	}
	return n
}

func TestAssignRejectsTagActiveElsewhere(t *testing.T) {
	db := seed(t)
	m := NewManager()

	if _, err := m.Assign(db, "2024-05-01-0001", " tag-01 "); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	_, err := m.Assign(db, "2024-05-01-0002", "TAG-01")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if apperr.CodeOf(err) != "rfid_in_use" {
		t.Fatalf("unexpected code %q", apperr.CodeOf(err))
	}
	if n := activeHolders(t, db, "TAG-01"); n != 1 {
		t.Fatalf("tag active on %d batches", n)
	}
}

func TestAssignRejectsSecondTagOnBatch(t *testing.T) {
	db := seed(t)
	m := NewManager()

	if _, err := m.Assign(db, "2024-05-01-0001", "TAG-01"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := m.Assign(db, "2024-05-01-0001", "TAG-01"); err != nil {
		t.Fatalf("re-assigning the same tag should be a no-op: %v", err)
	}
	_, err := m.Assign(db, "2024-05-01-0001", "TAG-02")
	if apperr.CodeOf(err) != "batch_has_rfid" {
		t.Fatalf("expected batch_has_rfid, got %v", err)
	}
}

func TestAssignUnknownBatch(t *testing.T) {
	db := seed(t)
	_, err := NewManager().Assign(db, "2099-01-01-0001", "TAG-01")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReleaseMakesTagAssignableAgain(t *testing.T) {
	db := seed(t)
	m := NewManager()

	if _, err := m.Assign(db, "2024-05-01-0001", "TAG-01"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := m.Release(db, "2024-05-01-0001"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := m.Assign(db, "2024-05-01-0002", "TAG-01"); err != nil {
		t.Fatalf("assign after release: %v", err)
	}

	var first models.Batch
	db.Take(&first, "batch_number = ?", "2024-05-01-0001")
	if first.RFID != nil || first.CurrentAssign {
		t.Fatalf("released batch still holds tag: %+v", first)
	}
}

func TestReuse(t *testing.T) {
	db := seed(t)
	m := NewManager()
	if _, err := m.Assign(db, "2024-05-01-0001", "TAG-01"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	t.Run("unknown tag", func(t *testing.T) {
		_, err := m.Reuse(db, "TAG-99", "", stubChecker{})
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("wrong batch", func(t *testing.T) {
		_, err := m.Reuse(db, "TAG-01", "2024-05-01-0002", stubChecker{"2024-05-01-0001": true})
		if !apperr.Is(err, apperr.KindConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("still in handling", func(t *testing.T) {
		_, err := m.Reuse(db, "TAG-01", "", stubChecker{})
		if apperr.CodeOf(err) != "batch_in_handling" {
			t.Fatalf("expected batch_in_handling, got %v", err)
		}
	})

	t.Run("exited", func(t *testing.T) {
		b, err := m.Reuse(db, "tag-01", "2024-05-01-0001", stubChecker{"2024-05-01-0001": true})
		if err != nil {
			t.Fatalf("reuse: %v", err)
		}
		if b.BatchNumber != "2024-05-01-0001" {
			t.Fatalf("released wrong batch %s", b.BatchNumber)
		}
		if n := activeHolders(t, db, "TAG-01"); n != 0 {
			t.Fatalf("tag still active on %d batches", n)
		}
	})
}

func TestLatestUnconsumedScan(t *testing.T) {
	db := seed(t)
	m := NewManager()

	if _, err := m.LatestUnconsumedScan(db, models.ScannerReceiving); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error with no scans, got %v", err)
	}

	if _, err := m.RecordScan(db, "TAG-01", ""); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, err := m.RecordScan(db, "TAG-02", models.ScannerReceiving); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, err := m.RecordScan(db, "TAG-03", "Dry Mill"); err != nil {
		t.Fatalf("scan: %v", err)
	}

	scan, err := m.LatestUnconsumedScan(db, models.ScannerReceiving)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if scan.RFID != "TAG-02" {
		t.Fatalf("expected TAG-02, got %s", scan.RFID)
	}

	if err := m.ConsumeScans(db, "TAG-02", "2024-05-01-0001"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	scan, err = m.LatestUnconsumedScan(db, models.ScannerReceiving)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if scan.RFID != "TAG-01" {
		t.Fatalf("expected TAG-01 after consuming TAG-02, got %s", scan.RFID)
	}
}
