package orders

import (
	"testing"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/lineage"
	"coffee-backend/internal/models"
	"coffee-backend/internal/testutil"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func seed(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutil.NewDB(t)
	f := testutil.SeedFarmer(t, db, "Pak Budi", models.ProducerHQ)
	testutil.SeedBatch(t, db, "2024-05-01-0001", f.ID, "100", models.ProducerHQ)
	testutil.SeedBatch(t, db, "2024-05-01-0002", f.ID, "60", models.ProducerHQ)
	return db
}

func create(t *testing.T, db *gorm.DB, s *Service, items ...ItemInput) (*models.Order, error) {
	t.Helper()
	var order *models.Order
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.Create(tx, Input{Customer: "Roastery A", Items: items, Operator: "tester"})
		return err
	})
	return order, err
}

func reservation(t *testing.T, db *gorm.DB, batchNumber string) *uuid.UUID {
	t.Helper()
	var st models.CherryInventoryStatus
	if err := db.Take(&st, "batch_number = ?", batchNumber).Error; err != nil {
		t.Fatalf("load status: %v", err)
	}
	return st.OrderID
}

func TestCreateReservesBatches(t *testing.T) {
	db := seed(t)
	s := NewService()

	order, err := create(t, db, s,
		ItemInput{BatchNumber: "2024-05-01-0002", Weight: testutil.Dec("20")},
		ItemInput{BatchNumber: "2024-05-01-0001", Weight: testutil.Dec("80")},
	)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.ID == uuid.Nil || order.Status != models.OrderOpen || len(order.Items) != 2 {
		t.Fatalf("unexpected order %+v", order)
	}

	for _, bn := range []string{"2024-05-01-0001", "2024-05-01-0002"} {
		if got := reservation(t, db, bn); got == nil || *got != order.ID {
			t.Fatalf("%s not reserved by %s", bn, order.ID)
		}
	}

	avail, err := lineage.NewRegistry(nil, nil, nil).AvailableWeight(db, "2024-05-01-0001")
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if !avail.Equal(testutil.Dec("20")) {
		t.Fatalf("available %s, want 20", avail)
	}
}

func TestCreateValidation(t *testing.T) {
	db := seed(t)
	s := NewService()

	tests := []struct {
		name  string
		items []ItemInput
		code  string
	}{
		{"no items", nil, "items_required"},
		{"zero weight", []ItemInput{{BatchNumber: "2024-05-01-0001"}}, "invalid_weight"},
		{"duplicate", []ItemInput{
			{BatchNumber: "2024-05-01-0001", Weight: testutil.Dec("1")},
			{BatchNumber: "2024-05-01-0001", Weight: testutil.Dec("1")},
		}, "duplicate_item"},
		{"too heavy", []ItemInput{{BatchNumber: "2024-05-01-0002", Weight: testutil.Dec("60.01")}}, "insufficient_stock"},
		{"unknown batch", []ItemInput{{BatchNumber: "2099-01-01-0001", Weight: testutil.Dec("1")}}, "batch_not_found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := create(t, db, s, tc.items...); apperr.CodeOf(err) != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}

	var n int64
	db.Model(&models.Order{}).Count(&n)
	if n != 0 {
		t.Fatalf("rejected orders left %d rows", n)
	}
}

func TestReservedBatchConflicts(t *testing.T) {
	db := seed(t)
	s := NewService()

	if _, err := create(t, db, s, ItemInput{BatchNumber: "2024-05-01-0001", Weight: testutil.Dec("10")}); err != nil {
		t.Fatalf("first order: %v", err)
	}
	_, err := create(t, db, s,
		ItemInput{BatchNumber: "2024-05-01-0002", Weight: testutil.Dec("10")},
		ItemInput{BatchNumber: "2024-05-01-0001", Weight: testutil.Dec("10")},
	)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if reservation(t, db, "2024-05-01-0002") != nil {
		t.Fatal("failed order left a reservation behind")
	}
}

func TestCancelAndFulfill(t *testing.T) {
	db := seed(t)
	s := NewService()
	reg := lineage.NewRegistry(nil, nil, nil)

	first, err := create(t, db, s, ItemInput{BatchNumber: "2024-05-01-0001", Weight: testutil.Dec("40")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cancelled, err := s.Cancel(db, first.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.OrderCancelled || reservation(t, db, "2024-05-01-0001") != nil {
		t.Fatalf("cancel did not release: %+v", cancelled)
	}
	if avail, _ := reg.AvailableWeight(db, "2024-05-01-0001"); !avail.Equal(testutil.Dec("100")) {
		t.Fatalf("cancelled items still allocated: %s", avail)
	}
	if _, err := s.Cancel(db, first.ID); apperr.CodeOf(err) != "order_not_open" {
		t.Fatalf("expected order_not_open, got %v", err)
	}

	second, err := create(t, db, s, ItemInput{BatchNumber: "2024-05-01-0001", Weight: testutil.Dec("30")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Fulfill(db, second.ID); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if reservation(t, db, "2024-05-01-0001") != nil {
		t.Fatal("fulfilled order still reserves the batch")
	}
	if avail, _ := reg.AvailableWeight(db, "2024-05-01-0001"); !avail.Equal(testutil.Dec("70")) {
		t.Fatalf("fulfilled items should stay allocated: %s", avail)
	}

	if _, err := s.Fulfill(db, uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
