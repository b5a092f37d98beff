// Package orders allocates batch weight to customer orders and reserves
// the batches in cherry inventory while an order is open.
package orders

import (
	"errors"
	"fmt"
	"sort"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/lineage"
	"coffee-backend/internal/models"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ItemInput struct {
	BatchNumber string          `json:"batchNumber"`
	Weight      decimal.Decimal `json:"weight"`
}

type Input struct {
	Customer string
	Items    []ItemInput
	Operator string
}

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Create records an order and reserves every batch it draws from.
// Parents are locked in batch-number order so two orders touching the
// same batches cannot deadlock.
func (s *Service) Create(tx *gorm.DB, in Input) (*models.Order, error) {
	if in.Customer == "" {
		return nil, apperr.Validation("customer_required", "customer is required")
	}
	if len(in.Items) == 0 {
		return nil, apperr.Validation("items_required", "an order needs at least one item")
	}

	items := make([]ItemInput, len(in.Items))
	copy(items, in.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].BatchNumber < items[j].BatchNumber })

	batchNumbers := make([]string, 0, len(items))
	for i, it := range items {
		if it.BatchNumber == "" {
			return nil, apperr.Validation("batch_number_required", "item %d has no batch number", i+1)
		}
		if !it.Weight.IsPositive() {
			return nil, apperr.Validation("invalid_weight", "weight for %s must be positive", it.BatchNumber)
		}
		if i > 0 && items[i-1].BatchNumber == it.BatchNumber {
			return nil, apperr.Validation("duplicate_item", "batch %s appears more than once", it.BatchNumber)
		}

		b, err := lineage.LockBatch(tx, it.BatchNumber)
		if err != nil {
			return nil, err
		}
		available, err := lineage.AvailableWeight(tx, b)
		if err != nil {
			return nil, err
		}
		if it.Weight.GreaterThan(available) {
			return nil, lineage.InsufficientStock(b.BatchNumber, it.Weight, available)
		}
		if err := checkUnreserved(tx, b.BatchNumber); err != nil {
			return nil, err
		}
		batchNumbers = append(batchNumbers, b.BatchNumber)
	}

	order := models.Order{
		Customer:  in.Customer,
		Status:    models.OrderOpen,
		CreatedBy: in.Operator,
		Items:     make([]models.OrderItem, len(items)),
	}
	for i, it := range items {
		order.Items[i] = models.OrderItem{BatchNumber: it.BatchNumber, Weight: it.Weight}
	}
	if err := tx.Create(&order).Error; err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := tx.Model(&models.CherryInventoryStatus{}).
		Where("batch_number IN ? AND status = ?", batchNumbers, models.InventoryStored).
		Update("order_id", order.ID).Error; err != nil {
		return nil, fmt.Errorf("reserve batches: %w", err)
	}

	log.Infof("order %s created for %s with %d items", order.ID, order.Customer, len(order.Items))
	return &order, nil
}

func checkUnreserved(tx *gorm.DB, batchNumber string) error {
	var st models.CherryInventoryStatus
	err := tx.Where("batch_number = ?", batchNumber).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load inventory status: %w", err)
	}
	if st.OrderID != nil {
		return apperr.Conflict("batch_reserved", "batch %s is reserved by order %s", batchNumber, st.OrderID)
	}
	return nil
}

// Cancel closes an open order. Its items stop counting as allocated.
func (s *Service) Cancel(tx *gorm.DB, id uuid.UUID) (*models.Order, error) {
	return s.close(tx, id, models.OrderCancelled)
}

// Fulfill closes an open order. Its items stay allocated.
func (s *Service) Fulfill(tx *gorm.DB, id uuid.UUID) (*models.Order, error) {
	return s.close(tx, id, models.OrderFulfilled)
}

func (s *Service) close(tx *gorm.DB, id uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	var order models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("order_not_found", "order %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order.Status != models.OrderOpen {
		return nil, apperr.Conflict("order_not_open", "order %s is already %s", id, order.Status)
	}

	if err := tx.Model(&order).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if err := tx.Model(&models.CherryInventoryStatus{}).
		Where("order_id = ?", id).
		Update("order_id", nil).Error; err != nil {
		return nil, fmt.Errorf("release reservations: %w", err)
	}
	return s.Get(tx, id)
}

func (s *Service) Get(tx *gorm.DB, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := tx.Preload("Items").Take(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("order_not_found", "order %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return &order, nil
}
