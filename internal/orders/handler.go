package orders

import (
	"fmt"

	"coffee-backend/internal/audit"
	"coffee-backend/internal/auth"
	"coffee-backend/internal/database"
	"coffee-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreateOrderRequest struct {
	Customer string      `json:"customer"`
	Items    []ItemInput `json:"items"`
}

// POST /api/orders
func CreateOrderHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		operator := auth.Operator(c)
		var order *models.Order
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			order, err = s.Create(tx, Input{Customer: body.Customer, Items: body.Items, Operator: operator})
			if err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "order",
				EntityID:    order.ID.String(),
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("order for %s with %d items", order.Customer, len(order.Items)),
				After:       order,
			})
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message": "Order created",
			"order":   order,
		})
	}
}

// GET /api/orders/:id
func GetOrderHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := orderID(c)
		if err != nil {
			return err
		}
		order, err := s.Get(database.DB, id)
		if err != nil {
			return err
		}
		return c.JSON(order)
	}
}

// POST /api/orders/:id/cancel
func CancelOrderHandler(s *Service) fiber.Handler {
	return closeHandler(s.Cancel, "Order cancelled")
}

// POST /api/orders/:id/fulfill
func FulfillOrderHandler(s *Service) fiber.Handler {
	return closeHandler(s.Fulfill, "Order fulfilled")
}

func closeHandler(closeFn func(*gorm.DB, uuid.UUID) (*models.Order, error), message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := orderID(c)
		if err != nil {
			return err
		}

		operator := auth.Operator(c)
		var order *models.Order
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			order, err = closeFn(tx, id)
			if err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "order",
				EntityID:    order.ID.String(),
				Action:      models.AuditActionTransition,
				Description: fmt.Sprintf("order %s", order.Status),
				After:       order,
			})
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"message": message,
			"order":   order,
		})
	}
}

func orderID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}
	return id, nil
}
