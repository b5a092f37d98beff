package receiving

import (
	"fmt"

	"coffee-backend/internal/audit"
	"coffee-backend/internal/auth"
	"coffee-backend/internal/database"
	"coffee-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReceiveRequest struct {
	FarmerID  uint            `json:"farmerId"`
	Weight    decimal.Decimal `json:"weight"`
	Type      string          `json:"type"`
	Producer  string          `json:"producer"`
	TotalBags int             `json:"totalBags"`
	RFID      string          `json:"rfid"`
}

// POST /api/receiving
func ReceiveHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ReceiveRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.FarmerID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "farmerId is required")
		}

		operator := auth.Operator(c)
		var b *models.Batch
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			b, err = s.Receive(tx, ReceiveInput{
				FarmerID:  body.FarmerID,
				Weight:    body.Weight,
				Type:      body.Type,
				Producer:  body.Producer,
				TotalBags: body.TotalBags,
				RFID:      body.RFID,
				Operator:  operator,
			})
			if err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "batch",
				EntityID:    b.BatchNumber,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("received %s kg %s cherries", b.Weight.StringFixed(2), b.Type),
				After:       b,
			})
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":     "Batch received",
			"batchNumber": b.BatchNumber,
			"batch":       b,
		})
	}
}

// GET /api/batches/:batchNumber
func GetBatchHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := s.Batch(database.DB, c.Params("batchNumber"))
		if err != nil {
			return err
		}
		return c.JSON(b)
	}
}
