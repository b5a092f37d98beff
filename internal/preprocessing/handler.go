package preprocessing

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

type CreateRequest struct {
	BatchNumber     string          `json:"batchNumber"`
	ProductLine     string          `json:"productLine"`
	ProcessingType  string          `json:"processingType"`
	WeightProcessed decimal.Decimal `json:"weightProcessed"`
}

// POST /api/preprocessing
func CreateHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.BatchNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "batchNumber is required")
		}

		operator := auth.Operator(c)
		var rec *models.ProcessingRecord
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			rec, err = s.Create(tx, Input{
				BatchNumber:     body.BatchNumber,
				ProductLine:     body.ProductLine,
				ProcessingType:  body.ProcessingType,
				WeightProcessed: body.WeightProcessed,
				Operator:        operator,
			})
			if err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "processing",
				EntityID:    rec.BatchNumber,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("%s / %s: %s kg, lot %s", rec.ProductLine, rec.ProcessingType, rec.WeightProcessed.StringFixed(2), rec.LotNumber),
				After:       rec,
			})
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":         "Preprocessing recorded",
			"lotNumber":       rec.LotNumber,
			"referenceNumber": rec.ReferenceNumber,
			"record":          rec,
		})
	}
}

// PUT /api/preprocessing/:batchNumber/finish
func FinishHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		batchNumber := c.Params("batchNumber")
		operator := auth.Operator(c)

		var records []models.ProcessingRecord
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			records, err = s.Finish(tx, batchNumber)
			if err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "processing",
				EntityID:    batchNumber,
				Action:      models.AuditActionTransition,
				Description: fmt.Sprintf("preprocessing finished (%d records)", len(records)),
			})
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"message": "Preprocessing finished",
			"records": records,
		})
	}
}

// GET /api/preprocessing/:batchNumber
func ListHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		records, err := s.Records(database.DB, c.Params("batchNumber"))
		if err != nil {
			return err
		}
		return c.JSON(records)
	}
}
