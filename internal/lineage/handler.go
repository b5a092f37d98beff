package lineage

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

type SplitRequest struct {
	ProcessingType string       `json:"processingType"`
	Grades         []GradeInput `json:"grades"`
}

type UpdateBagsRequest struct {
	ProcessingType string            `json:"processingType"`
	Quality        string            `json:"quality"`
	Weight         decimal.Decimal   `json:"weight"`
	BagWeights     []decimal.Decimal `json:"bagWeights"`
}

// POST /api/dry-mill/:batchNumber/split
func SplitHandler(r *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body SplitRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.ProcessingType == "" {
			return fiber.NewError(fiber.StatusBadRequest, "processingType is required")
		}

		batchNumber := c.Params("batchNumber")
		operator := auth.Operator(c)

		var subs []models.SubBatch
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			subs, err = r.Split(tx, SplitInput{
				ParentBatchNumber: batchNumber,
				ProcessingType:    body.ProcessingType,
				Grades:            body.Grades,
				Operator:          operator,
			})
			if err != nil {
				return err
			}
			for _, sb := range subs {
				if err := audit.WriteLog(tx, audit.LogOptions{
					UserName:    operator,
					EntityType:  "sub_batch",
					EntityID:    sb.BatchNumber,
					Action:      models.AuditActionCreate,
					Description: fmt.Sprintf("%s %s split from %s: %s kg in %d bags", sb.ProcessingType, sb.Quality, batchNumber, sb.Weight.StringFixed(2), sb.TotalBags),
					After:       sb,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":    "Sub-batches recorded",
			"subBatches": subs,
		})
	}
}

// POST /api/dry-mill/:batchNumber/update-bags
func UpdateBagsHandler(r *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body UpdateBagsRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.ProcessingType == "" || body.Quality == "" {
			return fiber.NewError(fiber.StatusBadRequest, "processingType and quality are required")
		}

		batchNumber := c.Params("batchNumber")
		operator := auth.Operator(c)

		var sb *models.SubBatch
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			sb, err = r.UpdateBags(tx, UpdateBagsInput{
				ParentBatchNumber: batchNumber,
				ProcessingType:    body.ProcessingType,
				Quality:           body.Quality,
				Weight:            body.Weight,
				BagWeights:        body.BagWeights,
				Operator:          operator,
			})
			if err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "sub_batch",
				EntityID:    sb.BatchNumber,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("bags rewritten: %s kg in %d bags", sb.Weight.StringFixed(2), sb.TotalBags),
				After:       sb,
			})
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"message":  "Bags updated",
			"subBatch": sb,
		})
	}
}

// GET /api/dry-mill/:batchNumber/sub-batches
func ListSubBatchesHandler(r *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subs, err := r.SubBatches(database.DB, c.Params("batchNumber"))
		if err != nil {
			return err
		}
		return c.JSON(subs)
	}
}

// GET /api/batches/:batchNumber/available-weight
func AvailableWeightHandler(r *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		batchNumber := c.Params("batchNumber")
		w, err := r.AvailableWeight(database.DB, batchNumber)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"batchNumber":     batchNumber,
			"availableWeight": w,
		})
	}
}
