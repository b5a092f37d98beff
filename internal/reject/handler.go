package reject

import (
	"fmt"

	"coffee-backend/internal/audit"
	"coffee-backend/internal/auth"
	"coffee-backend/internal/database"
	"coffee-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type MergeRequest struct {
	SourceBatches []SourceInput `json:"sourceBatches"`
	Producer      string        `json:"producer"`
}

// POST /api/wetmill/rejects/merge
func MergeHandler(cons *Consolidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body MergeRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		operator := auth.Operator(c)
		var res *MergeResult
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			res, err = cons.Merge(tx, MergeInput{Sources: body.SourceBatches, Producer: body.Producer, Operator: operator})
			if err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "reject_batch",
				EntityID:    res.Batch.BatchNumber,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("reject batch of %s kg merged from %d sources", res.Batch.Weight.StringFixed(2), len(res.Sources)),
				After:       res,
			})
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":     "Reject batch created",
			"batchNumber": res.Batch.BatchNumber,
			"batch":       res.Batch,
			"sources":     res.Sources,
		})
	}
}

// GET /api/rejects/:batchNumber/sources
func SourcesHandler(cons *Consolidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sources, err := cons.Sources(database.DB, c.Params("batchNumber"))
		if err != nil {
			return err
		}
		return c.JSON(sources)
	}
}
