package inventory

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

type FinishQCRequest struct {
	Notes string `json:"notes"`
}

type WeightMeasurementRequest struct {
	ProcessingType string          `json:"processingType"`
	Weight         decimal.Decimal `json:"weight"`
}

type WarehouseScanRequest struct {
	BatchNumber string `json:"batchNumber"`
}

type stageFunc func(tx *gorm.DB, batchNumber, operator string) error

// StageHandler wraps a plain enter/exit transition such as
// Machine.EnterWetMill.
func StageHandler(fn stageFunc, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		batchNumber := c.Params("batchNumber")
		operator := auth.Operator(c)

		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if err := fn(tx, batchNumber, operator); err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "batch",
				EntityID:    batchNumber,
				Action:      models.AuditActionTransition,
				Description: message,
			})
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"message":     message,
			"batchNumber": batchNumber,
		})
	}
}

// POST /api/qc/:batchNumber/start
func StartQCHandler(m *Machine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		batchNumber := c.Params("batchNumber")
		operator := auth.Operator(c)

		var qc *models.QCRecord
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			qc, err = m.StartQC(tx, batchNumber, operator)
			if err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "batch",
				EntityID:    batchNumber,
				Action:      models.AuditActionTransition,
				Description: "QC started",
			})
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message": "QC started",
			"qc":      qc,
		})
	}
}

// POST /api/qc/:batchNumber/finish
func FinishQCHandler(m *Machine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body FinishQCRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
		}
		batchNumber := c.Params("batchNumber")
		operator := auth.Operator(c)

		var qc *models.QCRecord
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			qc, err = m.FinishQC(tx, batchNumber, body.Notes, operator)
			if err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "batch",
				EntityID:    batchNumber,
				Action:      models.AuditActionTransition,
				Description: "QC finished",
				After:       qc,
			})
		})
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"message": "QC finished",
			"qc":      qc,
		})
	}
}

// POST /api/wetmill/:batchNumber/weight-measurements
func WeightMeasurementHandler(m *Machine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body WeightMeasurementRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		var ms *models.WetMillWeightMeasurement
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			ms, err = m.RecordWeightMeasurement(tx, MeasurementInput{
				BatchNumber:    c.Params("batchNumber"),
				ProcessingType: body.ProcessingType,
				Weight:         body.Weight,
				Operator:       auth.Operator(c),
			})
			return err
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":     "Weight recorded",
			"measurement": ms,
		})
	}
}

// POST /api/dry-mill/:batchNumber/complete
func CompleteHandler(m *Machine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		batchNumber := c.Params("batchNumber")
		operator := auth.Operator(c)

		var rows []models.GreenBeansInventoryStatus
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			rows, err = m.Complete(tx, batchNumber, operator)
			if err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "batch",
				EntityID:    batchNumber,
				Action:      models.AuditActionTransition,
				Description: fmt.Sprintf("dry mill completed, %d sub-batches in green bean inventory", len(rows)),
			})
		})
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"message":     "Batch completed",
			"batchNumber": batchNumber,
			"greenBeans":  rows,
		})
	}
}

// POST /api/warehouse/scan
func WarehouseScanHandler(m *Machine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body WarehouseScanRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.BatchNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "batchNumber is required")
		}
		operator := auth.Operator(c)

		var sb *models.SubBatch
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			sb, err = m.WarehouseScan(tx, body.BatchNumber)
			if err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "sub_batch",
				EntityID:    sb.BatchNumber,
				Action:      models.AuditActionTransition,
				Description: fmt.Sprintf("stored in warehouse, %d bags", sb.TotalBags),
			})
		})
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"message":  "Sub-batch stored",
			"subBatch": sb,
		})
	}
}

// GET /api/batches/:batchNumber/state
func StateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		batchNumber := c.Params("batchNumber")
		st, err := StateOf(database.DB, batchNumber)
		if err != nil {
			return err
		}
		next := transitions[st]
		if next == nil {
			next = []State{}
		}
		return c.JSON(fiber.Map{
			"batchNumber": batchNumber,
			"state":       st,
			"next":        next,
		})
	}
}
