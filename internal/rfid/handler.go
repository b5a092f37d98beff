package rfid

import (
	"fmt"

	"coffee-backend/internal/audit"
	"coffee-backend/internal/auth"
	"coffee-backend/internal/database"
	"coffee-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ScanRequest struct {
	RFID    string `json:"rfid"`
	Scanner string `json:"scanner"`
}

type AssignRequest struct {
	BatchNumber string `json:"batchNumber"`
	RFID        string `json:"rfid"`
}

type ReuseRequest struct {
	RFID        string `json:"rfid"`
	BatchNumber string `json:"batchNumber"`
}

// POST /api/rfid/scan
func ScanHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ScanRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		var scan *models.RFIDScan
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			scan, err = m.RecordScan(tx, body.RFID, body.Scanner)
			return err
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message": "RFID scan recorded",
			"scan":    scan,
		})
	}
}

// POST /api/assign-rfid
func AssignHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body AssignRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.BatchNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "batchNumber is required")
		}

		operator := auth.Operator(c)
		var batch *models.Batch
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			batch, err = m.Assign(tx, body.BatchNumber, body.RFID)
			if err != nil {
				return err
			}
			if err := m.ConsumeScans(tx, body.RFID, body.BatchNumber); err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "batch",
				EntityID:    batch.BatchNumber,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("RFID %s assigned", *batch.RFID),
				After:       batch,
			})
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"message":     "RFID assigned",
			"batchNumber": batch.BatchNumber,
			"rfid":        batch.RFID,
		})
	}
}

// POST /api/rfid/reuse
func ReuseHandler(m *Manager, checker HandlingChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ReuseRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		operator := auth.Operator(c)
		var released *models.Batch
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			released, err = m.Reuse(tx, body.RFID, body.BatchNumber, checker)
			if err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserName:    operator,
				EntityType:  "batch",
				EntityID:    released.BatchNumber,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("RFID %s released for reuse", Normalize(body.RFID)),
			})
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"message":     "RFID released for reuse",
			"rfid":        Normalize(body.RFID),
			"batchNumber": released.BatchNumber,
		})
	}
}
