package audit

import (
	"coffee-backend/internal/database"

	"github.com/gofiber/fiber/v2"
)

// GET /api/admin/audit-logs?entity_type=batch&entity_id=2024-05-01-0001
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		entityType := c.Query("entity_type")
		entityID := c.Query("entity_id")
		if entityType == "" || entityID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "entity_type and entity_id are required")
		}

		logs, err := History(database.DB, entityType, entityID)
		if err != nil {
			return err
		}
		return c.JSON(logs)
	}
}
