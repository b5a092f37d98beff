package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// FiberErrorHandler renders every error returned by a handler.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Status() >= fiber.StatusInternalServerError {
			log.Errorf("%s %s: %v", c.Method(), c.Path(), err)
		}
		return c.Status(e.Status()).JSON(fiber.Map{
			"error":   e.Message,
			"code":    e.Code,
			"details": e.Details,
		})
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error":   fe.Message,
			"details": "",
		})
	}

	// the cause is logged, not returned
	log.Errorf("unexpected error on %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "internal server error",
		"details": "see server log",
	})
}
