package api

import (
	"errors"

	"dealtracker/models"
	"dealtracker/utils"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps pipeline errors onto HTTP status codes
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrDuplicateTracking):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrExtractionFailed):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrIdentifierMissing):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrNavigationTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, models.ErrSession):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func errorHandler(logger *utils.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)
		msg := err.Error()
		if code >= fiber.StatusInternalServerError && code != fiber.StatusBadGateway && code != fiber.StatusGatewayTimeout {
			logger.Error("%s %s: %v", c.Method(), c.Path(), err)
			msg = "Something went wrong. Please try again."
		} else {
			logger.Debug("%s %s -> %d: %v", c.Method(), c.Path(), code, err)
		}
		return c.Status(code).JSON(fiber.Map{"success": false, "message": msg})
	}
}
