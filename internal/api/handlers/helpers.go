/**
 * @description
 * Shared handler helpers.
 * Maps ledger error kinds to HTTP statuses so every endpoint fails the
 * same way.
 */

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/prophecy-market/backend/internal/ledger"
)

// respondError translates a ledger error kind into a JSON error response.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrUnauthenticated):
		status = fiber.StatusUnauthorized
	case errors.Is(err, ledger.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, ledger.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidState):
		status = fiber.StatusConflict
	case errors.Is(err, ledger.ErrInvalidInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, ledger.ErrSettlementFailed):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
