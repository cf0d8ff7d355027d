/**
 * @description
 * Wallet handlers.
 * Exposes the wager-token balance for the authenticated address.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prophecy-market/backend/internal/api/middleware"
	"github.com/prophecy-market/backend/internal/services"
)

type WalletHandler struct {
	Tokens *services.TokenService
}

func NewWalletHandler(tokens *services.TokenService) *WalletHandler {
	return &WalletHandler{Tokens: tokens}
}

// GetBalance returns the wager-token balance for the authenticated user
// GET /api/v1/wallet/balance
func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	address, err := middleware.GetAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	if h.Tokens == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Balance service not available"})
	}

	balance, err := h.Tokens.Balance(c.Context(), address)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Balance fetch failed: " + err.Error()})
	}

	return c.JSON(fiber.Map{
		"address": address,
		"balance": balance.String(),
	})
}
