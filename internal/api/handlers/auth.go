/**
 * @description
 * Wallet authentication and profile handlers.
 * Nonce issue, signature verification, and profile management.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/prophecy-market/backend/internal/api/middleware"
	"github.com/prophecy-market/backend/internal/logger"
	"github.com/prophecy-market/backend/internal/services"
	"gorm.io/gorm"
)

type AuthHandler struct {
	Auth *services.WalletAuthService
}

func NewAuthHandler(auth *services.WalletAuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// GetNonce issues a one-time login nonce for a wallet address
// GET /api/v1/auth/nonce?address=0x...
func (h *AuthHandler) GetNonce(c *fiber.Ctx) error {
	address := c.Query("address")
	nonce, message, err := h.Auth.IssueNonce(c.Context(), address)
	if err != nil {
		if errors.Is(err, services.ErrInvalidAddress) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid wallet address"})
		}
		logger.Error("GetNonce failed for %s: %v", address, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to issue nonce"})
	}
	return c.JSON(fiber.Map{"nonce": nonce, "message": message})
}

// VerifyRequest defines the signature login payload
type VerifyRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// VerifySignature checks the signed nonce and mints a session token
// POST /api/v1/auth/verify
func (h *AuthHandler) VerifySignature(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	token, user, err := h.Auth.Verify(c.Context(), req.Address, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAddress):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid wallet address"})
		case errors.Is(err, services.ErrNonceExpired):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Nonce expired, request a new one"})
		case errors.Is(err, services.ErrBadSignature):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Signature verification failed"})
		}
		logger.Error("VerifySignature failed for %s: %v", req.Address, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Login failed"})
	}

	return c.JSON(fiber.Map{"token": token, "user": user})
}

// GetProfile returns the authenticated user's profile
// GET /api/v1/profile
func (h *AuthHandler) GetProfile(c *fiber.Ctx) error {
	address, err := middleware.GetAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	user, err := h.Auth.Profile(c.Context(), address)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch profile"})
	}
	return c.JSON(user)
}

// UpdateProfileRequest defines the profile update payload
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// UpdateProfile sets the display name and avatar for the authenticated user.
// Historical predictions and bets keep their identity snapshots.
// PUT /api/v1/profile
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	address, err := middleware.GetAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	user, err := h.Auth.UpdateProfile(c.Context(), address, req.DisplayName, req.AvatarURL)
	if err != nil {
		logger.Error("UpdateProfile failed for %s: %v", address, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update profile"})
	}
	return c.JSON(user)
}
