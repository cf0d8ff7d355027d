/**
 * @description
 * Notification handlers.
 * List and mark-read endpoints for the authenticated address.
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

type NotificationHandler struct {
	Service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{Service: service}
}

// ListNotifications returns notifications for the authenticated user
// GET /api/v1/notifications?unread=true&limit=20
func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	address, err := middleware.GetAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	unreadOnly := c.QueryBool("unread", false)
	limit := c.QueryInt("limit", 50)

	notifications, err := h.Service.List(c.Context(), address, unreadOnly, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch notifications"})
	}
	return c.JSON(notifications)
}

// MarkReadRequest defines the mark-read payload. Empty ids marks everything.
type MarkReadRequest struct {
	IDs []string `json:"ids"`
}

// MarkRead marks notifications as read
// POST /api/v1/notifications/read
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	address, err := middleware.GetAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req MarkReadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.Service.MarkRead(c.Context(), address, req.IDs); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to mark notifications read"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
