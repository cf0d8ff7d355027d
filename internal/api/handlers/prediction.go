/**
 * @description
 * Prediction API Handlers.
 * Exposes the feed, creation, betting, resolution, and settlement endpoints.
 * This layer owns the caller-side validation (content length, future
 * expiry); the ledger re-checks defensively.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 * - backend/internal/ledger
 */

package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prophecy-market/backend/internal/api/middleware"
	"github.com/prophecy-market/backend/internal/ledger"
	"github.com/prophecy-market/backend/internal/services"
)

type PredictionHandler struct {
	Service     *services.PredictionService
	Settlements *services.SettlementService
	Auth        *services.WalletAuthService
}

func NewPredictionHandler(service *services.PredictionService, settlements *services.SettlementService, auth *services.WalletAuthService) *PredictionHandler {
	return &PredictionHandler{
		Service:     service,
		Settlements: settlements,
		Auth:        auth,
	}
}

// predictionView decorates a prediction snapshot with its display odds.
type predictionView struct {
	ledger.Prediction
	TruePct  int `json:"true_pct"`
	FalsePct int `json:"false_pct"`
}

func toView(p ledger.Prediction) predictionView {
	truePct, falsePct := ledger.PredictionOdds(&p)
	return predictionView{Prediction: p, TruePct: truePct, FalsePct: falsePct}
}

func toViews(ps []ledger.Prediction) []predictionView {
	out := make([]predictionView, 0, len(ps))
	for _, p := range ps {
		out = append(out, toView(p))
	}
	return out
}

// ListPredictions returns the feed, optionally filtered by category
// GET /api/v1/predictions?category=crypto&sort=newest
func (h *PredictionHandler) ListPredictions(c *fiber.Ctx) error {
	f := ledger.Filter{
		Category: ledger.Category(c.Query("category")),
		Sort:     ledger.SortOrder(c.Query("sort")),
	}
	if f.Category != "" && !f.Category.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown category"})
	}
	return c.JSON(toViews(h.Service.List(c.Context(), f)))
}

// GetPrediction returns a single prediction with its bets
// GET /api/v1/predictions/:id
func (h *PredictionHandler) GetPrediction(c *fiber.Ctx) error {
	p, err := h.Service.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toView(p))
}

// GetUserPredictions returns predictions created by an address
// GET /api/v1/users/:address/predictions
func (h *PredictionHandler) GetUserPredictions(c *fiber.Ctx) error {
	return c.JSON(toViews(h.Service.UserPredictions(c.Params("address"))))
}

// CreatePredictionRequest defines the payload for creating a prediction
type CreatePredictionRequest struct {
	Content   string `json:"content"`
	Category  string `json:"category"`
	ExpiresAt string `json:"expires_at"` // RFC3339
}

// CreatePrediction creates a new open prediction
// POST /api/v1/predictions
func (h *PredictionHandler) CreatePrediction(c *fiber.Ctx) error {
	address, err := middleware.GetAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req CreatePredictionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	// Caller-side validation; the ledger re-checks these defensively.
	if len(strings.TrimSpace(req.Content)) < ledger.MinContentLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Prediction must be at least 10 characters",
		})
	}
	category := ledger.Category(req.Category)
	if !category.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown category"})
	}
	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "expires_at must be RFC3339"})
	}
	if !expiresAt.After(time.Now()) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "expires_at must be in the future"})
	}

	identity := h.Auth.IdentityFor(c.Context(), address)
	p, err := h.Service.Create(c.Context(), identity, req.Content, category, expiresAt)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toView(p))
}

// PlaceBetRequest defines the payload for placing a bet
type PlaceBetRequest struct {
	Amount   float64 `json:"amount"`
	Position bool    `json:"position"` // true = YES, false = NO
}

// PlaceBet wagers tokens on one side of an open prediction
// POST /api/v1/predictions/:id/bets
func (h *PredictionHandler) PlaceBet(c *fiber.Ctx) error {
	address, err := middleware.GetAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req PlaceBetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	identity := h.Auth.IdentityFor(c.Context(), address)
	bet, err := h.Service.PlaceBet(c.Context(), identity, c.Params("id"), req.Amount, req.Position)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(bet)
}

// ResolveRequest defines the payload for resolving or settling
type ResolveRequest struct {
	Outcome bool `json:"outcome"`
}

// ResolvePrediction declares the real-world outcome (creator only)
// POST /api/v1/predictions/:id/resolve
func (h *PredictionHandler) ResolvePrediction(c *fiber.Ctx) error {
	address, err := middleware.GetAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	identity := h.Auth.IdentityFor(c.Context(), address)
	p, err := h.Service.Resolve(c.Context(), identity, c.Params("id"), req.Outcome)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toView(p))
}

// SettlePrediction resolves and records the outcome on chain (creator only)
// POST /api/v1/predictions/:id/settle
func (h *PredictionHandler) SettlePrediction(c *fiber.Ctx) error {
	address, err := middleware.GetAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	identity := h.Auth.IdentityFor(c.Context(), address)
	receipt, err := h.Settlements.Settle(c.Context(), identity, c.Params("id"), req.Outcome)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"receipt_id": receipt})
}

// GetSettlements returns the settlement history for a prediction
// GET /api/v1/predictions/:id/settlements
func (h *PredictionHandler) GetSettlements(c *fiber.Ctx) error {
	receipts, err := h.Settlements.Receipts(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch settlements"})
	}
	return c.JSON(receipts)
}
