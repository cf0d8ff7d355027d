/**
 * @description
 * Notification Service.
 * Creates and manages in-app notifications: bets landing on your
 * predictions, resolutions of predictions you bet on, and settlement
 * confirmations.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/models
 * - backend/internal/ledger
 */

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prophecy-market/backend/internal/ledger"
	"github.com/prophecy-market/backend/internal/logger"
	"github.com/prophecy-market/backend/internal/models"
	"gorm.io/gorm"
)

// NotificationService handles notification operations
type NotificationService struct {
	db *gorm.DB
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// NotifyBetPlaced tells a prediction's creator that someone bet on it.
// Self-bets are not notified.
func (s *NotificationService) NotifyBetPlaced(ctx context.Context, p *ledger.Prediction, bet *ledger.Bet) error {
	if strings.EqualFold(p.Creator.Address, bet.User.Address) {
		return nil
	}

	position := "NO"
	if bet.Position {
		position = "YES"
	}
	bettor := bet.User.DisplayName
	if bettor == "" {
		bettor = truncateAddress(bet.User.Address)
	}

	data, err := json.Marshal(map[string]interface{}{
		"prediction_id": p.ID,
		"bet_id":        bet.ID,
		"amount":        bet.Amount,
		"position":      bet.Position,
	})
	if err != nil {
		return err
	}

	n := models.Notification{
		RecipientAddress: p.Creator.Address,
		Type:             models.NotificationTypeBetPlaced,
		Title:            fmt.Sprintf("%s bet %s", bettor, position),
		Message:          fmt.Sprintf("%s wagered %.2f tokens on %s: %q", bettor, bet.Amount, position, snippet(p.Content)),
		Data:             string(data),
	}
	return s.db.WithContext(ctx).Create(&n).Error
}

// NotifyResolved tells every distinct bettor how a prediction resolved.
func (s *NotificationService) NotifyResolved(ctx context.Context, p *ledger.Prediction) error {
	outcome := "NO"
	if p.Status == ledger.StatusResolvedTrue {
		outcome = "YES"
	}

	data, err := json.Marshal(map[string]interface{}{
		"prediction_id": p.ID,
		"status":        p.Status,
	})
	if err != nil {
		return err
	}

	seen := make(map[string]struct{})
	var rows []models.Notification
	for i := range p.Bets {
		addr := strings.ToLower(p.Bets[i].User.Address)
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		rows = append(rows, models.Notification{
			RecipientAddress: p.Bets[i].User.Address,
			Type:             models.NotificationTypePredictionResolved,
			Title:            fmt.Sprintf("Prediction resolved %s", outcome),
			Message:          fmt.Sprintf("%q resolved %s", snippet(p.Content), outcome),
			Data:             string(data),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// NotifySettlementConfirmed tells the creator their settlement landed on chain.
func (s *NotificationService) NotifySettlementConfirmed(ctx context.Context, settlement *models.Settlement) error {
	if settlement.CreatorAddress == "" {
		return nil
	}

	data, err := json.Marshal(map[string]interface{}{
		"prediction_id": settlement.PredictionID,
		"receipt_id":    settlement.ReceiptID,
		"block":         settlement.ConfirmedBlock,
	})
	if err != nil {
		return err
	}

	n := models.Notification{
		RecipientAddress: settlement.CreatorAddress,
		Type:             models.NotificationTypeSettlementConfirm,
		Title:            "Settlement confirmed",
		Message:          fmt.Sprintf("Settlement %s confirmed at block %d", truncateAddress(settlement.ReceiptID), settlement.ConfirmedBlock),
		Data:             string(data),
	}
	return s.db.WithContext(ctx).Create(&n).Error
}

// List returns notifications for an address, newest first.
func (s *NotificationService) List(ctx context.Context, address string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := s.db.WithContext(ctx).
		Where("recipient_address = ?", address).
		Order("created_at DESC").
		Limit(limit)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}

	var out []models.Notification
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead marks the given notifications (or all for the address) as read.
func (s *NotificationService) MarkRead(ctx context.Context, address string, ids []string) error {
	q := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_address = ?", address)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if err := q.Update("read", true).Error; err != nil {
		logger.Error("NotificationService: failed to mark read for %s: %v", address, err)
		return err
	}
	return nil
}

func truncateAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

func snippet(content string) string {
	const max = 60
	if len(content) <= max {
		return content
	}
	return content[:max-3] + "..."
}
