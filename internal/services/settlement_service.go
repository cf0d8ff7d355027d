/**
 * @description
 * Settlement Service.
 * Bridges the ledger's resolution flow with the chain settlement submitter.
 * Ordering matters: authorization and state are checked first without
 * mutating, the external submit runs under a timeout, and only a successful
 * submit resolves the prediction locally. A failed or timed-out submit
 * leaves the prediction fully unapplied.
 *
 * @dependencies
 * - backend/internal/chain/settle
 * - backend/internal/ledger
 * - backend/internal/models
 * - gorm.io/gorm
 */

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/prophecy-market/backend/internal/chain/settle"
	"github.com/prophecy-market/backend/internal/ledger"
	"github.com/prophecy-market/backend/internal/logger"
	"github.com/prophecy-market/backend/internal/models"
	"gorm.io/gorm"
)

const DefaultSubmitTimeout = 30 * time.Second

type SettlementService struct {
	Predictions   *PredictionService
	Submitter     settle.Submitter
	DB            *gorm.DB
	Notifier      *NotificationService
	SubmitTimeout time.Duration

	// ConfirmAfter is how long a pending receipt waits before a new chain
	// head marks it confirmed.
	ConfirmAfter time.Duration
}

func NewSettlementService(predictions *PredictionService, submitter settle.Submitter, db *gorm.DB, notifier *NotificationService) *SettlementService {
	return &SettlementService{
		Predictions:   predictions,
		Submitter:     submitter,
		DB:            db,
		Notifier:      notifier,
		SubmitTimeout: DefaultSubmitTimeout,
		ConfirmAfter:  15 * time.Second,
	}
}

// Settle records a resolution on chain and, on success, resolves the
// prediction locally. Returns the opaque receipt identifier.
func (s *SettlementService) Settle(ctx context.Context, identity *ledger.Identity, predictionID string, outcome bool) (string, error) {
	// Same authorization/state checks as resolve, before touching the chain.
	if err := s.Predictions.Ledger.CheckResolvable(identity, predictionID); err != nil {
		return "", err
	}

	timeout := s.SubmitTimeout
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	submitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	receipt, err := s.Submitter.Submit(submitCtx, predictionID, outcome)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrSettlementFailed, err)
	}
	if receipt == "" {
		return "", fmt.Errorf("%w: submitter returned empty receipt", ledger.ErrSettlementFailed)
	}

	p, err := s.Predictions.Resolve(ctx, identity, predictionID, outcome)
	if err != nil {
		// Lost a race with a concurrent resolve; the receipt is orphaned.
		logger.Error("Settlement receipt %s obtained but local resolve failed: %v", receipt, err)
		return "", err
	}

	if s.DB != nil {
		row := models.Settlement{
			PredictionID:   p.ID,
			CreatorAddress: p.Creator.Address,
			Outcome:        outcome,
			ReceiptID:      receipt,
			Status:         models.SettlementStatusPending,
			SubmittedAt:    time.Now(),
		}
		if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
			logger.Error("Failed to record settlement %s: %v", receipt, err)
		}
	}

	return receipt, nil
}

// ConfirmPending marks pending settlements as confirmed once they have aged
// past the confirmation window. Driven by the worker on every new chain head
// (or on a ticker when no head feed is configured).
func (s *SettlementService) ConfirmPending(ctx context.Context, headNumber uint64) error {
	if s.DB == nil {
		return nil
	}

	cutoff := time.Now().Add(-s.ConfirmAfter)

	var pending []models.Settlement
	err := s.DB.WithContext(ctx).
		Where("status = ? AND submitted_at <= ?", models.SettlementStatusPending, cutoff).
		Find(&pending).Error
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	now := time.Now()
	for i := range pending {
		pending[i].Status = models.SettlementStatusConfirmed
		pending[i].ConfirmedAt = &now
		pending[i].ConfirmedBlock = headNumber

		err := s.DB.WithContext(ctx).Model(&models.Settlement{}).
			Where("id = ? AND status = ?", pending[i].ID, models.SettlementStatusPending).
			Updates(map[string]interface{}{
				"status":          models.SettlementStatusConfirmed,
				"confirmed_at":    now,
				"confirmed_block": headNumber,
			}).Error
		if err != nil {
			logger.Error("Failed to confirm settlement %s: %v", pending[i].ReceiptID, err)
			continue
		}

		if s.Notifier != nil {
			if err := s.Notifier.NotifySettlementConfirmed(ctx, &pending[i]); err != nil {
				logger.Error("Failed to notify settlement confirmation %s: %v", pending[i].ReceiptID, err)
			}
		}
	}

	logger.Info("Confirmed %d settlement(s) at head %d", len(pending), headNumber)
	return nil
}

// Receipts returns the settlement history for a prediction, newest first.
func (s *SettlementService) Receipts(ctx context.Context, predictionID string) ([]models.Settlement, error) {
	if s.DB == nil {
		return nil, nil
	}
	var out []models.Settlement
	err := s.DB.WithContext(ctx).
		Where("prediction_id = ?", predictionID).
		Order("submitted_at DESC").
		Find(&out).Error
	return out, err
}
