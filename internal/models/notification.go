/**
 * @description
 * Notification database model.
 * Maps to the 'notifications' table. Rows are created when someone bets on
 * your prediction, when a prediction you bet on resolves, and when a
 * settlement is confirmed on chain.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationTypeBetPlaced          NotificationType = "bet_placed"
	NotificationTypePredictionResolved NotificationType = "prediction_resolved"
	NotificationTypeSettlementConfirm  NotificationType = "settlement_confirmed"
)

// Notification represents an in-app notification for a wallet address
type Notification struct {
	ID               uuid.UUID        `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	RecipientAddress string           `gorm:"size:42;index;not null" json:"recipient_address"`
	Type             NotificationType `gorm:"size:32;not null" json:"type"`
	Title            string           `gorm:"size:255;not null" json:"title"`
	Message          string           `gorm:"type:text" json:"message"`
	Data             string           `gorm:"type:jsonb" json:"data"` // JSON payload for deep-linking
	Read             bool             `gorm:"default:false;index" json:"read"`
	CreatedAt        time.Time        `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return
}
