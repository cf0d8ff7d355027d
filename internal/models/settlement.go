/**
 * @description
 * Settlement receipt database model.
 * Maps to the 'settlements' table. One row per on-chain settlement attempt
 * that succeeded; the worker flips pending rows to confirmed as chain heads
 * arrive.
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

type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "pending"
	SettlementStatusConfirmed SettlementStatus = "confirmed"
)

// Settlement records a receipt returned by the chain settlement service
type Settlement struct {
	ID             uuid.UUID        `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	PredictionID   string           `gorm:"size:36;index;not null" json:"prediction_id"`
	CreatorAddress string           `gorm:"size:42;index" json:"creator_address"`
	Outcome        bool             `gorm:"not null" json:"outcome"`
	ReceiptID      string           `gorm:"size:128;uniqueIndex;not null" json:"receipt_id"`
	Status         SettlementStatus `gorm:"size:16;index;default:pending" json:"status"`
	SubmittedAt    time.Time        `gorm:"column:submitted_at" json:"submitted_at"`
	ConfirmedAt    *time.Time       `gorm:"column:confirmed_at" json:"confirmed_at"`
	ConfirmedBlock uint64           `gorm:"column:confirmed_block" json:"confirmed_block"`

	CreatedAt time.Time `json:"created_at"`
}

func (Settlement) TableName() string {
	return "settlements"
}

func (s *Settlement) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}
