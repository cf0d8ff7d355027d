/**
 * @description
 * Prediction and Bet database models.
 * Persistence mirrors the ledger's entity shapes: creator and bettor
 * identities are flattened snapshot columns, never foreign keys into
 * `users`, so historical records survive later profile edits.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/ledger
 */

package models

import (
	"time"

	"github.com/prophecy-market/backend/internal/ledger"
)

// Prediction maps to the 'predictions' table.
type Prediction struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	CreatorAddress   string     `gorm:"size:42;index;not null" json:"creator_address"`
	CreatorName      string     `gorm:"column:creator_name" json:"creator_name"`
	CreatorAvatarURL string     `gorm:"column:creator_avatar_url" json:"creator_avatar_url"`
	Content          string     `gorm:"not null" json:"content"`
	Category         string     `gorm:"size:16;index" json:"category"`
	Status           string     `gorm:"size:16;index" json:"status"`
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`
	ExpiresAt        time.Time  `gorm:"column:expires_at" json:"expires_at"`
	ResolvedAt       *time.Time `gorm:"column:resolved_at" json:"resolved_at"`
	TotalBetsTrue    float64    `gorm:"column:total_bets_true" json:"total_bets_true"`
	TotalBetsFalse   float64    `gorm:"column:total_bets_false" json:"total_bets_false"`

	Bets []Bet `gorm:"foreignKey:PredictionID;references:ID" json:"bets,omitempty"`
}

func (Prediction) TableName() string {
	return "predictions"
}

// Bet maps to the 'bets' table. Rows are append-only.
type Bet struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	PredictionID  string    `gorm:"size:36;index;not null" json:"prediction_id"`
	UserAddress   string    `gorm:"size:42;index;not null" json:"user_address"`
	UserName      string    `gorm:"column:user_name" json:"user_name"`
	UserAvatarURL string    `gorm:"column:user_avatar_url" json:"user_avatar_url"`
	Amount        float64   `gorm:"not null" json:"amount"`
	Position      bool      `gorm:"not null" json:"position"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Bet) TableName() string {
	return "bets"
}

// PredictionFromLedger converts a ledger snapshot into persistence rows.
func PredictionFromLedger(p *ledger.Prediction) Prediction {
	row := Prediction{
		ID:               p.ID,
		CreatorAddress:   p.Creator.Address,
		CreatorName:      p.Creator.DisplayName,
		CreatorAvatarURL: p.Creator.AvatarURL,
		Content:          p.Content,
		Category:         string(p.Category),
		Status:           string(p.Status),
		CreatedAt:        p.CreatedAt,
		ExpiresAt:        p.ExpiresAt,
		ResolvedAt:       p.ResolvedAt,
		TotalBetsTrue:    p.TotalBetsTrue,
		TotalBetsFalse:   p.TotalBetsFalse,
	}
	for i := range p.Bets {
		row.Bets = append(row.Bets, BetFromLedger(&p.Bets[i]))
	}
	return row
}

// BetFromLedger converts a ledger bet into a persistence row.
func BetFromLedger(b *ledger.Bet) Bet {
	return Bet{
		ID:            b.ID,
		PredictionID:  b.PredictionID,
		UserAddress:   b.User.Address,
		UserName:      b.User.DisplayName,
		UserAvatarURL: b.User.AvatarURL,
		Amount:        b.Amount,
		Position:      b.Position,
		CreatedAt:     b.CreatedAt,
	}
}

// ToLedger rebuilds the ledger shape from persistence rows.
func (p *Prediction) ToLedger() ledger.Prediction {
	lp := ledger.Prediction{
		ID: p.ID,
		Creator: ledger.Identity{
			Address:     p.CreatorAddress,
			DisplayName: p.CreatorName,
			AvatarURL:   p.CreatorAvatarURL,
		},
		Content:        p.Content,
		Category:       ledger.Category(p.Category),
		Status:         ledger.Status(p.Status),
		CreatedAt:      p.CreatedAt,
		ExpiresAt:      p.ExpiresAt,
		ResolvedAt:     p.ResolvedAt,
		Bets:           []ledger.Bet{},
		TotalBetsTrue:  p.TotalBetsTrue,
		TotalBetsFalse: p.TotalBetsFalse,
	}
	for i := range p.Bets {
		lp.Bets = append(lp.Bets, p.Bets[i].ToLedger())
	}
	return lp
}

// ToLedger rebuilds the ledger shape of a bet.
func (b *Bet) ToLedger() ledger.Bet {
	return ledger.Bet{
		ID: b.ID,
		User: ledger.Identity{
			Address:     b.UserAddress,
			DisplayName: b.UserName,
			AvatarURL:   b.UserAvatarURL,
		},
		PredictionID: b.PredictionID,
		Amount:       b.Amount,
		Position:     b.Position,
		CreatedAt:    b.CreatedAt,
	}
}
