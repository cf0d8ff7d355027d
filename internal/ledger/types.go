/**
 * @description
 * Core entity types for the prediction ledger.
 * These are the canonical in-memory shapes; persistence rows in
 * internal/models mirror them.
 *
 * @dependencies
 * - standard "time"
 */

package ledger

import "time"

// Category is the closed set of prediction categories.
type Category string

const (
	CategoryCrypto Category = "crypto"
	CategorySports Category = "sports"
	CategorySocial Category = "social"
	CategoryOther  Category = "other"
)

// Valid reports whether c is a member of the category enumeration.
func (c Category) Valid() bool {
	switch c {
	case CategoryCrypto, CategorySports, CategorySocial, CategoryOther:
		return true
	}
	return false
}

// Status is the lifecycle state of a prediction.
// Transitions are monotonic: open -> closed -> resolved_true|resolved_false,
// with resolution also permitted directly from open. Resolved states are terminal.
type Status string

const (
	StatusOpen          Status = "open"
	StatusClosed        Status = "closed"
	StatusResolvedTrue  Status = "resolved_true"
	StatusResolvedFalse Status = "resolved_false"
)

// Resolved reports whether s is one of the terminal states.
func (s Status) Resolved() bool {
	return s == StatusResolvedTrue || s == StatusResolvedFalse
}

// Identity is a snapshot of an authenticated wallet identity.
// Once captured in a prediction or bet it never changes, even if the
// user later edits their profile.
type Identity struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Bet is a wager of a token amount on one side of a prediction.
// Position true = YES, false = NO.
type Bet struct {
	ID           string    `json:"id"`
	User         Identity  `json:"user"`
	PredictionID string    `json:"prediction_id"`
	Amount       float64   `json:"amount"`
	Position     bool      `json:"position"`
	CreatedAt    time.Time `json:"created_at"`
}

// Prediction is a claim about a future binary outcome, open for wagering
// until resolved by its creator.
type Prediction struct {
	ID             string     `json:"id"`
	Creator        Identity   `json:"creator"`
	Content        string     `json:"content"`
	Category       Category   `json:"category"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	Bets           []Bet      `json:"bets"`
	TotalBetsTrue  float64    `json:"total_bets_true"`
	TotalBetsFalse float64    `json:"total_bets_false"`
}

// SortOrder controls list ordering. Recency sort is a reader concern;
// canonical storage order is insertion order.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// Filter selects and orders predictions for listing.
// An empty Category means all categories.
type Filter struct {
	Category Category
	Sort     SortOrder
}

// ChangeType identifies the mutation behind a ChangeEvent.
type ChangeType string

const (
	ChangeCreated   ChangeType = "created"
	ChangeBetPlaced ChangeType = "bet_placed"
	ChangeResolved  ChangeType = "resolved"
)

// ChangeEvent is delivered to change subscribers after a mutation commits.
// Prediction is a snapshot taken under the prediction's lock.
type ChangeEvent struct {
	Type       ChangeType
	Prediction Prediction
	Bet        *Bet
}
