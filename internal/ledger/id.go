package ledger

import "github.com/google/uuid"

// newID assigns entity ids. Kept behind a function so tests can pin ids
// via the store's newID field.
func newID() string {
	return uuid.NewString()
}
