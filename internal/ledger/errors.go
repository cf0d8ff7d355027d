/**
 * @description
 * Error kinds surfaced by the ledger.
 * Callers classify failures with errors.Is; the API layer maps each kind
 * to an HTTP status.
 */

package ledger

import "errors"

var (
	// ErrUnauthenticated means the operation requires an identity and none was supplied.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound means the referenced prediction id does not exist.
	ErrNotFound = errors.New("prediction not found")

	// ErrForbidden means the caller lacks authority for the mutation
	// (only the creator may resolve or settle).
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState means the requested transition is illegal for the
	// prediction's current status.
	ErrInvalidState = errors.New("invalid prediction state")

	// ErrInvalidInput means structurally invalid arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSettlementFailed means the external settlement call did not complete.
	ErrSettlementFailed = errors.New("settlement failed")
)
