/**
 * @description
 * Chain settlement submitter.
 * Given a prediction id and an outcome, returns an opaque receipt identifier.
 * The production path would submit a transaction to a settlement contract;
 * the simulated submitter fabricates a receipt hash locally, which is what
 * the product shipped with.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum (crypto, hexutil)
 */

package settle

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Submitter records a resolution on chain and returns a receipt identifier.
// Implementations must respect ctx cancellation; a cancelled or failed call
// returns an error and no receipt.
type Submitter interface {
	Submit(ctx context.Context, predictionID string, outcome bool) (string, error)
}

// SimulatedSubmitter fabricates settlement receipts without touching a chain.
// The receipt is a keccak hash of the settlement payload plus a random salt,
// so it looks like a transaction hash and never collides across retries.
type SimulatedSubmitter struct {
	// Latency imitates network round-trip time; zero means immediate.
	Latency time.Duration
}

func NewSimulatedSubmitter() *SimulatedSubmitter {
	return &SimulatedSubmitter{Latency: 150 * time.Millisecond}
}

// Submit returns a fabricated 32-byte receipt hash.
func (s *SimulatedSubmitter) Submit(ctx context.Context, predictionID string, outcome bool) (string, error) {
	if s.Latency > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.Latency):
		}
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate receipt salt: %w", err)
	}

	payload := fmt.Sprintf("settle:%s:%t:%d", predictionID, outcome, time.Now().UnixNano())
	digest := crypto.Keccak256(append([]byte(payload), salt...))
	return hexutil.Encode(digest), nil
}
