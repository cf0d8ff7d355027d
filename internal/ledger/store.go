/**
 * @description
 * In-memory prediction ledger.
 * Owns the authoritative collection of predictions (each owning its bets),
 * enforces transition legality, and answers queries.
 *
 * Concurrency model: the store-level RWMutex guards collection membership;
 * each prediction carries its own mutex so concurrent bets on the same
 * prediction serialize while bets on different predictions proceed in
 * parallel. Queries return deep copies, so a reader can never observe a
 * half-applied mutation.
 *
 * @dependencies
 * - github.com/google/uuid
 */

package ledger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MinContentLength is the minimum length of prediction content.
// The presentation layer validates this before submission; the store
// re-checks it to stay safe against misuse.
const MinContentLength = 10

type entry struct {
	mu sync.Mutex
	p  *Prediction
}

// Store is an owned in-memory ledger. Multiple stores can coexist
// (tests, multi-tenant deployments); nothing here is global.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // insertion order of prediction ids

	subMu sync.RWMutex
	subs  []func(ChangeEvent)

	newID func() string
	now   func() time.Time
}

// NewStore creates an empty ledger.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		newID:   newID,
		now:     time.Now,
	}
}

// Subscribe registers fn to be called after every committed mutation.
// Handlers run synchronously on the mutating goroutine; keep them cheap
// and hand off anything slow.
func (s *Store) Subscribe(fn func(ChangeEvent)) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

func (s *Store) notify(ev ChangeEvent) {
	s.subMu.RLock()
	subs := s.subs
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// CreatePrediction appends a new open prediction and returns a snapshot of it.
func (s *Store) CreatePrediction(identity *Identity, content string, category Category, expiresAt time.Time) (Prediction, error) {
	if identity == nil || strings.TrimSpace(identity.Address) == "" {
		return Prediction{}, ErrUnauthenticated
	}
	if len(strings.TrimSpace(content)) < MinContentLength {
		return Prediction{}, fmt.Errorf("%w: content must be at least %d characters", ErrInvalidInput, MinContentLength)
	}
	if !category.Valid() {
		return Prediction{}, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, category)
	}
	now := s.now()
	if !expiresAt.After(now) {
		return Prediction{}, fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
	}

	p := &Prediction{
		ID:        s.newID(),
		Creator:   *identity,
		Content:   content,
		Category:  category,
		Status:    StatusOpen,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		Bets:      []Bet{},
	}

	s.mu.Lock()
	s.entries[p.ID] = &entry{p: p}
	s.order = append(s.order, p.ID)
	s.mu.Unlock()

	snap := copyPrediction(p)
	s.notify(ChangeEvent{Type: ChangeCreated, Prediction: snap})
	return snap, nil
}

// PlaceBet appends a bet to an open prediction and bumps the matching total.
// The append and the total increment commit under the prediction's lock, so
// they are observed all-or-nothing.
func (s *Store) PlaceBet(identity *Identity, predictionID string, amount float64, position bool) (Bet, error) {
	if identity == nil || strings.TrimSpace(identity.Address) == "" {
		return Bet{}, ErrUnauthenticated
	}

	e, err := s.lookup(predictionID)
	if err != nil {
		return Bet{}, err
	}

	e.mu.Lock()
	if e.p.Status != StatusOpen {
		e.mu.Unlock()
		return Bet{}, fmt.Errorf("%w: prediction is %s, not open for betting", ErrInvalidState, e.p.Status)
	}
	if amount <= 0 {
		e.mu.Unlock()
		return Bet{}, fmt.Errorf("%w: bet amount must be positive", ErrInvalidInput)
	}

	bet := Bet{
		ID:           s.newID(),
		User:         *identity,
		PredictionID: predictionID,
		Amount:       amount,
		Position:     position,
		CreatedAt:    s.now(),
	}
	e.p.Bets = append(e.p.Bets, bet)
	if position {
		e.p.TotalBetsTrue += amount
	} else {
		e.p.TotalBetsFalse += amount
	}
	snap := copyPrediction(e.p)
	e.mu.Unlock()

	s.notify(ChangeEvent{Type: ChangeBetPlaced, Prediction: snap, Bet: &bet})
	return bet, nil
}

// ResolvePrediction moves a prediction into a terminal state.
// Only the creator may resolve, and only once.
func (s *Store) ResolvePrediction(identity *Identity, predictionID string, outcome bool) (Prediction, error) {
	if identity == nil || strings.TrimSpace(identity.Address) == "" {
		return Prediction{}, ErrUnauthenticated
	}

	e, err := s.lookup(predictionID)
	if err != nil {
		return Prediction{}, err
	}

	e.mu.Lock()
	if !strings.EqualFold(e.p.Creator.Address, identity.Address) {
		e.mu.Unlock()
		return Prediction{}, fmt.Errorf("%w: only the creator can resolve this prediction", ErrForbidden)
	}
	if e.p.Status.Resolved() {
		e.mu.Unlock()
		return Prediction{}, fmt.Errorf("%w: prediction already resolved", ErrInvalidState)
	}
	if outcome {
		e.p.Status = StatusResolvedTrue
	} else {
		e.p.Status = StatusResolvedFalse
	}
	resolvedAt := s.now()
	e.p.ResolvedAt = &resolvedAt
	snap := copyPrediction(e.p)
	e.mu.Unlock()

	s.notify(ChangeEvent{Type: ChangeResolved, Prediction: snap})
	return snap, nil
}

// CheckResolvable performs the same authorization and state checks as
// ResolvePrediction without mutating anything. The settlement path uses it
// to fail before touching the chain.
func (s *Store) CheckResolvable(identity *Identity, predictionID string) error {
	if identity == nil || strings.TrimSpace(identity.Address) == "" {
		return ErrUnauthenticated
	}
	e, err := s.lookup(predictionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !strings.EqualFold(e.p.Creator.Address, identity.Address) {
		return fmt.Errorf("%w: only the creator can settle this prediction", ErrForbidden)
	}
	if e.p.Status.Resolved() {
		return fmt.Errorf("%w: prediction already resolved", ErrInvalidState)
	}
	return nil
}

// PredictionByID returns a snapshot of a prediction, or ErrNotFound.
func (s *Store) PredictionByID(id string) (Prediction, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Prediction{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyPrediction(e.p), nil
}

// UserPredictions returns all predictions created by the given address,
// in canonical (insertion) order. Recomputed on every call, never cached.
func (s *Store) UserPredictions(address string) []Prediction {
	out := []Prediction{}
	for _, snap := range s.snapshotAll() {
		if strings.EqualFold(snap.Creator.Address, address) {
			out = append(out, snap)
		}
	}
	return out
}

// List returns predictions matching the filter. Filtering and sorting are
// pure reader-side operations over snapshots; the canonical collection is
// never reordered.
func (s *Store) List(f Filter) []Prediction {
	out := []Prediction{}
	for _, snap := range s.snapshotAll() {
		if f.Category != "" && snap.Category != f.Category {
			continue
		}
		out = append(out, snap)
	}

	switch f.Sort {
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	default:
		// Most-recent-first is the feed's default presentation order.
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out
}

// Len returns the number of predictions in the ledger.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Load inserts an existing prediction snapshot, preserving its id, bets and
// totals. Used to hydrate the ledger from persistence at startup.
func (s *Store) Load(p Prediction) error {
	if p.ID == "" {
		return fmt.Errorf("%w: prediction id is required", ErrInvalidInput)
	}
	cp := copyPrediction(&p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[p.ID]; exists {
		return fmt.Errorf("%w: duplicate prediction id %s", ErrInvalidInput, p.ID)
	}
	s.entries[p.ID] = &entry{p: &cp}
	s.order = append(s.order, p.ID)
	return nil
}

// CheckIntegrity verifies the ledger invariants:
// totals match the sum of bet amounts per position, and resolvedAt is set
// exactly when the status is terminal. Used by the audit command and tests.
func (s *Store) CheckIntegrity() error {
	for _, p := range s.snapshotAll() {
		var wantTrue, wantFalse float64
		for _, b := range p.Bets {
			if b.Position {
				wantTrue += b.Amount
			} else {
				wantFalse += b.Amount
			}
		}
		if p.TotalBetsTrue != wantTrue || p.TotalBetsFalse != wantFalse {
			return fmt.Errorf("prediction %s: totals (%v,%v) do not match bets (%v,%v)",
				p.ID, p.TotalBetsTrue, p.TotalBetsFalse, wantTrue, wantFalse)
		}
		if p.Status.Resolved() != (p.ResolvedAt != nil) {
			return fmt.Errorf("prediction %s: resolvedAt inconsistent with status %s", p.ID, p.Status)
		}
	}
	return nil
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// snapshotAll copies every prediction in canonical order.
func (s *Store) snapshotAll() []Prediction {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.entries[id])
	}
	s.mu.RUnlock()

	out := make([]Prediction, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, copyPrediction(e.p))
		e.mu.Unlock()
	}
	return out
}

func copyPrediction(p *Prediction) Prediction {
	cp := *p
	cp.Bets = make([]Bet, len(p.Bets))
	copy(cp.Bets, p.Bets)
	if p.ResolvedAt != nil {
		t := *p.ResolvedAt
		cp.ResolvedAt = &t
	}
	return cp
}
