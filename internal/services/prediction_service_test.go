package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prophecy-market/backend/internal/ledger"
	"github.com/redis/go-redis/v9"
)

func newPredictionFixture(t *testing.T) (*PredictionService, *miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	svc := NewPredictionService(nil, redisClient, nil)
	return svc, mr, redisClient
}

func testIdentity(address string) *ledger.Identity {
	return &ledger.Identity{Address: address, DisplayName: "tester"}
}

func TestListCachesUnfilteredFeed(t *testing.T) {
	svc, mr, _ := newPredictionFixture(t)
	ctx := context.Background()

	creator := testIdentity("0x1111111111111111111111111111111111111111")
	p, err := svc.Create(ctx, creator, "BTC closes above 100k this year", ledger.CategoryCrypto, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Creation invalidates the cache; the first List repopulates it.
	out := svc.List(ctx, ledger.Filter{})
	if len(out) != 1 || out[0].ID != p.ID {
		t.Fatalf("unexpected feed: %+v", out)
	}
	if !mr.Exists(CacheKeyFeed) {
		t.Fatal("expected feed cache to be populated after List")
	}

	// Cached payload round-trips to the same predictions.
	cached, err := mr.Get(CacheKeyFeed)
	if err != nil {
		t.Fatalf("failed to read cache: %v", err)
	}
	var fromCache []ledger.Prediction
	if err := json.Unmarshal([]byte(cached), &fromCache); err != nil {
		t.Fatalf("cache payload not valid JSON: %v", err)
	}
	if len(fromCache) != 1 || fromCache[0].ID != p.ID {
		t.Fatalf("cache payload mismatch: %+v", fromCache)
	}
}

func TestFilteredListsBypassCache(t *testing.T) {
	svc, mr, _ := newPredictionFixture(t)
	ctx := context.Background()

	creator := testIdentity("0x1111111111111111111111111111111111111111")
	if _, err := svc.Create(ctx, creator, "ETH flips BTC by market cap", ledger.CategoryCrypto, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	svc.List(ctx, ledger.Filter{Category: ledger.CategoryCrypto})
	if mr.Exists(CacheKeyFeed) {
		t.Fatal("filtered list must not populate the feed cache")
	}

	svc.List(ctx, ledger.Filter{Sort: ledger.SortOldest})
	if mr.Exists(CacheKeyFeed) {
		t.Fatal("non-default sort must not populate the feed cache")
	}
}

func TestMutationInvalidatesFeedCache(t *testing.T) {
	svc, mr, _ := newPredictionFixture(t)
	ctx := context.Background()

	creator := testIdentity("0x1111111111111111111111111111111111111111")
	bettor := testIdentity("0x2222222222222222222222222222222222222222")

	p, err := svc.Create(ctx, creator, "It rains in Lisbon tomorrow", ledger.CategoryOther, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	svc.List(ctx, ledger.Filter{})
	if !mr.Exists(CacheKeyFeed) {
		t.Fatal("expected feed cache to be populated")
	}

	if _, err := svc.PlaceBet(ctx, bettor, p.ID, 50, true); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if mr.Exists(CacheKeyFeed) {
		t.Fatal("expected bet to invalidate the feed cache")
	}

	svc.List(ctx, ledger.Filter{})
	if !mr.Exists(CacheKeyFeed) {
		t.Fatal("expected feed cache repopulated")
	}

	if _, err := svc.Resolve(ctx, creator, p.ID, true); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if mr.Exists(CacheKeyFeed) {
		t.Fatal("expected resolution to invalidate the feed cache")
	}
}

func TestOddsUpdatesPublished(t *testing.T) {
	svc, _, redisClient := newPredictionFixture(t)
	ctx := context.Background()

	pubsub := redisClient.Subscribe(ctx, OddsUpdateChannel)
	t.Cleanup(func() { pubsub.Close() })
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	ch := pubsub.Channel()

	creator := testIdentity("0x1111111111111111111111111111111111111111")
	bettor := testIdentity("0x2222222222222222222222222222222222222222")

	p, err := svc.Create(ctx, creator, "SOL hits a new all-time high", ledger.CategoryCrypto, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.PlaceBet(ctx, bettor, p.ID, 50, true); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if _, err := svc.PlaceBet(ctx, creator, p.ID, 30, false); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}

	var updates []OddsUpdate
	timeout := time.After(2 * time.Second)
	for len(updates) < 3 {
		select {
		case <-timeout:
			t.Fatalf("timed out after %d update(s)", len(updates))
		case msg := <-ch:
			var u OddsUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				t.Fatalf("bad odds payload %q: %v", msg.Payload, err)
			}
			updates = append(updates, u)
		}
	}

	last := updates[2]
	if last.PredictionID != p.ID {
		t.Fatalf("update for %s, want %s", last.PredictionID, p.ID)
	}
	if last.TotalBetsTrue != 50 || last.TotalBetsFalse != 30 {
		t.Fatalf("totals %.0f/%.0f, want 50/30", last.TotalBetsTrue, last.TotalBetsFalse)
	}
	if last.TruePct != 63 || last.FalsePct != 38 {
		t.Fatalf("odds %d/%d, want 63/38", last.TruePct, last.FalsePct)
	}
}

func TestFailedMutationPublishesNothing(t *testing.T) {
	svc, mr, redisClient := newPredictionFixture(t)
	ctx := context.Background()

	creator := testIdentity("0x1111111111111111111111111111111111111111")
	p, err := svc.Create(ctx, creator, "Lakers win the championship", ledger.CategorySports, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	svc.List(ctx, ledger.Filter{})
	if !mr.Exists(CacheKeyFeed) {
		t.Fatal("expected feed cache to be populated")
	}

	pubsub := redisClient.Subscribe(ctx, OddsUpdateChannel)
	t.Cleanup(func() { pubsub.Close() })
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	ch := pubsub.Channel()

	if _, err := svc.PlaceBet(ctx, creator, p.ID, -1, true); err == nil {
		t.Fatal("expected invalid bet to fail")
	}

	select {
	case msg := <-ch:
		t.Fatalf("unexpected odds update after failed bet: %s", msg.Payload)
	case <-time.After(200 * time.Millisecond):
	}
	if !mr.Exists(CacheKeyFeed) {
		t.Fatal("failed bet must not invalidate the feed cache")
	}
}
