/**
 * @description
 * Service layer for the prediction ledger.
 * The in-memory ledger is authoritative; this service hydrates it from
 * Postgres at startup, writes mutations through to Postgres, keeps a short
 * Redis cache of the public feed, and publishes odds updates over Redis
 * pub/sub for the SSE stream.
 *
 * Persistence is a collaborator, not the source of truth: a failed write
 * is logged and repaired by the audit job, it never rolls back a committed
 * ledger mutation.
 *
 * @dependencies
 * - backend/internal/ledger
 * - backend/internal/models
 * - gorm.io/gorm
 * - github.com/jackc/pgconn
 * - github.com/redis/go-redis/v9
 */

package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/jackc/pgconn"
	"github.com/prophecy-market/backend/internal/ledger"
	"github.com/prophecy-market/backend/internal/logger"
	"github.com/prophecy-market/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	CacheKeyFeed = "predictions:feed"
	FeedCacheTTL = 30 * time.Second

	OddsUpdateChannel = "predictions:odds_updates"
)

// OddsUpdate is the pub/sub payload emitted after every ledger mutation.
type OddsUpdate struct {
	PredictionID   string        `json:"prediction_id"`
	Status         ledger.Status `json:"status"`
	TotalBetsTrue  float64       `json:"total_bets_true"`
	TotalBetsFalse float64       `json:"total_bets_false"`
	TruePct        int           `json:"true_pct"`
	FalsePct       int           `json:"false_pct"`
}

type PredictionService struct {
	Ledger   *ledger.Store
	DB       *gorm.DB
	Redis    *redis.Client
	Notifier *NotificationService
}

func NewPredictionService(db *gorm.DB, rdb *redis.Client, notifier *NotificationService) *PredictionService {
	s := &PredictionService{
		Ledger:   ledger.NewStore(),
		DB:       db,
		Redis:    rdb,
		Notifier: notifier,
	}
	s.Ledger.Subscribe(s.onChange)
	return s
}

// Hydrate loads all persisted predictions (with their bets) into the ledger.
// Must be called once before serving traffic.
func (s *PredictionService) Hydrate(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}

	var rows []models.Prediction
	err := s.DB.WithContext(ctx).
		Preload("Bets", func(db *gorm.DB) *gorm.DB {
			return db.Order("bets.created_at ASC")
		}).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return err
	}

	for i := range rows {
		lp := rows[i].ToLedger()
		if err := s.Ledger.Load(lp); err != nil {
			return err
		}
	}

	if err := s.Ledger.CheckIntegrity(); err != nil {
		return err
	}

	logger.Info("✅ Ledger hydrated with %d predictions", s.Ledger.Len())
	return nil
}

// Create appends a new prediction to the ledger and persists it.
func (s *PredictionService) Create(ctx context.Context, identity *ledger.Identity, content string, category ledger.Category, expiresAt time.Time) (ledger.Prediction, error) {
	p, err := s.Ledger.CreatePrediction(identity, content, category, expiresAt)
	if err != nil {
		return ledger.Prediction{}, err
	}

	if err := s.upsertPrediction(ctx, &p); err != nil {
		logger.Error("Failed to persist prediction %s: %v", p.ID, err)
	}
	return p, nil
}

// PlaceBet places a bet through the ledger, then persists the bet row and the
// updated totals.
func (s *PredictionService) PlaceBet(ctx context.Context, identity *ledger.Identity, predictionID string, amount float64, position bool) (ledger.Bet, error) {
	bet, err := s.Ledger.PlaceBet(identity, predictionID, amount, position)
	if err != nil {
		return ledger.Bet{}, err
	}

	p, lookupErr := s.Ledger.PredictionByID(predictionID)
	if lookupErr == nil {
		if err := s.upsertPrediction(ctx, &p); err != nil {
			logger.Error("Failed to persist totals for prediction %s: %v", p.ID, err)
		}
	}
	if err := s.insertBet(ctx, &bet); err != nil {
		logger.Error("Failed to persist bet %s: %v", bet.ID, err)
	}

	if s.Notifier != nil && lookupErr == nil {
		if err := s.Notifier.NotifyBetPlaced(ctx, &p, &bet); err != nil {
			logger.Error("Failed to notify creator of bet %s: %v", bet.ID, err)
		}
	}
	return bet, nil
}

// Resolve moves a prediction into a terminal state and persists it.
func (s *PredictionService) Resolve(ctx context.Context, identity *ledger.Identity, predictionID string, outcome bool) (ledger.Prediction, error) {
	p, err := s.Ledger.ResolvePrediction(identity, predictionID, outcome)
	if err != nil {
		return ledger.Prediction{}, err
	}

	if err := s.upsertPrediction(ctx, &p); err != nil {
		logger.Error("Failed to persist resolution of %s: %v", p.ID, err)
	}

	if s.Notifier != nil {
		if err := s.Notifier.NotifyResolved(ctx, &p); err != nil {
			logger.Error("Failed to notify bettors of resolution %s: %v", p.ID, err)
		}
	}
	return p, nil
}

// Get returns a single prediction snapshot.
func (s *PredictionService) Get(id string) (ledger.Prediction, error) {
	return s.Ledger.PredictionByID(id)
}

// UserPredictions returns predictions created by the address.
// Always recomputed from the ledger, never cached.
func (s *PredictionService) UserPredictions(address string) []ledger.Prediction {
	return s.Ledger.UserPredictions(address)
}

// List returns predictions matching the filter. The unfiltered default feed
// is served from a short-lived Redis cache that every mutation invalidates.
func (s *PredictionService) List(ctx context.Context, f ledger.Filter) []ledger.Prediction {
	useCache := s.Redis != nil && f.Category == "" && (f.Sort == "" || f.Sort == ledger.SortNewest)

	if useCache {
		if val, err := s.Redis.Get(ctx, CacheKeyFeed).Result(); err == nil {
			var cached []ledger.Prediction
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return cached
			}
			// Corrupt cache entry; fall through to the ledger
		}
	}

	out := s.Ledger.List(f)

	if useCache {
		if data, err := json.Marshal(out); err == nil {
			if err := s.Redis.Set(ctx, CacheKeyFeed, data, FeedCacheTTL).Err(); err != nil {
				logger.Error("Failed to cache feed: %v", err)
			}
		}
	}
	return out
}

// onChange fans a ledger mutation out to Redis: invalidates the feed cache
// and publishes an odds update for the SSE stream.
func (s *PredictionService) onChange(ev ledger.ChangeEvent) {
	if s.Redis == nil {
		return
	}
	ctx := context.Background()

	if err := s.Redis.Del(ctx, CacheKeyFeed).Err(); err != nil {
		logger.Error("Failed to invalidate feed cache: %v", err)
	}

	truePct, falsePct := ledger.PredictionOdds(&ev.Prediction)
	update := OddsUpdate{
		PredictionID:   ev.Prediction.ID,
		Status:         ev.Prediction.Status,
		TotalBetsTrue:  ev.Prediction.TotalBetsTrue,
		TotalBetsFalse: ev.Prediction.TotalBetsFalse,
		TruePct:        truePct,
		FalsePct:       falsePct,
	}
	payload, err := json.Marshal(update)
	if err != nil {
		logger.Error("Failed to marshal odds update: %v", err)
		return
	}
	if err := s.Redis.Publish(ctx, OddsUpdateChannel, payload).Err(); err != nil {
		logger.Error("Failed to publish odds update: %v", err)
	}
}

// upsertPrediction writes a prediction snapshot (without its bets; those are
// append-only rows) through to Postgres, retrying on serialization failures.
func (s *PredictionService) upsertPrediction(ctx context.Context, p *ledger.Prediction) error {
	if s.DB == nil {
		return nil
	}

	row := models.PredictionFromLedger(p)
	row.Bets = nil

	const maxRetries = 5
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status",
				"resolved_at",
				"total_bets_true",
				"total_bets_false",
			}),
		}).Create(&row).Error
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "40P01" || pgErr.Code == "40001") {
			backoff := time.Duration(attempt*100+rand.Intn(100)) * time.Millisecond
			time.Sleep(backoff)
			continue
		}
		break
	}
	return err
}

func (s *PredictionService) insertBet(ctx context.Context, b *ledger.Bet) error {
	if s.DB == nil {
		return nil
	}
	row := models.BetFromLedger(b)
	return s.DB.WithContext(ctx).Create(&row).Error
}
