/**
 * @description
 * One-shot audit job for the prediction ledger's persistence.
 * Because the in-memory ledger is authoritative and persistence writes are
 * best-effort, the stored totals can drift from the bet rows after a crash.
 * This job recomputes every prediction's totals from its bets, repairs
 * drifted rows, then hydrates a fresh ledger and runs its integrity check.
 *
 * @dependencies
 * - backend/internal/db: Postgres connection
 * - backend/internal/ledger: Integrity check
 * - backend/internal/models: Persistence rows
 *
 * @notes
 * - Run manually or from cron: `go run cmd/audit/main.go`
 * - Exits non-zero if the repaired data still fails the integrity check.
 */

package main

import (
	"context"
	"math"
	"time"

	"github.com/prophecy-market/backend/internal/config"
	"github.com/prophecy-market/backend/internal/db"
	"github.com/prophecy-market/backend/internal/ledger"
	"github.com/prophecy-market/backend/internal/logger"
	"github.com/prophecy-market/backend/internal/models"
)

// totalsEpsilon tolerates float accumulation noise when comparing stored
// totals against the recomputed sums.
const totalsEpsilon = 1e-9

func main() {
	logger.Info("Starting Prophecy ledger audit...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var rows []models.Prediction
	err = pgDB.WithContext(ctx).
		Preload("Bets").
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		logger.Fatal("Failed to load predictions: %v", err)
	}

	repaired := 0
	for i := range rows {
		p := &rows[i]

		var sumTrue, sumFalse float64
		for j := range p.Bets {
			if p.Bets[j].Position {
				sumTrue += p.Bets[j].Amount
			} else {
				sumFalse += p.Bets[j].Amount
			}
		}

		if math.Abs(p.TotalBetsTrue-sumTrue) <= totalsEpsilon &&
			math.Abs(p.TotalBetsFalse-sumFalse) <= totalsEpsilon {
			continue
		}

		logger.Info("⚠️ Prediction %s totals drifted: stored (%.2f/%.2f) vs bets (%.2f/%.2f)",
			p.ID, p.TotalBetsTrue, p.TotalBetsFalse, sumTrue, sumFalse)

		err := pgDB.WithContext(ctx).Model(&models.Prediction{}).
			Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"total_bets_true":  sumTrue,
				"total_bets_false": sumFalse,
			}).Error
		if err != nil {
			logger.Fatal("Failed to repair prediction %s: %v", p.ID, err)
		}

		p.TotalBetsTrue = sumTrue
		p.TotalBetsFalse = sumFalse
		repaired++
	}

	// Rebuild a ledger from the repaired rows and let its own invariants
	// have the final word.
	store := ledger.NewStore()
	for i := range rows {
		if err := store.Load(rows[i].ToLedger()); err != nil {
			logger.Fatal("Prediction %s failed to load: %v", rows[i].ID, err)
		}
	}
	if err := store.CheckIntegrity(); err != nil {
		logger.Fatal("Integrity check failed after repair: %v", err)
	}

	logger.Info("✅ Audit complete: %d predictions checked, %d repaired", len(rows), repaired)
}
