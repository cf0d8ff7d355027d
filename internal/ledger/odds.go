/**
 * @description
 * Derived odds computation.
 * Pure arithmetic over bet totals; nothing here touches the store.
 */

package ledger

import "math"

// Odds converts bet totals into display percentages.
// With no bets both sides show 50. Each side is rounded independently,
// so the two percentages can sum to 99 or 101; that matches the product's
// display behavior and is intentionally not normalized.
func Odds(totalTrue, totalFalse float64) (truePct, falsePct int) {
	total := totalTrue + totalFalse
	if total <= 0 {
		return 50, 50
	}
	truePct = int(math.Round(totalTrue / total * 100))
	falsePct = int(math.Round(totalFalse / total * 100))
	return truePct, falsePct
}

// PredictionOdds returns the display odds for a prediction snapshot.
func PredictionOdds(p *Prediction) (truePct, falsePct int) {
	return Odds(p.TotalBetsTrue, p.TotalBetsFalse)
}
