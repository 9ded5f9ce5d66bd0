package risk

import (
	"errors"

	"mirae/config"
)

// ErrInvalidRiskParams sizing cannot be computed from the config's risk
// parameters (zero stop-loss would divide by zero)
var ErrInvalidRiskParams = errors.New("invalid risk parameters")

// PositionAmount converts account equity and the config's risk parameters
// into the total capital allocation for the instrument:
//
//	total = equity * (max_loss/100) / (stop_loss/100)
//
// Sized so that a move of stop_loss percent against the entry realizes a
// loss of max_loss percent of equity.
func PositionAmount(equity float64, cfg *config.TradingConfig) (float64, error) {
	if cfg.StopLoss == 0 {
		return 0, ErrInvalidRiskParams
	}
	maxLoss := cfg.MaxLoss / 100
	stopLoss := cfg.StopLoss / 100
	return equity * maxLoss / stopLoss, nil
}

// PyramidingAmounts splits a total allocation across the configured
// tranches. The first pyramiding_count+1 entries of positions are
// normalized to sum to 1 over exactly that prefix; later entries are
// ignored. The returned amounts always sum to total.
func PyramidingAmounts(cfg *config.TradingConfig, total float64) []float64 {
	if cfg.PyramidingCount <= 0 || len(cfg.Positions) == 0 {
		return []float64{total}
	}

	n := cfg.PyramidingCount + 1
	if n > len(cfg.Positions) {
		n = len(cfg.Positions)
	}

	totalRatio := 0.0
	for _, p := range cfg.Positions[:n] {
		totalRatio += p
	}
	if totalRatio == 0 {
		return []float64{total}
	}

	amounts := make([]float64, 0, n)
	for _, p := range cfg.Positions[:n] {
		amounts = append(amounts, total*p/totalRatio)
	}
	return amounts
}

// CurrentEntryAmount returns the tranche amount for the next entry, given
// how many entries were already made (0-based tranche index). Returns 0
// once the pyramiding budget is exhausted - a deliberate hard stop, not
// an error.
func CurrentEntryAmount(cfg *config.TradingConfig, total float64, entryCount int) float64 {
	amounts := PyramidingAmounts(cfg, total)
	if entryCount < 0 || entryCount >= len(amounts) {
		return 0
	}
	return amounts[entryCount]
}
