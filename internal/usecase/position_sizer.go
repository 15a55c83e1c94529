package usecase

import (
	"math"

	"go.uber.org/zap"

	"github.com/vforex/quantpilot/internal/domain"
)

// PositionSizer turns an account state and a stop distance into a lot size.
// Sizing scales up with equity growth past the compounding threshold and
// throttles back while the account sits in drawdown.
type PositionSizer struct {
	logger *zap.Logger
}

// compoundingBase is the equity above which lots scale with the square root
// of growth.
const compoundingBase = 10000.0

func NewPositionSizer(logger *zap.Logger) *PositionSizer {
	return &PositionSizer{logger: logger}
}

// Size computes the lot for a trade risking cfg.RiskPerTrade percent of
// equity between entry and stop. A degenerate stop distance falls back to
// the instrument minimum instead of dividing by zero.
func (s *PositionSizer) Size(account *domain.AccountState, ins domain.Instrument, entry, stop float64, cfg domain.Settings) (float64, error) {
	distance := math.Abs(entry - stop)

	var lot float64
	if distance <= 0 {
		lot = ins.MinLot
	} else {
		riskAmount := account.Equity * cfg.RiskPerTrade / 100
		lot = riskAmount / distance
		lot = math.Max(ins.MinLot, math.Min(ins.MaxLot, lot))
		if ins.LotStep > 0 {
			lot = math.Round(lot/ins.LotStep) * ins.LotStep
		}
		lot = math.Round(lot*100) / 100
	}

	growth := 1.0
	if account.Equity > compoundingBase {
		growth = math.Sqrt(account.Equity / compoundingBase)
	}
	if dd := account.DrawdownPercent(); dd > 2 {
		growth *= 1 - dd/100
	}
	lot = math.Round(lot*growth*100) / 100

	if lot <= 0 {
		return 0, &domain.SizingInvalidError{Lot: lot}
	}
	s.logger.Debug("position sized",
		zap.String("symbol", ins.Symbol),
		zap.Float64("lot", lot),
		zap.Float64("stop_distance", distance),
		zap.Float64("equity", account.Equity))
	return lot, nil
}
