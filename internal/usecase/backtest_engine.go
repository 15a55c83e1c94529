package usecase

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/vforex/quantpilot/internal/domain"
)

// backtestWarmup is how many bars are reserved for indicator history before
// the first strategy call.
const backtestWarmup = 100

// tradingDaysPerYear annualizes per-bar return ratios.
const tradingDaysPerYear = 252

// StrategySignal is one trade proposal from a strategy function.
type StrategySignal struct {
	Direction  domain.Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

// StrategyFunc proposes a trade from the history up to and including the
// current bar, or nil for no trade.
type StrategyFunc func(candles []domain.Candle) *StrategySignal

// SignalStrategy adapts the ensemble generator into a StrategyFunc. The
// second take profit is the primary target, matching the live pipeline.
func SignalStrategy(gen *SignalGenerator, symbol string, cfg domain.Settings) StrategyFunc {
	return func(candles []domain.Candle) *StrategySignal {
		bundle, err := gen.Generate(symbol, candles, cfg)
		if err != nil || bundle.Signal.Direction == domain.DirectionNeutral {
			return nil
		}
		sig := bundle.Signal
		return &StrategySignal{
			Direction:  sig.Direction,
			Entry:      sig.EntryPrice,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfit2,
		}
	}
}

// BacktestEngine replays history bar by bar against a strategy with a
// single concurrent position.
type BacktestEngine struct {
	initialCapital float64
	logger         *zap.Logger
}

func NewBacktestEngine(initialCapital float64, logger *zap.Logger) *BacktestEngine {
	return &BacktestEngine{initialCapital: initialCapital, logger: logger}
}

// Run replays the candles. riskPerTrade is a decimal share of current
// capital, e.g. 0.02 risks 2% between entry and stop.
//
// Exits are checked against each bar's full range, stop before target, so a
// bar wide enough to hit both counts as the loss. A position still open
// after the last bar is closed at that bar's close.
func (b *BacktestEngine) Run(candles []domain.Candle, strategy StrategyFunc, riskPerTrade float64) *domain.BacktestResult {
	capital := b.initialCapital
	equityCurve := []float64{capital}
	var trades []domain.BacktestTrade
	var open *domain.BacktestTrade

	closeTrade := func(exitPrice float64, exitTime time.Time) {
		var pnl float64
		if open.Direction == domain.DirectionBuy {
			pnl = (exitPrice - open.EntryPrice) * open.Size
		} else {
			pnl = (open.EntryPrice - exitPrice) * open.Size
		}
		open.ExitPrice = exitPrice
		open.ExitTime = exitTime
		open.PnL = pnl
		open.PnLPips = math.Abs(exitPrice-open.EntryPrice) * 10000
		capital += pnl
		trades = append(trades, *open)
		open = nil
	}

	for i := backtestWarmup; i < len(candles); i++ {
		bar := candles[i]
		barTime := time.Unix(bar.Time, 0)

		if open != nil {
			if open.Direction == domain.DirectionBuy {
				if bar.Low <= open.StopLoss {
					closeTrade(open.StopLoss, barTime)
				} else if bar.High >= open.TakeProfit {
					closeTrade(open.TakeProfit, barTime)
				}
			} else {
				if bar.High >= open.StopLoss {
					closeTrade(open.StopLoss, barTime)
				} else if bar.Low <= open.TakeProfit {
					closeTrade(open.TakeProfit, barTime)
				}
			}
		} else if sig := strategy(candles[:i+1]); sig != nil {
			riskPerUnit := math.Abs(sig.Entry - sig.StopLoss)
			if riskPerUnit > 0 {
				open = &domain.BacktestTrade{
					Direction:  sig.Direction,
					EntryTime:  barTime,
					EntryPrice: sig.Entry,
					Size:       capital * riskPerTrade / riskPerUnit,
					StopLoss:   sig.StopLoss,
					TakeProfit: sig.TakeProfit,
				}
			}
		}

		equity := capital
		if open != nil {
			if open.Direction == domain.DirectionBuy {
				equity += (bar.Close - open.EntryPrice) * open.Size
			} else {
				equity += (open.EntryPrice - bar.Close) * open.Size
			}
		}
		equityCurve = append(equityCurve, equity)
	}

	if open != nil {
		last := candles[len(candles)-1]
		closeTrade(last.Close, time.Unix(last.Time, 0))
	}

	result := buildBacktestResult(trades, equityCurve, capital)
	b.logger.Info("backtest complete",
		zap.Int("bars", len(candles)),
		zap.Int("trades", result.TotalTrades),
		zap.Float64("win_rate", result.WinRate),
		zap.Float64("total_pnl", result.TotalPnL),
		zap.Float64("max_drawdown_pct", result.MaxDrawdownPercent))
	return result
}

func buildBacktestResult(trades []domain.BacktestTrade, equityCurve []float64, finalCapital float64) *domain.BacktestResult {
	result := &domain.BacktestResult{
		Trades:       trades,
		EquityCurve:  equityCurve,
		FinalCapital: finalCapital,
	}
	if len(trades) == 0 {
		return result
	}

	var wins, losses []float64
	var totalPnL float64
	var totalDuration time.Duration
	for _, t := range trades {
		totalPnL += t.PnL
		if t.PnL > 0 {
			wins = append(wins, t.PnL)
		} else if t.PnL < 0 {
			losses = append(losses, t.PnL)
		}
		totalDuration += t.ExitTime.Sub(t.EntryTime)
	}

	result.TotalTrades = len(trades)
	result.WinningTrades = len(wins)
	result.LosingTrades = len(losses)
	result.WinRate = float64(len(wins)) / float64(len(trades)) * 100
	result.TotalPnL = totalPnL
	result.AvgTradeDuration = totalDuration.Minutes() / float64(len(trades))

	runningMax := equityCurve[0]
	for _, eq := range equityCurve {
		if eq > runningMax {
			runningMax = eq
		}
		if dd := runningMax - eq; dd > result.MaxDrawdown {
			result.MaxDrawdown = dd
		}
		if ddPct := (runningMax - eq) / runningMax * 100; ddPct > result.MaxDrawdownPercent {
			result.MaxDrawdownPercent = ddPct
		}
	}

	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		returns = append(returns, (equityCurve[i]-equityCurve[i-1])/equityCurve[i-1])
	}
	meanReturn := mean(returns)
	if sd := populationStdDev(returns); sd > 0 {
		result.SharpeRatio = meanReturn / sd * math.Sqrt(tradingDaysPerYear)
	}
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) > 0 {
		if sd := populationStdDev(downside); sd > 0 {
			result.SortinoRatio = meanReturn / sd * math.Sqrt(tradingDaysPerYear)
		}
	}

	if len(wins) > 0 {
		result.AvgWin = mean(wins)
		result.LargestWin = wins[0]
		for _, w := range wins {
			if w > result.LargestWin {
				result.LargestWin = w
			}
		}
	}
	if len(losses) > 0 {
		result.AvgLoss = mean(losses)
		result.LargestLoss = losses[0]
		var grossProfit, grossLoss float64
		for _, w := range wins {
			grossProfit += w
		}
		for _, l := range losses {
			if l < result.LargestLoss {
				result.LargestLoss = l
			}
			grossLoss += -l
		}
		if grossLoss > 0 {
			result.ProfitFactor = grossProfit / grossLoss
		}
	}
	return result
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationStdDev(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	m := mean(values)
	var varSum float64
	for _, v := range values {
		d := v - m
		varSum += d * d
	}
	return math.Sqrt(varSum / float64(n))
}
