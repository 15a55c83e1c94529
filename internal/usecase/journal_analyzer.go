package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/vforex/quantpilot/internal/domain"
	"go.uber.org/zap"
)

// SymbolPerformance aggregates the closed trades of one symbol.
type SymbolPerformance struct {
	Symbol         string  `json:"symbol"`
	Trades         int     `json:"trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"`
	TotalPnL       float64 `json:"total_pnl"`
	AvgPnL         float64 `json:"avg_pnl"`
	BestTrade      float64 `json:"best_trade"`
	WorstTrade     float64 `json:"worst_trade"`
	AvgHoldMinutes float64 `json:"avg_hold_minutes"`
}

// JournalOverview summarizes every closed trade in the journal.
type JournalOverview struct {
	ClosedTrades   int     `json:"closed_trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"`
	TotalPnL       float64 `json:"total_pnl"`
	ProfitFactor   float64 `json:"profit_factor"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	LargestWin     float64 `json:"largest_win"`
	LargestLoss    float64 `json:"largest_loss"`
	AvgHoldMinutes float64 `json:"avg_hold_minutes"`
	StopOuts       int     `json:"stop_outs"`
	TargetHits     int     `json:"target_hits"`
}

// JournalAnalyzerService computes performance aggregates from the persisted
// trade journal.
type JournalAnalyzerService struct {
	journal domain.TradeJournal
	logger  *zap.Logger
}

func NewJournalAnalyzerService(journal domain.TradeJournal, logger *zap.Logger) *JournalAnalyzerService {
	return &JournalAnalyzerService{
		journal: journal,
		logger:  logger,
	}
}

// Overview folds up to limit recent closed trades into one summary. An empty
// journal yields a zero overview, not an error.
func (s *JournalAnalyzerService) Overview(ctx context.Context, limit int) (*JournalOverview, error) {
	closed, err := s.journal.ListClosedPositions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list closed positions: %w", err)
	}

	overview := &JournalOverview{}
	var grossProfit, grossLoss, holdMinutes float64
	for _, pos := range closed {
		overview.ClosedTrades++
		overview.TotalPnL += pos.RealizedPnL
		holdMinutes += pos.ClosedAt.Sub(pos.OpenedAt).Minutes()

		switch pos.Reason {
		case domain.CloseReasonStopLoss:
			overview.StopOuts++
		case domain.CloseReasonTakeProfit:
			overview.TargetHits++
		}

		if pos.RealizedPnL > 0 {
			overview.Wins++
			grossProfit += pos.RealizedPnL
			if pos.RealizedPnL > overview.LargestWin {
				overview.LargestWin = pos.RealizedPnL
			}
		} else if pos.RealizedPnL < 0 {
			overview.Losses++
			grossLoss += pos.RealizedPnL
			if pos.RealizedPnL < overview.LargestLoss {
				overview.LargestLoss = pos.RealizedPnL
			}
		}
	}

	if overview.ClosedTrades > 0 {
		overview.WinRate = float64(overview.Wins) / float64(overview.ClosedTrades) * 100
		overview.AvgHoldMinutes = holdMinutes / float64(overview.ClosedTrades)
	}
	if overview.Wins > 0 {
		overview.AvgWin = grossProfit / float64(overview.Wins)
	}
	if overview.Losses > 0 {
		overview.AvgLoss = grossLoss / float64(overview.Losses)
		overview.ProfitFactor = grossProfit / math.Abs(grossLoss)
	}

	return overview, nil
}

// SymbolPerformance groups closed trades per symbol, best total first.
func (s *JournalAnalyzerService) SymbolPerformance(ctx context.Context, limit int) ([]SymbolPerformance, error) {
	closed, err := s.journal.ListClosedPositions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list closed positions: %w", err)
	}

	bySymbol := make(map[string][]*domain.ClosedPosition)
	for _, pos := range closed {
		bySymbol[pos.Symbol] = append(bySymbol[pos.Symbol], pos)
	}

	results := make([]SymbolPerformance, 0, len(bySymbol))
	for symbol, trades := range bySymbol {
		perf := SymbolPerformance{
			Symbol:     symbol,
			BestTrade:  math.Inf(-1),
			WorstTrade: math.Inf(1),
		}
		var holdMinutes float64
		for _, pos := range trades {
			perf.Trades++
			perf.TotalPnL += pos.RealizedPnL
			holdMinutes += pos.ClosedAt.Sub(pos.OpenedAt).Minutes()
			if pos.RealizedPnL > 0 {
				perf.Wins++
			} else if pos.RealizedPnL < 0 {
				perf.Losses++
			}
			if pos.RealizedPnL > perf.BestTrade {
				perf.BestTrade = pos.RealizedPnL
			}
			if pos.RealizedPnL < perf.WorstTrade {
				perf.WorstTrade = pos.RealizedPnL
			}
		}
		perf.WinRate = float64(perf.Wins) / float64(perf.Trades) * 100
		perf.AvgPnL = perf.TotalPnL / float64(perf.Trades)
		perf.AvgHoldMinutes = holdMinutes / float64(perf.Trades)
		results = append(results, perf)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].TotalPnL != results[j].TotalPnL {
			return results[i].TotalPnL > results[j].TotalPnL
		}
		return results[i].Symbol < results[j].Symbol
	})

	return results, nil
}

// SymbolTrades returns the closed trades of one symbol, newest order as the
// journal returns them.
func (s *JournalAnalyzerService) SymbolTrades(ctx context.Context, symbol string, limit int) ([]*domain.ClosedPosition, error) {
	closed, err := s.journal.ListClosedPositions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list closed positions: %w", err)
	}

	var trades []*domain.ClosedPosition
	for _, pos := range closed {
		if pos.Symbol == symbol {
			trades = append(trades, pos)
		}
	}
	return trades, nil
}
