package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vforex/quantpilot/internal/domain"
	"github.com/vforex/quantpilot/internal/usecase"
	"go.uber.org/zap"
)

func closedTrade(symbol string, pnl float64, reason string) *domain.ClosedPosition {
	opened := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	return &domain.ClosedPosition{
		Symbol:      symbol,
		Side:        domain.DirectionBuy,
		Quantity:    0.1,
		EntryPrice:  1.1000,
		ExitPrice:   1.1000 + pnl/1000,
		RealizedPnL: pnl,
		Reason:      reason,
		OpenedAt:    opened,
		ClosedAt:    opened.Add(30 * time.Minute),
	}
}

func seededJournal() *MockJournal {
	return &MockJournal{Closed: []*domain.ClosedPosition{
		closedTrade("EURUSD", 100, domain.CloseReasonTakeProfit),
		closedTrade("EURUSD", -50, domain.CloseReasonStopLoss),
		closedTrade("GBPUSD", 30, domain.CloseReasonTakeProfit),
		closedTrade("GBPUSD", -20, domain.CloseReasonManual),
		closedTrade("XAUUSD", 40, domain.CloseReasonTakeProfit),
	}}
}

func TestOverviewAggregatesClosedTrades(t *testing.T) {
	analyzer := usecase.NewJournalAnalyzerService(seededJournal(), zap.NewNop())

	overview, err := analyzer.Overview(context.Background(), 100)
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}

	if overview.ClosedTrades != 5 {
		t.Errorf("ClosedTrades = %d, want 5", overview.ClosedTrades)
	}
	if overview.Wins != 3 || overview.Losses != 2 {
		t.Errorf("Wins/Losses = %d/%d, want 3/2", overview.Wins, overview.Losses)
	}
	if !floatEquals(overview.WinRate, 60) {
		t.Errorf("WinRate = %v, want 60", overview.WinRate)
	}
	if !floatEquals(overview.TotalPnL, 100) {
		t.Errorf("TotalPnL = %v, want 100", overview.TotalPnL)
	}
	if !floatEquals(overview.ProfitFactor, 170.0/70.0) {
		t.Errorf("ProfitFactor = %v, want %v", overview.ProfitFactor, 170.0/70.0)
	}
	if !floatEquals(overview.AvgWin, 170.0/3.0) {
		t.Errorf("AvgWin = %v, want %v", overview.AvgWin, 170.0/3.0)
	}
	if !floatEquals(overview.AvgLoss, -35) {
		t.Errorf("AvgLoss = %v, want -35", overview.AvgLoss)
	}
	if overview.LargestWin != 100 || overview.LargestLoss != -50 {
		t.Errorf("Largest win/loss = %v/%v, want 100/-50", overview.LargestWin, overview.LargestLoss)
	}
	if overview.StopOuts != 1 || overview.TargetHits != 3 {
		t.Errorf("StopOuts/TargetHits = %d/%d, want 1/3", overview.StopOuts, overview.TargetHits)
	}
	if !floatEquals(overview.AvgHoldMinutes, 30) {
		t.Errorf("AvgHoldMinutes = %v, want 30", overview.AvgHoldMinutes)
	}
}

func TestOverviewEmptyJournal(t *testing.T) {
	analyzer := usecase.NewJournalAnalyzerService(&MockJournal{}, zap.NewNop())

	overview, err := analyzer.Overview(context.Background(), 100)
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if overview.ClosedTrades != 0 || overview.WinRate != 0 || overview.ProfitFactor != 0 {
		t.Errorf("empty journal overview = %+v, want zeros", overview)
	}
}

func TestOverviewPropagatesJournalError(t *testing.T) {
	journal := &MockJournal{ListErr: errors.New("db closed")}
	analyzer := usecase.NewJournalAnalyzerService(journal, zap.NewNop())

	if _, err := analyzer.Overview(context.Background(), 100); err == nil {
		t.Fatal("Overview() error = nil, want error")
	}
}

func TestSymbolPerformanceGroupsAndSorts(t *testing.T) {
	analyzer := usecase.NewJournalAnalyzerService(seededJournal(), zap.NewNop())

	perf, err := analyzer.SymbolPerformance(context.Background(), 100)
	if err != nil {
		t.Fatalf("SymbolPerformance() error = %v", err)
	}

	if len(perf) != 3 {
		t.Fatalf("got %d symbols, want 3", len(perf))
	}
	wantOrder := []string{"EURUSD", "XAUUSD", "GBPUSD"}
	for i, want := range wantOrder {
		if perf[i].Symbol != want {
			t.Errorf("perf[%d].Symbol = %s, want %s", i, perf[i].Symbol, want)
		}
	}

	eur := perf[0]
	if eur.Trades != 2 || eur.Wins != 1 || eur.Losses != 1 {
		t.Errorf("EURUSD trades/wins/losses = %d/%d/%d, want 2/1/1", eur.Trades, eur.Wins, eur.Losses)
	}
	if !floatEquals(eur.WinRate, 50) {
		t.Errorf("EURUSD WinRate = %v, want 50", eur.WinRate)
	}
	if !floatEquals(eur.TotalPnL, 50) || !floatEquals(eur.AvgPnL, 25) {
		t.Errorf("EURUSD TotalPnL/AvgPnL = %v/%v, want 50/25", eur.TotalPnL, eur.AvgPnL)
	}
	if eur.BestTrade != 100 || eur.WorstTrade != -50 {
		t.Errorf("EURUSD best/worst = %v/%v, want 100/-50", eur.BestTrade, eur.WorstTrade)
	}
}

func TestSymbolTradesFiltersBySymbol(t *testing.T) {
	analyzer := usecase.NewJournalAnalyzerService(seededJournal(), zap.NewNop())

	trades, err := analyzer.SymbolTrades(context.Background(), "GBPUSD", 100)
	if err != nil {
		t.Fatalf("SymbolTrades() error = %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	for _, trade := range trades {
		if trade.Symbol != "GBPUSD" {
			t.Errorf("trade symbol = %s, want GBPUSD", trade.Symbol)
		}
	}
}
