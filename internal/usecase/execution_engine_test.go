package usecase_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vforex/quantpilot/internal/domain"
	"github.com/vforex/quantpilot/internal/usecase"
)

// MockJournal
type MockJournal struct {
	Orders  []*domain.Order
	Closed  []*domain.ClosedPosition
	Runs    []*domain.BacktestRun
	Err     error
	ListErr error
}

func (m *MockJournal) SaveOrder(ctx context.Context, order *domain.Order) error {
	m.Orders = append(m.Orders, order)
	return m.Err
}
func (m *MockJournal) ListOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Orders, nil
}
func (m *MockJournal) SaveClosedPosition(ctx context.Context, pos *domain.ClosedPosition) error {
	m.Closed = append(m.Closed, pos)
	return m.Err
}
func (m *MockJournal) ListClosedPositions(ctx context.Context, limit int) ([]*domain.ClosedPosition, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Closed, nil
}
func (m *MockJournal) SaveBacktestRun(ctx context.Context, run *domain.BacktestRun) error {
	m.Runs = append(m.Runs, run)
	return m.Err
}
func (m *MockJournal) ListBacktestRuns(ctx context.Context, limit int) ([]*domain.BacktestRun, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Runs, nil
}

// MockGateway
type MockGateway struct {
	Err   error
	Fill  float64
	Calls int
}

func (m *MockGateway) PlaceMarketOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	filled := *order
	filled.Status = domain.OrderFilled
	filled.FilledPrice = m.Fill
	filled.FilledAt = time.Now()
	return &filled, nil
}

func newPaperEngine(journal *MockJournal) *usecase.ExecutionEngine {
	return usecase.NewExecutionEngine(true, 10000, nil, journal, rand.New(rand.NewSource(7)), zap.NewNop())
}

func TestPlaceOrderPaperFill(t *testing.T) {
	journal := &MockJournal{}
	engine := newPaperEngine(journal)

	order, err := engine.PlaceOrder(context.Background(), "EURUSD", domain.DirectionBuy, 0.1, 1.1000, 1.0980, 1.1050)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}

	if order.Status != domain.OrderFilled {
		t.Fatalf("Status = %v, want FILLED", order.Status)
	}
	slip := math.Abs(order.FilledPrice - 1.1000)
	if !floatEquals(slip, 1.1000*0.0001) {
		t.Errorf("slippage = %f, want one basis point of price", slip)
	}

	pos, ok := engine.Position("EURUSD")
	if !ok {
		t.Fatal("no position opened after paper fill")
	}
	if pos.Quantity != 0.1 || pos.StopLoss != 1.0980 || pos.TakeProfit != 1.1050 {
		t.Errorf("position = %+v, want qty 0.1 with the order's levels", pos)
	}
	if len(journal.Orders) != 1 || journal.Orders[0].ID != order.ID {
		t.Errorf("journaled orders = %v, want the filled order", journal.Orders)
	}
}

func TestPlaceOrderIDsAreSequential(t *testing.T) {
	engine := newPaperEngine(&MockJournal{})

	first, _ := engine.PlaceOrder(context.Background(), "EURUSD", domain.DirectionBuy, 0.1, 1.1, 1.09, 1.11)
	second, _ := engine.PlaceOrder(context.Background(), "GBPUSD", domain.DirectionBuy, 0.1, 1.26, 1.25, 1.27)

	if first.ID == second.ID {
		t.Fatalf("order IDs not unique: %s", first.ID)
	}
	if first.ID[len(first.ID)-1] != '1' || second.ID[len(second.ID)-1] != '2' {
		t.Errorf("IDs = %s, %s, want sequential suffixes", first.ID, second.ID)
	}
}

func TestPlaceOrderMergesIntoOpenPosition(t *testing.T) {
	engine := newPaperEngine(&MockJournal{})

	first, _ := engine.PlaceOrder(context.Background(), "EURUSD", domain.DirectionBuy, 0.1, 1.1000, 1.0980, 1.1050)
	second, _ := engine.PlaceOrder(context.Background(), "EURUSD", domain.DirectionBuy, 0.2, 1.1010, 1.0990, 1.1060)

	pos, ok := engine.Position("EURUSD")
	if !ok {
		t.Fatal("position missing after two fills")
	}
	if !floatEquals(pos.Quantity, 0.3) {
		t.Errorf("Quantity = %f, want 0.3", pos.Quantity)
	}
	wantEntry := (first.FilledPrice + second.FilledPrice) / 2
	if !floatEquals(pos.EntryPrice, wantEntry) {
		t.Errorf("EntryPrice = %f, want averaged %f", pos.EntryPrice, wantEntry)
	}
	// The first order's levels survive a merge.
	if pos.StopLoss != 1.0980 || pos.TakeProfit != 1.1050 {
		t.Errorf("levels = %f/%f, want the original 1.0980/1.1050", pos.StopLoss, pos.TakeProfit)
	}
}

func TestUpdatePositionsClosesOnStop(t *testing.T) {
	journal := &MockJournal{}
	engine := newPaperEngine(journal)
	engine.PlaceOrder(context.Background(), "EURUSD", domain.DirectionBuy, 100, 1.1000, 1.0980, 1.1050)

	closed := engine.UpdatePositions(context.Background(), map[string]float64{"EURUSD": 1.0970})

	if _, ok := engine.Position("EURUSD"); ok {
		t.Fatal("position still open below its stop")
	}
	if len(closed) != 1 || closed[0].Symbol != "EURUSD" {
		t.Fatalf("returned closes = %+v, want the stopped EURUSD record", closed)
	}
	if len(journal.Closed) != 1 {
		t.Fatalf("journaled closes = %d, want 1", len(journal.Closed))
	}
	record := journal.Closed[0]
	if record.Reason != domain.CloseReasonStopLoss {
		t.Errorf("Reason = %s, want SL", record.Reason)
	}
	if record.ExitPrice != 1.0970 {
		t.Errorf("ExitPrice = %f, want the triggering price", record.ExitPrice)
	}
	if record.RealizedPnL >= 0 {
		t.Errorf("RealizedPnL = %f, want a loss on a stopped long", record.RealizedPnL)
	}

	summary := engine.AccountSummary()
	if summary.Balance >= 10000 {
		t.Errorf("Balance = %f, want reduced by the loss", summary.Balance)
	}
	if summary.Equity != summary.Balance {
		t.Errorf("Equity = %f, want equal to balance with nothing open", summary.Equity)
	}
}

func TestUpdatePositionsClosesShortOnTarget(t *testing.T) {
	journal := &MockJournal{}
	engine := newPaperEngine(journal)
	engine.PlaceOrder(context.Background(), "EURUSD", domain.DirectionSell, 1.0, 1.1000, 1.1020, 1.0950)

	engine.UpdatePositions(context.Background(), map[string]float64{"EURUSD": 1.0940})

	if len(journal.Closed) != 1 || journal.Closed[0].Reason != domain.CloseReasonTakeProfit {
		t.Fatalf("closes = %+v, want one TP close", journal.Closed)
	}
	if journal.Closed[0].RealizedPnL <= 0 {
		t.Errorf("RealizedPnL = %f, want a gain on a short into its target", journal.Closed[0].RealizedPnL)
	}
}

func TestUpdatePositionsEquityCountsOnlyOpenPositions(t *testing.T) {
	engine := newPaperEngine(&MockJournal{})
	engine.PlaceOrder(context.Background(), "EURUSD", domain.DirectionBuy, 100, 1.1000, 1.0980, 1.1050)
	engine.PlaceOrder(context.Background(), "GBPUSD", domain.DirectionBuy, 100, 1.2600, 1.2550, 1.2700)

	// EURUSD stops out, GBPUSD stays open in profit. The stopped position's
	// unrealized PnL must not linger in equity next to its realized loss.
	engine.UpdatePositions(context.Background(), map[string]float64{
		"EURUSD": 1.0970,
		"GBPUSD": 1.2660,
	})

	open := engine.OpenPositions()
	if len(open) != 1 || open[0].Symbol != "GBPUSD" {
		t.Fatalf("open positions = %+v, want only GBPUSD", open)
	}
	summary := engine.AccountSummary()
	drift := math.Abs(summary.Equity - (summary.Balance + open[0].UnrealizedPnL))
	if drift > 0.02 {
		t.Errorf("Equity = %f, want balance %f plus open unrealized %f",
			summary.Equity, summary.Balance, open[0].UnrealizedPnL)
	}
}

func TestClosePositionManual(t *testing.T) {
	journal := &MockJournal{}
	engine := newPaperEngine(journal)
	order, _ := engine.PlaceOrder(context.Background(), "EURUSD", domain.DirectionBuy, 1.0, 1.1000, 1.0980, 1.1050)

	pnl, err := engine.ClosePosition(context.Background(), "EURUSD", 1.1030)
	if err != nil {
		t.Fatalf("ClosePosition() error = %v", err)
	}

	if !floatEquals(pnl, 1.1030-order.FilledPrice) {
		t.Errorf("pnl = %f, want %f", pnl, 1.1030-order.FilledPrice)
	}
	if journal.Closed[0].Reason != domain.CloseReasonManual {
		t.Errorf("Reason = %s, want MANUAL", journal.Closed[0].Reason)
	}
}

func TestClosePositionUnknownSymbol(t *testing.T) {
	engine := newPaperEngine(&MockJournal{})

	if _, err := engine.ClosePosition(context.Background(), "EURUSD", 1.1); err == nil {
		t.Fatal("ClosePosition() on a flat symbol should fail")
	}
}

func TestAccountSummaryModeAndCounters(t *testing.T) {
	engine := newPaperEngine(&MockJournal{})
	engine.PlaceOrder(context.Background(), "EURUSD", domain.DirectionBuy, 1.0, 1.1000, 1.0980, 1.1050)

	summary := engine.AccountSummary()

	if summary.Mode != "PAPER" {
		t.Errorf("Mode = %s, want PAPER", summary.Mode)
	}
	if summary.OpenPositions != 1 || summary.TotalTrades != 1 {
		t.Errorf("counters = %d/%d, want 1/1", summary.OpenPositions, summary.TotalTrades)
	}
}

func TestLiveModeWithoutGatewayRejects(t *testing.T) {
	journal := &MockJournal{}
	engine := usecase.NewExecutionEngine(false, 0, nil, journal, rand.New(rand.NewSource(7)), zap.NewNop())

	order, err := engine.PlaceOrder(context.Background(), "EURUSD", domain.DirectionBuy, 0.1, 1.1, 1.09, 1.11)

	var rejected *domain.ExecutionRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want ExecutionRejectedError", err)
	}
	if order.Status != domain.OrderRejected {
		t.Errorf("Status = %v, want REJECTED", order.Status)
	}
	if len(journal.Orders) != 1 {
		t.Errorf("rejected order not journaled")
	}
}

func TestLiveModeGatewayFailureMapsToRejection(t *testing.T) {
	gateway := &MockGateway{Err: errors.New("trade server offline")}
	engine := usecase.NewExecutionEngine(false, 0, gateway, &MockJournal{}, rand.New(rand.NewSource(7)), zap.NewNop())

	order, err := engine.PlaceOrder(context.Background(), "EURUSD", domain.DirectionBuy, 0.1, 1.1, 1.09, 1.11)

	var rejected *domain.ExecutionRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want ExecutionRejectedError", err)
	}
	if order.Status != domain.OrderRejected || gateway.Calls != 1 {
		t.Errorf("Status = %v calls = %d, want REJECTED after one attempt", order.Status, gateway.Calls)
	}
}

func TestLiveModeGatewayFill(t *testing.T) {
	gateway := &MockGateway{Fill: 1.10005}
	engine := usecase.NewExecutionEngine(false, 0, gateway, &MockJournal{}, rand.New(rand.NewSource(7)), zap.NewNop())

	order, err := engine.PlaceOrder(context.Background(), "EURUSD", domain.DirectionBuy, 0.1, 1.1, 1.09, 1.11)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if order.Status != domain.OrderFilled || order.FilledPrice != 1.10005 {
		t.Errorf("order = %v/%f, want FILLED at 1.10005", order.Status, order.FilledPrice)
	}
	if len(engine.History()) != 1 {
		t.Errorf("history = %d, want 1", len(engine.History()))
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
