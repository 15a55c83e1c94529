package usecase

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vforex/quantpilot/internal/domain"
)

// historyWindow caps how many recent orders History returns.
const historyWindow = 50

// ExecutionEngine fills orders and tracks positions. In paper mode fills are
// simulated against the requested price with a small random slippage; in
// live mode orders are routed through the gateway and position keeping stays
// with the trading backend.
type ExecutionEngine struct {
	paper   bool
	gateway domain.ExecutionGateway
	journal domain.TradeJournal
	logger  *zap.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	timeNow   func() time.Time
	orders    map[string]*domain.Order
	positions map[string]*domain.Position
	history   []*domain.Order
	orderSeq  int
	balance   float64
	equity    float64
}

func NewExecutionEngine(
	paper bool,
	initialBalance float64,
	gateway domain.ExecutionGateway,
	journal domain.TradeJournal,
	rng *rand.Rand,
	logger *zap.Logger,
) *ExecutionEngine {
	return &ExecutionEngine{
		paper:     paper,
		gateway:   gateway,
		journal:   journal,
		logger:    logger,
		rng:       rng,
		timeNow:   time.Now,
		orders:    make(map[string]*domain.Order),
		positions: make(map[string]*domain.Position),
		balance:   initialBalance,
		equity:    initialBalance,
	}
}

// PlaceOrder submits a market order. The returned order is always journaled,
// also when it ends up rejected, so the audit trail has every attempt.
func (e *ExecutionEngine) PlaceOrder(ctx context.Context, symbol string, side domain.Direction, quantity, price, stopLoss, takeProfit float64) (*domain.Order, error) {
	e.mu.Lock()
	e.orderSeq++
	now := e.timeNow()
	order := &domain.Order{
		ID:             fmt.Sprintf("ORD_%s_%d", now.Format("20060102150405"), e.orderSeq),
		Symbol:         symbol,
		Side:           side,
		Quantity:       quantity,
		RequestedPrice: price,
		StopLoss:       stopLoss,
		TakeProfit:     takeProfit,
		Status:         domain.OrderPending,
		CreatedAt:      now,
	}
	e.orders[order.ID] = order

	var execErr error
	if e.paper {
		e.fillPaperOrder(order)
	} else {
		execErr = e.fillLiveOrder(ctx, order)
	}
	e.mu.Unlock()

	e.journalOrder(ctx, order)
	if execErr != nil {
		return order, execErr
	}
	return order, nil
}

// fillPaperOrder simulates an immediate fill. Caller holds e.mu.
func (e *ExecutionEngine) fillPaperOrder(order *domain.Order) {
	slippage := order.RequestedPrice * 0.0001
	if e.rng.Intn(2) == 0 {
		slippage = -slippage
	}
	fillPrice := order.RequestedPrice + slippage

	order.Status = domain.OrderFilled
	order.FilledPrice = fillPrice
	order.FilledAt = e.timeNow()

	if pos, ok := e.positions[order.Symbol]; ok {
		pos.Quantity += order.Quantity
		pos.EntryPrice = (pos.EntryPrice + fillPrice) / 2
	} else {
		e.positions[order.Symbol] = &domain.Position{
			Symbol:       order.Symbol,
			Side:         order.Side,
			Quantity:     order.Quantity,
			EntryPrice:   fillPrice,
			CurrentPrice: fillPrice,
			StopLoss:     order.StopLoss,
			TakeProfit:   order.TakeProfit,
			OpenedAt:     e.timeNow(),
		}
	}
	e.history = append(e.history, order)
	e.logger.Info("paper order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("quantity", order.Quantity),
		zap.Float64("fill_price", fillPrice))
}

// fillLiveOrder routes through the gateway. Caller holds e.mu.
func (e *ExecutionEngine) fillLiveOrder(ctx context.Context, order *domain.Order) error {
	if e.gateway == nil {
		order.Status = domain.OrderRejected
		return &domain.ExecutionRejectedError{OrderID: order.ID, Reason: "no execution gateway configured"}
	}
	placed, err := e.gateway.PlaceMarketOrder(ctx, order)
	if err != nil {
		order.Status = domain.OrderRejected
		e.logger.Error("live order rejected", zap.String("order_id", order.ID), zap.Error(err))
		return &domain.ExecutionRejectedError{OrderID: order.ID, Reason: err.Error()}
	}
	order.Status = placed.Status
	order.FilledPrice = placed.FilledPrice
	order.FilledAt = placed.FilledAt
	if order.Status == domain.OrderRejected {
		return &domain.ExecutionRejectedError{OrderID: order.ID, Reason: "rejected by trading backend"}
	}
	e.history = append(e.history, order)
	e.logger.Info("live order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.Float64("fill_price", order.FilledPrice))
	return nil
}

// UpdatePositions marks open positions to the given prices and closes any
// whose stop or target has been crossed, returning the records of the
// positions it closed. Equity always lands on balance plus the unrealized
// total of positions still open afterwards.
func (e *ExecutionEngine) UpdatePositions(ctx context.Context, prices map[string]float64) []*domain.ClosedPosition {
	e.mu.Lock()

	type pendingClose struct {
		symbol string
		price  float64
		reason string
	}
	var closes []pendingClose

	for symbol, pos := range e.positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		pos.CurrentPrice = price
		if pos.Side == domain.DirectionBuy {
			pos.UnrealizedPnL = (price - pos.EntryPrice) * pos.Quantity
			if price <= pos.StopLoss {
				closes = append(closes, pendingClose{symbol, price, domain.CloseReasonStopLoss})
			} else if price >= pos.TakeProfit {
				closes = append(closes, pendingClose{symbol, price, domain.CloseReasonTakeProfit})
			}
		} else {
			pos.UnrealizedPnL = (pos.EntryPrice - price) * pos.Quantity
			if price >= pos.StopLoss {
				closes = append(closes, pendingClose{symbol, price, domain.CloseReasonStopLoss})
			} else if price <= pos.TakeProfit {
				closes = append(closes, pendingClose{symbol, price, domain.CloseReasonTakeProfit})
			}
		}
	}

	var records []*domain.ClosedPosition
	for _, c := range closes {
		if record := e.closeLocked(c.symbol, c.price, c.reason); record != nil {
			records = append(records, record)
		}
	}
	e.recalcEquityLocked()
	e.mu.Unlock()

	for _, record := range records {
		e.journalClose(ctx, record)
	}
	return records
}

// ClosePosition closes a symbol's position at the given price and returns
// the realized PnL.
func (e *ExecutionEngine) ClosePosition(ctx context.Context, symbol string, price float64) (float64, error) {
	e.mu.Lock()
	record := e.closeLocked(symbol, price, domain.CloseReasonManual)
	if record == nil {
		e.mu.Unlock()
		return 0, fmt.Errorf("no open position for %s", symbol)
	}
	e.recalcEquityLocked()
	e.mu.Unlock()

	e.journalClose(ctx, record)
	return record.RealizedPnL, nil
}

// closeLocked removes a position and realizes its PnL into the balance.
// Caller holds e.mu.
func (e *ExecutionEngine) closeLocked(symbol string, price float64, reason string) *domain.ClosedPosition {
	pos, ok := e.positions[symbol]
	if !ok {
		return nil
	}
	var pnl float64
	if pos.Side == domain.DirectionBuy {
		pnl = (price - pos.EntryPrice) * pos.Quantity
	} else {
		pnl = (pos.EntryPrice - price) * pos.Quantity
	}
	if e.paper {
		e.balance += pnl
	}
	delete(e.positions, symbol)

	e.logger.Info("position closed",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
		zap.Float64("exit_price", price),
		zap.Float64("pnl", pnl))

	return &domain.ClosedPosition{
		Symbol:      symbol,
		Side:        pos.Side,
		Quantity:    pos.Quantity,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   price,
		RealizedPnL: pnl,
		Reason:      reason,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    e.timeNow(),
	}
}

// recalcEquityLocked restores the invariant equity = balance + open
// unrealized. Caller holds e.mu.
func (e *ExecutionEngine) recalcEquityLocked() {
	total := 0.0
	for _, pos := range e.positions {
		total += pos.UnrealizedPnL
	}
	e.equity = e.balance + total
}

// Position returns a copy of the open position for a symbol.
func (e *ExecutionEngine) Position(symbol string) (*domain.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[symbol]
	if !ok {
		return nil, false
	}
	copied := *pos
	return &copied, true
}

// OpenPositions returns copies of every open position.
func (e *ExecutionEngine) OpenPositions() []*domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		copied := *pos
		out = append(out, &copied)
	}
	return out
}

// History returns the most recent filled orders, newest last.
func (e *ExecutionEngine) History() []*domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := len(e.history) - historyWindow
	if start < 0 {
		start = 0
	}
	out := make([]*domain.Order, len(e.history)-start)
	copy(out, e.history[start:])
	return out
}

// AccountSummary returns the rounded account snapshot.
func (e *ExecutionEngine) AccountSummary() domain.AccountSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	mode := "LIVE"
	if e.paper {
		mode = "PAPER"
	}
	return domain.AccountSummary{
		Balance:       round2(e.balance),
		Equity:        round2(e.equity),
		UnrealizedPnL: round2(e.equity - e.balance),
		OpenPositions: len(e.positions),
		TotalTrades:   len(e.history),
		Mode:          mode,
	}
}

func (e *ExecutionEngine) journalOrder(ctx context.Context, order *domain.Order) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveOrder(ctx, order); err != nil {
		e.logger.Warn("journal order write failed", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (e *ExecutionEngine) journalClose(ctx context.Context, record *domain.ClosedPosition) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveClosedPosition(ctx, record); err != nil {
		e.logger.Warn("journal close write failed", zap.String("symbol", record.Symbol), zap.Error(err))
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
