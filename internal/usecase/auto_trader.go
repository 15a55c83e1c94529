package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vforex/quantpilot/internal/domain"
	"go.uber.org/zap"
)

const (
	analysisTimeframe  = "M1"
	analysisDepth      = 100
	minAnalysisCandles = 50
	analysisThrottle   = time.Second
	connectionPoll     = 5 * time.Second
)

// AutoTrader drives the full decision cycle for every configured symbol:
// history, signal, validation, sizing, execution. A scan loop walks all
// symbols on a fixed interval and a tick callback re-runs single symbols
// reactively. Every per-symbol failure is contained, the loops never die
// because one evaluation went wrong.
type AutoTrader struct {
	market    domain.MarketDataGateway
	advisor   domain.AdvisoryService
	generator *SignalGenerator
	pipeline  *ValidationPipeline
	sizer     *PositionSizer
	engine    *ExecutionEngine
	settings  *SettingsStore
	notifier  domain.NotificationChannel
	logger    *zap.Logger

	mu           sync.Mutex
	running      bool
	halted       bool
	stopChan     chan struct{}
	cancel       context.CancelFunc
	lastTrade    map[string]time.Time
	lastAnalysis map[string]time.Time
	timeNow      func() time.Time
}

type AutoTraderStatus struct {
	Running bool     `json:"running"`
	Halted  bool     `json:"halted"`
	Symbols []string `json:"symbols"`
}

func NewAutoTrader(
	market domain.MarketDataGateway,
	advisor domain.AdvisoryService,
	generator *SignalGenerator,
	pipeline *ValidationPipeline,
	sizer *PositionSizer,
	engine *ExecutionEngine,
	settings *SettingsStore,
	notifier domain.NotificationChannel,
	logger *zap.Logger,
) *AutoTrader {
	return &AutoTrader{
		market:       market,
		advisor:      advisor,
		generator:    generator,
		pipeline:     pipeline,
		sizer:        sizer,
		engine:       engine,
		settings:     settings,
		notifier:     notifier,
		logger:       logger,
		lastTrade:    make(map[string]time.Time),
		lastAnalysis: make(map[string]time.Time),
		timeNow:      time.Now,
	}
}

// Start validates that every required system is reachable, then spawns the
// scan loop and the connection monitor. Starting an already running trader
// is a no-op.
func (a *AutoTrader) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		a.logger.Info("Auto trader already running, skipping start")
		return nil
	}
	a.mu.Unlock()

	if !a.market.IsConnected() {
		return fmt.Errorf("cannot start: %w: market data gateway disconnected", domain.ErrDataUnavailable)
	}
	if !a.advisor.IsReady(ctx) {
		return fmt.Errorf("cannot start: %w", domain.ErrAdvisoryUnavailable)
	}

	cfg := a.settings.Snapshot()
	loopCtx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	a.running = true
	a.halted = false
	a.stopChan = make(chan struct{})
	a.cancel = cancel
	a.mu.Unlock()

	a.market.OnTick(func(tick *domain.Tick) {
		a.handleTick(loopCtx, tick)
	})
	if err := a.market.Subscribe(cfg.Symbols); err != nil {
		a.logger.Warn("Tick subscription failed, scan loop only", zap.Error(err))
	}

	go a.run(loopCtx)
	go a.monitorConnection(loopCtx)

	a.logger.Info("Auto trader started",
		zap.Strings("symbols", cfg.Symbols),
		zap.Int("scan_interval_sec", cfg.ScanIntervalSec))
	a.notifier.Notify(domain.EventTradingEngaged, map[string]interface{}{
		"symbols": cfg.Symbols,
	})
	return nil
}

// Stop terminates both loops. Safe to call more than once.
func (a *AutoTrader) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false
	if a.cancel != nil {
		a.cancel()
	}
	close(a.stopChan)

	a.logger.Info("Auto trader stopped")
	a.notifier.Notify(domain.EventTradingStopped, map[string]interface{}{})
}

func (a *AutoTrader) Status() AutoTraderStatus {
	a.mu.Lock()
	running, halted := a.running, a.halted
	a.mu.Unlock()

	return AutoTraderStatus{
		Running: running,
		Halted:  halted,
		Symbols: a.settings.Snapshot().Symbols,
	}
}

func (a *AutoTrader) run(ctx context.Context) {
	cfg := a.settings.Snapshot()
	interval := time.Duration(cfg.ScanIntervalSec) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("Trading loop started",
		zap.Strings("symbols", cfg.Symbols),
		zap.Duration("scan_interval", interval))

	scan := 0
	for {
		select {
		case <-ticker.C:
			scan++
			a.scanOnce(ctx, scan)
		case <-a.stopChan:
			a.logger.Info("Trading loop stopped")
			return
		case <-ctx.Done():
			a.logger.Info("Trading loop cancelled")
			return
		}
	}
}

func (a *AutoTrader) scanOnce(ctx context.Context, scan int) {
	cfg := a.settings.Snapshot()
	a.logger.Debug("Market scan", zap.Int("scan", scan), zap.Int("symbols", len(cfg.Symbols)))

	for _, symbol := range cfg.Symbols {
		select {
		case <-a.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}
		a.evaluateSymbol(ctx, symbol)
	}

	a.refreshPositions(ctx)
}

func (a *AutoTrader) monitorConnection(ctx context.Context) {
	ticker := time.NewTicker(connectionPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if a.market.IsConnected() {
				a.clearHalt()
			} else {
				a.escalateHalt()
			}
		case <-a.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *AutoTrader) escalateHalt() {
	a.mu.Lock()
	already := a.halted
	a.halted = true
	a.mu.Unlock()

	if already {
		return
	}
	a.logger.Error("Market data connection lost, trading halted")
	a.notifier.Notify(domain.EventTradingHalted, map[string]interface{}{
		"reason": "market data connection lost",
	})
}

func (a *AutoTrader) clearHalt() {
	a.mu.Lock()
	wasHalted := a.halted
	a.halted = false
	a.mu.Unlock()

	if !wasHalted {
		return
	}
	a.logger.Info("Market data connection restored, trading resumed")
	a.notifier.Notify(domain.EventTradingResumed, map[string]interface{}{})
}

// evaluateSymbol wraps one analysis cycle with panic recovery and error
// classification so a bad symbol never takes down the loop.
func (a *AutoTrader) evaluateSymbol(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Recovered from analysis panic",
				zap.String("symbol", symbol),
				zap.Any("panic", r))
		}
	}()

	err := a.Analyze(ctx, symbol)
	if err == nil {
		return
	}

	var rejected *domain.ValidationRejectedError
	var sizing *domain.SizingInvalidError
	switch {
	case errors.As(err, &rejected):
		a.logger.Info("Signal rejected",
			zap.String("symbol", symbol),
			zap.String("stage", rejected.Stage),
			zap.String("reason", rejected.Reason))
		if rejected.Stage == StageNews {
			a.notifier.Notify(domain.EventNewsBlock, map[string]interface{}{
				"symbol": symbol,
				"reason": rejected.Reason,
			})
		}
	case errors.As(err, &sizing):
		a.logger.Warn("Sizing aborted trade", zap.String("symbol", symbol), zap.Error(err))
	case errors.Is(err, domain.ErrInsufficientHistory), errors.Is(err, domain.ErrDataUnavailable):
		a.logger.Warn("Skipping symbol", zap.String("symbol", symbol), zap.Error(err))
	default:
		a.logger.Error("Analysis failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// Analyze runs the complete decision sequence for one symbol under a fresh
// settings snapshot. The cooldown starts once an evaluation reaches the
// execution step, whether or not an order actually goes out.
func (a *AutoTrader) Analyze(ctx context.Context, symbol string) error {
	cfg := a.settings.Snapshot()

	if !a.market.IsConnected() {
		a.escalateHalt()
		return fmt.Errorf("%w: gateway disconnected", domain.ErrDataUnavailable)
	}

	// One position per symbol.
	if _, open := a.engine.Position(symbol); open {
		return nil
	}

	now := a.timeNow()
	a.mu.Lock()
	last, traded := a.lastTrade[symbol]
	a.mu.Unlock()
	if traded && now.Sub(last) < time.Duration(cfg.CooldownSec)*time.Second {
		a.logger.Debug("Cooldown active", zap.String("symbol", symbol))
		return nil
	}

	candles, err := a.market.GetCandles(ctx, symbol, analysisTimeframe, analysisDepth)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) < minAnalysisCandles {
		return fmt.Errorf("%w: %d candles", domain.ErrInsufficientHistory, len(candles))
	}
	if !validCloseSeries(candles) {
		return fmt.Errorf("%w: corrupt close series", domain.ErrDataUnavailable)
	}

	bundle, err := a.generator.Generate(symbol, candles, cfg)
	if err != nil {
		return err
	}
	if bundle.Signal.Direction == domain.DirectionNeutral {
		return nil
	}

	tick, err := a.market.GetTick(ctx, symbol)
	if err != nil {
		a.logger.Debug("No live tick, spread check will pass",
			zap.String("symbol", symbol), zap.Error(err))
		tick = nil
	}

	if _, err := a.pipeline.Validate(ctx, bundle, candles, tick, cfg); err != nil {
		return err
	}

	account, err := a.market.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("fetch account: %w", err)
	}
	if !account.Connected {
		return fmt.Errorf("%w: account state unavailable", domain.ErrDataUnavailable)
	}

	ins := domain.InstrumentFor(symbol)
	lot, sizeErr := a.sizer.Size(account, ins, bundle.Signal.EntryPrice, bundle.Signal.StopLoss, cfg)

	a.mu.Lock()
	a.lastTrade[symbol] = a.timeNow()
	a.mu.Unlock()

	if sizeErr != nil {
		return sizeErr
	}

	a.executeSignal(ctx, symbol, bundle.Signal, lot)
	return nil
}

func (a *AutoTrader) executeSignal(ctx context.Context, symbol string, sig *domain.Signal, lot float64) {
	a.logger.Info("Executing signal",
		zap.String("symbol", symbol),
		zap.String("side", string(sig.Direction)),
		zap.Float64("lot", lot))

	order, err := a.engine.PlaceOrder(ctx, symbol, sig.Direction, lot,
		sig.EntryPrice, sig.StopLoss, sig.TakeProfit2)
	if err != nil {
		a.logger.Error("Order execution failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	a.logger.Info("Trade executed",
		zap.String("order_id", order.ID),
		zap.String("symbol", symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("lot", order.Quantity),
		zap.Float64("fill", order.FilledPrice))
	a.notifier.Notify(domain.EventTradeExecuted, map[string]interface{}{
		"symbol":      symbol,
		"side":        string(order.Side),
		"lot":         order.Quantity,
		"entry":       order.FilledPrice,
		"stop_loss":   sig.StopLoss,
		"take_profit": sig.TakeProfit1,
		"strategy":    sig.Strategy,
	})
}

// handleTick is the reactive path. Throttled per symbol so a fast tick
// stream cannot flood the analysis stack.
func (a *AutoTrader) handleTick(ctx context.Context, tick *domain.Tick) {
	a.mu.Lock()
	running := a.running
	a.mu.Unlock()
	if !running || tick == nil {
		return
	}

	cfg := a.settings.Snapshot()
	if !containsSymbol(cfg.Symbols, tick.Symbol) {
		return
	}

	now := a.timeNow()
	a.mu.Lock()
	if last, seen := a.lastAnalysis[tick.Symbol]; seen && now.Sub(last) < analysisThrottle {
		a.mu.Unlock()
		return
	}
	a.lastAnalysis[tick.Symbol] = now
	a.mu.Unlock()

	a.evaluateSymbol(ctx, tick.Symbol)
}

// refreshPositions marks every open position to the latest bid and lets the
// engine close whatever crossed its stop or target.
func (a *AutoTrader) refreshPositions(ctx context.Context) {
	open := a.engine.OpenPositions()
	prices := make(map[string]float64, len(open))
	for _, pos := range open {
		tick, err := a.market.GetTick(ctx, pos.Symbol)
		if err != nil || tick == nil {
			a.logger.Debug("No tick for position refresh",
				zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}
		prices[pos.Symbol] = tick.Bid
	}

	for _, closed := range a.engine.UpdatePositions(ctx, prices) {
		a.logger.Info("Position auto closed",
			zap.String("symbol", closed.Symbol),
			zap.String("reason", closed.Reason),
			zap.Float64("pnl", closed.RealizedPnL))
		a.notifier.Notify(domain.EventTradeClosed, map[string]interface{}{
			"symbol": closed.Symbol,
			"side":   string(closed.Side),
			"entry":  closed.EntryPrice,
			"exit":   closed.ExitPrice,
			"pnl":    closed.RealizedPnL,
			"reason": closed.Reason,
		})
	}
}

func validCloseSeries(candles []domain.Candle) bool {
	for _, c := range candles {
		if c.Close == 0 || math.IsNaN(c.Close) {
			return false
		}
	}
	return true
}

func containsSymbol(symbols []string, symbol string) bool {
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
