package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vforex/quantpilot/internal/domain"
	"go.uber.org/zap"
)

// Connection modes reported by a market data gateway.
const (
	ModeLive         = "LIVE"
	ModeSimulated    = "SIMULATED"
	ModeDisconnected = "DISCONNECTED"
)

const (
	statusTimeout   = 2 * time.Second
	monitorInterval = 5 * time.Second
	retryInterval   = 10 * time.Second
)

// Client talks to an MT5 style quote bridge over REST and streams ticks over
// a websocket. It never fabricates data: while the bridge is unreachable the
// market calls report ErrDataUnavailable and a background monitor keeps
// retrying the connection.
type Client struct {
	baseURL string
	wsURL   string
	client  *http.Client
	logger  *zap.Logger

	mu          sync.Mutex
	mode        string
	wsConn      *websocket.Conn
	callbacks   []func(tick *domain.Tick)
	subscribed  []string
	lastAttempt time.Time
	closed      bool
	stopChan    chan struct{}
}

// NewClient probes the bridge once and starts the reconnect monitor. A
// bridge that is down at construction time is not an error, the client just
// starts in DISCONNECTED mode.
func NewClient(baseURL, wsURL string, logger *zap.Logger) *Client {
	c := &Client{
		baseURL:  baseURL,
		wsURL:    wsURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
		mode:     ModeDisconnected,
		stopChan: make(chan struct{}),
	}
	c.probe()
	go c.monitor()
	return c
}

// --- REST API ---

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("bridge error %d on %s: %s", resp.StatusCode, path, string(body))
	}

	return body, nil
}

func (c *Client) GetTick(ctx context.Context, symbol string) (*domain.Tick, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("tick %s: %w", symbol, domain.ErrDataUnavailable)
	}

	resp, err := c.get(ctx, "/tick/"+symbol)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Bid    float64 `json:"bid"`
		Ask    float64 `json:"ask"`
		Last   float64 `json:"last"`
		Volume float64 `json:"volume"`
		Time   int64   `json:"time"`
	}
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, fmt.Errorf("tick %s: %w", symbol, err)
	}

	last := payload.Last
	if last == 0 {
		last = payload.Bid
	}

	return &domain.Tick{
		Symbol: symbol,
		Bid:    payload.Bid,
		Ask:    payload.Ask,
		Last:   last,
		Volume: payload.Volume,
		Time:   payload.Time,
	}, nil
}

// bridgeCandle tolerates both bridge encodings: MT5 exports call the volume
// column tick_volume, plain exports call it volume.
type bridgeCandle struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	TickVolume float64 `json:"tick_volume"`
	Volume     float64 `json:"volume"`
}

// decodeCandles accepts either {"candles": [...]} or a bare array.
func decodeCandles(raw []byte) ([]bridgeCandle, error) {
	var wrapped struct {
		Candles []bridgeCandle `json:"candles"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Candles != nil {
		return wrapped.Candles, nil
	}

	var bare []bridgeCandle
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, err
	}
	return bare, nil
}

func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]domain.Candle, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("candles %s: %w", symbol, domain.ErrDataUnavailable)
	}

	path := fmt.Sprintf("/candles/%s/%s/%d", symbol, timeframe, count)
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	rows, err := decodeCandles(resp)
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", symbol, err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, r := range rows {
		volume := r.TickVolume
		if volume == 0 {
			volume = r.Volume
		}
		candles = append(candles, domain.Candle{
			Time:   r.Time,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: volume,
		})
	}
	return candles, nil
}

// GetAccount returns the bridge account. In DISCONNECTED mode it reports an
// explicit error state with zero financials rather than stale numbers.
func (c *Client) GetAccount(ctx context.Context) (*domain.AccountState, error) {
	if !c.IsConnected() {
		return &domain.AccountState{Connected: false}, nil
	}

	resp, err := c.get(ctx, "/account")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Balance    float64 `json:"balance"`
		Equity     float64 `json:"equity"`
		Margin     float64 `json:"margin"`
		FreeMargin float64 `json:"free_margin"`
		Leverage   int     `json:"leverage"`
		Currency   string  `json:"currency"`
	}
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}

	return &domain.AccountState{
		Balance:    payload.Balance,
		Equity:     payload.Equity,
		Margin:     payload.Margin,
		FreeMargin: payload.FreeMargin,
		Leverage:   payload.Leverage,
		Currency:   payload.Currency,
		Connected:  true,
	}, nil
}

// PlaceMarketOrder submits a market order to the bridge, which forwards it
// to the terminal and reports the fill.
func (c *Client) PlaceMarketOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("order %s: %w", order.ID, domain.ErrDataUnavailable)
	}

	payload := map[string]interface{}{
		"id":          order.ID,
		"symbol":      order.Symbol,
		"side":        string(order.Side),
		"volume":      order.Quantity,
		"price":       order.RequestedPrice,
		"stop_loss":   order.StopLoss,
		"take_profit": order.TakeProfit,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/order", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", order.ID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("bridge order error %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Status      string  `json:"status"`
		FilledPrice float64 `json:"filled_price"`
		Message     string  `json:"message"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("order %s: %w", order.ID, err)
	}

	if !strings.EqualFold(result.Status, string(domain.OrderFilled)) {
		reason := result.Message
		if reason == "" {
			reason = result.Status
		}
		return nil, fmt.Errorf("bridge rejected order: %s", reason)
	}

	placed := *order
	placed.Status = domain.OrderFilled
	placed.FilledPrice = result.FilledPrice
	if placed.FilledPrice == 0 {
		placed.FilledPrice = order.RequestedPrice
	}
	placed.FilledAt = time.Now().UTC()
	return &placed, nil
}

// --- Connection state ---

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode == ModeLive
}

// Mode reports LIVE or DISCONNECTED.
func (c *Client) Mode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// probe checks bridge health and flips the mode on transitions.
func (c *Client) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.setMode(ModeDisconnected)
		return
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.setMode(ModeDisconnected)
		return
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setMode(ModeDisconnected)
		return
	}
	c.setMode(ModeLive)
}

func (c *Client) setMode(mode string) {
	c.mu.Lock()
	prev := c.mode
	c.mode = mode
	c.mu.Unlock()

	if prev == mode {
		return
	}
	if mode == ModeLive {
		c.logger.Info("bridge connected", zap.String("url", c.baseURL))
	} else {
		c.logger.Warn("bridge disconnected", zap.String("url", c.baseURL))
	}
}

// monitor re-probes the bridge every 5s. Reconnect attempts from the
// DISCONNECTED state are throttled to one per retryInterval.
func (c *Client) monitor() {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			mode := c.mode
			last := c.lastAttempt
			c.mu.Unlock()

			if mode == ModeLive {
				c.probe()
				continue
			}
			if time.Since(last) < retryInterval {
				continue
			}
			c.mu.Lock()
			c.lastAttempt = time.Now()
			c.mu.Unlock()

			c.logger.Info("attempting bridge reconnection")
			c.probe()
			if c.IsConnected() {
				c.redial()
			}
		case <-c.stopChan:
			return
		}
	}
}

// redial restores the tick stream after a reconnect.
func (c *Client) redial() {
	c.mu.Lock()
	symbols := make([]string, len(c.subscribed))
	copy(symbols, c.subscribed)
	conn := c.wsConn
	c.mu.Unlock()

	if len(symbols) == 0 || conn != nil {
		return
	}
	if err := c.Subscribe(symbols); err != nil {
		c.logger.Warn("tick stream resubscribe failed", zap.Error(err))
	}
}

// --- WebSocket ---

func (c *Client) OnTick(callback func(tick *domain.Tick)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, callback)
}

// Subscribe opens the tick stream if needed and subscribes the symbols.
// Repeat calls replace the subscription set. A client constructed without a
// websocket URL serves REST only and Subscribe is a no-op.
func (c *Client) Subscribe(symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscribed = make([]string, len(symbols))
	copy(c.subscribed, symbols)

	if c.wsURL == "" {
		return nil
	}
	if c.wsConn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(c.wsURL, nil)
		if err != nil {
			return err
		}
		c.wsConn = conn
		go c.readLoop(conn)
	}
	return c.subscribe(symbols)
}

// subscribe writes the subscription frame. Caller holds c.mu.
func (c *Client) subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	msg := map[string]interface{}{
		"op":      "subscribe",
		"symbols": symbols,
	}
	return c.wsConn.WriteJSON(msg)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		c.mu.Lock()
		if c.wsConn == conn {
			c.wsConn = nil
		}
		c.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("tick stream closed", zap.Error(err))
			return
		}

		var tick domain.Tick
		if err := json.Unmarshal(message, &tick); err != nil {
			c.logger.Debug("discarding malformed tick frame", zap.Error(err))
			continue
		}
		if tick.Symbol == "" {
			continue
		}
		if tick.Last == 0 {
			tick.Last = tick.Bid
		}

		c.mu.Lock()
		callbacks := make([]func(tick *domain.Tick), len(c.callbacks))
		copy(callbacks, c.callbacks)
		c.mu.Unlock()

		for _, cb := range callbacks {
			cb(&tick)
		}
	}
}

// Close stops the monitor and tears down the tick stream. Safe to call more
// than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.wsConn
	c.wsConn = nil
	c.mu.Unlock()

	close(c.stopChan)
	if conn != nil {
		conn.Close()
	}
}
