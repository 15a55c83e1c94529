package notify_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vforex/quantpilot/internal/domain"
	"github.com/vforex/quantpilot/internal/infrastructure/notify"
	"go.uber.org/zap"
)

type sentMessage struct {
	path string
	body map[string]interface{}
}

func newTestNotifier(t *testing.T) (*notify.TelegramNotifier, chan sentMessage) {
	t.Helper()
	sent := make(chan sentMessage, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode send body: %v", err)
		}
		sent <- sentMessage{path: r.URL.Path, body: body}
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	t.Cleanup(server.Close)

	return notify.NewTelegramNotifier(server.URL, "TOKEN", "42", zap.NewNop()), sent
}

func receive(t *testing.T, sent chan sentMessage) sentMessage {
	t.Helper()
	select {
	case msg := <-sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no Telegram request within 2s")
		return sentMessage{}
	}
}

func TestNotifySendsTradeMessage(t *testing.T) {
	n, sent := newTestNotifier(t)

	n.Notify(domain.EventTradeExecuted, map[string]interface{}{
		"symbol":      "EURUSD",
		"side":        "BUY",
		"lot":         0.5,
		"entry":       1.0915,
		"stop_loss":   1.0895,
		"take_profit": 1.0945,
		"strategy":    "Cortex Trend Guard",
	})

	msg := receive(t, sent)
	if msg.path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q, want /botTOKEN/sendMessage", msg.path)
	}
	if msg.body["chat_id"] != "42" {
		t.Errorf("chat_id = %v, want 42", msg.body["chat_id"])
	}
	if msg.body["parse_mode"] != "Markdown" {
		t.Errorf("parse_mode = %v", msg.body["parse_mode"])
	}
	if msg.body["disable_web_page_preview"] != true {
		t.Errorf("disable_web_page_preview = %v, want true", msg.body["disable_web_page_preview"])
	}

	text, _ := msg.body["text"].(string)
	for _, want := range []string{"🟢", "TRADE OPENED", "EURUSD", "BUY", "1.0915", "1.0895", "Cortex Trend Guard"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
}

func TestNotifyFormatsEachEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		payload map[string]interface{}
		want    []string
	}{
		{
			name:    "engaged lists symbols",
			event:   domain.EventTradingEngaged,
			payload: map[string]interface{}{"symbols": []string{"EURUSD", "GBPUSD"}},
			want:    []string{"AUTO TRADING STARTED", "EURUSD, GBPUSD"},
		},
		{
			name:    "stopped",
			event:   domain.EventTradingStopped,
			payload: map[string]interface{}{},
			want:    []string{"AUTO TRADING STOPPED"},
		},
		{
			name:    "halted carries reason",
			event:   domain.EventTradingHalted,
			payload: map[string]interface{}{"reason": "market data connection lost"},
			want:    []string{"TRADING HALTED", "market data connection lost"},
		},
		{
			name:    "resumed",
			event:   domain.EventTradingResumed,
			payload: map[string]interface{}{},
			want:    []string{"TRADING RESUMED"},
		},
		{
			name:    "sell trade gets red marker",
			event:   domain.EventTradeExecuted,
			payload: map[string]interface{}{"symbol": "GBPUSD", "side": "SELL"},
			want:    []string{"🔴", "GBPUSD"},
		},
		{
			name:  "profitable close",
			event: domain.EventTradeClosed,
			payload: map[string]interface{}{
				"symbol": "EURUSD",
				"side":   "BUY",
				"exit":   1.0952,
				"pnl":    37.5,
				"reason": domain.CloseReasonTakeProfit,
			},
			want: []string{"💰", "TRADE CLOSED", "EURUSD", "37.50", "TP"},
		},
		{
			name:  "losing close",
			event: domain.EventTradeClosed,
			payload: map[string]interface{}{
				"symbol": "GBPUSD",
				"side":   "SELL",
				"exit":   1.2711,
				"pnl":    -12.25,
				"reason": domain.CloseReasonStopLoss,
			},
			want: []string{"💸", "-12.25", "SL"},
		},
		{
			name:  "news block names the event",
			event: domain.EventNewsBlock,
			payload: map[string]interface{}{
				"symbol": "USDJPY",
				"reason": "High Impact: Nonfarm Payrolls",
			},
			want: []string{"TRADE BLOCKED (NEWS)", "USDJPY", "Nonfarm Payrolls", "Trading paused"},
		},
		{
			name:  "unknown event falls back to its name",
			event: "CUSTOM_EVENT",
			want:  []string{"CUSTOM_EVENT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, sent := newTestNotifier(t)
			n.Notify(tt.event, tt.payload)

			text, _ := receive(t, sent).body["text"].(string)
			for _, want := range tt.want {
				if !strings.Contains(text, want) {
					t.Errorf("text missing %q:\n%s", want, text)
				}
			}
		})
	}
}

func TestNotifyDisabledWithoutCredentials(t *testing.T) {
	sent := make(chan struct{}, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sent <- struct{}{}
	}))
	t.Cleanup(server.Close)

	noToken := notify.NewTelegramNotifier(server.URL, "", "42", zap.NewNop())
	noToken.Notify(domain.EventTradingStopped, nil)

	noChat := notify.NewTelegramNotifier(server.URL, "TOKEN", "", zap.NewNop())
	noChat.Notify(domain.EventTradingStopped, nil)

	select {
	case <-sent:
		t.Fatal("disabled notifier sent a request")
	case <-time.After(100 * time.Millisecond):
	}
}
