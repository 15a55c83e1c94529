package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vforex/quantpilot/internal/domain"
	"go.uber.org/zap"
)

// DefaultAPIBase is the Telegram bot API host.
const DefaultAPIBase = "https://api.telegram.org"

const sendTimeout = 10 * time.Second

// TelegramNotifier pushes trade events to a Telegram chat. Sends run in a
// goroutine and failures are logged only, the trading path never waits on
// the messenger.
type TelegramNotifier struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
	logger  *zap.Logger
}

// NewTelegramNotifier builds a notifier for a bot token and chat. An empty
// apiBase selects the public API host. With an empty token or chat id the
// notifier stays disabled and Notify is a no-op.
func NewTelegramNotifier(apiBase, token, chatID string, logger *zap.Logger) *TelegramNotifier {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	n := &TelegramNotifier{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: sendTimeout},
		logger:  logger,
	}
	if !n.configured() {
		logger.Info("Telegram notifications disabled, no token or chat id")
	}
	return n
}

func (n *TelegramNotifier) configured() bool {
	return n.token != "" && n.chatID != ""
}

// Notify implements domain.NotificationChannel.
func (n *TelegramNotifier) Notify(eventType string, payload map[string]interface{}) {
	if !n.configured() {
		return
	}
	go n.send(formatMessage(eventType, payload))
}

func (n *TelegramNotifier) send(text string) {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	})
	if err != nil {
		n.logger.Error("Telegram payload marshal failed", zap.Error(err))
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.token)
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		n.logger.Error("Telegram send failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		n.logger.Error("Telegram send rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(detail)))
		return
	}
	n.logger.Info("Telegram message sent", zap.String("chat_id", n.chatID))
}

func formatMessage(eventType string, payload map[string]interface{}) string {
	switch eventType {
	case domain.EventTradeExecuted:
		emoji := "🔴"
		if payload["side"] == string(domain.DirectionBuy) {
			emoji = "🟢"
		}
		return fmt.Sprintf(
			"%s *TRADE OPENED*\n\n"+
				"📈 *Symbol:* %s\n"+
				"🎯 *Action:* %s\n"+
				"💵 *Price:* %s\n"+
				"🛡️ *SL:* %s\n"+
				"🎯 *TP:* %s\n\n"+
				"🧠 *Strategy:* _%s_",
			emoji,
			field(payload, "symbol"),
			field(payload, "side"),
			field(payload, "entry"),
			field(payload, "stop_loss"),
			field(payload, "take_profit"),
			field(payload, "strategy"))
	case domain.EventTradeClosed:
		emoji := "💰"
		if pnl, ok := payload["pnl"].(float64); ok && pnl < 0 {
			emoji = "💸"
		}
		return fmt.Sprintf(
			"%s *TRADE CLOSED*\n\n"+
				"📈 *Symbol:* %s\n"+
				"🎯 *Action:* %s\n"+
				"💵 *Exit:* %s\n"+
				"📊 *PnL:* %s\n"+
				"📌 *Reason:* %s",
			emoji,
			field(payload, "symbol"),
			field(payload, "side"),
			field(payload, "exit"),
			money(payload, "pnl"),
			field(payload, "reason"))
	case domain.EventNewsBlock:
		return fmt.Sprintf(
			"📰 *TRADE BLOCKED (NEWS)*\n\n"+
				"📈 *Symbol:* %s\n"+
				"⚠️ *Event:* %s\n"+
				"🕒 High-impact news detected. Trading paused.",
			field(payload, "symbol"),
			field(payload, "reason"))
	case domain.EventTradingEngaged:
		return "🤖 *AUTO TRADING STARTED*\n\n📈 *Symbols:* " + field(payload, "symbols")
	case domain.EventTradingStopped:
		return "🛑 *AUTO TRADING STOPPED*"
	case domain.EventTradingHalted:
		return "⚠️ *TRADING HALTED*\n\n_" + field(payload, "reason") + "_"
	case domain.EventTradingResumed:
		return "✅ *TRADING RESUMED*"
	default:
		return "ℹ️ *" + eventType + "*"
	}
}

func field(payload map[string]interface{}, key string) string {
	v, ok := payload[key]
	if !ok {
		return "-"
	}
	if list, ok := v.([]string); ok {
		return strings.Join(list, ", ")
	}
	return fmt.Sprintf("%v", v)
}

func money(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(float64); ok {
		return fmt.Sprintf("%.2f", v)
	}
	return field(payload, key)
}
