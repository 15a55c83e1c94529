package domain

// Setting keys as persisted in the settings table.
const (
	SettingRiskPerTrade     = "risk_per_trade"
	SettingMaxDrawdown      = "max_drawdown_percent"
	SettingMLThreshold      = "ml_threshold"
	SettingConfidenceMin    = "confidence_min"
	SettingRiskRewardMin    = "risk_reward_min"
	SettingTargetRiskReward = "target_risk_reward"
	SettingNewsBufferMin    = "news_buffer_minutes"
	SettingPaperMode        = "paper_mode"
	SettingConfidenceJitter = "confidence_jitter"
	SettingSignalThreshold  = "signal_threshold"
	SettingSymbols          = "symbols"
	SettingScanIntervalSec  = "scan_interval_seconds"
	SettingCooldownSec      = "trade_cooldown_seconds"
)

// Settings is one immutable configuration snapshot. The trader takes a
// snapshot at the start of each symbol evaluation and uses it for the whole
// cycle, so a concurrent settings change never splits one decision.
type Settings struct {
	RiskPerTrade       float64  // percent of equity risked per trade
	MaxDrawdownPercent float64  // sizing is scaled down beyond this
	MLThreshold        float64  // minimum win probability
	ConfidenceMin      float64  // minimum signal confidence
	RiskRewardMin      float64  // minimum risk-to-reward ratio
	TargetRiskReward   float64  // ratio used when placing targets
	NewsBufferMin      int      // minutes around high impact events
	PaperMode          bool     // simulated fills when true
	ConfidenceJitter   bool     // randomize confidence slightly
	SignalThreshold    float64  // minimum absolute score for a signal
	Symbols            []string // symbols scanned by the trader
	ScanIntervalSec    int
	CooldownSec        int
}

// DefaultSettings returns the baseline configuration used when the settings
// store is empty.
func DefaultSettings() Settings {
	return Settings{
		RiskPerTrade:       1.0,
		MaxDrawdownPercent: 5.0,
		MLThreshold:        0.6,
		ConfidenceMin:      0.4,
		RiskRewardMin:      1.5,
		TargetRiskReward:   1.5,
		NewsBufferMin:      30,
		PaperMode:          true,
		ConfidenceJitter:   true,
		SignalThreshold:    1.0,
		Symbols:            []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD"},
		ScanIntervalSec:    10,
		CooldownSec:        300,
	}
}
