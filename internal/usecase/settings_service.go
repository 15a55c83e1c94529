package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/vforex/quantpilot/internal/domain"
	"go.uber.org/zap"
)

// SettingsStore keeps the runtime configuration in memory and mirrors every
// change to the repository. Readers get value copies, so a snapshot taken at
// the start of an evaluation cannot change mid cycle.
type SettingsStore struct {
	repo    domain.SettingsRepository
	logger  *zap.Logger
	mu      sync.RWMutex
	current domain.Settings
}

func NewSettingsStore(repo domain.SettingsRepository, logger *zap.Logger) *SettingsStore {
	return &SettingsStore{
		repo:    repo,
		logger:  logger,
		current: domain.DefaultSettings(),
	}
}

// Reload rebuilds the snapshot from defaults plus every persisted row. Rows
// that fail to parse keep their default and are logged, never fatal.
func (s *SettingsStore) Reload(ctx context.Context) error {
	rows, err := s.repo.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	cfg := domain.DefaultSettings()
	for key, value := range rows {
		if err := applySetting(&cfg, key, value); err != nil {
			s.logger.Warn("Ignoring bad setting row",
				zap.String("key", key),
				zap.String("value", value),
				zap.Error(err))
		}
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()

	s.logger.Info("Settings reloaded", zap.Int("stored_keys", len(rows)))
	return nil
}

// Snapshot returns an independent copy of the current configuration.
func (s *SettingsStore) Snapshot() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.current
	cfg.Symbols = append([]string(nil), s.current.Symbols...)
	return cfg
}

// Set validates and persists one key, then applies it to the live snapshot.
// The in-memory value only changes after the repository accepted the write.
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	probe := s.Snapshot()
	if err := applySetting(&probe, key, value); err != nil {
		return err
	}
	if err := s.repo.SaveSetting(ctx, key, value); err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}

	s.mu.Lock()
	_ = applySetting(&s.current, key, value)
	s.mu.Unlock()

	s.logger.Info("Setting updated", zap.String("key", key), zap.String("value", value))
	return nil
}

func applySetting(cfg *domain.Settings, key, value string) error {
	switch key {
	case domain.SettingRiskPerTrade:
		return parseFloatInto(&cfg.RiskPerTrade, value)
	case domain.SettingMaxDrawdown:
		return parseFloatInto(&cfg.MaxDrawdownPercent, value)
	case domain.SettingMLThreshold:
		return parseFloatInto(&cfg.MLThreshold, value)
	case domain.SettingConfidenceMin:
		return parseFloatInto(&cfg.ConfidenceMin, value)
	case domain.SettingRiskRewardMin:
		return parseFloatInto(&cfg.RiskRewardMin, value)
	case domain.SettingTargetRiskReward:
		return parseFloatInto(&cfg.TargetRiskReward, value)
	case domain.SettingNewsBufferMin:
		return parseIntInto(&cfg.NewsBufferMin, value)
	case domain.SettingPaperMode:
		return parseBoolInto(&cfg.PaperMode, value)
	case domain.SettingConfidenceJitter:
		return parseBoolInto(&cfg.ConfidenceJitter, value)
	case domain.SettingSignalThreshold:
		return parseFloatInto(&cfg.SignalThreshold, value)
	case domain.SettingSymbols:
		symbols := splitSymbols(value)
		if len(symbols) == 0 {
			return fmt.Errorf("empty symbol list")
		}
		cfg.Symbols = symbols
		return nil
	case domain.SettingScanIntervalSec:
		return parseIntInto(&cfg.ScanIntervalSec, value)
	case domain.SettingCooldownSec:
		return parseIntInto(&cfg.CooldownSec, value)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
}

func parseFloatInto(dst *float64, value string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseIntInto(dst *int, value string) error {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseBoolInto(dst *bool, value string) error {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func splitSymbols(value string) []string {
	parts := strings.Split(value, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		sym := strings.ToUpper(strings.TrimSpace(p))
		if sym != "" {
			symbols = append(symbols, sym)
		}
	}
	return symbols
}
