package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vforex/quantpilot/internal/domain"
	"github.com/vforex/quantpilot/internal/usecase"
	"go.uber.org/zap"
)

// MockSettingsRepo implements domain.SettingsRepository for tests.
type MockSettingsRepo struct {
	Rows    map[string]string
	LoadErr error
	SaveErr error
	Saved   map[string]string
}

func (m *MockSettingsRepo) LoadSettings(ctx context.Context) (map[string]string, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.Rows, nil
}

func (m *MockSettingsRepo) SaveSetting(ctx context.Context, key, value string) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if m.Saved == nil {
		m.Saved = make(map[string]string)
	}
	m.Saved[key] = value
	return nil
}

func TestSettingsStoreStartsWithDefaults(t *testing.T) {
	store := usecase.NewSettingsStore(&MockSettingsRepo{}, zap.NewNop())

	cfg := store.Snapshot()
	want := domain.DefaultSettings()
	if cfg.RiskPerTrade != want.RiskPerTrade {
		t.Errorf("RiskPerTrade = %v, want %v", cfg.RiskPerTrade, want.RiskPerTrade)
	}
	if cfg.CooldownSec != want.CooldownSec {
		t.Errorf("CooldownSec = %v, want %v", cfg.CooldownSec, want.CooldownSec)
	}
	if len(cfg.Symbols) != len(want.Symbols) {
		t.Errorf("Symbols = %v, want %v", cfg.Symbols, want.Symbols)
	}
}

func TestSettingsStoreReloadOverlaysStoredRows(t *testing.T) {
	repo := &MockSettingsRepo{Rows: map[string]string{
		domain.SettingRiskPerTrade: "2.5",
		domain.SettingPaperMode:    "false",
		domain.SettingSymbols:      "eurusd, gbpusd",
		domain.SettingMLThreshold:  "not-a-number",
	}}
	store := usecase.NewSettingsStore(repo, zap.NewNop())

	if err := store.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	cfg := store.Snapshot()
	if cfg.RiskPerTrade != 2.5 {
		t.Errorf("RiskPerTrade = %v, want 2.5", cfg.RiskPerTrade)
	}
	if cfg.PaperMode {
		t.Error("PaperMode = true, want false")
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "EURUSD" || cfg.Symbols[1] != "GBPUSD" {
		t.Errorf("Symbols = %v, want [EURUSD GBPUSD]", cfg.Symbols)
	}
	// Unparseable row keeps its default.
	if cfg.MLThreshold != 0.6 {
		t.Errorf("MLThreshold = %v, want 0.6", cfg.MLThreshold)
	}
}

func TestSettingsStoreReloadPropagatesRepoError(t *testing.T) {
	repo := &MockSettingsRepo{LoadErr: errors.New("db locked")}
	store := usecase.NewSettingsStore(repo, zap.NewNop())

	if err := store.Reload(context.Background()); err == nil {
		t.Fatal("Reload() error = nil, want error")
	}
}

func TestSettingsStoreSetPersistsAndApplies(t *testing.T) {
	repo := &MockSettingsRepo{}
	store := usecase.NewSettingsStore(repo, zap.NewNop())

	if err := store.Set(context.Background(), domain.SettingConfidenceMin, "0.55"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if got := store.Snapshot().ConfidenceMin; got != 0.55 {
		t.Errorf("ConfidenceMin = %v, want 0.55", got)
	}
	if repo.Saved[domain.SettingConfidenceMin] != "0.55" {
		t.Errorf("saved value = %q, want %q", repo.Saved[domain.SettingConfidenceMin], "0.55")
	}
}

func TestSettingsStoreSetRejectsBadValueBeforeSaving(t *testing.T) {
	repo := &MockSettingsRepo{}
	store := usecase.NewSettingsStore(repo, zap.NewNop())

	if err := store.Set(context.Background(), domain.SettingRiskPerTrade, "lots"); err == nil {
		t.Fatal("Set() error = nil, want parse error")
	}
	if len(repo.Saved) != 0 {
		t.Errorf("repo received %d writes, want 0", len(repo.Saved))
	}
	if got := store.Snapshot().RiskPerTrade; got != 1.0 {
		t.Errorf("RiskPerTrade = %v, want unchanged 1.0", got)
	}
}

func TestSettingsStoreSetUnknownKey(t *testing.T) {
	repo := &MockSettingsRepo{}
	store := usecase.NewSettingsStore(repo, zap.NewNop())

	if err := store.Set(context.Background(), "leverage", "500"); err == nil {
		t.Fatal("Set() error = nil, want unknown key error")
	}
	if len(repo.Saved) != 0 {
		t.Errorf("repo received %d writes, want 0", len(repo.Saved))
	}
}

func TestSettingsStoreSetKeepsMemoryWhenSaveFails(t *testing.T) {
	repo := &MockSettingsRepo{SaveErr: errors.New("disk full")}
	store := usecase.NewSettingsStore(repo, zap.NewNop())

	if err := store.Set(context.Background(), domain.SettingRiskPerTrade, "3.0"); err == nil {
		t.Fatal("Set() error = nil, want save error")
	}
	if got := store.Snapshot().RiskPerTrade; got != 1.0 {
		t.Errorf("RiskPerTrade = %v, want unchanged 1.0", got)
	}
}

func TestSettingsStoreSnapshotIsIsolated(t *testing.T) {
	store := usecase.NewSettingsStore(&MockSettingsRepo{}, zap.NewNop())

	cfg := store.Snapshot()
	cfg.Symbols[0] = "HACKED"
	cfg.RiskPerTrade = 99

	fresh := store.Snapshot()
	if fresh.Symbols[0] != "EURUSD" {
		t.Errorf("Symbols[0] = %q, want EURUSD", fresh.Symbols[0])
	}
	if fresh.RiskPerTrade != 1.0 {
		t.Errorf("RiskPerTrade = %v, want 1.0", fresh.RiskPerTrade)
	}
}
