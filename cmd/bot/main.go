package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vforex/quantpilot/internal/domain"
	"github.com/vforex/quantpilot/internal/infrastructure/advisor"
	"github.com/vforex/quantpilot/internal/infrastructure/bridge"
	"github.com/vforex/quantpilot/internal/infrastructure/logger"
	"github.com/vforex/quantpilot/internal/infrastructure/mlmodel"
	"github.com/vforex/quantpilot/internal/infrastructure/news"
	"github.com/vforex/quantpilot/internal/infrastructure/notify"
	"github.com/vforex/quantpilot/internal/infrastructure/storage"
	"github.com/vforex/quantpilot/internal/usecase"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const startRetryInterval = 10 * time.Second

type Config struct {
	Bridge struct {
		RESTEndpoint string `yaml:"rest_endpoint" validate:"required_if=Simulated false,omitempty,url"`
		WSEndpoint   string `yaml:"ws_endpoint"`
		Simulated    bool   `yaml:"simulated"`
		SimSeed      int64  `yaml:"sim_seed"`
	} `yaml:"bridge"`
	Advisor struct {
		Endpoint    string `yaml:"endpoint" validate:"required,url"`
		Model       string `yaml:"model" validate:"required"`
		PlaybookDir string `yaml:"playbook_dir"`
	} `yaml:"advisor"`
	Model struct {
		Path       string `yaml:"path"`
		RuntimeLib string `yaml:"runtime_lib"`
	} `yaml:"model"`
	News struct {
		CalendarURL string `yaml:"calendar_url"`
	} `yaml:"news"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Execution struct {
		InitialBalance float64 `yaml:"initial_balance" validate:"gt=0"`
		Seed           int64   `yaml:"seed"`
	} `yaml:"execution"`
	Storage struct {
		Path string `yaml:"path" validate:"required"`
	} `yaml:"storage"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"logging"`
}

// loadConfig reads the YAML config, fills defaults and validates the
// result. A missing file is not an error, the defaults describe a local
// paper trading setup.
func loadConfig(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyDefaults(&cfg)
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bridge.RESTEndpoint == "" && !cfg.Bridge.Simulated {
		cfg.Bridge.RESTEndpoint = "http://127.0.0.1:5001"
	}
	if cfg.Advisor.Endpoint == "" {
		cfg.Advisor.Endpoint = "http://127.0.0.1:11434"
	}
	if cfg.Advisor.Model == "" {
		cfg.Advisor.Model = "llama3.1:8b"
	}
	if cfg.Advisor.PlaybookDir == "" {
		cfg.Advisor.PlaybookDir = "data/playbooks"
	}
	if cfg.Execution.InitialBalance == 0 {
		cfg.Execution.InitialBalance = 10000
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "brain.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func main() {
	// 1. Load Config
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage and runtime settings
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	settings := usecase.NewSettingsStore(store, log)
	if err := settings.Reload(context.Background()); err != nil {
		log.Warn("Settings load failed, using defaults", zap.Error(err))
	}
	snapshot := settings.Snapshot()

	// 4. Market data gateway: MT5 bridge or the built-in simulator
	var market domain.MarketDataGateway
	var gateway domain.ExecutionGateway
	if cfg.Bridge.Simulated {
		sim := bridge.NewSimulator(cfg.Bridge.SimSeed, log)
		defer sim.Stop()
		market = sim
	} else {
		client := bridge.NewClient(cfg.Bridge.RESTEndpoint, cfg.Bridge.WSEndpoint, log)
		defer client.Close()
		market = client
		gateway = client
	}

	paper := snapshot.PaperMode
	if cfg.Bridge.Simulated && !paper {
		log.Warn("Simulated bridge cannot route live orders, forcing paper execution")
		paper = true
	}

	// 5. Advisor with its strategy playbook
	playbook := advisor.LoadPlaybook(cfg.Advisor.PlaybookDir, log)
	adv := advisor.NewOllamaAdvisor(cfg.Advisor.Endpoint, cfg.Advisor.Model, playbook, log)

	// 6. Probability estimator (ONNX when a model file is configured)
	if cfg.Model.Path != "" {
		if err := mlmodel.InitializeRuntime(cfg.Model.RuntimeLib); err != nil {
			log.Fatal("Failed to init onnx runtime", zap.Error(err))
		}
	}
	estimator, err := mlmodel.NewEstimator(cfg.Model.Path, log)
	if err != nil {
		log.Fatal("Failed to load probability model", zap.Error(err))
	}
	defer estimator.Close()

	// 7. Calendar and notifications
	calendar := news.NewForexFactoryCalendar(cfg.News.CalendarURL, nil, log)
	notifier := notify.NewTelegramNotifier("", cfg.Telegram.BotToken, cfg.Telegram.ChatID, log)

	// 8. Decision stack. Generator and engine each get their own seeded
	// source, they draw from different goroutines.
	seed := cfg.Execution.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	generator := usecase.NewSignalGenerator(usecase.NewRegimeDetector(), rand.New(rand.NewSource(seed)), log)
	pipeline := usecase.NewValidationPipeline(adv, estimator, calendar, log)
	sizer := usecase.NewPositionSizer(log)
	engine := usecase.NewExecutionEngine(paper, cfg.Execution.InitialBalance, gateway, store, rand.New(rand.NewSource(seed+1)), log)

	trader := usecase.NewAutoTrader(market, adv, generator, pipeline, sizer, engine, settings, notifier, log)

	// 9. Start trading, retrying while the bridge and advisor come up
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx := context.Background()
	for {
		err := trader.Start(ctx)
		if err == nil {
			break
		}
		log.Warn("Trader not started yet, retrying", zap.Error(err))
		select {
		case <-time.After(startRetryInterval):
		case <-stop:
			log.Info("Shutdown requested before trading started")
			return
		}
	}

	// 10. Wait for Shutdown
	<-stop
	log.Info("Shutting down...")
	trader.Stop()
}
