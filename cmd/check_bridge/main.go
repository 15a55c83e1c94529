package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vforex/quantpilot/internal/infrastructure/advisor"
	"github.com/vforex/quantpilot/internal/infrastructure/bridge"
	"github.com/vforex/quantpilot/internal/infrastructure/logger"
	"github.com/vforex/quantpilot/internal/infrastructure/news"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Bridge struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"bridge"`
	Advisor struct {
		Endpoint    string `yaml:"endpoint"`
		Model       string `yaml:"model"`
		PlaybookDir string `yaml:"playbook_dir"`
	} `yaml:"advisor"`
	News struct {
		CalendarURL string `yaml:"calendar_url"`
	} `yaml:"news"`
}

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

	if cfg.Bridge.RESTEndpoint == "" {
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
	return &cfg, nil
}

func main() {
	// 1. Load Config
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger("error", "console")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// 2. Check MT5 Bridge
	fmt.Printf("Checking bridge at %s...\n", cfg.Bridge.RESTEndpoint)
	client := bridge.NewClient(cfg.Bridge.RESTEndpoint, cfg.Bridge.WSEndpoint, log)
	defer client.Close()

	fmt.Printf("Mode: %s\n", client.Mode())
	if !client.IsConnected() {
		fmt.Println("❌ Bridge unreachable")
	} else {
		tick, err := client.GetTick(ctx, "EURUSD")
		if err != nil {
			fmt.Printf("❌ Failed to get tick: %v\n", err)
		} else {
			fmt.Printf("✅ Tick (EURUSD): Bid=%.5f Ask=%.5f Spread=%.5f\n", tick.Bid, tick.Ask, tick.Spread())
		}

		account, err := client.GetAccount(ctx)
		if err != nil {
			fmt.Printf("❌ Failed to get account: %v\n", err)
		} else {
			fmt.Printf("✅ Account: Balance=%.2f Equity=%.2f %s (leverage 1:%d)\n",
				account.Balance, account.Equity, account.Currency, account.Leverage)
		}
	}

	// 3. Check Advisor
	fmt.Printf("\nChecking advisor at %s (model %s)...\n", cfg.Advisor.Endpoint, cfg.Advisor.Model)
	playbook := advisor.LoadPlaybook(cfg.Advisor.PlaybookDir, log)
	adv := advisor.NewOllamaAdvisor(cfg.Advisor.Endpoint, cfg.Advisor.Model, playbook, log)
	if adv.IsReady(ctx) {
		fmt.Println("✅ Advisor ready")
	} else {
		fmt.Println("❌ Advisor offline or no models loaded")
	}

	// 4. Check News Calendar
	fmt.Println("\nChecking economic calendar...")
	calendar := news.NewForexFactoryCalendar(cfg.News.CalendarURL, nil, log)
	events, err := calendar.Upcoming(ctx, 5)
	if err != nil {
		fmt.Printf("❌ Failed to fetch calendar: %v\n", err)
		return
	}
	fmt.Printf("✅ Calendar reachable, %d events within 24h:\n", len(events))
	for _, e := range events {
		fmt.Printf("  %-8s %-24s %s (%s)\n", e.Country, e.Title, e.Date, e.Impact)
	}
}
