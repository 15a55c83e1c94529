package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/vforex/quantpilot/internal/domain"
	"github.com/vforex/quantpilot/internal/infrastructure/bridge"
	"github.com/vforex/quantpilot/internal/infrastructure/logger"
	"github.com/vforex/quantpilot/internal/infrastructure/storage"
	"github.com/vforex/quantpilot/internal/usecase"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Bridge struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
	} `yaml:"bridge"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
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
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "brain.db"
	}
	return &cfg, nil
}

func main() {
	symbol := flag.String("symbol", "EURUSD", "symbol to replay")
	timeframe := flag.String("timeframe", "M1", "candle timeframe (M1, M5, ...)")
	bars := flag.Int("bars", 2000, "number of candles to replay")
	balance := flag.Float64("balance", 10000, "starting capital")
	risk := flag.Float64("risk", 1.0, "risk per trade in percent")
	seed := flag.Int64("seed", 42, "random seed for the generator and simulator")
	simulated := flag.Bool("simulated", false, "replay simulator candles instead of bridge history")
	save := flag.Bool("save", true, "persist the run summary to the journal")
	flag.Parse()

	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger("warn", "console")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// 1. Candle history: simulator or real bridge history
	var candles []domain.Candle
	if *simulated {
		sim := bridge.NewSimulator(*seed, log)
		defer sim.Stop()
		candles, err = sim.GetCandles(ctx, *symbol, *timeframe, *bars)
	} else {
		client := bridge.NewClient(cfg.Bridge.RESTEndpoint, "", log)
		defer client.Close()
		candles, err = client.GetCandles(ctx, *symbol, *timeframe, *bars)
	}
	if err != nil {
		fmt.Printf("Failed to load candles: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Replaying %s %s, %d bars\n", *symbol, *timeframe, len(candles))

	// 2. Strategy settings: live ones when the journal DB exists, defaults
	// otherwise
	settings := domain.DefaultSettings()
	store, storeErr := storage.NewSQLiteStore(cfg.Storage.Path)
	if storeErr == nil {
		defer store.Close()
		settingsStore := usecase.NewSettingsStore(store, log)
		if err := settingsStore.Reload(ctx); err == nil {
			settings = settingsStore.Snapshot()
		}
	}

	// 3. Replay
	generator := usecase.NewSignalGenerator(usecase.NewRegimeDetector(), rand.New(rand.NewSource(*seed)), log)
	engine := usecase.NewBacktestEngine(*balance, log)
	result := engine.Run(candles, usecase.SignalStrategy(generator, *symbol, settings), *risk)

	printReport(result)

	// 4. Persist the summary
	if *save && storeErr == nil {
		run := &domain.BacktestRun{
			Symbol:             *symbol,
			Timeframe:          *timeframe,
			Bars:               len(candles),
			TotalTrades:        result.TotalTrades,
			WinRate:            result.WinRate,
			TotalPnL:           result.TotalPnL,
			MaxDrawdownPercent: result.MaxDrawdownPercent,
			SharpeRatio:        result.SharpeRatio,
			SortinoRatio:       result.SortinoRatio,
			ProfitFactor:       result.ProfitFactor,
			CreatedAt:          time.Now().UTC(),
		}
		if err := store.SaveBacktestRun(ctx, run); err != nil {
			fmt.Printf("Failed to save run: %v\n", err)
		} else {
			fmt.Println("Run saved to journal.")
		}
	}
}

func printReport(r *domain.BacktestResult) {
	fmt.Println("--------------------------------------------")
	fmt.Printf("Trades:         %d (%d wins / %d losses)\n", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	fmt.Printf("Win rate:       %.2f%%\n", r.WinRate)
	fmt.Printf("Total PnL:      %.2f\n", r.TotalPnL)
	fmt.Printf("Final capital:  %.2f\n", r.FinalCapital)
	fmt.Printf("Max drawdown:   %.2f (%.2f%%)\n", r.MaxDrawdown, r.MaxDrawdownPercent)
	fmt.Printf("Sharpe:         %.2f\n", r.SharpeRatio)
	fmt.Printf("Sortino:        %.2f\n", r.SortinoRatio)
	fmt.Printf("Profit factor:  %.2f\n", r.ProfitFactor)
	fmt.Printf("Avg win/loss:   %.2f / %.2f\n", r.AvgWin, r.AvgLoss)
	fmt.Printf("Largest:        %.2f / %.2f\n", r.LargestWin, r.LargestLoss)
	fmt.Printf("Avg hold:       %.1f min\n", r.AvgTradeDuration)
	fmt.Println("--------------------------------------------")
}
