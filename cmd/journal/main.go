package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vforex/quantpilot/internal/infrastructure/logger"
	"github.com/vforex/quantpilot/internal/infrastructure/storage"
	"github.com/vforex/quantpilot/internal/usecase"
	"gopkg.in/yaml.v3"
)

type Config struct {
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

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "brain.db"
	}
	return &cfg, nil
}

func main() {
	limit := flag.Int("limit", 500, "number of recent closed trades to analyze")
	symbol := flag.String("symbol", "", "also list the recent trades of one symbol")
	flag.Parse()

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

	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		fmt.Printf("Failed to open journal db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	analyzer := usecase.NewJournalAnalyzerService(store, log)
	ctx := context.Background()

	overview, err := analyzer.Overview(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to read journal: %v\n", err)
		os.Exit(1)
	}

	if overview.ClosedTrades == 0 {
		fmt.Println("Journal is empty, no closed trades yet.")
		return
	}

	fmt.Printf("Journal overview (last %d trades)\n", *limit)
	fmt.Println("--------------------------------------------")
	fmt.Printf("Closed trades:  %d (%d wins / %d losses)\n", overview.ClosedTrades, overview.Wins, overview.Losses)
	fmt.Printf("Win rate:       %.2f%%\n", overview.WinRate)
	fmt.Printf("Total PnL:      %.2f\n", overview.TotalPnL)
	fmt.Printf("Profit factor:  %.2f\n", overview.ProfitFactor)
	fmt.Printf("Avg win/loss:   %.2f / %.2f\n", overview.AvgWin, overview.AvgLoss)
	fmt.Printf("Largest:        %.2f / %.2f\n", overview.LargestWin, overview.LargestLoss)
	fmt.Printf("Avg hold:       %.1f min\n", overview.AvgHoldMinutes)
	fmt.Printf("Stop outs:      %d, target hits: %d\n", overview.StopOuts, overview.TargetHits)

	performance, err := analyzer.SymbolPerformance(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to aggregate symbols: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n%-10s | %-7s | %-8s | %-10s | %-10s | %s\n",
		"Symbol", "Trades", "Win %", "PnL", "Avg PnL", "Best/Worst")
	fmt.Println("--------------------------------------------------------------------")
	for _, p := range performance {
		fmt.Printf("%-10s | %-7d | %-8.2f | %-10.2f | %-10.2f | %.2f / %.2f\n",
			p.Symbol, p.Trades, p.WinRate, p.TotalPnL, p.AvgPnL, p.BestTrade, p.WorstTrade)
	}

	if *symbol != "" {
		trades, err := analyzer.SymbolTrades(ctx, *symbol, 20)
		if err != nil {
			fmt.Printf("Failed to list %s trades: %v\n", *symbol, err)
			os.Exit(1)
		}
		fmt.Printf("\nRecent %s trades:\n", *symbol)
		for _, tr := range trades {
			fmt.Printf("  %s %-4s %.2f @ %.5f -> %.5f  pnl %.2f (%s)\n",
				tr.ClosedAt.Format("2006-01-02 15:04"), tr.Side, tr.Quantity,
				tr.EntryPrice, tr.ExitPrice, tr.RealizedPnL, tr.Reason)
		}
	}
}
