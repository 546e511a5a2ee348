// Package cli wires the trading loop behind a cobra command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tradeloop/internal/config"
	"tradeloop/internal/ledger"
)

const version = "1.0.0"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "tradeloop",
		Short: "tradeloop - LLM-driven portfolio management",
		Long: `tradeloop manages a brokerage portfolio autonomously: each cycle it
snapshots the account, builds portfolio and watchlist overviews, asks a
language model for buy/sell/hold decisions and executes them as
notional market orders. Every executed trade lands in a local ledger.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd(cfg))
	rootCmd.AddCommand(newCycleCmd(cfg))
	rootCmd.AddCommand(newLedgerCmd(cfg))
	rootCmd.AddCommand(newConfigCmd(cfg))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newRunCmd creates the run command, the continuous trading loop.
func newRunCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop until interrupted",
		Long: `Run trading cycles on the configured interval whenever the market is
open. SIGINT or SIGTERM stops the loop after the current wait.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// newCycleCmd creates the cycle command, a single cycle ignoring
// market hours. Useful for smoke-testing a configuration.
func newCycleCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run exactly one trading cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.scheduler.RunOnce(ctx)
		},
	}
}

// newLedgerCmd creates the ledger command, printing recent trades.
func newLedgerCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show recent trades from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			book, err := ledger.Open(cfg.LedgerPath)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer book.Close()

			entries, err := book.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No trades recorded.")
				return nil
			}

			fmt.Printf("%-6s %-8s %-8s %12s  %s\n", "ID", "SYMBOL", "ACTION", "AMOUNT", "TIMESTAMP")
			for _, e := range entries {
				fmt.Printf("%-6d %-8s %-8s %12.2f  %s\n",
					e.ID, e.Symbol, e.Decision, e.Amount, e.Timestamp.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of trades to show")
	return cmd
}

// newConfigCmd creates the config command.
func newConfigCmd(cfg *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig(cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			fmt.Println("Configuration is valid.")
			return nil
		},
	})

	return configCmd
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tradeloop v%s\n", version)
		},
	}
}

// showConfig displays the current configuration. Secrets are reported
// as configured or not, never printed.
func showConfig(cfg *config.Config) {
	fmt.Println("Current configuration:")
	fmt.Printf("Trading Mode:          %s\n", cfg.TradingMode)
	fmt.Printf("Run Interval:          %s\n", cfg.RunInterval)
	fmt.Printf("Retry Interval:        %s\n", cfg.RetryInterval)
	fmt.Printf("Bypass Market Hours:   %t\n", cfg.BypassMarketHours)
	fmt.Println()
	fmt.Printf("Watchlist File:        %s\n", cfg.WatchlistFile)
	fmt.Printf("Watchlist Names:       %s\n", strings.Join(cfg.WatchlistNames, ", "))
	fmt.Printf("Watchlist Limit:       %d\n", cfg.WatchlistOverviewLimit)
	fmt.Printf("Portfolio Limit:       %d\n", cfg.PortfolioLimit)
	if len(cfg.TradeExceptions) > 0 {
		fmt.Printf("Trade Exceptions:      %s\n", strings.Join(cfg.TradeExceptions, ", "))
	}
	fmt.Println()
	fmt.Printf("Buy Range (USD):       %.2f - %.2f\n", cfg.MinBuyUSD, cfg.MaxBuyUSD)
	fmt.Printf("Sell Range (USD):      %.2f - %.2f\n", cfg.MinSellUSD, cfg.MaxSellUSD)
	fmt.Printf("PDT Protection:        %t\n", cfg.PDTProtection)
	fmt.Printf("Confirm Orders:        %t\n", cfg.ConfirmOrders)
	fmt.Printf("Adjustment Rounds:     %d\n", cfg.MaxAdjustmentRounds)
	fmt.Println()
	fmt.Printf("LLM Provider:          %s\n", cfg.LLMProvider)
	fmt.Printf("LLM Model:             %s\n", cfg.LLMModel)
	fmt.Println()
	fmt.Printf("Ledger Path:           %s\n", cfg.LedgerPath)
	fmt.Printf("Backups Enabled:       %t\n", cfg.BackupEnabled)
	fmt.Printf("Backup Retention:      %s\n", cfg.BackupRetention)
	fmt.Printf("Comprehensive Enrich:  %t\n", cfg.EnrichComprehensive)
	fmt.Println()
	fmt.Printf("Alpaca API:            %s\n", configured(cfg.AlpacaAPIKey != "" && cfg.AlpacaSecretKey != ""))
	fmt.Printf("OpenAI API:            %s\n", configured(cfg.OpenAIAPIKey != ""))
	fmt.Printf("DeepSeek API:          %s\n", configured(cfg.DeepSeekAPIKey != ""))
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}
