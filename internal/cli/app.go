package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tradeloop/internal/broker"
	"tradeloop/internal/config"
	"tradeloop/internal/decision"
	"tradeloop/internal/execution"
	"tradeloop/internal/ledger"
	"tradeloop/internal/logging"
	"tradeloop/internal/marketdata"
	"tradeloop/internal/portfolio"
	"tradeloop/internal/scheduler"
	"tradeloop/internal/watchlist"
)

// demoStartingCash funds the in-memory demo account.
const demoStartingCash = 100000

// app holds the fully wired trading stack.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	ledger    *ledger.Ledger
	scheduler *scheduler.Scheduler
}

// buildApp wires every component from configuration. Callers must
// Close the returned app.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	log := logging.New(cfg.LogLevel)
	provider := marketdata.NewYahooClient()

	var brokerage broker.Brokerage
	switch cfg.TradingMode {
	case config.ModeDemo:
		brokerage = broker.NewDemoBroker(demoStartingCash, provider.CurrentPrice)
	case config.ModeLive:
		brokerage = broker.NewAlpacaClient(cfg.AlpacaAPIKey, cfg.AlpacaSecretKey, false)
	default:
		brokerage = broker.NewAlpacaClient(cfg.AlpacaAPIKey, cfg.AlpacaSecretKey, true)
	}

	book, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	chatModel, err := decision.NewChatModel(ctx, cfg)
	if err != nil {
		book.Close()
		return nil, fmt.Errorf("init chat model: %w", err)
	}

	var confirm execution.ConfirmFunc
	if cfg.ConfirmOrders {
		confirm = execution.SurveyConfirm
	}

	enricher := marketdata.NewEnricher(provider, cfg.EnrichComprehensive, log)
	reconciler := portfolio.NewReconciler(brokerage, provider, log)
	selector := watchlist.NewSelector(cfg.WatchlistFile, cfg.WatchlistNames, cfg.WatchlistOverviewLimit, provider, log)
	decider := decision.NewEngine(chatModel, cfg, book, log)
	executor := execution.NewEngine(brokerage, provider, book, cfg, confirm, log)

	clock, err := scheduler.NewMarketClock()
	if err != nil {
		book.Close()
		return nil, err
	}

	cycle := scheduler.NewCycle(cfg, brokerage, reconciler, selector, enricher, decider, executor, log)

	var backup func() error
	if cfg.BackupEnabled {
		retention := cfg.BackupRetention
		backup = func() error { return book.Backup(retention) }
	}

	return &app{
		cfg:       cfg,
		log:       log,
		ledger:    book,
		scheduler: scheduler.New(cfg, clock, cycle, backup, log),
	}, nil
}

func (a *app) Close() {
	if err := a.ledger.Close(); err != nil {
		a.log.Error("close ledger", zap.Error(err))
	}
	_ = a.log.Sync()
}
