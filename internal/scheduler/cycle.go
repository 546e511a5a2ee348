// Package scheduler drives the trading loop: one full
// observe-decide-execute cycle per interval, gated on market hours.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tradeloop/internal/broker"
	"tradeloop/internal/config"
	"tradeloop/internal/decision"
	"tradeloop/internal/execution"
	"tradeloop/internal/marketdata"
	"tradeloop/internal/models"
	"tradeloop/internal/portfolio"
	"tradeloop/internal/watchlist"
)

// Cycle runs one complete trading cycle: account snapshot, portfolio
// and watchlist overviews, decision, execution and bounded adjustment.
type Cycle struct {
	cfg        *config.Config
	broker     broker.Brokerage
	reconciler *portfolio.Reconciler
	selector   *watchlist.Selector
	enricher   *marketdata.Enricher
	decider    *decision.Engine
	executor   *execution.Engine
	log        *zap.Logger
}

// NewCycle wires a trading cycle.
func NewCycle(cfg *config.Config, b broker.Brokerage, r *portfolio.Reconciler,
	s *watchlist.Selector, e *marketdata.Enricher, d *decision.Engine,
	x *execution.Engine, log *zap.Logger) *Cycle {
	return &Cycle{
		cfg:        cfg,
		broker:     b,
		reconciler: r,
		selector:   s,
		enricher:   e,
		decider:    d,
		executor:   x,
		log:        log,
	}
}

// Run executes one cycle. A brokerage account failure degrades to a
// zeroed snapshot rather than aborting; a portfolio overview failure
// aborts because decisions without position data are unsafe.
func (c *Cycle) Run(ctx context.Context) error {
	account, err := c.broker.GetAccount(ctx)
	if err != nil {
		c.log.Error("account snapshot unavailable, continuing degraded", zap.Error(err))
		account = broker.DegradedAccount()
	}
	c.logAccount(account)

	overview, err := c.reconciler.Overview(ctx)
	if err != nil {
		return fmt.Errorf("portfolio overview: %w", err)
	}
	for symbol := range overview {
		entry := overview[symbol]
		c.enricher.Enrich(ctx, symbol, &entry)
		overview[symbol] = entry
	}

	stocks, err := c.selector.Select(ctx, overview)
	if err != nil {
		// A broken watchlist store must not stop portfolio management.
		c.log.Error("watchlist unavailable, deciding on portfolio only", zap.Error(err))
		stocks = nil
	}
	watch := make(map[string]models.StockOverview, len(stocks))
	for _, stock := range stocks {
		entry := models.StockOverview{Price: stock.Price}
		c.enricher.Enrich(ctx, stock.Symbol, &entry)
		watch[stock.Symbol] = entry
	}

	if len(overview) == 0 && len(watch) == 0 {
		c.log.Info("nothing to analyze, skipping cycle")
		return nil
	}

	decisions, err := c.decider.Decide(ctx, account.BuyingPower, overview, watch)
	if err != nil {
		// The model is untrusted input; an unparsable response means
		// zero decisions this cycle, not a failed cycle.
		var malformed *decision.MalformedResponseError
		if !errors.As(err, &malformed) {
			return fmt.Errorf("decide: %w", err)
		}
		c.log.Error("unparsable decision response, proceeding with no decisions",
			zap.String("response", malformed.Raw), zap.Error(err))
		decisions = nil
	}
	if len(decisions) == 0 {
		c.log.Info("no actionable decisions this cycle")
		return nil
	}

	results := c.executor.Execute(ctx, decisions)

	for round := 1; round <= c.cfg.MaxAdjustmentRounds; round++ {
		if !hasErrors(results) {
			break
		}

		// Fills from the previous round changed buying power.
		buyingPower := account.BuyingPower
		if fresh, err := c.broker.GetAccount(ctx); err == nil {
			buyingPower = fresh.BuyingPower
		}

		adjusted, err := c.decider.Adjust(ctx, buyingPower, results)
		if err != nil {
			c.log.Error("adjustment round failed", zap.Int("round", round), zap.Error(err))
			break
		}
		if len(adjusted) == 0 {
			break
		}

		c.log.Info("executing adjusted decisions", zap.Int("round", round), zap.Int("decisions", len(adjusted)))
		for symbol, res := range c.executor.Execute(ctx, adjusted) {
			results[symbol] = res
		}
	}

	c.summarize(results)
	return nil
}

func (c *Cycle) logAccount(account models.AccountSnapshot) {
	c.log.Info("account snapshot",
		zap.String("buying_power", account.BuyingPower.StringFixed(2)),
		zap.String("portfolio_value", account.PortfolioValue.StringFixed(2)),
		zap.String("cash", account.Cash.StringFixed(2)),
		zap.Int("daytrade_count", account.DaytradeCount),
		zap.Bool("pattern_day_trader", account.PatternDayTrader),
		zap.Int("open_orders", len(account.OpenOrders)))
}

func (c *Cycle) summarize(results map[string]models.ExecutionResult) {
	var bought, sold, cancelled, failed int
	for _, res := range results {
		switch {
		case res.Result == models.ResultSuccess && res.Decision == models.ActionBuy:
			bought++
		case res.Result == models.ResultSuccess && res.Decision == models.ActionSell:
			sold++
		case res.Result == models.ResultCancelled:
			cancelled++
		case res.Result == models.ResultError:
			failed++
		}
	}
	c.log.Info("cycle complete",
		zap.Int("bought", bought),
		zap.Int("sold", sold),
		zap.Int("cancelled", cancelled),
		zap.Int("errors", failed))
}

func hasErrors(results map[string]models.ExecutionResult) bool {
	for _, res := range results {
		if res.Result == models.ResultError {
			return true
		}
	}
	return false
}
