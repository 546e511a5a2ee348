package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
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

type cycleBroker struct {
	account    models.AccountSnapshot
	accounts   []models.AccountSnapshot
	accountErr error
	positions  []models.Position
	submitted  []broker.OrderRequest
}

func (b *cycleBroker) ListPositions(ctx context.Context) ([]models.Position, error) {
	return b.positions, nil
}

func (b *cycleBroker) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	for _, p := range b.positions {
		if p.Symbol == symbol {
			return p, nil
		}
	}
	return models.Position{}, broker.ErrNoPosition
}

func (b *cycleBroker) OpenOrders(ctx context.Context) (map[string]models.OpenOrder, error) {
	return map[string]models.OpenOrder{}, nil
}

func (b *cycleBroker) GetAccount(ctx context.Context) (models.AccountSnapshot, error) {
	if b.accountErr != nil {
		return models.AccountSnapshot{}, b.accountErr
	}
	if len(b.accounts) > 0 {
		account := b.accounts[0]
		b.accounts = b.accounts[1:]
		return account, nil
	}
	return b.account, nil
}

func (b *cycleBroker) SubmitMarketOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	b.submitted = append(b.submitted, req)
	return broker.OrderAck{ID: "order-1", Symbol: req.Symbol, FilledAvgPrice: decimal.NewFromInt(100)}, nil
}

type cycleProvider struct {
	prices map[string]float64
}

func (p *cycleProvider) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromFloat(p.prices[symbol]), nil
}

func (p *cycleProvider) MovingAverages(ctx context.Context, symbol string, shortWindow, longWindow int) (marketdata.MovingAverages, error) {
	return marketdata.MovingAverages{}, nil
}

func (p *cycleProvider) Comprehensive(ctx context.Context, symbol string) (*marketdata.Comprehensive, error) {
	return &marketdata.Comprehensive{}, nil
}

type cycleModel struct {
	response  string
	responses []string
	prompts   []string
}

func (m *cycleModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if len(m.responses) > 0 {
		response := m.responses[0]
		m.responses = m.responses[1:]
		return response, nil
	}
	return m.response, nil
}

type nopLedger struct{}

func (nopLedger) LogTrade(ctx context.Context, symbol string, decision models.Action, amount float64) error {
	return nil
}

func cycleConfig(t *testing.T) *config.Config {
	t.Helper()

	store := filepath.Join(t.TempDir(), "watchlists.json")
	assert.NoError(t, os.WriteFile(store, []byte(`{"Primary": [{"symbol": "AAPL"}]}`), 0o644))

	return &config.Config{
		RunInterval:            10 * time.Minute,
		WatchlistFile:          store,
		WatchlistNames:         []string{"Primary"},
		WatchlistOverviewLimit: 20,
		PortfolioLimit:         10,
		MinBuyUSD:              1,
		MaxBuyUSD:              10000,
		MinSellUSD:             1,
		MaxSellUSD:             10000,
	}
}

func newTestCycle(cfg *config.Config, b *cycleBroker, model *cycleModel) *Cycle {
	log := zap.NewNop()
	provider := &cycleProvider{prices: map[string]float64{"AAPL": 185.5, "MSFT": 410}}

	return NewCycle(cfg, b,
		portfolio.NewReconciler(b, provider, log),
		watchlist.NewSelector(cfg.WatchlistFile, cfg.WatchlistNames, cfg.WatchlistOverviewLimit, provider, log),
		marketdata.NewEnricher(provider, false, log),
		decision.NewEngine(model, cfg, nil, log),
		execution.NewEngine(b, provider, nopLedger{}, cfg, nil, log),
		log)
}

func TestCycleRunsDecisionThroughExecution(t *testing.T) {
	t.Parallel()

	b := &cycleBroker{
		account: models.AccountSnapshot{BuyingPower: decimal.NewFromInt(5000)},
		positions: []models.Position{
			{Symbol: "MSFT", Quantity: decimal.NewFromInt(2), CurrentPrice: decimal.NewFromInt(410)},
		},
	}
	model := &cycleModel{response: "```json\n[{\"symbol\": \"AAPL\", \"decision\": \"buy\", \"amount\": 250}]\n```"}

	cycle := newTestCycle(cycleConfig(t), b, model)
	assert.NoError(t, cycle.Run(context.Background()))

	// The held position and the watchlist candidate both reached the
	// model, and the buy went to the brokerage.
	assert.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], `"MSFT"`)
	assert.Contains(t, model.prompts[0], `"AAPL"`)
	assert.Contains(t, model.prompts[0], "Total Buying Power: 5000.00 USD")

	assert.Len(t, b.submitted, 1)
	assert.Equal(t, "AAPL", b.submitted[0].Symbol)
	assert.Equal(t, "250", b.submitted[0].Notional.String())
}

func TestCycleDegradesOnAccountFailure(t *testing.T) {
	t.Parallel()

	b := &cycleBroker{accountErr: errors.New("api unavailable")}
	model := &cycleModel{response: "[]"}

	cycle := newTestCycle(cycleConfig(t), b, model)
	assert.NoError(t, cycle.Run(context.Background()))

	// The cycle proceeds with a zeroed account snapshot.
	assert.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "Total Buying Power: 0.00 USD")
}

func TestCycleSkipsWhenNothingToAnalyze(t *testing.T) {
	t.Parallel()

	cfg := cycleConfig(t)
	assert.NoError(t, os.WriteFile(cfg.WatchlistFile, []byte(`{"Primary": []}`), 0o644))

	b := &cycleBroker{account: models.AccountSnapshot{}}
	model := &cycleModel{response: "[]"}

	cycle := newTestCycle(cfg, b, model)
	assert.NoError(t, cycle.Run(context.Background()))

	// No overview, no watchlist: the model is never invoked.
	assert.Empty(t, model.prompts)
}

func TestCycleHeldSymbolLeavesWatchlist(t *testing.T) {
	t.Parallel()

	b := &cycleBroker{
		account: models.AccountSnapshot{BuyingPower: decimal.NewFromInt(1000)},
		positions: []models.Position{
			{Symbol: "AAPL", Quantity: decimal.NewFromInt(3), CurrentPrice: decimal.NewFromFloat(185.5)},
		},
	}
	model := &cycleModel{response: "[]"}

	cycle := newTestCycle(cycleConfig(t), b, model)
	assert.NoError(t, cycle.Run(context.Background()))

	assert.Len(t, model.prompts, 1)
	// AAPL appears in the portfolio overview but the watchlist
	// overview must be empty.
	assert.Contains(t, model.prompts[0], "**Watchlist Overview:**\n```json\n{}\n```")
}

func TestCycleToleratesMalformedModelResponse(t *testing.T) {
	t.Parallel()

	b := &cycleBroker{account: models.AccountSnapshot{BuyingPower: decimal.NewFromInt(5000)}}
	model := &cycleModel{response: "I would buy AAPL here."}

	// An unparsable response means zero decisions, not a failed cycle.
	cycle := newTestCycle(cycleConfig(t), b, model)
	assert.NoError(t, cycle.Run(context.Background()))

	assert.Len(t, model.prompts, 1)
	assert.Empty(t, b.submitted)
}

func TestCycleRunsBoundedAdjustmentRounds(t *testing.T) {
	t.Parallel()

	cfg := cycleConfig(t)
	cfg.MaxAdjustmentRounds = 2

	b := &cycleBroker{
		accounts: []models.AccountSnapshot{
			{BuyingPower: decimal.NewFromInt(500)},
			{BuyingPower: decimal.NewFromInt(700)},
			{BuyingPower: decimal.NewFromInt(700)},
		},
	}
	model := &cycleModel{responses: []string{
		`[{"symbol": "TSLA", "decision": "sell", "amount": 500}]`,
		`[{"symbol": "AAPL", "decision": "buy", "amount": 250}]`,
		`[]`,
	}}

	cycle := newTestCycle(cfg, b, model)
	assert.NoError(t, cycle.Run(context.Background()))

	// Initial decide plus two adjustment rounds: the TSLA error never
	// resolves, so the loop runs up to the configured cap and stops
	// when a round yields no decisions.
	assert.Len(t, model.prompts, 3)
	assert.Contains(t, model.prompts[1], "Post-Decision Adjustments")
	assert.Contains(t, model.prompts[1], "No position exists for TSLA")
	// Adjustment rounds see the re-fetched buying power.
	assert.Contains(t, model.prompts[1], "Total Buying Power: 700.00 USD")

	// The adjusted buy reached the brokerage and merged into results.
	assert.Len(t, b.submitted, 1)
	assert.Equal(t, "AAPL", b.submitted[0].Symbol)
	assert.Equal(t, "250", b.submitted[0].Notional.String())
}

type countingCycle struct {
	runs   int
	cancel context.CancelFunc
	limit  int
	err    error
}

func (c *countingCycle) Run(ctx context.Context) error {
	c.runs++
	if c.runs >= c.limit {
		c.cancel()
	}
	return c.err
}

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	runner := &countingCycle{cancel: cancel, limit: 3}

	cfg := &config.Config{
		RunInterval:       time.Millisecond,
		RetryInterval:     time.Millisecond,
		BypassMarketHours: true,
	}
	clock := mustClock(t)

	s := New(cfg, clock, runner, nil, zap.NewNop())
	err := s.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, runner.runs)
}

func TestSchedulerRetriesFailedCycles(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	runner := &countingCycle{cancel: cancel, limit: 2, err: errors.New("boom")}

	cfg := &config.Config{
		RunInterval:       time.Hour,
		RetryInterval:     time.Millisecond,
		BypassMarketHours: true,
	}

	s := New(cfg, mustClock(t), runner, nil, zap.NewNop())
	err := s.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	// The second run only happens because a failed cycle waits the
	// retry interval, not the hour-long run interval.
	assert.Equal(t, 2, runner.runs)
}
