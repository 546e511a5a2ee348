// Package execution turns decisions into brokerage orders, applying
// policy limits and recording every executed trade in the ledger.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradeloop/internal/broker"
	"tradeloop/internal/config"
	"tradeloop/internal/marketdata"
	"tradeloop/internal/models"
)

// Sell-path policy errors. They surface as per-symbol error results,
// never as a cycle abort.
var (
	ErrInsufficientShares   = errors.New("insufficient shares available")
	ErrBelowMinimumNotional = errors.New("below minimum selling amount")
)

// CancelledID is the sentinel order id for an order declined before
// submission. It produces a cancelled result and no ledger write.
const CancelledID = "cancelled"

// TradeLogger records executed trades. Logging failures do not revert
// the trade outcome; the order already happened at the brokerage.
type TradeLogger interface {
	LogTrade(ctx context.Context, symbol string, decision models.Action, amount float64) error
}

// ConfirmFunc asks whether an order may be submitted. Returning false
// cancels the order.
type ConfirmFunc func(symbol string, side models.Side, amount decimal.Decimal) bool

// Engine executes decisions one at a time. One symbol's failure never
// aborts processing of the remaining decisions.
type Engine struct {
	broker     broker.Brokerage
	provider   marketdata.Provider
	ledger     TradeLogger
	cfg        *config.Config
	confirm    ConfirmFunc
	log        *zap.Logger
	exceptions map[string]struct{}
}

// NewEngine wires the execution engine. confirm may be nil.
func NewEngine(b broker.Brokerage, p marketdata.Provider, l TradeLogger, cfg *config.Config, confirm ConfirmFunc, log *zap.Logger) *Engine {
	exceptions := make(map[string]struct{}, len(cfg.TradeExceptions))
	for _, symbol := range cfg.TradeExceptions {
		exceptions[strings.ToUpper(symbol)] = struct{}{}
	}

	return &Engine{
		broker:     b,
		provider:   p,
		ledger:     l,
		cfg:        cfg,
		confirm:    confirm,
		log:        log,
		exceptions: exceptions,
	}
}

// Execute runs every decision and returns the per-symbol outcomes.
// Hold decisions produce no outcome.
func (e *Engine) Execute(ctx context.Context, decisions []models.Decision) map[string]models.ExecutionResult {
	results := make(map[string]models.ExecutionResult, len(decisions))

	for _, d := range decisions {
		e.log.Info("executing decision",
			zap.String("symbol", d.Symbol),
			zap.String("decision", string(d.Action)),
			zap.Float64("amount", d.Amount))

		if _, excepted := e.exceptions[strings.ToUpper(d.Symbol)]; excepted {
			results[d.Symbol] = result(d, models.ResultError, "Trade exception")
			e.log.Warn("decision skipped, trade exception", zap.String("symbol", d.Symbol))
			continue
		}

		switch d.Action {
		case models.ActionBuy:
			results[d.Symbol] = e.buy(ctx, d)
		case models.ActionSell:
			results[d.Symbol] = e.sell(ctx, d)
		case models.ActionHold:
			// Nothing to do.
		}
	}

	return results
}

// buy clamps the notional into the configured bounds and submits a
// market buy sized by dollars, day validity.
func (e *Engine) buy(ctx context.Context, d models.Decision) models.ExecutionResult {
	amount := Clamp(decimal.NewFromFloat(d.Amount),
		decimal.NewFromFloat(e.cfg.MinBuyUSD),
		decimal.NewFromFloat(e.cfg.MaxBuyUSD)).Round(2)

	if e.confirm != nil && !e.confirm(d.Symbol, models.SideBuy, amount) {
		e.log.Info("buy cancelled by user", zap.String("symbol", d.Symbol))
		return result(d, models.ResultCancelled, "Cancelled by user")
	}

	ack, err := e.broker.SubmitMarketOrder(ctx, broker.OrderRequest{
		Symbol:        d.Symbol,
		Side:          models.SideBuy,
		Notional:      amount,
		ClientOrderID: ulid.Make().String(),
	})
	if err != nil {
		e.log.Error("buy failed", zap.String("symbol", d.Symbol), zap.Error(err))
		return result(d, models.ResultError, err.Error())
	}

	return e.settle(ctx, d, models.SideBuy, amount, ack)
}

// sell resolves the position, computes what is actually sellable after
// in-flight sell orders, clamps, converts to shares and submits.
func (e *Engine) sell(ctx context.Context, d models.Decision) models.ExecutionResult {
	position, err := e.broker.GetPosition(ctx, d.Symbol)
	if err != nil {
		if errors.Is(err, broker.ErrNoPosition) {
			e.log.Error("sell failed, no position", zap.String("symbol", d.Symbol))
			return result(d, models.ResultError, fmt.Sprintf("No position exists for %s", d.Symbol))
		}
		e.log.Error("sell failed", zap.String("symbol", d.Symbol), zap.Error(err))
		return result(d, models.ResultError, err.Error())
	}

	currentPrice := position.CurrentPrice
	if currentPrice.IsZero() {
		return result(d, models.ResultError, fmt.Sprintf("No current price for %s", d.Symbol))
	}

	// Value already claimed by an in-flight sell order must not be
	// sold again.
	pendingSell := decimal.Zero
	if orders, err := e.broker.OpenOrders(ctx); err == nil {
		if order, ok := orders[d.Symbol]; ok && order.Side == models.SideSell {
			pendingSell = order.Notional
		}
	}

	totalShares := position.Quantity
	totalValue := totalShares.Mul(currentPrice)
	available := totalValue.Sub(pendingSell)

	amount := decimal.NewFromFloat(d.Amount)
	minSell := decimal.NewFromFloat(e.cfg.MinSellUSD)

	if amount.GreaterThan(available) {
		amount = available
		if minSell.IsPositive() && amount.LessThan(minSell) {
			e.log.Error("sell below minimum", zap.String("symbol", d.Symbol),
				zap.String("available", available.StringFixed(2)))
			return result(d, models.ResultError,
				fmt.Sprintf("Available position value ($%s) is %v", amount.StringFixed(2), ErrBelowMinimumNotional))
		}
	}

	amount = Clamp(amount, minSell, decimal.NewFromFloat(e.cfg.MaxSellUSD)).Round(2)
	if !amount.IsPositive() {
		return result(d, models.ResultError, "Sell amount too small")
	}

	// Defends against price staleness between the availability
	// calculation and submission.
	sharesToSell := amount.Div(currentPrice)
	if sharesToSell.GreaterThan(totalShares) {
		e.log.Error("sell exceeds held quantity", zap.String("symbol", d.Symbol),
			zap.String("have", totalShares.String()), zap.String("need", sharesToSell.String()))
		return result(d, models.ResultError,
			fmt.Sprintf("%v. Have: %s, Need: %s", ErrInsufficientShares,
				totalShares.StringFixed(6), sharesToSell.StringFixed(6)))
	}

	if e.confirm != nil && !e.confirm(d.Symbol, models.SideSell, amount) {
		e.log.Info("sell cancelled by user", zap.String("symbol", d.Symbol))
		return result(d, models.ResultCancelled, "Cancelled by user")
	}

	ack, err := e.broker.SubmitMarketOrder(ctx, broker.OrderRequest{
		Symbol:        d.Symbol,
		Side:          models.SideSell,
		Notional:      amount,
		ClientOrderID: ulid.Make().String(),
	})
	if err != nil {
		e.log.Error("sell failed", zap.String("symbol", d.Symbol), zap.Error(err))
		return result(d, models.ResultError, err.Error())
	}

	return e.settle(ctx, d, models.SideSell, amount, ack)
}

// settle converts an order acknowledgment into the final result and
// writes the ledger row for real fills.
func (e *Engine) settle(ctx context.Context, d models.Decision, side models.Side, amount decimal.Decimal, ack broker.OrderAck) models.ExecutionResult {
	amountF, _ := amount.Float64()

	switch ack.ID {
	case broker.DemoID:
		e.log.Info("demo order filled", zap.String("symbol", d.Symbol),
			zap.String("side", string(side)), zap.String("amount", amount.StringFixed(2)))
		res := result(d, models.ResultSuccess, "Demo mode")
		res.Amount = amountF
		return res
	case CancelledID:
		return result(d, models.ResultCancelled, "Cancelled by user")
	}

	quantity := ack.Qty
	price := ack.FilledAvgPrice
	if price.IsZero() {
		if live, err := e.provider.CurrentPrice(ctx, d.Symbol); err == nil {
			price = live
		}
	}
	if quantity.IsZero() && !price.IsZero() {
		quantity = amount.Div(price)
	}

	res := result(d, models.ResultSuccess, "")
	res.Amount = amountF
	fill := &models.Fill{}
	fill.Quantity, _ = quantity.Round(6).Float64()
	fill.Price, _ = price.Round(2).Float64()
	res.Fill = fill

	if err := e.ledger.LogTrade(ctx, d.Symbol, d.Action, amountF); err != nil {
		// The trade already happened; the audit row is best-effort.
		e.log.Error("ledger write failed", zap.String("symbol", d.Symbol), zap.Error(err))
	}

	e.log.Info("order submitted", zap.String("symbol", d.Symbol),
		zap.String("side", string(side)), zap.String("amount", amount.StringFixed(2)),
		zap.String("order_id", ack.ID))
	return res
}

func result(d models.Decision, outcome, details string) models.ExecutionResult {
	return models.ExecutionResult{
		Symbol:   d.Symbol,
		Amount:   d.Amount,
		Decision: d.Action,
		Result:   outcome,
		Details:  details,
	}
}

// Clamp bounds amount into [min, max]. A zero bound is disabled.
func Clamp(amount, min, max decimal.Decimal) decimal.Decimal {
	if min.IsPositive() && amount.LessThan(min) {
		amount = min
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		amount = max
	}
	return amount
}
