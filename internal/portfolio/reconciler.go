// Package portfolio merges brokerage positions and open orders into
// the per-symbol view the decision engine reasons over.
package portfolio

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradeloop/internal/broker"
	"tradeloop/internal/marketdata"
	"tradeloop/internal/models"
)

// Reconciler performs a full outer join of positions and open orders
// keyed by symbol. A symbol may appear with a position and no order,
// an order and no position, or both.
type Reconciler struct {
	broker   broker.Brokerage
	provider marketdata.Provider
	log      *zap.Logger
}

// NewReconciler wires the reconciler's capabilities.
func NewReconciler(b broker.Brokerage, p marketdata.Provider, log *zap.Logger) *Reconciler {
	return &Reconciler{broker: b, provider: p, log: log}
}

// Overview builds the per-symbol portfolio view. Prices come from the
// market data provider, falling back to the brokerage-reported price
// when the provider has no data; the fallback is mandatory because the
// provider is best-effort. A failed price lookup zeroes that symbol's
// price and processing continues.
func (r *Reconciler) Overview(ctx context.Context) (map[string]models.StockOverview, error) {
	positions, err := r.broker.ListPositions(ctx)
	if err != nil {
		return nil, err
	}

	orders, err := r.broker.OpenOrders(ctx)
	if err != nil {
		r.log.Warn("open orders unavailable, reconciling positions only", zap.Error(err))
		orders = map[string]models.OpenOrder{}
	}

	overview := make(map[string]models.StockOverview, len(positions)+len(orders))

	for _, pos := range positions {
		price := r.currentPrice(ctx, pos.Symbol, pos.CurrentPrice)
		value := pos.Quantity.Mul(price)

		entry := models.StockOverview{
			Price:           roundF(price, 2),
			Quantity:        roundF(pos.Quantity, 6),
			AverageBuyPrice: roundF(pos.AvgEntryPrice, 2),
			CurrentValue:    roundF(value, 2),
			UnrealizedPL:    roundF(pos.UnrealizedPL, 2),
			UnrealizedPLPC:  roundF(pos.UnrealizedPLPC, 2),
		}
		if order, ok := orders[pos.Symbol]; ok {
			entry.OpenOrder = orderOverview(order)
		}
		overview[pos.Symbol] = entry
	}

	// Symbols with an open order but no position yet: a fresh entry.
	for symbol, order := range orders {
		if _, ok := overview[symbol]; ok {
			continue
		}
		price := r.currentPrice(ctx, symbol, decimal.Zero)
		overview[symbol] = models.StockOverview{
			Price:     roundF(price, 2),
			OpenOrder: orderOverview(order),
		}
	}

	return overview, nil
}

func (r *Reconciler) currentPrice(ctx context.Context, symbol string, fallback decimal.Decimal) decimal.Decimal {
	price, err := r.provider.CurrentPrice(ctx, symbol)
	if err != nil || price.IsZero() {
		if err != nil {
			r.log.Debug("provider price unavailable", zap.String("symbol", symbol), zap.Error(err))
		}
		return fallback
	}
	return price
}

func orderOverview(order models.OpenOrder) *models.OpenOrderOverview {
	return &models.OpenOrderOverview{
		Side:        order.Side,
		Notional:    roundF(order.Notional, 2),
		Status:      order.Status,
		SubmittedAt: order.SubmittedAt.UTC().Format(time.RFC3339),
	}
}

func roundF(d decimal.Decimal, places int32) float64 {
	f, _ := d.Round(places).Float64()
	return f
}
