package broker

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"tradeloop/internal/models"
)

// DemoID is the sentinel order id the demo broker acknowledges with.
// The execution engine treats it as a synthetic success and skips the
// ledger write.
const DemoID = "demo"

// PriceFunc resolves a fill price for the demo broker.
type PriceFunc func(ctx context.Context, symbol string) (decimal.Decimal, error)

type demoPosition struct {
	qty      decimal.Decimal
	avgEntry decimal.Decimal
}

// DemoBroker simulates an account entirely in memory. Orders fill
// immediately at the provider price, so there are never open orders.
type DemoBroker struct {
	cash      decimal.Decimal
	positions map[string]*demoPosition
	price     PriceFunc
}

// NewDemoBroker starts a demo account with the given cash balance.
func NewDemoBroker(startingCash float64, price PriceFunc) *DemoBroker {
	return &DemoBroker{
		cash:      decimal.NewFromFloat(startingCash),
		positions: make(map[string]*demoPosition),
		price:     price,
	}
}

func (d *DemoBroker) ListPositions(ctx context.Context) ([]models.Position, error) {
	symbols := make([]string, 0, len(d.positions))
	for s := range d.positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	positions := make([]models.Position, 0, len(symbols))
	for _, s := range symbols {
		pos, err := d.GetPosition(ctx, s)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (d *DemoBroker) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	p, ok := d.positions[symbol]
	if !ok || p.qty.IsZero() {
		return models.Position{}, fmt.Errorf("get position %s: %w", symbol, ErrNoPosition)
	}

	price, err := d.price(ctx, symbol)
	if err != nil || price.IsZero() {
		price = p.avgEntry
	}

	value := p.qty.Mul(price)
	cost := p.qty.Mul(p.avgEntry)
	pl := value.Sub(cost)
	plpc := decimal.Zero
	if !cost.IsZero() {
		plpc = pl.Div(cost).Mul(decimal.NewFromInt(100))
	}

	return models.Position{
		Symbol:         symbol,
		Quantity:       p.qty,
		AvgEntryPrice:  p.avgEntry,
		CurrentPrice:   price,
		MarketValue:    value,
		UnrealizedPL:   pl,
		UnrealizedPLPC: plpc,
	}, nil
}

func (d *DemoBroker) OpenOrders(ctx context.Context) (map[string]models.OpenOrder, error) {
	return map[string]models.OpenOrder{}, nil
}

func (d *DemoBroker) GetAccount(ctx context.Context) (models.AccountSnapshot, error) {
	portfolio := d.cash
	for symbol := range d.positions {
		pos, err := d.GetPosition(ctx, symbol)
		if err != nil {
			continue
		}
		portfolio = portfolio.Add(pos.MarketValue)
	}

	return models.AccountSnapshot{
		BuyingPower:    d.cash.Round(2),
		PortfolioValue: portfolio.Round(2),
		Cash:           d.cash.Round(2),
		LastEquity:     portfolio.Round(2),
		OpenOrders:     map[string]models.OpenOrder{},
	}, nil
}

func (d *DemoBroker) SubmitMarketOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	price, err := d.price(ctx, req.Symbol)
	if err != nil {
		return OrderAck{}, fmt.Errorf("demo fill %s: %w", req.Symbol, err)
	}
	if price.IsZero() {
		return OrderAck{}, fmt.Errorf("demo fill %s: no price available", req.Symbol)
	}

	qty := req.Notional.Div(price).Round(6)

	switch req.Side {
	case models.SideBuy:
		if req.Notional.GreaterThan(d.cash) {
			return OrderAck{}, fmt.Errorf("demo fill %s: insufficient cash", req.Symbol)
		}
		p, ok := d.positions[req.Symbol]
		if !ok {
			d.positions[req.Symbol] = &demoPosition{qty: qty, avgEntry: price}
		} else {
			newQty := p.qty.Add(qty)
			p.avgEntry = p.qty.Mul(p.avgEntry).Add(req.Notional).Div(newQty)
			p.qty = newQty
		}
		d.cash = d.cash.Sub(req.Notional)

	case models.SideSell:
		p, ok := d.positions[req.Symbol]
		if !ok || p.qty.IsZero() {
			return OrderAck{}, fmt.Errorf("demo fill %s: %w", req.Symbol, ErrNoPosition)
		}
		if qty.GreaterThan(p.qty) {
			qty = p.qty
		}
		p.qty = p.qty.Sub(qty)
		if p.qty.IsZero() {
			delete(d.positions, req.Symbol)
		}
		d.cash = d.cash.Add(qty.Mul(price))

	default:
		return OrderAck{}, fmt.Errorf("demo fill %s: unknown side %q", req.Symbol, req.Side)
	}

	return OrderAck{
		ID:             DemoID,
		Symbol:         req.Symbol,
		Qty:            qty,
		FilledAvgPrice: price,
	}, nil
}
