// Package broker defines the brokerage capability the trading loop
// executes against, with an Alpaca REST implementation and an offline
// demo implementation.
package broker

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"tradeloop/internal/models"
)

// ErrNoPosition is returned by GetPosition when the account holds no
// position in the requested symbol.
var ErrNoPosition = errors.New("no position exists")

// OrderRequest is a notional-sized market order.
type OrderRequest struct {
	Symbol        string
	Side          models.Side
	Notional      decimal.Decimal
	ClientOrderID string
}

// OrderAck is the brokerage response to a submitted order. Qty and
// FilledAvgPrice are zero when the order has not filled yet.
type OrderAck struct {
	ID             string
	Symbol         string
	Qty            decimal.Decimal
	FilledAvgPrice decimal.Decimal
}

// Brokerage is the account/order capability. All calls are synchronous
// and block for one network round-trip.
type Brokerage interface {
	ListPositions(ctx context.Context) ([]models.Position, error)
	GetPosition(ctx context.Context, symbol string) (models.Position, error)
	OpenOrders(ctx context.Context) (map[string]models.OpenOrder, error)
	GetAccount(ctx context.Context) (models.AccountSnapshot, error)
	SubmitMarketOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
}

// DegradedAccount is the zeroed snapshot used when the brokerage is
// unreachable. The cycle proceeds with it rather than aborting.
func DegradedAccount() models.AccountSnapshot {
	return models.AccountSnapshot{
		BuyingPower:       decimal.Zero,
		PortfolioValue:    decimal.Zero,
		Cash:              decimal.Zero,
		LastEquity:        decimal.Zero,
		InitialMargin:     decimal.Zero,
		MaintenanceMargin: decimal.Zero,
		OpenOrders:        map[string]models.OpenOrder{},
	}
}
