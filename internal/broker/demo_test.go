package broker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"tradeloop/internal/models"
)

func fixedPrices(prices map[string]float64) PriceFunc {
	return func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		return decimal.NewFromFloat(prices[symbol]), nil
	}
}

func TestDemoBrokerBuyThenSell(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := NewDemoBroker(10000, fixedPrices(map[string]float64{"AAPL": 200}))

	ack, err := d.SubmitMarketOrder(ctx, OrderRequest{
		Symbol: "AAPL", Side: models.SideBuy, Notional: decimal.NewFromInt(1000),
	})
	assert.NoError(t, err)
	assert.Equal(t, DemoID, ack.ID)
	assert.Equal(t, "5", ack.Qty.String())

	account, err := d.GetAccount(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "9000.00", account.Cash.StringFixed(2))
	assert.Equal(t, "10000.00", account.PortfolioValue.StringFixed(2))

	pos, err := d.GetPosition(ctx, "AAPL")
	assert.NoError(t, err)
	assert.Equal(t, "5", pos.Quantity.String())
	assert.Equal(t, "200", pos.AvgEntryPrice.String())

	_, err = d.SubmitMarketOrder(ctx, OrderRequest{
		Symbol: "AAPL", Side: models.SideSell, Notional: decimal.NewFromInt(1000),
	})
	assert.NoError(t, err)

	_, err = d.GetPosition(ctx, "AAPL")
	assert.ErrorIs(t, err, ErrNoPosition)

	account, err = d.GetAccount(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "10000.00", account.Cash.StringFixed(2))
}

func TestDemoBrokerAveragesEntryPrice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	prices := map[string]float64{"AAPL": 100}
	d := NewDemoBroker(10000, fixedPrices(prices))

	_, err := d.SubmitMarketOrder(ctx, OrderRequest{
		Symbol: "AAPL", Side: models.SideBuy, Notional: decimal.NewFromInt(1000),
	})
	assert.NoError(t, err)

	// Second buy at a higher price moves the average entry up.
	prices["AAPL"] = 200
	_, err = d.SubmitMarketOrder(ctx, OrderRequest{
		Symbol: "AAPL", Side: models.SideBuy, Notional: decimal.NewFromInt(1000),
	})
	assert.NoError(t, err)

	pos, err := d.GetPosition(ctx, "AAPL")
	assert.NoError(t, err)
	assert.Equal(t, "15", pos.Quantity.String())
	// 15 shares for $2000.
	assert.Equal(t, "133.33", pos.AvgEntryPrice.StringFixed(2))
}

func TestDemoBrokerRejectsOverspend(t *testing.T) {
	t.Parallel()

	d := NewDemoBroker(500, fixedPrices(map[string]float64{"AAPL": 100}))

	_, err := d.SubmitMarketOrder(context.Background(), OrderRequest{
		Symbol: "AAPL", Side: models.SideBuy, Notional: decimal.NewFromInt(1000),
	})
	assert.Error(t, err)
}

func TestDemoBrokerSellWithoutPosition(t *testing.T) {
	t.Parallel()

	d := NewDemoBroker(500, fixedPrices(map[string]float64{"AAPL": 100}))

	_, err := d.SubmitMarketOrder(context.Background(), OrderRequest{
		Symbol: "AAPL", Side: models.SideSell, Notional: decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestDemoBrokerSellClampsToHeldQuantity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := NewDemoBroker(1000, fixedPrices(map[string]float64{"AAPL": 100}))

	_, err := d.SubmitMarketOrder(ctx, OrderRequest{
		Symbol: "AAPL", Side: models.SideBuy, Notional: decimal.NewFromInt(500),
	})
	assert.NoError(t, err)

	// Asking for more notional than held sells exactly the position.
	ack, err := d.SubmitMarketOrder(ctx, OrderRequest{
		Symbol: "AAPL", Side: models.SideSell, Notional: decimal.NewFromInt(2000),
	})
	assert.NoError(t, err)
	assert.Equal(t, "5", ack.Qty.String())

	account, err := d.GetAccount(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "1000.00", account.Cash.StringFixed(2))
}
