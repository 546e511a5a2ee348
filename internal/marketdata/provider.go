// Package marketdata wraps the market data capability: current prices,
// moving averages and the comprehensive enrichment block (fundamentals,
// news, sentiment) used to build decision prompts.
package marketdata

import (
	"context"

	"github.com/shopspring/decimal"

	"tradeloop/internal/models"
)

// MovingAverages holds the short and long simple moving averages.
// A zero value means not enough history.
type MovingAverages struct {
	Short decimal.Decimal
	Long  decimal.Decimal
}

// Comprehensive bundles the enrichment data for one symbol. Every field
// is best-effort; absent data leaves the field empty.
type Comprehensive struct {
	Financials     map[string]any
	MarketData     map[string]any
	AnalystSummary string
	News           []models.NewsHeadline
	Sentiment      float64
}

// Provider is the market data capability. All data is best-effort: a
// failed lookup degrades the caller, it never aborts a cycle.
type Provider interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	MovingAverages(ctx context.Context, symbol string, shortWindow, longWindow int) (MovingAverages, error)
	Comprehensive(ctx context.Context, symbol string) (*Comprehensive, error)
}
