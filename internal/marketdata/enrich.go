package marketdata

import (
	"context"

	"go.uber.org/zap"

	"tradeloop/internal/models"
)

// Default moving-average windows for overview enrichment.
const (
	ShortWindow = 50
	LongWindow  = 200
)

// Enricher decorates stock overviews with market data before they are
// rendered into a decision prompt. Every lookup is best-effort.
type Enricher struct {
	provider      Provider
	comprehensive bool
	log           *zap.Logger
}

// NewEnricher builds an enricher. When comprehensive is false only
// moving averages are added, keeping the prompt small.
func NewEnricher(provider Provider, comprehensive bool, log *zap.Logger) *Enricher {
	return &Enricher{
		provider:      provider,
		comprehensive: comprehensive,
		log:           log,
	}
}

// Enrich fills the enrichment fields of one overview entry in place.
func (e *Enricher) Enrich(ctx context.Context, symbol string, ov *models.StockOverview) {
	mavg, err := e.provider.MovingAverages(ctx, symbol, ShortWindow, LongWindow)
	if err != nil {
		e.log.Debug("moving averages unavailable", zap.String("symbol", symbol), zap.Error(err))
	} else {
		if !mavg.Short.IsZero() {
			ov.FiftyDayMavg, _ = mavg.Short.Float64()
		}
		if !mavg.Long.IsZero() {
			ov.TwoHundredDayMavg, _ = mavg.Long.Float64()
		}
	}

	if !e.comprehensive {
		return
	}

	data, err := e.provider.Comprehensive(ctx, symbol)
	if err != nil || data == nil {
		e.log.Debug("comprehensive data unavailable", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	if len(data.Financials) > 0 || len(data.MarketData) > 0 {
		fundamentals := make(map[string]any, len(data.Financials)+len(data.MarketData))
		for k, v := range data.Financials {
			fundamentals[k] = v
		}
		for k, v := range data.MarketData {
			fundamentals[k] = v
		}
		ov.Fundamentals = fundamentals
	}
	if data.AnalystSummary != "" {
		ov.AnalystSummary = data.AnalystSummary
	}
	if len(data.News) > 0 {
		ov.News = data.News
		sentiment := data.Sentiment
		ov.Sentiment = &sentiment
	}
}
