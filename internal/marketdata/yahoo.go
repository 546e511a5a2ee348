package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// YahooClient reads quotes, daily history and fundamentals from Yahoo
// Finance. Calls share one rate limiter so a large watchlist does not
// hammer the endpoint.
type YahooClient struct {
	limiter *rate.Limiter
	news    *newsClient
}

// NewYahooClient builds the provider. The limiter allows short bursts
// but keeps the sustained rate around five requests per second.
func NewYahooClient() *YahooClient {
	return &YahooClient{
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		news:    newNewsClient(),
	}
}

// CurrentPrice returns the latest regular-market price. Zero with a nil
// error never happens; callers treat any error as "no data".
func (y *YahooClient) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	q, err := quote.Get(symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if q == nil || q.RegularMarketPrice == 0 {
		return decimal.Zero, fmt.Errorf("quote %s: no price data", symbol)
	}

	return decimal.NewFromFloat(q.RegularMarketPrice).Round(2), nil
}

// MovingAverages computes simple moving averages over one year of daily
// closes. A window with insufficient history comes back zero.
func (y *YahooClient) MovingAverages(ctx context.Context, symbol string, shortWindow, longWindow int) (MovingAverages, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return MovingAverages{}, err
	}

	end := time.Now()
	start := end.AddDate(-1, 0, 0)

	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}

	closes := make([]decimal.Decimal, 0, 260)
	iter := chart.Get(params)
	for iter.Next() {
		closes = append(closes, iter.Bar().Close)
	}
	if err := iter.Err(); err != nil {
		return MovingAverages{}, fmt.Errorf("history %s: %w", symbol, err)
	}

	return MovingAverages{
		Short: trailingSMA(closes, shortWindow),
		Long:  trailingSMA(closes, longWindow),
	}, nil
}

// trailingSMA averages the last window closes, matching a rolling mean
// evaluated at the final row.
func trailingSMA(closes []decimal.Decimal, window int) decimal.Decimal {
	if window <= 0 || len(closes) < window {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, c := range closes[len(closes)-window:] {
		sum = sum.Add(c)
	}
	return sum.Div(decimal.NewFromInt(int64(window))).Round(2)
}

// trendSummary phrases where the price sits relative to its moving
// averages, a plain-text hint alongside the numeric fields.
func trendSummary(price, fifty, twoHundred float64) string {
	if price <= 0 || fifty <= 0 || twoHundred <= 0 {
		return ""
	}

	relation := func(avg float64, name string) string {
		pct := (price/avg - 1) * 100
		if pct >= 0 {
			return fmt.Sprintf("%.1f%% above its %s average", pct, name)
		}
		return fmt.Sprintf("%.1f%% below its %s average", -pct, name)
	}

	return fmt.Sprintf("Trading %s and %s.", relation(fifty, "50-day"), relation(twoHundred, "200-day"))
}

// Comprehensive assembles fundamentals, market data, news headlines and
// a headline sentiment score. Each block is independent; a failure
// leaves that block empty rather than failing the whole call.
func (y *YahooClient) Comprehensive(ctx context.Context, symbol string) (*Comprehensive, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out := &Comprehensive{}

	if eq, err := equity.Get(symbol); err == nil && eq != nil {
		out.Financials = map[string]any{
			"eps_trailing_12m": eq.EpsTrailingTwelveMonths,
			"eps_forward":      eq.EpsForward,
			"book_value":       eq.BookValue,
			"price_to_book":    eq.PriceToBook,
		}
		out.MarketData = map[string]any{
			"market_cap":     eq.MarketCap,
			"forward_pe":     eq.ForwardPE,
			"dividend_yield": eq.TrailingAnnualDividendYield,
			"52w_high":       eq.FiftyTwoWeekHigh,
			"52w_low":        eq.FiftyTwoWeekLow,
			"volume":         eq.RegularMarketVolume,
			"avg_volume_3m":  eq.AverageDailyVolume3Month,
		}
		out.AnalystSummary = trendSummary(eq.RegularMarketPrice, eq.FiftyDayAverage, eq.TwoHundredDayAverage)
	}

	if news, err := y.news.headlines(ctx, symbol, 5); err == nil && len(news) > 0 {
		out.News = news
		out.Sentiment = scoreHeadlines(news)
	}

	return out, nil
}
