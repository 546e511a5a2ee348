package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is a trading decision verb produced by the decision model.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Valid reports whether the action is one of the known verbs.
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// Side is the order side as the brokerage understands it.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position is a read-only snapshot of a brokerage position.
// Quantity is fractional with 6-decimal precision.
type Position struct {
	Symbol         string
	Quantity       decimal.Decimal
	AvgEntryPrice  decimal.Decimal
	CurrentPrice   decimal.Decimal
	MarketValue    decimal.Decimal
	UnrealizedPL   decimal.Decimal
	UnrealizedPLPC decimal.Decimal // percent, e.g. 12.34 for +12.34%
}

// OpenOrder is a submitted order not yet fully filled, canceled or expired.
// At most one open order per symbol is surfaced in the aggregated view.
type OpenOrder struct {
	ID             string
	Symbol         string
	Side           Side
	Type           string
	Notional       decimal.Decimal
	FilledNotional decimal.Decimal
	Status         string
	SubmittedAt    time.Time
	FilledAt       *time.Time
	ExpiredAt      *time.Time
	CanceledAt     *time.Time
	FailedAt       *time.Time
	ReplacedAt     *time.Time
	ReplacedBy     string
}

// AccountSnapshot is the brokerage account state at the start of a cycle.
// A zeroed snapshot is used when the brokerage is unreachable.
type AccountSnapshot struct {
	BuyingPower       decimal.Decimal
	PortfolioValue    decimal.Decimal
	Cash              decimal.Decimal
	DaytradeCount     int
	LastEquity        decimal.Decimal
	InitialMargin     decimal.Decimal
	MaintenanceMargin decimal.Decimal
	PatternDayTrader  bool
	OpenOrders        map[string]OpenOrder
}

// OpenOrderOverview is the order slice of a stock overview as rendered
// into the decision prompt.
type OpenOrderOverview struct {
	Side        Side    `json:"side"`
	Notional    float64 `json:"notional"`
	Status      string  `json:"status"`
	SubmittedAt string  `json:"submitted_at"`
}

// StockOverview is one symbol's view handed to the decision model.
// Watchlist entries carry only price and enrichment fields; the zero
// position fields are omitted from their prompt rendering. Field order
// here is the prompt field order.
type StockOverview struct {
	Price             float64            `json:"price"`
	Quantity          float64            `json:"quantity,omitempty"`
	AverageBuyPrice   float64            `json:"average_buy_price,omitempty"`
	CurrentValue      float64            `json:"current_value,omitempty"`
	UnrealizedPL      float64            `json:"unrealized_pl,omitempty"`
	UnrealizedPLPC    float64            `json:"unrealized_plpc,omitempty"`
	FiftyDayMavg      float64            `json:"50_day_mavg_price,omitempty"`
	TwoHundredDayMavg float64            `json:"200_day_mavg_price,omitempty"`
	Fundamentals      map[string]any     `json:"fundamentals,omitempty"`
	AnalystSummary    string             `json:"analyst_summary,omitempty"`
	News              []NewsHeadline     `json:"news,omitempty"`
	Sentiment         *float64           `json:"news_sentiment,omitempty"`
	OpenOrder         *OpenOrderOverview `json:"open_order,omitempty"`
}

// NewsHeadline is a single news item attached to an overview.
type NewsHeadline struct {
	Title       string `json:"title"`
	Publisher   string `json:"publisher"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Decision is one action recommended by the decision model.
type Decision struct {
	Symbol string  `json:"symbol"`
	Action Action  `json:"decision"`
	Amount float64 `json:"amount"`
}

// Execution result states.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultCancelled = "cancelled"
)

// Fill describes the executed side of an order, when known.
type Fill struct {
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
}

// ExecutionResult is the per-symbol outcome of executing one decision.
// It is both logged and fed back into adjustment prompts.
type ExecutionResult struct {
	Symbol   string  `json:"symbol"`
	Amount   float64 `json:"amount"`
	Decision Action  `json:"decision"`
	Result   string  `json:"result"`
	Details  string  `json:"details,omitempty"`
	Fill     *Fill   `json:"fill,omitempty"`
}

// TradeLogEntry is one append-only ledger row.
type TradeLogEntry struct {
	ID        int64
	Symbol    string
	Decision  Action
	Amount    float64
	Timestamp time.Time
}
