// Package decision turns portfolio and watchlist snapshots into typed
// buy/sell/hold decisions by prompting a large-language model.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradeloop/internal/config"
	"tradeloop/internal/models"
)

// DayTradeSource reports symbols at the pattern-day-trade threshold.
// It is only consulted when PDT protection is enabled.
type DayTradeSource interface {
	SymbolsAtDayTradeLimit(ctx context.Context) ([]string, error)
}

// Engine builds bounded prompts, invokes the decision model and parses
// the response. One engine serves both the initial decision round and
// the post-execution adjustment rounds.
type Engine struct {
	model     Completer
	cfg       *config.Config
	dayTrades DayTradeSource
	log       *zap.Logger
}

// NewEngine wires the decision engine.
func NewEngine(model Completer, cfg *config.Config, dayTrades DayTradeSource, log *zap.Logger) *Engine {
	return &Engine{model: model, cfg: cfg, dayTrades: dayTrades, log: log}
}

// Decide asks the model for buy/sell/hold decisions over the portfolio
// and watchlist overviews.
func (e *Engine) Decide(ctx context.Context, buyingPower decimal.Decimal, portfolio, watchlist map[string]models.StockOverview) ([]models.Decision, error) {
	var b strings.Builder

	b.WriteString("**Decision-Making AI Prompt:**\n\n")
	b.WriteString("**Context:**\n")
	fmt.Fprintf(&b, "You are an investment advisor managing a stock portfolio and watchlist. Every %d seconds, you analyze market conditions to make informed investment decisions.\n\n",
		int(e.cfg.RunInterval.Seconds()))
	b.WriteString("**Task:**\n")
	b.WriteString("Analyze the provided portfolio and watchlist data to recommend:\n")
	b.WriteString("1. Stocks to sell, prioritizing those that maximize buying power and profit potential.\n")
	b.WriteString("2. Stocks to buy that align with available funds and current market conditions.\n")
	b.WriteString("3. Consider existing open orders and unrealized P/L when making decisions.\n\n")
	b.WriteString("**Important Considerations:**\n")
	b.WriteString("- DO NOT make new orders for stocks that have pending orders (check 'open_order' field)\n")
	b.WriteString("- If a stock has a pending BUY order, do not place another buy order\n")
	b.WriteString("- If a stock has a pending SELL order, do not place another sell order\n")
	b.WriteString("- Consider unrealized P/L and P/L percentage when deciding to take profits or cut losses\n")
	b.WriteString("- Current value and unrealized P/L can help determine position sizing\n")
	b.WriteString("- Pending orders may show $0.00 or small amounts if placed after hours\n\n")
	b.WriteString("**Constraints:**\n")
	b.WriteString(strings.Join(e.constraints(ctx, buyingPower), "\n"))
	b.WriteString("\n\n")
	b.WriteString("**Portfolio Overview:**\n")
	b.WriteString(renderJSON(portfolio))
	b.WriteString("\n\n")
	b.WriteString("**Watchlist Overview:**\n")
	b.WriteString(renderJSON(watchlist))
	b.WriteString("\n\n")
	b.WriteString(responseFormat)
	b.WriteString("- IMPORTANT: Skip ANY stock that already has a pending order, regardless of the order amount.")

	return e.invoke(ctx, "decide", b.String())
}

// Adjust re-prompts the model with the just-executed outcomes, asking
// it to reorder sells ahead of buys to free buying power. Each call is
// independent; only the textual results summary carries over.
func (e *Engine) Adjust(ctx context.Context, buyingPower decimal.Decimal, results map[string]models.ExecutionResult) ([]models.Decision, error) {
	var b strings.Builder

	b.WriteString("**Post-Decision Adjustments AI Prompt:**\n\n")
	b.WriteString("**Context:**\n")
	b.WriteString("You are an investment advisor tasked with reviewing and adjusting prior trading decisions. Your goal is to optimize buying power and profit potential by analyzing trading results and making necessary changes.\n\n")
	b.WriteString("**Task:**\n")
	b.WriteString("1. Review previous trading outcomes and resolve any errors.\n")
	b.WriteString("2. Reorder and adjust sell decisions to enhance buying power.\n")
	b.WriteString("3. Update buy recommendations based on the newly available buying power.\n\n")
	b.WriteString("**Constraints:**\n")
	b.WriteString(strings.Join(e.constraints(ctx, buyingPower), "\n"))
	b.WriteString("\n\n")
	b.WriteString("**Trading Results:**\n")
	b.WriteString(renderJSON(results))
	b.WriteString("\n\n")
	b.WriteString(responseFormat)

	return e.invoke(ctx, "adjust", b.String())
}

const responseFormat = "**Response Format:**\n" +
	"Return your decisions in a JSON array with this structure:\n" +
	"```json\n" +
	"[\n" +
	"  {\"symbol\": \"<symbol>\", \"decision\": \"<decision>\", \"amount\": <dollar_amount>},\n" +
	"  ...\n" +
	"]\n" +
	"```\n" +
	"- `symbol`: Stock ticker symbol.\n" +
	"- `decision`: One of `buy`, `sell`, or `hold`.\n" +
	"- `amount`: Dollar amount to trade (e.g. 500.50 for $500.50).\n\n" +
	"**Instructions:**\n" +
	"- Provide only the JSON output with no additional text.\n" +
	"- Return an empty array if no actions are necessary.\n" +
	"- Specify amounts in USD (e.g. 500.50 for $500.50).\n" +
	"- Fractional shares are supported, so exact dollar amounts can be used.\n"

func (e *Engine) invoke(ctx context.Context, round, prompt string) ([]models.Decision, error) {
	e.log.Debug("decision prompt", zap.String("round", round), zap.String("prompt", prompt))

	response, err := e.model.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s round: %w", round, err)
	}
	e.log.Debug("decision response", zap.String("round", round), zap.String("response", response))

	decisions, dropped, err := parseDecisions(response)
	if err != nil {
		return nil, err
	}
	for _, reason := range dropped {
		e.log.Warn("dropped decision entry", zap.String("round", round), zap.String("reason", reason))
	}
	return decisions, nil
}

// constraints renders the constraint block shared by both prompts.
func (e *Engine) constraints(ctx context.Context, buyingPower decimal.Decimal) []string {
	constraints := []string{
		fmt.Sprintf("- Maintain a portfolio size of fewer than %d stocks.", e.cfg.PortfolioLimit),
		fmt.Sprintf("- Total Buying Power: %s USD initially.", buyingPower.StringFixed(2)),
	}

	if sell := guidelines(e.cfg.MinSellUSD, e.cfg.MaxSellUSD); sell != "" {
		constraints = append(constraints, "- Sell Amounts Guidelines: "+sell)
	}
	if buy := guidelines(e.cfg.MinBuyUSD, e.cfg.MaxBuyUSD); buy != "" {
		constraints = append(constraints, "- Buy Amounts Guidelines: "+buy)
	}

	if e.cfg.PDTProtection && e.dayTrades != nil {
		symbols, err := e.dayTrades.SymbolsAtDayTradeLimit(ctx)
		if err != nil {
			e.log.Warn("day trade query failed", zap.Error(err))
		} else if len(symbols) > 0 {
			constraints = append(constraints, "- Stocks under PDT Limit: "+strings.Join(symbols, ", "))
		}
	}

	if len(e.cfg.TradeExceptions) > 0 {
		constraints = append(constraints,
			"- Trade Exceptions (exclude from trading in any decisions): "+strings.Join(e.cfg.TradeExceptions, ", "))
	}

	return constraints
}

// guidelines renders a "Minimum X USD, Maximum Y USD" fragment; zero
// bounds are disabled.
func guidelines(min, max float64) string {
	var parts []string
	if min > 0 {
		parts = append(parts, fmt.Sprintf("Minimum %g USD", min))
	}
	if max > 0 {
		parts = append(parts, fmt.Sprintf("Maximum %g USD", max))
	}
	return strings.Join(parts, ", ")
}

// renderJSON serializes a snapshot with sorted keys, fenced for the
// prompt. Maps marshal with ordered keys, keeping prompts stable.
func renderJSON(v any) string {
	data, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		return "```json\n{}\n```"
	}
	return "```json\n" + string(data) + "\n```"
}
