package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"tradeloop/internal/models"
)

const (
	paperBaseURL = "https://paper-api.alpaca.markets"
	liveBaseURL  = "https://api.alpaca.markets"
)

// AlpacaClient talks to the Alpaca trading REST API.
type AlpacaClient struct {
	client *resty.Client
}

// NewAlpacaClient builds a client against the paper or live endpoint.
func NewAlpacaClient(apiKey, secretKey string, paper bool) *AlpacaClient {
	baseURL := liveBaseURL
	if paper {
		baseURL = paperBaseURL
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("APCA-API-KEY-ID", apiKey)
	client.SetHeader("APCA-API-SECRET-KEY", secretKey)

	return &AlpacaClient{client: client}
}

// Wire formats. Alpaca serializes all monetary fields as strings.

type alpacaPosition struct {
	Symbol         string `json:"symbol"`
	Qty            string `json:"qty"`
	AvgEntryPrice  string `json:"avg_entry_price"`
	CurrentPrice   string `json:"current_price"`
	MarketValue    string `json:"market_value"`
	UnrealizedPL   string `json:"unrealized_pl"`
	UnrealizedPLPC string `json:"unrealized_plpc"`
}

type alpacaOrder struct {
	ID             string     `json:"id"`
	Symbol         string     `json:"symbol"`
	Side           string     `json:"side"`
	Type           string     `json:"type"`
	Notional       *string    `json:"notional"`
	Qty            *string    `json:"qty"`
	FilledQty      string     `json:"filled_qty"`
	FilledAvgPrice *string    `json:"filled_avg_price"`
	Status         string     `json:"status"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	FilledAt       *time.Time `json:"filled_at"`
	ExpiredAt      *time.Time `json:"expired_at"`
	CanceledAt     *time.Time `json:"canceled_at"`
	FailedAt       *time.Time `json:"failed_at"`
	ReplacedAt     *time.Time `json:"replaced_at"`
	ReplacedBy     *string    `json:"replaced_by"`
}

type alpacaAccount struct {
	BuyingPower       string `json:"buying_power"`
	PortfolioValue    string `json:"portfolio_value"`
	Cash              string `json:"cash"`
	DaytradeCount     int    `json:"daytrade_count"`
	LastEquity        string `json:"last_equity"`
	InitialMargin     string `json:"initial_margin"`
	MaintenanceMargin string `json:"maintenance_margin"`
	PatternDayTrader  bool   `json:"pattern_day_trader"`
}

type alpacaError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseDecPtr(s *string) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	return parseDec(*s)
}

func apiErr(op string, resp *resty.Response) error {
	var ae alpacaError
	if err := json.Unmarshal(resp.Body(), &ae); err == nil && ae.Message != "" {
		return fmt.Errorf("%s: alpaca %d: %s", op, resp.StatusCode(), ae.Message)
	}
	return fmt.Errorf("%s: alpaca %d: %s", op, resp.StatusCode(), resp.String())
}

func (p alpacaPosition) toModel() models.Position {
	return models.Position{
		Symbol:        p.Symbol,
		Quantity:      parseDec(p.Qty),
		AvgEntryPrice: parseDec(p.AvgEntryPrice),
		CurrentPrice:  parseDec(p.CurrentPrice),
		MarketValue:   parseDec(p.MarketValue),
		UnrealizedPL:  parseDec(p.UnrealizedPL),
		// Alpaca reports the fraction; the overview wants percent.
		UnrealizedPLPC: parseDec(p.UnrealizedPLPC).Mul(decimal.NewFromInt(100)),
	}
}

func (o alpacaOrder) toModel() models.OpenOrder {
	filledNotional := decimal.Zero
	if o.FilledAvgPrice != nil {
		filledNotional = parseDec(o.FilledQty).Mul(parseDecPtr(o.FilledAvgPrice))
	}

	replacedBy := ""
	if o.ReplacedBy != nil {
		replacedBy = *o.ReplacedBy
	}

	return models.OpenOrder{
		ID:             o.ID,
		Symbol:         o.Symbol,
		Side:           models.Side(o.Side),
		Type:           o.Type,
		Notional:       parseDecPtr(o.Notional),
		FilledNotional: filledNotional,
		Status:         o.Status,
		SubmittedAt:    o.SubmittedAt,
		FilledAt:       o.FilledAt,
		ExpiredAt:      o.ExpiredAt,
		CanceledAt:     o.CanceledAt,
		FailedAt:       o.FailedAt,
		ReplacedAt:     o.ReplacedAt,
		ReplacedBy:     replacedBy,
	}
}

// ListPositions returns every open position in the account.
func (a *AlpacaClient) ListPositions(ctx context.Context) ([]models.Position, error) {
	resp, err := a.client.R().SetContext(ctx).Get("/v2/positions")
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiErr("list positions", resp)
	}

	var raw []alpacaPosition
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("list positions: decode: %w", err)
	}

	positions := make([]models.Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, p.toModel())
	}
	return positions, nil
}

// GetPosition returns the open position for one symbol, or ErrNoPosition.
func (a *AlpacaClient) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	resp, err := a.client.R().SetContext(ctx).Get("/v2/positions/" + symbol)
	if err != nil {
		return models.Position{}, fmt.Errorf("get position %s: %w", symbol, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return models.Position{}, fmt.Errorf("get position %s: %w", symbol, ErrNoPosition)
	}
	if resp.StatusCode() != http.StatusOK {
		return models.Position{}, apiErr("get position "+symbol, resp)
	}

	var raw alpacaPosition
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return models.Position{}, fmt.Errorf("get position %s: decode: %w", symbol, err)
	}
	return raw.toModel(), nil
}

// OpenOrders returns open orders keyed by symbol. When a symbol has
// several open orders the most recently submitted one wins.
func (a *AlpacaClient) OpenOrders(ctx context.Context) (map[string]models.OpenOrder, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("status", "open").
		Get("/v2/orders")
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiErr("open orders", resp)
	}

	var raw []alpacaOrder
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("open orders: decode: %w", err)
	}

	orders := make(map[string]models.OpenOrder, len(raw))
	for _, o := range raw {
		existing, ok := orders[o.Symbol]
		if ok && existing.SubmittedAt.After(o.SubmittedAt) {
			continue
		}
		orders[o.Symbol] = o.toModel()
	}
	return orders, nil
}

// GetAccount returns the account snapshot including the open-order map.
func (a *AlpacaClient) GetAccount(ctx context.Context) (models.AccountSnapshot, error) {
	resp, err := a.client.R().SetContext(ctx).Get("/v2/account")
	if err != nil {
		return models.AccountSnapshot{}, fmt.Errorf("get account: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return models.AccountSnapshot{}, apiErr("get account", resp)
	}

	var raw alpacaAccount
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return models.AccountSnapshot{}, fmt.Errorf("get account: decode: %w", err)
	}

	orders, err := a.OpenOrders(ctx)
	if err != nil {
		return models.AccountSnapshot{}, err
	}

	return models.AccountSnapshot{
		BuyingPower:       parseDec(raw.BuyingPower).Round(2),
		PortfolioValue:    parseDec(raw.PortfolioValue).Round(2),
		Cash:              parseDec(raw.Cash).Round(2),
		DaytradeCount:     raw.DaytradeCount,
		LastEquity:        parseDec(raw.LastEquity).Round(2),
		InitialMargin:     parseDec(raw.InitialMargin).Round(2),
		MaintenanceMargin: parseDec(raw.MaintenanceMargin).Round(2),
		PatternDayTrader:  raw.PatternDayTrader,
		OpenOrders:        orders,
	}, nil
}

// SubmitMarketOrder places a notional-sized market order with day validity.
func (a *AlpacaClient) SubmitMarketOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	body := map[string]any{
		"symbol":        req.Symbol,
		"notional":      req.Notional.StringFixed(2),
		"side":          string(req.Side),
		"type":          "market",
		"time_in_force": "day",
	}
	if req.ClientOrderID != "" {
		body["client_order_id"] = req.ClientOrderID
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/v2/orders")
	if err != nil {
		return OrderAck{}, fmt.Errorf("submit %s %s: %w", req.Side, req.Symbol, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return OrderAck{}, apiErr(fmt.Sprintf("submit %s %s", req.Side, req.Symbol), resp)
	}

	var raw alpacaOrder
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return OrderAck{}, fmt.Errorf("submit %s %s: decode: %w", req.Side, req.Symbol, err)
	}

	var qty decimal.Decimal
	if raw.Qty != nil {
		qty = parseDecPtr(raw.Qty)
	} else {
		qty = parseDec(raw.FilledQty)
	}

	return OrderAck{
		ID:             raw.ID,
		Symbol:         raw.Symbol,
		Qty:            qty,
		FilledAvgPrice: parseDecPtr(raw.FilledAvgPrice),
	}, nil
}
