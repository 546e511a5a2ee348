// Package watchlist loads named watchlists from a JSON store and
// rotates a bounded slice of them into the analysis window.
package watchlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"tradeloop/internal/marketdata"
	"tradeloop/internal/models"
)

// ErrWatchlistNotFound marks a watchlist name missing from the store.
// The selector logs and skips it; it is never fatal to a cycle.
var ErrWatchlistNotFound = errors.New("watchlist not found")

// Stock is one watchlist entry with its last-fetched price.
type Stock struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price,omitempty"`
}

// Selector reads the watchlist store and produces the symbols to
// analyze this cycle.
type Selector struct {
	file     string
	names    []string
	limit    int
	provider marketdata.Provider
	log      *zap.Logger
	now      func() time.Time
}

// NewSelector wires a selector over the given JSON store file.
func NewSelector(file string, names []string, limit int, provider marketdata.Provider, log *zap.Logger) *Selector {
	return &Selector{
		file:     file,
		names:    names,
		limit:    limit,
		provider: provider,
		log:      log,
		now:      time.Now,
	}
}

// load reads the whole store. The file maps watchlist name to an
// ordered list of entries.
func (s *Selector) load() (map[string][]Stock, error) {
	data, err := os.ReadFile(s.file)
	if err != nil {
		return nil, fmt.Errorf("read watchlist store %s: %w", s.file, err)
	}

	var store map[string][]Stock
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("parse watchlist store %s: %w", s.file, err)
	}
	return store, nil
}

// Select returns the watchlist stocks for this cycle: concatenated in
// first-seen order, de-duplicated, limited to one monthly chunk, then
// stripped of symbols already held. Held filtering happens after
// chunking so the rotation always partitions the full list.
func (s *Selector) Select(ctx context.Context, held map[string]models.StockOverview) ([]Stock, error) {
	store, err := s.load()
	if err != nil {
		return nil, err
	}

	var stocks []Stock
	for _, name := range s.names {
		entries, ok := store[name]
		if !ok {
			s.log.Warn("skipping watchlist", zap.String("name", name),
				zap.Error(fmt.Errorf("%q: %w", name, ErrWatchlistNotFound)))
			continue
		}
		s.log.Debug("loaded watchlist", zap.String("name", name), zap.Int("stocks", len(entries)))
		stocks = append(stocks, entries...)
	}

	stocks = Dedupe(stocks)
	stocks = LimitForMonth(stocks, s.limit, s.now().Month())

	// Drop symbols already covered by the portfolio view.
	kept := stocks[:0]
	for _, stock := range stocks {
		if pos, ok := held[stock.Symbol]; ok && pos.Quantity != 0 {
			continue
		}
		kept = append(kept, stock)
	}
	stocks = kept

	for i := range stocks {
		price, err := s.provider.CurrentPrice(ctx, stocks[i].Symbol)
		if err != nil {
			s.log.Debug("watchlist price unavailable", zap.String("symbol", stocks[i].Symbol), zap.Error(err))
			continue
		}
		stocks[i].Price, _ = price.Round(2).Float64()
	}

	return stocks, nil
}

// Dedupe removes duplicate symbols preserving first-seen order.
func Dedupe(stocks []Stock) []Stock {
	seen := make(map[string]struct{}, len(stocks))
	out := stocks[:0]
	for _, stock := range stocks {
		if _, ok := seen[stock.Symbol]; ok {
			continue
		}
		seen[stock.Symbol] = struct{}{}
		out = append(out, stock)
	}
	return out
}

// LimitForMonth selects one contiguous chunk of at most limit stocks
// from the symbol-sorted list, indexed by the calendar month. Over
// ceil(n/limit) months every symbol rotates into view exactly once,
// without any persisted state.
func LimitForMonth(stocks []Stock, limit int, month time.Month) []Stock {
	if limit <= 0 || len(stocks) <= limit {
		return stocks
	}

	sorted := make([]Stock, len(stocks))
	copy(sorted, stocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	numParts := (len(sorted) + limit - 1) / limit
	part := (int(month) - 1) % numParts

	start := part * limit
	end := start + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[start:end]
}
