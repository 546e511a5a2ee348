package scheduler

import (
	"fmt"
	"time"
)

// Regular session bounds in minutes after midnight, exchange time.
const (
	sessionOpen  = 9*60 + 30
	sessionClose = 16 * 60
)

// MarketClock answers whether the US equity market's regular session is
// in progress. Extended hours count as closed.
type MarketClock struct {
	loc *time.Location
}

// NewMarketClock loads the exchange time zone.
func NewMarketClock() (*MarketClock, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("load exchange time zone: %w", err)
	}
	return &MarketClock{loc: loc}, nil
}

// Open reports whether t falls inside the regular session: weekdays,
// 09:30 inclusive to 16:00 exclusive, exchange time. Exchange holidays
// are not modeled; the brokerage rejects orders on those days.
func (c *MarketClock) Open(t time.Time) bool {
	local := t.In(c.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	return minutes >= sessionOpen && minutes < sessionClose
}
