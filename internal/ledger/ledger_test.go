package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradeloop/internal/models"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	l, err := Open(filepath.Join(t.TempDir(), "trading_logs.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	return l
}

// insertAt writes a row with an explicit timestamp, bypassing the
// CURRENT_TIMESTAMP default.
func insertAt(t *testing.T, l *Ledger, symbol string, decision models.Action, amount float64, ts time.Time) {
	t.Helper()

	_, err := l.db.Exec(
		`INSERT INTO trading_logs (symbol, decision, amount, timestamp) VALUES (?, ?, ?, ?)`,
		symbol, string(decision), amount, ts.UTC().Format("2006-01-02 15:04:05"))
	assert.NoError(t, err)
}

// recentWeekdays returns the n most recent weekdays before now,
// at noon UTC.
func recentWeekdays(n int) []time.Time {
	var days []time.Time
	day := time.Now().UTC().Truncate(24 * time.Hour).Add(12 * time.Hour)
	for len(days) < n {
		day = day.AddDate(0, 0, -1)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		days = append(days, day)
	}
	return days
}

func TestLogTradeAndRecent(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()

	assert.NoError(t, l.LogTrade(ctx, "AAPL", models.ActionBuy, 500.50))
	assert.NoError(t, l.LogTrade(ctx, "MSFT", models.ActionSell, 1300))

	entries, err := l.Recent(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "MSFT", entries[0].Symbol)
	assert.Equal(t, models.ActionSell, entries[0].Decision)
	assert.Equal(t, 1300.0, entries[0].Amount)
	assert.Equal(t, "AAPL", entries[1].Symbol)
}

func TestSymbolsAtDayTradeLimit(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	days := recentWeekdays(4)

	// Three weekday trades inside the window trip the limit.
	insertAt(t, l, "TSLA", models.ActionBuy, 100, days[0])
	insertAt(t, l, "TSLA", models.ActionSell, 100, days[1])
	insertAt(t, l, "TSLA", models.ActionBuy, 100, days[2])

	// Two trades stay under it.
	insertAt(t, l, "AAPL", models.ActionBuy, 100, days[0])
	insertAt(t, l, "AAPL", models.ActionSell, 100, days[1])

	symbols, err := l.SymbolsAtDayTradeLimit(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"TSLA"}, symbols)
}

// recentWeekendDay returns the most recent Saturday or Sunday, at noon
// UTC. The trailing 7-day window always contains one.
func recentWeekendDay() time.Time {
	day := time.Now().UTC().Truncate(24 * time.Hour).Add(12 * time.Hour)
	for {
		day = day.AddDate(0, 0, -1)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return day
		}
	}
}

func TestSymbolsAtDayTradeLimitExcludesWeekendRows(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	days := recentWeekdays(2)

	// Two weekday trades plus one weekend-dated trade: the weekend row
	// does not count toward the threshold.
	insertAt(t, l, "TSLA", models.ActionBuy, 100, days[0])
	insertAt(t, l, "TSLA", models.ActionSell, 100, days[1])
	insertAt(t, l, "TSLA", models.ActionBuy, 100, recentWeekendDay())

	symbols, err := l.SymbolsAtDayTradeLimit(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestSymbolsAtDayTradeLimitIgnoresOldTrades(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	old := time.Now().UTC().AddDate(0, 0, -30)
	for i := 0; i < 5; i++ {
		insertAt(t, l, "NVDA", models.ActionBuy, 100, old.AddDate(0, 0, i))
	}

	symbols, err := l.SymbolsAtDayTradeLimit(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestMigratePreservesLegacyTable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trading_logs.db")

	// Seed a pre-versioning schema without the amount column.
	db, err := sql.Open("sqlite3", path)
	assert.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE trading_logs (
		id INTEGER PRIMARY KEY,
		symbol TEXT,
		decision TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	assert.NoError(t, err)
	_, err = db.Exec(`INSERT INTO trading_logs (symbol, decision) VALUES ('AAPL', 'buy')`)
	assert.NoError(t, err)
	assert.NoError(t, db.Close())

	l, err := Open(path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	// The new schema is live.
	assert.NoError(t, l.LogTrade(context.Background(), "MSFT", models.ActionSell, 200))

	// The legacy rows still exist under the renamed table.
	var legacyCount int
	err = l.db.QueryRow(`
	SELECT COUNT(*) FROM sqlite_master
	WHERE type='table' AND name LIKE 'trading_logs_legacy_%'`).Scan(&legacyCount)
	assert.NoError(t, err)
	assert.Equal(t, 1, legacyCount)
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trading_logs.db")

	l, err := Open(path)
	assert.NoError(t, err)
	assert.NoError(t, l.LogTrade(context.Background(), "AAPL", models.ActionBuy, 100))
	assert.NoError(t, l.Close())

	// Reopening a current-version ledger must not touch the data.
	l, err = Open(path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	entries, err := l.Recent(context.Background(), 10)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecentRespectsLimit(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.NoError(t, l.LogTrade(ctx, fmt.Sprintf("SYM%d", i), models.ActionBuy, float64(i)))
	}

	entries, err := l.Recent(ctx, 3)
	assert.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, "SYM4", entries[0].Symbol)
}
