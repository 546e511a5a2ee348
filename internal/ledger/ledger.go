// Package ledger is the append-only trade audit log backed by sqlite.
// Rows are only ever read in aggregate, for the day-trade-limit query.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradeloop/internal/models"
)

const schemaVersion = 1

// The pattern-day-trade threshold: symbols traded this many times in
// the trailing window are flagged.
const dayTradeThreshold = 3

// Ledger owns the sqlite handle. Open it at process start and close it
// at process end; it is injected wherever trades are written or read.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the ledger database and runs migrations.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	l := &Ledger{db: db, path: path}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// migrate brings the schema to the current version. A legacy table
// without the amount column is renamed aside rather than dropped, so
// no history is lost on a schema change.
func (l *Ledger) migrate() error {
	if _, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var version int
	err := l.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= schemaVersion {
		return nil
	}

	legacy, err := l.hasLegacyTable()
	if err != nil {
		return err
	}
	if legacy {
		aside := fmt.Sprintf("trading_logs_legacy_%s", time.Now().Format("20060102_150405"))
		if _, err := l.db.Exec(fmt.Sprintf(`ALTER TABLE trading_logs RENAME TO %s`, aside)); err != nil {
			return fmt.Errorf("preserve legacy table: %w", err)
		}
	}

	if _, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS trading_logs (
		id INTEGER PRIMARY KEY,
		symbol TEXT,
		decision TEXT,
		amount REAL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create trading_logs: %w", err)
	}

	if _, err := l.db.Exec(`DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("reset schema version: %w", err)
	}
	if _, err := l.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// hasLegacyTable reports whether trading_logs exists without an amount
// column (the pre-versioning schema).
func (l *Ledger) hasLegacyTable() (bool, error) {
	rows, err := l.db.Query(`PRAGMA table_info(trading_logs)`)
	if err != nil {
		return false, fmt.Errorf("inspect trading_logs: %w", err)
	}
	defer rows.Close()

	exists := false
	hasAmount := false
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		exists = true
		if name == "amount" {
			hasAmount = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return exists && !hasAmount, nil
}

// LogTrade appends one executed trade.
func (l *Ledger) LogTrade(ctx context.Context, symbol string, decision models.Action, amount float64) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO trading_logs (symbol, decision, amount) VALUES (?, ?, ?)`,
		symbol, string(decision), amount)
	if err != nil {
		return fmt.Errorf("log trade %s: %w", symbol, err)
	}
	return nil
}

// SymbolsAtDayTradeLimit returns symbols traded at least three times on
// weekdays within the trailing 7 calendar days (covering 5 trading
// days). These are at or over the pattern-day-trade threshold.
func (l *Ledger) SymbolsAtDayTradeLimit(ctx context.Context) ([]string, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -7).Format("2006-01-02 15:04:05")

	rows, err := l.db.QueryContext(ctx, `
	SELECT symbol, COUNT(*) AS trade_count
	FROM trading_logs
	WHERE timestamp > ?
	  AND strftime('%w', timestamp) NOT IN ('0', '6')
	GROUP BY symbol
	HAVING trade_count >= ?`, cutoff, dayTradeThreshold)
	if err != nil {
		return nil, fmt.Errorf("day trade query: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		var count int
		if err := rows.Scan(&symbol, &count); err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// Recent returns the newest ledger rows, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]models.TradeLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `
	SELECT id, symbol, decision, amount, timestamp
	FROM trading_logs
	ORDER BY id DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}
	defer rows.Close()

	var entries []models.TradeLogEntry
	for rows.Next() {
		var (
			entry    models.TradeLogEntry
			decision string
		)
		if err := rows.Scan(&entry.ID, &entry.Symbol, &decision, &entry.Amount, &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.Decision = models.Action(decision)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
