package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Trading modes.
const (
	ModePaper = "paper"
	ModeLive  = "live"
	ModeDemo  = "demo"
)

// Config holds every knob of the trading loop. Defaults are overridden
// by environment variables (a .env file is honored via godotenv).
type Config struct {
	ProjectDir string `json:"project_dir"`
	DataDir    string `json:"data_dir"`

	LogLevel string `json:"log_level"`

	TradingMode       string        `json:"trading_mode"`
	RunInterval       time.Duration `json:"run_interval"`
	RetryInterval     time.Duration `json:"retry_interval"`
	BypassMarketHours bool          `json:"bypass_market_hours"`

	AlpacaAPIKey    string `json:"-"`
	AlpacaSecretKey string `json:"-"`

	WatchlistFile          string   `json:"watchlist_file"`
	WatchlistNames         []string `json:"watchlist_names"`
	WatchlistOverviewLimit int      `json:"watchlist_overview_limit"`

	PortfolioLimit  int      `json:"portfolio_limit"`
	TradeExceptions []string `json:"trade_exceptions"`

	// Notional bounds in USD. Zero disables the bound.
	MinBuyUSD  float64 `json:"min_buy_usd"`
	MaxBuyUSD  float64 `json:"max_buy_usd"`
	MinSellUSD float64 `json:"min_sell_usd"`
	MaxSellUSD float64 `json:"max_sell_usd"`

	PDTProtection bool `json:"pdt_protection"`
	ConfirmOrders bool `json:"confirm_orders"`

	MaxAdjustmentRounds int `json:"max_adjustment_rounds"`

	LLMProvider    string `json:"llm_provider"`
	LLMModel       string `json:"llm_model"`
	OpenAIAPIKey   string `json:"-"`
	DeepSeekAPIKey string `json:"-"`

	LedgerPath      string        `json:"ledger_path"`
	BackupEnabled   bool          `json:"backup_enabled"`
	BackupRetention time.Duration `json:"backup_retention"`

	EnrichComprehensive bool `json:"enrich_comprehensive"`
}

// DefaultConfig returns the baseline configuration with environment
// overrides applied.
func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := &Config{
		ProjectDir: currentDir,
		DataDir:    filepath.Join(currentDir, "data"),

		LogLevel: "info",

		TradingMode:       ModePaper,
		RunInterval:       10 * time.Minute,
		RetryInterval:     time.Minute,
		BypassMarketHours: false,

		WatchlistFile:          filepath.Join(currentDir, "watchlists.json"),
		WatchlistNames:         []string{"Primary"},
		WatchlistOverviewLimit: 20,

		PortfolioLimit: 12,

		MinBuyUSD:  1,
		MaxBuyUSD:  10000,
		MinSellUSD: 1,
		MaxSellUSD: 10000,

		PDTProtection: false,
		ConfirmOrders: false,

		MaxAdjustmentRounds: 0,

		LLMProvider: "openai",
		LLMModel:    "gpt-4o",

		LedgerPath:      filepath.Join(currentDir, "data", "trading_logs.db"),
		BackupEnabled:   true,
		BackupRetention: 24 * time.Hour,

		EnrichComprehensive: false,
	}

	_ = godotenv.Load()
	cfg.loadFromEnv()

	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = strings.ToLower(val)
	}
	if val := os.Getenv("TRADING_MODE"); val != "" {
		c.TradingMode = strings.ToLower(val)
	}
	if val := os.Getenv("RUN_INTERVAL_SECONDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil && v > 0 {
			c.RunInterval = time.Duration(v) * time.Second
		}
	}
	if val := os.Getenv("RETRY_INTERVAL_SECONDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil && v > 0 {
			c.RetryInterval = time.Duration(v) * time.Second
		}
	}
	if val := os.Getenv("BYPASS_MARKET_HOURS"); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			c.BypassMarketHours = v
		}
	}

	if val := os.Getenv("ALPACA_API_KEY"); val != "" {
		c.AlpacaAPIKey = val
	}
	if val := os.Getenv("ALPACA_SECRET_KEY"); val != "" {
		c.AlpacaSecretKey = val
	}

	if val := os.Getenv("WATCHLIST_FILE"); val != "" {
		c.WatchlistFile = val
	}
	if val := os.Getenv("WATCHLIST_NAMES"); val != "" {
		c.WatchlistNames = splitList(val)
	}
	if val := os.Getenv("WATCHLIST_OVERVIEW_LIMIT"); val != "" {
		if v, err := strconv.Atoi(val); err == nil && v > 0 {
			c.WatchlistOverviewLimit = v
		}
	}

	if val := os.Getenv("PORTFOLIO_LIMIT"); val != "" {
		if v, err := strconv.Atoi(val); err == nil && v > 0 {
			c.PortfolioLimit = v
		}
	}
	if val := os.Getenv("TRADE_EXCEPTIONS"); val != "" {
		c.TradeExceptions = splitList(val)
	}

	if val := os.Getenv("MIN_BUY_USD"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.MinBuyUSD = v
		}
	}
	if val := os.Getenv("MAX_BUY_USD"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.MaxBuyUSD = v
		}
	}
	if val := os.Getenv("MIN_SELL_USD"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.MinSellUSD = v
		}
	}
	if val := os.Getenv("MAX_SELL_USD"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.MaxSellUSD = v
		}
	}

	if val := os.Getenv("PDT_PROTECTION"); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			c.PDTProtection = v
		}
	}
	if val := os.Getenv("CONFIRM_ORDERS"); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			c.ConfirmOrders = v
		}
	}
	if val := os.Getenv("MAX_ADJUSTMENT_ROUNDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil && v >= 0 {
			c.MaxAdjustmentRounds = v
		}
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = strings.ToLower(val)
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.LLMModel = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}

	if val := os.Getenv("LEDGER_PATH"); val != "" {
		c.LedgerPath = val
	}
	if val := os.Getenv("BACKUP_ENABLED"); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			c.BackupEnabled = v
		}
	}
	if val := os.Getenv("BACKUP_RETENTION_HOURS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil && v > 0 {
			c.BackupRetention = time.Duration(v) * time.Hour
		}
	}

	if val := os.Getenv("ENRICH_COMPREHENSIVE"); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			c.EnrichComprehensive = v
		}
	}
}

// Validate checks the parts of the configuration that would otherwise
// fail deep inside a cycle.
func (c *Config) Validate() error {
	switch c.TradingMode {
	case ModePaper, ModeLive, ModeDemo:
	default:
		return fmt.Errorf("unknown trading mode %q", c.TradingMode)
	}

	if c.TradingMode != ModeDemo {
		if c.AlpacaAPIKey == "" || c.AlpacaSecretKey == "" {
			return fmt.Errorf("ALPACA_API_KEY and ALPACA_SECRET_KEY are required in %s mode", c.TradingMode)
		}
	}

	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	case "deepseek":
		if c.DeepSeekAPIKey == "" {
			return fmt.Errorf("DEEPSEEK_API_KEY is required for the deepseek provider")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLMProvider)
	}

	if c.MinBuyUSD > 0 && c.MaxBuyUSD > 0 && c.MinBuyUSD > c.MaxBuyUSD {
		return fmt.Errorf("MIN_BUY_USD (%v) exceeds MAX_BUY_USD (%v)", c.MinBuyUSD, c.MaxBuyUSD)
	}
	if c.MinSellUSD > 0 && c.MaxSellUSD > 0 && c.MinSellUSD > c.MaxSellUSD {
		return fmt.Errorf("MIN_SELL_USD (%v) exceeds MAX_SELL_USD (%v)", c.MinSellUSD, c.MaxSellUSD)
	}

	return nil
}

// EnsureDirectories creates the data directories the process writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, filepath.Dir(c.LedgerPath)}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
