package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Account modes. One running engine instance per mode; each mode gets its
// own ledger/audit database so real and virtual histories never mix.
const (
	ModeReal    = "REAL"
	ModeVirtual = "VIRTUAL"
)

// Trading rule systems
const (
	ModeManual = "manual" // fixed percentage thresholds
	ModeTurtle = "turtle" // ATR-multiple thresholds
)

// MaxPyramidingCount upper bound on additional tranches beyond the first
const MaxPyramidingCount = 6

// TradingConfig one per-user per-instrument auto-trading setup. Owned by
// the external config service (trading_configs.json) - read-only here.
type TradingConfig struct {
	ID                int       `json:"id,omitempty"`
	StockCode         string    `json:"stock_code"`
	StockName         string    `json:"stock_name"`
	TradingMode       string    `json:"trading_mode"` // "manual" or "turtle"
	MaxLoss           float64   `json:"max_loss"`     // % of equity risked per stop-out
	StopLoss          float64   `json:"stop_loss"`    // % (manual) or ATR multiplier (turtle)
	TakeProfit        float64   `json:"take_profit"`  // % (manual) or ATR multiplier (turtle)
	PyramidingCount   int       `json:"pyramiding_count"`
	EntryPoint        float64   `json:"entry_point"`        // absolute price for the first entry
	PyramidingEntries []string  `json:"pyramiding_entries"` // per-tranche thresholds, mode-dependent
	Positions         []float64 `json:"positions"`          // per-tranche sizing weights
	UserID            string    `json:"user_id,omitempty"`
	IsActive          bool      `json:"is_active"`
}

// ApplyDefaults fills unset fields and clamps out-of-range values. The
// upstream service validates on write, but the bot re-checks on read since
// the file can be edited by hand.
func (tc *TradingConfig) ApplyDefaults() {
	if tc.TradingMode == "" {
		tc.TradingMode = ModeManual
	}
	if tc.MaxLoss <= 0 {
		tc.MaxLoss = 2.0
	}
	if tc.PyramidingCount < 0 {
		tc.PyramidingCount = 0
	}
	if tc.PyramidingCount > MaxPyramidingCount {
		tc.PyramidingCount = MaxPyramidingCount
	}
}

// Validate rejects configs the evaluator cannot act on safely
func (tc *TradingConfig) Validate() error {
	if tc.StockCode == "" {
		return fmt.Errorf("stock_code cannot be empty")
	}
	if tc.TradingMode != ModeManual && tc.TradingMode != ModeTurtle {
		return fmt.Errorf("[%s] trading_mode must be 'manual' or 'turtle', got %q", tc.StockCode, tc.TradingMode)
	}
	if tc.StopLoss < 0 {
		return fmt.Errorf("[%s] stop_loss cannot be negative", tc.StockCode)
	}
	return nil
}

// LoadTradingConfigs reads the external config store and returns only the
// active configs, in file order
func LoadTradingConfigs(path string) ([]TradingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trading configs: %w", err)
	}

	var all []TradingConfig
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse trading configs: %w", err)
	}

	var active []TradingConfig
	for i := range all {
		if !all[i].IsActive {
			continue
		}
		all[i].ApplyDefaults()
		if err := all[i].Validate(); err != nil {
			return nil, err
		}
		active = append(active, all[i])
	}
	return active, nil
}

// AppConfig engine-level configuration (config.json)
type AppConfig struct {
	// Account mode: "REAL" or "VIRTUAL"
	Mode string `json:"mode"`

	// Gateway selection: "kis", "binance" or "paper"
	Gateway string `json:"gateway"`

	// KIS open API credentials
	KISAppKey      string `json:"kis_app_key,omitempty"`
	KISAppSecret   string `json:"kis_app_secret,omitempty"`
	KISAccountNo   string `json:"kis_account_no,omitempty"`   // e.g. "12345678"
	KISProductCode string `json:"kis_product_code,omitempty"` // usually "01"

	// Binance credentials (crypto accounts)
	BinanceAPIKey    string `json:"binance_api_key,omitempty"`
	BinanceSecretKey string `json:"binance_secret_key,omitempty"`

	// Paper gateway starting cash (VIRTUAL mode without a brokerage)
	PaperInitialBalance float64 `json:"paper_initial_balance,omitempty"`

	// Telegram notifications (optional; alerts are skipped when unset)
	TelegramBotToken string `json:"telegram_bot_token,omitempty"`
	TelegramChatID   string `json:"telegram_chat_id,omitempty"`

	// Path to the external config store file
	TradingConfigsFile string `json:"trading_configs_file"`

	// Directory for the per-mode SQLite databases
	DataDir string `json:"data_dir"`

	// Courtesy delay between per-instrument evaluations (seconds)
	InstrumentDelaySeconds float64 `json:"instrument_delay_seconds"`

	// Market session gate. Disable for 24/7 venues (binance gateway).
	SessionGateEnabled *bool `json:"session_gate_enabled,omitempty"`

	// Reporting API port (only used with -serve)
	APIServerPort int `json:"api_server_port"`
}

// Load reads config.json, applies env-var overrides for secrets and
// validates the result
func Load(filename string) (*AppConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets secrets come from the environment (.env) instead
// of sitting in config.json
func (c *AppConfig) applyEnvOverrides() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.KISAppKey, "KIS_APP_KEY")
	override(&c.KISAppSecret, "KIS_APP_SECRET")
	override(&c.KISAccountNo, "KIS_ACCOUNT_NO")
	override(&c.BinanceAPIKey, "BINANCE_API_KEY")
	override(&c.BinanceSecretKey, "BINANCE_SECRET_KEY")
	override(&c.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	override(&c.TelegramChatID, "TELEGRAM_CHAT_ID")
}

// Validate validates configuration validity and fills defaults
func (c *AppConfig) Validate() error {
	c.Mode = strings.ToUpper(c.Mode)
	if c.Mode == "" {
		c.Mode = ModeVirtual
	}
	if c.Mode != ModeReal && c.Mode != ModeVirtual {
		return fmt.Errorf("mode must be 'REAL' or 'VIRTUAL', got %q", c.Mode)
	}

	if c.Gateway == "" {
		c.Gateway = "paper"
	}
	switch c.Gateway {
	case "kis":
		if c.KISAppKey == "" || c.KISAppSecret == "" || c.KISAccountNo == "" {
			return fmt.Errorf("kis_app_key, kis_app_secret and kis_account_no must be configured when using the KIS gateway")
		}
		if c.KISProductCode == "" {
			c.KISProductCode = "01"
		}
	case "binance":
		if c.BinanceAPIKey == "" || c.BinanceSecretKey == "" {
			return fmt.Errorf("binance_api_key and binance_secret_key must be configured when using the Binance gateway")
		}
	case "paper":
		if c.PaperInitialBalance <= 0 {
			c.PaperInitialBalance = 10_000_000
		}
	default:
		return fmt.Errorf("gateway must be 'kis', 'binance' or 'paper', got %q", c.Gateway)
	}

	if c.TradingConfigsFile == "" {
		c.TradingConfigsFile = "trading_configs.json"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.InstrumentDelaySeconds <= 0 {
		c.InstrumentDelaySeconds = 2.0
	}
	if c.SessionGateEnabled == nil {
		// Binance trades around the clock; the KRX gate only makes sense
		// for the stock gateways
		enabled := c.Gateway != "binance"
		c.SessionGateEnabled = &enabled
	}
	if c.APIServerPort <= 0 {
		c.APIServerPort = 8080
	}
	return nil
}

// InstrumentDelay courtesy pause between per-instrument evaluations
func (c *AppConfig) InstrumentDelay() time.Duration {
	return time.Duration(c.InstrumentDelaySeconds * float64(time.Second))
}

// SessionGate reports whether the market-hours gate is active
func (c *AppConfig) SessionGate() bool {
	return c.SessionGateEnabled != nil && *c.SessionGateEnabled
}
