package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Exchange struct {
		APIKey         string `yaml:"api_key"`
		APISecret      string `yaml:"api_secret"`
		Testnet        bool   `yaml:"testnet"`
		Symbol         string `yaml:"symbol"`
		Interval       string `yaml:"interval"`
		Leverage       int    `yaml:"leverage"`
		QtyPrecision   int32  `yaml:"qty_precision"`
		PricePrecision int32  `yaml:"price_precision"`
	} `yaml:"exchange"`
	Strategy struct {
		RangeStartHour    int           `yaml:"range_start_hour"`
		RangeEndHour      int           `yaml:"range_end_hour"`
		MinRangeCandles   int           `yaml:"min_range_candles"`
		MinPostCandles    int           `yaml:"min_post_candles"`
		ATRPeriod         int           `yaml:"atr_period"`
		MinRewardMultiple float64       `yaml:"min_reward_multiple"`
		PostLookback      time.Duration `yaml:"post_lookback"`
	} `yaml:"strategy"`
	Risk struct {
		TargetRiskPct     float64 `yaml:"target_risk_pct"`
		MinRiskPct        float64 `yaml:"min_risk_pct"`
		MaxRiskPct        float64 `yaml:"max_risk_pct"`
		MinQty            float64 `yaml:"min_qty"`
		MinNotional       float64 `yaml:"min_notional"`
		NotionalBuffer    float64 `yaml:"notional_buffer"`
		MinStopPct        float64 `yaml:"min_stop_pct"`
		MaxMarginFraction float64 `yaml:"max_margin_fraction"`
		MinBalance        float64 `yaml:"min_balance"`
		MarginWarningPct  float64 `yaml:"margin_warning_pct"`
		MarginCriticalPct float64 `yaml:"margin_critical_pct"`
	} `yaml:"risk"`
	Model struct {
		Backend    string `yaml:"backend"` // onnx | linear
		Path       string `yaml:"path"`
		ORTLibrary string `yaml:"ort_library"`
		InputName  string `yaml:"input_name"`
		OutputName string `yaml:"output_name"`
	} `yaml:"model"`
	Retry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		BaseDelay   time.Duration `yaml:"base_delay"`
	} `yaml:"retry"`
	Schedule struct {
		ScanInterval   time.Duration `yaml:"scan_interval"`
		IdleInterval   time.Duration `yaml:"idle_interval"`
		PostTradeDelay time.Duration `yaml:"post_trade_delay"`
		SettleDelay    time.Duration `yaml:"settle_delay"`
		HeartbeatCron  string        `yaml:"heartbeat_cron"`
		StatusCron     string        `yaml:"status_cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	State struct {
		LedgerFile string `yaml:"ledger_file"`
	} `yaml:"state"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("BINANCE_TESTNET"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("parse BINANCE_TESTNET: %w", err)
		}
		cfg.Exchange.Testnet = b
	}
	if v := os.Getenv("SYMBOL"); v != "" {
		cfg.Exchange.Symbol = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		cfg.Model.Path = v
	}
	if v := os.Getenv("ORT_LIBRARY_PATH"); v != "" {
		cfg.Model.ORTLibrary = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LEDGER_FILE"); v != "" {
		cfg.State.LedgerFile = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	e := &c.Exchange
	if e.Symbol == "" {
		e.Symbol = "BTCUSDT"
	}
	if e.Interval == "" {
		e.Interval = "1m"
	}
	if e.Leverage == 0 {
		e.Leverage = 20
	}
	if e.QtyPrecision == 0 {
		e.QtyPrecision = 3
	}
	if e.PricePrecision == 0 {
		e.PricePrecision = 2
	}

	s := &c.Strategy
	// A zero start hour is the default; only the end hour needs filling in.
	if s.RangeEndHour == 0 {
		s.RangeEndHour = 4
	}
	if s.MinRangeCandles == 0 {
		s.MinRangeCandles = 30
	}
	if s.MinPostCandles == 0 {
		s.MinPostCandles = 5
	}
	if s.ATRPeriod == 0 {
		s.ATRPeriod = 20
	}
	if s.MinRewardMultiple == 0 {
		s.MinRewardMultiple = 2.0
	}
	if s.PostLookback == 0 {
		s.PostLookback = 5 * time.Hour
	}

	r := &c.Risk
	if r.TargetRiskPct == 0 {
		r.TargetRiskPct = 1.0
	}
	if r.MinRiskPct == 0 {
		r.MinRiskPct = 0.7
	}
	if r.MaxRiskPct == 0 {
		r.MaxRiskPct = 1.4
	}
	if r.MinQty == 0 {
		r.MinQty = 0.001
	}
	if r.MinNotional == 0 {
		r.MinNotional = 10
	}
	if r.NotionalBuffer == 0 {
		r.NotionalBuffer = 0.01
	}
	if r.MinStopPct == 0 {
		r.MinStopPct = 0.5
	}
	if r.MaxMarginFraction == 0 {
		r.MaxMarginFraction = 0.80
	}
	if r.MinBalance == 0 {
		r.MinBalance = 100
	}
	if r.MarginWarningPct == 0 {
		r.MarginWarningPct = 40
	}
	if r.MarginCriticalPct == 0 {
		r.MarginCriticalPct = 70
	}

	m := &c.Model
	if m.Backend == "" {
		m.Backend = "onnx"
	}
	if m.Path == "" {
		m.Path = "models/orb_rr.onnx"
	}
	if m.InputName == "" {
		m.InputName = "float_input"
	}
	if m.OutputName == "" {
		m.OutputName = "variable"
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = 2 * time.Second
	}

	sc := &c.Schedule
	if sc.ScanInterval == 0 {
		sc.ScanInterval = 30 * time.Second
	}
	if sc.IdleInterval == 0 {
		sc.IdleInterval = 60 * time.Second
	}
	if sc.PostTradeDelay == 0 {
		sc.PostTradeDelay = 5 * time.Minute
	}
	if sc.SettleDelay == 0 {
		sc.SettleDelay = 2 * time.Second
	}
	if sc.HeartbeatCron == "" {
		sc.HeartbeatCron = "*/30 * * * *"
	}
	if sc.StatusCron == "" {
		sc.StatusCron = "@every 2h"
	}

	if c.State.LedgerFile == "" {
		c.State.LedgerFile = "data/ledger.json"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/breakout_sentinel.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":9090"
	}
}

// TelegramEnabled reports whether both Telegram credentials are set.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		return fmt.Errorf("exchange.api_key and exchange.api_secret are required")
	}
	if c.Exchange.Leverage < 1 || c.Exchange.Leverage > 125 {
		return fmt.Errorf("exchange.leverage must be between 1 and 125")
	}
	s := c.Strategy
	if s.RangeStartHour < 0 || s.RangeEndHour > 24 || s.RangeStartHour >= s.RangeEndHour {
		return fmt.Errorf("strategy range hours must satisfy 0 <= start < end <= 24, got %d-%d", s.RangeStartHour, s.RangeEndHour)
	}
	if s.MinRewardMultiple <= 0 {
		return fmt.Errorf("strategy.min_reward_multiple must be positive")
	}
	r := c.Risk
	if r.TargetRiskPct <= 0 || r.TargetRiskPct > 100 {
		return fmt.Errorf("risk.target_risk_pct must be in (0, 100]")
	}
	if r.MaxMarginFraction <= 0 || r.MaxMarginFraction > 1 {
		return fmt.Errorf("risk.max_margin_fraction must be in (0, 1]")
	}
	if r.MarginWarningPct >= r.MarginCriticalPct {
		return fmt.Errorf("risk.margin_warning_pct must be below risk.margin_critical_pct")
	}
	switch c.Model.Backend {
	case "onnx", "linear":
	default:
		return fmt.Errorf("model.backend must be onnx or linear, got %q", c.Model.Backend)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}
