package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log        LoggingConfig    `yaml:"log"`
	Account    AccountConfig    `yaml:"account"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Redis      RedisConfig      `yaml:"redis"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	State      StateConfig      `yaml:"state"`
	Routing    RoutingConfig    `yaml:"routing"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Pushbullet PushbulletConfig `yaml:"pushbullet"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	HTTP       HTTPConfig       `yaml:"http"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AccountConfig is resolved once at load and never mutated afterwards.
type AccountConfig struct {
	ID           string             `yaml:"id"`
	Pair         string             `yaml:"pair"`
	BaseAsset    string             `yaml:"base_asset"`
	StableAssets []string           `yaml:"stable_assets"`
	Interval     string             `yaml:"interval"`
	Limit        int                `yaml:"limit"`
	LongPct      float64            `yaml:"long_pct"`
	ShortPct     float64            `yaml:"short_pct"`
	Gate         GateConfig         `yaml:"gate"`
	Ammo         map[string]float64 `yaml:"ammo"`

	// AmmoFraction is the ammo entry matching the pair's quote asset.
	AmmoFraction float64 `yaml:"-"`
}

type GateConfig struct {
	High float64 `yaml:"high"`
	Low  float64 `yaml:"low"`
}

type ExchangeConfig struct {
	Testnet       bool          `yaml:"testnet"`
	FeeRate       float64       `yaml:"fee_rate"`
	MinOrderSize  float64       `yaml:"min_order_size"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	PriceDecimals int32         `yaml:"price_decimals"`
	QtyDecimals   int32         `yaml:"qty_decimals"`
	IncomeLimit   int           `yaml:"income_limit"`
	Timeout       time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

type LedgerConfig struct {
	Driver  string        `yaml:"driver"`
	Schema  string        `yaml:"schema"`
	Timeout time.Duration `yaml:"timeout"`
}

type StateConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
	BadgerPath string `yaml:"badger_path"`
}

// RoutingConfig holds the post-close conversion thresholds. Comparisons are
// strict unless the matching Inclusive flag is set.
type RoutingConfig struct {
	ProfitThreshold float64 `yaml:"profit_threshold"`
	LossThreshold   float64 `yaml:"loss_threshold"`
	LossOverConvert float64 `yaml:"loss_over_convert"`
	ProfitInclusive bool    `yaml:"profit_inclusive"`
	LossInclusive   bool    `yaml:"loss_inclusive"`
}

type ScheduleConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LedgerSync      time.Duration `yaml:"ledger_sync"`
	PnLSnapshot     time.Duration `yaml:"pnl_snapshot"`
	CacheHeal       time.Duration `yaml:"cache_heal"`
	CacheBackup     time.Duration `yaml:"cache_backup"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type PushbulletConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	// loss_threshold may legitimately be zero, so it is seeded before decoding.
	cfg := Config{Routing: RoutingConfig{LossThreshold: -10}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 100
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 5
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 30
		}
	}
	acct := &cfg.Account
	acct.Pair = strings.ToUpper(strings.TrimSpace(acct.Pair))
	if acct.Pair == "" {
		acct.Pair = "BTCUSDT"
	}
	if acct.BaseAsset == "" && len(acct.Pair) > 3 {
		acct.BaseAsset = acct.Pair[:3]
	}
	if len(acct.StableAssets) == 0 {
		acct.StableAssets = []string{"USDT", "USDC"}
	}
	if acct.Interval == "" {
		acct.Interval = "15m"
	}
	if acct.Limit == 0 {
		acct.Limit = 100
	}
	if acct.LongPct == 0 && acct.ShortPct == 0 {
		acct.LongPct = 0.5
		acct.ShortPct = 0.5
	}
	acct.AmmoFraction = acct.Ammo[acct.QuoteAsset()]

	if cfg.Exchange.FeeRate == 0 {
		cfg.Exchange.FeeRate = 0.0004
	}
	if cfg.Exchange.MinOrderSize == 0 {
		cfg.Exchange.MinOrderSize = 0.001
	}
	if cfg.Exchange.SettleDelay == 0 {
		cfg.Exchange.SettleDelay = 5 * time.Second
	}
	if cfg.Exchange.RetryAttempts == 0 {
		cfg.Exchange.RetryAttempts = 5
	}
	if cfg.Exchange.RetryBackoff == 0 {
		cfg.Exchange.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Exchange.PriceDecimals == 0 {
		cfg.Exchange.PriceDecimals = 1
	}
	if cfg.Exchange.QtyDecimals == 0 {
		cfg.Exchange.QtyDecimals = 3
	}
	if cfg.Exchange.IncomeLimit == 0 {
		cfg.Exchange.IncomeLimit = 1000
	}
	if cfg.Exchange.Timeout == 0 {
		cfg.Exchange.Timeout = 10 * time.Second
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = "sqlite"
	}
	if cfg.Ledger.Schema == "" && cfg.Ledger.Driver == "pgx" {
		cfg.Ledger.Schema = "public"
	}
	if cfg.Ledger.Timeout == 0 {
		cfg.Ledger.Timeout = 5 * time.Second
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = "sqlite"
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/hedge-bot.db"
	}
	if cfg.State.BadgerPath == "" {
		cfg.State.BadgerPath = "data/badger"
	}
	if cfg.Routing.LossOverConvert == 0 {
		cfg.Routing.LossOverConvert = 1.1
	}
	if cfg.Schedule.RefreshInterval == 0 {
		cfg.Schedule.RefreshInterval = 30 * time.Second
	}
	if cfg.Schedule.LedgerSync == 0 {
		cfg.Schedule.LedgerSync = time.Hour
	}
	if cfg.Schedule.PnLSnapshot == 0 {
		cfg.Schedule.PnLSnapshot = 5 * time.Minute
	}
	if cfg.Schedule.CacheHeal == 0 {
		cfg.Schedule.CacheHeal = time.Hour
	}
}

func validate(cfg *Config) error {
	acct := cfg.Account
	if strings.TrimSpace(acct.ID) == "" {
		return errors.New("account.id is required")
	}
	if !strings.HasPrefix(acct.Pair, acct.BaseAsset) || acct.QuoteAsset() == "" {
		return fmt.Errorf("account.pair %s does not start with base asset %s", acct.Pair, acct.BaseAsset)
	}
	if acct.LongPct < 0 || acct.ShortPct < 0 || acct.LongPct > 1 || acct.ShortPct > 1 {
		return errors.New("account.long_pct and account.short_pct must be within [0, 1]")
	}
	if acct.AmmoFraction <= 0 || acct.AmmoFraction > 1 {
		return fmt.Errorf("account.ammo.%s must be within (0, 1]", acct.QuoteAsset())
	}
	if acct.Limit < 1 {
		return errors.New("account.limit must be >= 1")
	}
	switch cfg.Ledger.Driver {
	case "pgx", "sqlite":
	default:
		return fmt.Errorf("ledger.driver %q is not supported", cfg.Ledger.Driver)
	}
	switch cfg.State.Backend {
	case "sqlite", "badger":
	default:
		return fmt.Errorf("state.backend %q is not supported", cfg.State.Backend)
	}
	if cfg.Routing.LossThreshold > cfg.Routing.ProfitThreshold {
		return errors.New("routing.loss_threshold must not exceed routing.profit_threshold")
	}
	if cfg.Routing.LossOverConvert < 1 {
		return errors.New("routing.loss_over_convert must be >= 1")
	}
	return nil
}

// QuoteAsset returns the pair suffix after the base asset, e.g. USDT for BTCUSDT.
func (a AccountConfig) QuoteAsset() string {
	return strings.TrimPrefix(a.Pair, a.BaseAsset)
}

// Table returns a per-account ledger table name.
func (a AccountConfig) Table(prefix string, suffix ...string) string {
	parts := append([]string{prefix, a.ID}, suffix...)
	return strings.Join(parts, "_")
}
