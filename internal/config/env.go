package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// Credentials are never read from the YAML file.
type Credentials struct {
	TradeKey      string
	TradeSecret   string
	DataKey       string
	DataSecret    string
	RedisPassword string
	LedgerDSN     string
}

func LoadCredentials(cfg *Config) (Credentials, error) {
	creds, err := LoadStorageCredentials(cfg)
	if err != nil {
		return Credentials{}, err
	}
	creds.TradeKey = strings.TrimSpace(os.Getenv("BINANCE_API_KEY"))
	creds.TradeSecret = strings.TrimSpace(os.Getenv("BINANCE_API_SECRET"))
	creds.DataKey = strings.TrimSpace(os.Getenv("BINANCE_DATA_KEY"))
	creds.DataSecret = strings.TrimSpace(os.Getenv("BINANCE_DATA_SECRET"))
	if creds.TradeKey == "" || creds.TradeSecret == "" {
		return Credentials{}, errors.New("BINANCE_API_KEY and BINANCE_API_SECRET are required")
	}
	if creds.DataKey == "" {
		creds.DataKey = creds.TradeKey
		creds.DataSecret = creds.TradeSecret
	}
	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")
	}
	if cfg.Pushbullet.Enabled && cfg.Pushbullet.Token == "" {
		cfg.Pushbullet.Token = os.Getenv("PUSHBULLET_TOKEN")
	}
	return creds, nil
}

// LoadStorageCredentials resolves only the Redis and ledger secrets, for
// tools that never talk to the exchange.
func LoadStorageCredentials(cfg *Config) (Credentials, error) {
	creds := Credentials{
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LedgerDSN:     strings.TrimSpace(os.Getenv("LEDGER_DSN")),
	}
	if creds.LedgerDSN == "" {
		if cfg.Ledger.Driver == "pgx" {
			return Credentials{}, errors.New("LEDGER_DSN is required for the pgx ledger driver")
		}
		creds.LedgerDSN = fmt.Sprintf("data/ledger_%s.db", cfg.Account.ID)
	}
	return creds, nil
}
