package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	unsetEnv(t, "FOO")
	unsetEnv(t, "QUOTED")
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nFOO=bar\nQUOTED=\"baz\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("FOO"); got != "bar" {
		t.Fatalf("FOO expected bar, got %q", got)
	}
	if got := os.Getenv("QUOTED"); got != "baz" {
		t.Fatalf("QUOTED expected baz, got %q", got)
	}
}

func TestLoadEnvDoesNotOverrideExisting(t *testing.T) {
	t.Setenv("FOO", "existing")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("FOO=bar\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("FOO"); got != "existing" {
		t.Fatalf("FOO expected existing, got %q", got)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}

func TestLoadCredentialsRequiresTradeKeys(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")
	cfg := &Config{Account: AccountConfig{ID: "A"}, Ledger: LedgerConfig{Driver: "sqlite"}}
	if _, err := LoadCredentials(cfg); err == nil {
		t.Fatalf("expected error for missing trade credentials")
	}
}

func TestLoadCredentialsFallsBackToTradeKeysForData(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "k")
	t.Setenv("BINANCE_API_SECRET", "s")
	t.Setenv("BINANCE_DATA_KEY", "")
	t.Setenv("LEDGER_DSN", "")
	cfg := &Config{Account: AccountConfig{ID: "A"}, Ledger: LedgerConfig{Driver: "sqlite"}}
	creds, err := LoadCredentials(cfg)
	if err != nil {
		t.Fatalf("load credentials: %v", err)
	}
	if creds.DataKey != "k" || creds.DataSecret != "s" {
		t.Fatalf("expected data keys to fall back, got %+v", creds)
	}
	if creds.LedgerDSN != "data/ledger_A.db" {
		t.Fatalf("unexpected default ledger dsn %q", creds.LedgerDSN)
	}
}

func TestLoadCredentialsRequiresDSNForPostgres(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "k")
	t.Setenv("BINANCE_API_SECRET", "s")
	t.Setenv("LEDGER_DSN", "")
	cfg := &Config{Account: AccountConfig{ID: "A"}, Ledger: LedgerConfig{Driver: "pgx"}}
	if _, err := LoadCredentials(cfg); err == nil {
		t.Fatalf("expected error for missing ledger dsn")
	}
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if old, ok := os.LookupEnv(key); ok {
		t.Cleanup(func() { _ = os.Setenv(key, old) })
	} else {
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}
	_ = os.Unsetenv(key)
}

func TestLoadStorageCredentialsSkipsExchangeKeys(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")
	t.Setenv("REDIS_PASSWORD", "pw")
	t.Setenv("LEDGER_DSN", "")
	cfg := &Config{Account: AccountConfig{ID: "B"}, Ledger: LedgerConfig{Driver: "sqlite"}}
	creds, err := LoadStorageCredentials(cfg)
	if err != nil {
		t.Fatalf("load storage credentials: %v", err)
	}
	if creds.RedisPassword != "pw" || creds.LedgerDSN != "data/ledger_B.db" {
		t.Fatalf("unexpected storage credentials %+v", creds)
	}
	if creds.TradeKey != "" {
		t.Fatalf("expected no trade key, got %q", creds.TradeKey)
	}
}
