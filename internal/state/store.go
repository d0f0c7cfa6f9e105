package state

import (
	"context"
	"fmt"

	"hedge-bot/internal/config"
	"hedge-bot/internal/state/badger"
	"hedge-bot/internal/state/sqlite"
)

// Store is the durable key-value store for order intents, the ledger sync
// cursor and the last snapshot of each instance.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Scan(ctx context.Context, prefix string) (map[string]string, error)
	Close() error
}

func Open(cfg config.StateConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlite.New(cfg.SQLitePath)
	case "badger":
		return badger.New(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unsupported state backend %q", cfg.Backend)
	}
}
