package engine

import (
	"context"
	"time"

	"hedge-bot/internal/exchange"
	"hedge-bot/internal/ledger"
	"hedge-bot/internal/market"
	"hedge-bot/internal/strategy"
)

// Cache is the subset of cache.Facade the engine uses.
type Cache interface {
	Init(ctx context.Context) (int, error)
	Set(ctx context.Context, ns strategy.Namespace, field string, value float64) error
	Trail(ctx context.Context) (strategy.Trail, error)
	Control(ctx context.Context) (strategy.Control, error)
	Alive(ctx context.Context) (bool, error)
	Reconnect(ctx context.Context) error
	Backup(ctx context.Context) error
}

// Reader is the read half of exchange.Gateway.
type Reader interface {
	Account(ctx context.Context) (exchange.Account, error)
	Position(ctx context.Context, pair string) (exchange.Position, error)
	Klines(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error)
	IncomeHistory(ctx context.Context, start time.Time, limit int) ([]exchange.Income, error)
}

// Orders is satisfied by exec.Executor.
type Orders interface {
	Open(ctx context.Context, order exchange.OpenOrder) (exchange.Report, error)
	Close(ctx context.Context, order exchange.CloseOrder) (exchange.Report, error)
	Rebalance(ctx context.Context, order exchange.RebalanceOrder) (exchange.Report, error)
	Convert(ctx context.Context, order exchange.ConversionOrder) (exchange.Report, error)
	Forget(ctx context.Context, clientID string) error
}

// Ledger is satisfied by ledger.Writer.
type Ledger interface {
	Append(ctx context.Context, t ledger.Table, rows ...ledger.Row) error
	Flush(ctx context.Context) error
	Pending() int
	LastTime(ctx context.Context, t ledger.Table) (time.Time, bool, error)
}

type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func SystemClock() Clock { return systemClock{} }
