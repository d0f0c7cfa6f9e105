package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hedge-bot/internal/alerts"
	"hedge-bot/internal/config"
	"hedge-bot/internal/exchange"
	"hedge-bot/internal/ledger"
	"hedge-bot/internal/metrics"
	"hedge-bot/internal/state"
	"hedge-bot/internal/strategy"

	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

type Deps struct {
	Cache    Cache
	Exchange Reader
	Orders   Orders
	Ledger   Ledger
	Store    state.Store
	Notifier alerts.Notifier
	Metrics  *metrics.Metrics
	Clock    Clock
}

// Engine owns the snapshot of one (account, pair) instance and runs the
// commands the strategy transitions emit. Every public method except
// Reconnect holds mu for its whole duration; private helpers assume it is
// held.
type Engine struct {
	acct     config.AccountConfig
	exchange config.ExchangeConfig
	params   strategy.Params
	tables   ledger.Tables

	cache    Cache
	reader   Reader
	orders   Orders
	ledger   Ledger
	store    state.Store
	notifier alerts.Notifier
	metrics  *metrics.Metrics
	clock    Clock
	log      *zap.Logger

	mu      sync.Mutex
	snap    strategy.Snapshot
	pending *intent
}

func New(ctx context.Context, cfg *config.Config, deps Deps, log *zap.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: config is required")
	}
	if deps.Cache == nil || deps.Exchange == nil || deps.Orders == nil || deps.Ledger == nil {
		return nil, errors.New("engine: cache, exchange, orders and ledger are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = alerts.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	e := &Engine{
		acct:     cfg.Account,
		exchange: cfg.Exchange,
		params:   strategy.ParamsFromConfig(cfg),
		tables:   ledger.TablesFor(cfg.Account),
		cache:    deps.Cache,
		reader:   deps.Exchange,
		orders:   deps.Orders,
		ledger:   deps.Ledger,
		store:    deps.Store,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		log:      log.With(zap.String("account", cfg.Account.ID), zap.String("pair", cfg.Account.Pair)),
		snap:     strategy.Snapshot{State: strategy.StateFlat},
	}

	created, err := e.cache.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	if err := e.cache.Set(ctx, strategy.NamespaceCache, strategy.FieldAlive, 1); err != nil {
		return nil, fmt.Errorf("set alive: %w", err)
	}
	e.restore(ctx)
	e.loadIntent(ctx)
	e.log.Info("engine ready", zap.Int("cache_keys_created", created), zap.Uint64("cycle", e.snap.Cycle))
	return e, nil
}

// restore seeds the last-known values from the persisted record so a failed
// first read does not start from zeros. The exchange still decides the state.
func (e *Engine) restore(ctx context.Context) {
	rec, ok, err := state.LoadSnapshot(ctx, e.store, e.acct.ID, e.acct.Pair)
	if err != nil {
		e.log.Warn("load snapshot failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	e.snap.Cycle = rec.Cycle
	e.snap.Price = rec.Price
	e.snap.Balance = strategy.Balance{Base: rec.BaseBalance, Equity: rec.Equity, Ratio: rec.BalanceRatio}
}

// Snapshot returns the current snapshot. Snapshots are never modified in
// place, so the value is safe to keep.
func (e *Engine) Snapshot() strategy.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

func (e *Engine) Params() strategy.Params {
	return e.params
}

// Refresh reads the exchange and cache, folds the reads into a new snapshot
// and executes the resulting cache writes and rebalance. Read failures keep
// the previous values and are only logged and counted.
func (e *Engine) Refresh(ctx context.Context) strategy.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	obs := e.observe(ctx)
	next, cmds := strategy.Refresh(e.snap, obs, e.params)
	if next.State != e.snap.State {
		e.log.Info("state changed", zap.String("from", string(e.snap.State)), zap.String("to", string(next.State)))
	}
	e.reconcileIntent(ctx, obs.HasPosition, obs.Position)
	if pos := next.Position; pos.InTrade() && !pos.Hedged() {
		e.log.Warn("position is unhedged, exit to flatten the remaining leg",
			zap.Float64("long", pos.LongAmount),
			zap.Float64("short", pos.ShortAmount),
		)
	}
	if err := e.apply(ctx, next, cmds); err != nil {
		e.log.Warn("refresh commands failed", zap.Error(err))
	}
	return e.snap
}

func (e *Engine) observe(ctx context.Context) strategy.Observation {
	obs := strategy.Observation{At: e.clock.Now()}

	if acct, err := e.reader.Account(ctx); err != nil {
		e.readFailed("account", err)
	} else {
		obs.Balance = e.balanceFrom(acct.WalletBalances, acct.TotalMarginBalance)
		obs.HasBalance = true
	}
	if pos, err := e.reader.Position(ctx, e.acct.Pair); err != nil {
		e.readFailed("position", err)
	} else {
		obs.Position = strategy.Position{
			LongAmount:      pos.Long.Amount,
			ShortAmount:     pos.Short.Amount,
			EntryPrice:      entryPrice(pos),
			LongUnrealized:  pos.Long.Unrealized,
			ShortUnrealized: pos.Short.Unrealized,
		}
		obs.HasPosition = true
	}
	if candles, err := e.reader.Klines(ctx, e.acct.Pair, e.acct.Interval, e.acct.Limit); err != nil {
		e.readFailed("klines", err)
	} else if len(candles) > 0 {
		obs.Candles = candles
		obs.HasCandles = true
	}
	if trail, err := e.cache.Trail(ctx); err != nil {
		e.readFailed("trail", err)
	} else {
		obs.Trail = trail
		obs.HasTrail = true
	}
	if ctrl, err := e.cache.Control(ctx); err != nil {
		e.readFailed("control", err)
	} else {
		obs.Control = ctrl
		obs.HasControl = true
	}
	return obs
}

// entryPrice is the short leg's entry, or the long leg's when only the long
// leg is open.
func entryPrice(pos exchange.Position) float64 {
	if pos.Short.Amount > 0 {
		return pos.Short.EntryPrice
	}
	return pos.Long.EntryPrice
}

func (e *Engine) readFailed(what string, err error) {
	e.metrics.RefreshFailed.Inc()
	e.log.Warn("refresh read failed", zap.String("read", what), zap.Error(err))
}

func (e *Engine) balanceFrom(wallet map[string]float64, equity float64) strategy.Balance {
	stable := make(map[string]float64, len(e.acct.StableAssets))
	for _, asset := range e.acct.StableAssets {
		stable[asset] = wallet[asset]
	}
	return strategy.NewBalance(wallet[e.acct.BaseAsset], stable, equity)
}

// Alive reports whether the instance should keep cycling: the cache flag is
// set and the instance has not been stopped.
func (e *Engine) Alive(ctx context.Context) (bool, error) {
	e.mu.Lock()
	stopping := e.snap.State == strategy.StateStopping
	e.mu.Unlock()
	if stopping {
		return false, nil
	}
	return e.cache.Alive(ctx)
}

// Reconnect replaces the cache connection. It does not take the engine lock
// and leaves the snapshot untouched.
func (e *Engine) Reconnect(ctx context.Context) error {
	return e.cache.Reconnect(ctx)
}

func (e *Engine) publish(ctx context.Context) {
	s := e.snap
	e.metrics.PnL.Set(s.PnL.PnL)
	e.metrics.ROE.Set(s.PnL.ROE)
	e.metrics.BalanceRatio.Set(s.Balance.Ratio)
	if s.InTrade() {
		e.metrics.InTrade.Set(1)
	} else {
		e.metrics.InTrade.Set(0)
	}
	e.metrics.LedgerPending.Set(float64(e.ledger.Pending()))

	rec := state.SnapshotRecord{
		Account:      e.acct.ID,
		Pair:         e.acct.Pair,
		Cycle:        s.Cycle,
		State:        string(s.State),
		Price:        s.Price,
		LongAmount:   s.Position.LongAmount,
		ShortAmount:  s.Position.ShortAmount,
		EntryPrice:   s.Position.EntryPrice,
		PnL:          s.PnL.PnL,
		ROE:          s.PnL.ROE,
		BaseBalance:  s.Balance.Base,
		Equity:       s.Balance.Equity,
		BalanceRatio: s.Balance.Ratio,
		UpdatedAtMS:  e.clock.Now().UnixMilli(),
	}
	if err := state.SaveSnapshot(ctx, e.store, rec); err != nil {
		e.log.Debug("persist snapshot failed", zap.Error(err))
	}
}
