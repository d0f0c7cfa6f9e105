package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"hedge-bot/internal/alerts"
	"hedge-bot/internal/cache"
	"hedge-bot/internal/config"
	"hedge-bot/internal/engine"
	"hedge-bot/internal/exchange"
	"hedge-bot/internal/exec"
	"hedge-bot/internal/httpapi"
	"hedge-bot/internal/ledger"
	"hedge-bot/internal/metrics"
	"hedge-bot/internal/state"
	"hedge-bot/internal/strategy"

	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// Engine is the part of engine.Engine the loop drives.
type Engine interface {
	Refresh(ctx context.Context) strategy.Snapshot
	Snapshot() strategy.Snapshot
	Alive(ctx context.Context) (bool, error)
	Reconnect(ctx context.Context) error
	Stop(ctx context.Context) strategy.Snapshot
	SyncLedger(ctx context.Context) error
	SnapshotPnL(ctx context.Context) error
	HealCache(ctx context.Context) (int, error)
	BackupCache(ctx context.Context) error
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	engine    Engine
	scheduler *Scheduler
	server    *http.Server
	closers   []io.Closer
	now       func() time.Time
}

func New(ctx context.Context, cfg *config.Config, creds config.Credentials, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, now: time.Now}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	m := metrics.NewNoop()
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus(cfg.Account.ID, cfg.Account.Pair)
		m = prom.Metrics
		metricsHandler = prom.Handler()
	}

	store, err := state.Open(cfg.State)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	a.closers = append(a.closers, store)

	facade, err := cache.New(ctx, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: creds.RedisPassword,
		DB:       cfg.Redis.DB,
		Account:  cfg.Account.ID,
		Pair:     cfg.Account.Pair,
	}, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, facade)

	writer, err := ledger.Open(cfg.Ledger, creds.LedgerDSN, log)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	a.closers = append(a.closers, writer)
	if err := writer.EnsureSchema(ctx, ledger.TablesFor(cfg.Account).All()...); err != nil {
		return nil, fmt.Errorf("ledger schema: %w", err)
	}

	gateway := exchange.NewRetrying(
		exchange.NewBinance(creds, cfg.Exchange, log),
		cfg.Exchange.RetryAttempts,
		cfg.Exchange.RetryBackoff,
		log,
	)
	eng, err := engine.New(ctx, cfg, engine.Deps{
		Cache:    facade,
		Exchange: gateway,
		Orders:   exec.New(gateway, store, m, log),
		Ledger:   writer,
		Store:    store,
		Notifier: notifierFor(cfg, log),
		Metrics:  m,
	}, log)
	if err != nil {
		return nil, err
	}
	a.engine = eng
	a.scheduler = NewScheduler(m, log)
	a.schedule(a.now())

	if cfg.HTTP.Listen != "" {
		a.server = &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           httpapi.New(eng, a.scheduler, metricsHandler, log),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	ok = true
	return a, nil
}

func notifierFor(cfg *config.Config, log *zap.Logger) alerts.Notifier {
	var multi alerts.Multi
	if cfg.Telegram.Enabled {
		multi = append(multi, alerts.NewTelegram(cfg.Telegram, log))
	}
	if cfg.Pushbullet.Enabled {
		multi = append(multi, alerts.NewPushbullet(cfg.Pushbullet))
	}
	if len(multi) == 0 {
		return alerts.Nop{}
	}
	return multi
}

func (a *App) schedule(start time.Time) {
	sched := a.cfg.Schedule
	a.scheduler.Add("ledger-sync", sched.LedgerSync, start, a.engine.SyncLedger)
	a.scheduler.Add("pnl-snapshot", sched.PnLSnapshot, start, a.engine.SnapshotPnL)
	a.scheduler.Add("cache-heal", sched.CacheHeal, start, func(ctx context.Context) error {
		_, err := a.engine.HealCache(ctx)
		return err
	})
	a.scheduler.Add("cache-backup", sched.CacheBackup, start, a.engine.BackupCache)
}

func (a *App) Engine() Engine {
	return a.engine
}

// Run cycles until ctx is cancelled or the alive flag is cleared, then
// stops the engine.
func (a *App) Run(ctx context.Context) error {
	defer a.close()
	if a.server != nil {
		go func() {
			a.log.Info("http listening", zap.String("addr", a.server.Addr))
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("http server failed", zap.Error(err))
			}
		}()
	}

	ticker := time.NewTicker(a.cfg.Schedule.RefreshInterval)
	defer ticker.Stop()

	for {
		if !a.alive(ctx) {
			a.log.Info("alive flag cleared, shutting down")
			a.shutdown()
			return nil
		}
		a.tick(ctx)
		select {
		case <-ctx.Done():
			a.shutdown()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *App) tick(ctx context.Context) {
	snap := a.engine.Refresh(ctx)
	ran := a.scheduler.RunDue(ctx, a.now())
	a.log.Debug("cycle complete",
		zap.Uint64("cycle", snap.Cycle),
		zap.String("state", string(snap.State)),
		zap.Float64("price", snap.Price),
		zap.Float64("pnl", snap.PnL.PnL),
		zap.Strings("jobs", ran),
	)
}

// alive reads the alive flag. A failed read triggers one reconnect; if the
// cache stays unreachable the loop keeps running on the exchange alone.
func (a *App) alive(ctx context.Context) bool {
	ok, err := a.engine.Alive(ctx)
	if err == nil {
		return ok
	}
	if ctx.Err() != nil {
		return true
	}
	a.log.Warn("alive check failed, reconnecting cache", zap.Error(err))
	if err := a.engine.Reconnect(ctx); err != nil {
		a.log.Warn("cache reconnect failed", zap.Error(err))
		return true
	}
	ok, err = a.engine.Alive(ctx)
	if err != nil {
		return true
	}
	return ok
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.engine.Stop(ctx)
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Warn("http shutdown failed", zap.Error(err))
		}
	}
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
