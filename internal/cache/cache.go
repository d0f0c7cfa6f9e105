package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"hedge-bot/internal/strategy"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Account  string
	Pair     string
}

// Facade is the namespaced view of one instance's Redis keys. The client can
// be swapped by Reconnect while other calls are in flight.
type Facade struct {
	opts Options
	log  *zap.Logger

	mu     sync.RWMutex
	client *redis.Client
}

func New(ctx context.Context, opts Options, log *zap.Logger) (*Facade, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Facade{opts: opts, log: log, client: client}, nil
}

func dial(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

func (f *Facade) rdb() *redis.Client {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.client
}

func (f *Facade) key(ns strategy.Namespace, field string) string {
	return Key(f.opts.Account, f.opts.Pair, ns, field)
}

// Init creates every absent key with value "0" and reports how many were
// created. Existing keys are never touched, so repeated calls are no-ops.
func (f *Facade) Init(ctx context.Context) (int, error) {
	pipe := f.rdb().Pipeline()
	var cmds []*redis.BoolCmd
	for _, ns := range namespaceOrder {
		for _, field := range Fields[ns] {
			cmds = append(cmds, pipe.SetNX(ctx, f.key(ns, field), "0", 0))
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("init cache keys: %w", err)
	}
	created := 0
	for _, cmd := range cmds {
		if cmd.Val() {
			created++
		}
	}
	if created > 0 {
		f.log.Info("cache keys initialised", zap.Int("created", created))
	}
	return created, nil
}

func (f *Facade) Set(ctx context.Context, ns strategy.Namespace, field string, value float64) error {
	raw := strconv.FormatFloat(value, 'f', -1, 64)
	if err := f.rdb().Set(ctx, f.key(ns, field), raw, 0).Err(); err != nil {
		return fmt.Errorf("set %s.%s: %w", ns, field, err)
	}
	return nil
}

// Get returns 0 for an absent key.
func (f *Facade) Get(ctx context.Context, ns strategy.Namespace, field string) (float64, error) {
	raw, err := f.rdb().Get(ctx, f.key(ns, field)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s.%s: %w", ns, field, err)
	}
	return parseValue(ns, field, raw)
}

// Namespace reads all fields of ns in one round trip.
func (f *Facade) Namespace(ctx context.Context, ns strategy.Namespace) (map[string]float64, error) {
	fields := Fields[ns]
	keys := make([]string, len(fields))
	for i, field := range fields {
		keys[i] = f.key(ns, field)
	}
	vals, err := f.rdb().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s namespace: %w", ns, err)
	}
	out := make(map[string]float64, len(fields))
	for i, field := range fields {
		raw, ok := vals[i].(string)
		if !ok {
			out[field] = 0
			continue
		}
		v, err := parseValue(ns, field, raw)
		if err != nil {
			return nil, err
		}
		out[field] = v
	}
	return out, nil
}

func (f *Facade) Trail(ctx context.Context) (strategy.Trail, error) {
	vals, err := f.Namespace(ctx, strategy.NamespaceCache)
	if err != nil {
		return strategy.Trail{}, err
	}
	trail := strategy.Trail{
		SellPrice: vals[strategy.FieldTrailSell],
		BuyPrice:  vals[strategy.FieldTrailBuy],
		OpenPrice: vals[strategy.FieldOpenPrice],
		ExitPrice: vals[strategy.FieldExitPrice],
	}
	if ms := int64(vals[strategy.FieldOpenTime]); ms > 0 {
		trail.OpenTime = time.UnixMilli(ms)
	}
	return trail, nil
}

func (f *Facade) Control(ctx context.Context) (strategy.Control, error) {
	vals, err := f.Namespace(ctx, strategy.NamespaceControl)
	if err != nil {
		return strategy.Control{}, err
	}
	return strategy.Control{
		BalanceTrigger: int(vals[strategy.FieldBalanceTrigger]),
		BalanceSlider:  vals[strategy.FieldBalanceSlider],
	}, nil
}

func (f *Facade) Alive(ctx context.Context) (bool, error) {
	v, err := f.Get(ctx, strategy.NamespaceCache, strategy.FieldAlive)
	if err != nil {
		return false, err
	}
	return int(v) == 1, nil
}

// Reconnect dials a fresh client and swaps it in. The old client is closed
// only after the new one answers a ping.
func (f *Facade) Reconnect(ctx context.Context) error {
	client, err := dial(ctx, f.opts)
	if err != nil {
		return err
	}
	f.mu.Lock()
	old := f.client
	f.client = client
	f.mu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			f.log.Debug("close previous redis client", zap.Error(err))
		}
	}
	f.log.Info("redis reconnected", zap.String("addr", f.opts.Addr))
	return nil
}

// Backup asks the server for a background snapshot.
func (f *Facade) Backup(ctx context.Context) error {
	if err := f.rdb().BgSave(ctx).Err(); err != nil {
		return fmt.Errorf("bgsave: %w", err)
	}
	return nil
}

func (f *Facade) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}

func parseValue(ns strategy.Namespace, field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s.%s=%q: %w", ns, field, raw, err)
	}
	return v, nil
}
