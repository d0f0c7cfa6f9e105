package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hedge-bot/internal/market"

	"go.uber.org/zap"
)

// Retrying retries transient read failures with exponential backoff.
// Submissions pass straight through to the wrapped gateway.
type Retrying struct {
	Gateway

	attempts int
	backoff  time.Duration
	log      *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRetrying(gw Gateway, attempts int, backoff time.Duration, log *zap.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retrying{Gateway: gw, attempts: attempts, backoff: backoff, log: log, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retry[T any](ctx context.Context, r *Retrying, op string, fn func() (T, error)) (T, error) {
	backoff := r.backoff
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrTransient) {
			return zero, err
		}
		if attempt >= r.attempts {
			return zero, fmt.Errorf("%s: giving up after %d attempts: %w", op, attempt, err)
		}
		r.log.Debug("retrying exchange read", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		if err := r.sleep(ctx, backoff); err != nil {
			return zero, err
		}
		backoff *= 2
	}
}

func (r *Retrying) Account(ctx context.Context) (Account, error) {
	return retry(ctx, r, "account", func() (Account, error) {
		return r.Gateway.Account(ctx)
	})
}

func (r *Retrying) Position(ctx context.Context, pair string) (Position, error) {
	return retry(ctx, r, "position", func() (Position, error) {
		return r.Gateway.Position(ctx, pair)
	})
}

func (r *Retrying) Klines(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	return retry(ctx, r, "klines", func() ([]market.Candle, error) {
		return r.Gateway.Klines(ctx, pair, interval, limit)
	})
}

func (r *Retrying) IncomeHistory(ctx context.Context, start time.Time, limit int) ([]Income, error) {
	return retry(ctx, r, "income", func() ([]Income, error) {
		return r.Gateway.IncomeHistory(ctx, start, limit)
	})
}
