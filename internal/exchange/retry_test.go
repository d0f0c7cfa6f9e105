package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"hedge-bot/internal/market"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type flakyGateway struct {
	Gateway

	failures   int
	failWith   error
	accountN   int
	klinesN    int
	openN      int
	accountOut Account
}

func (g *flakyGateway) Account(context.Context) (Account, error) {
	g.accountN++
	if g.accountN <= g.failures {
		return Account{}, g.failWith
	}
	return g.accountOut, nil
}

func (g *flakyGateway) Klines(context.Context, string, string, int) ([]market.Candle, error) {
	g.klinesN++
	return nil, g.failWith
}

func (g *flakyGateway) SubmitOpen(context.Context, OpenOrder) (Report, error) {
	g.openN++
	return Report{}, g.failWith
}

func newTestRetrying(gw Gateway, attempts int) (*Retrying, *[]time.Duration) {
	r := NewRetrying(gw, attempts, 10*time.Millisecond, zap.NewNop())
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func transient() error {
	return &Error{Op: "test", kind: ErrTransient, err: errors.New("boom")}
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	gw := &flakyGateway{failures: 2, failWith: transient(), accountOut: Account{TotalMarginBalance: 42}}
	r, slept := newTestRetrying(gw, 5)

	acct, err := r.Account(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42.0, acct.TotalMarginBalance)
	require.Equal(t, 3, gw.accountN)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *slept)
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	gw := &flakyGateway{failWith: transient()}
	r, _ := newTestRetrying(gw, 3)

	_, err := r.Klines(context.Background(), "BTCUSDT", "15m", 10)
	require.ErrorIs(t, err, ErrTransient)
	require.Equal(t, 3, gw.klinesN)
}

func TestRetryStopsOnRejection(t *testing.T) {
	gw := &flakyGateway{failures: 5, failWith: &Error{Op: "test", kind: ErrRejected, err: errors.New("no")}}
	r, slept := newTestRetrying(gw, 5)

	_, err := r.Account(context.Background())
	require.ErrorIs(t, err, ErrRejected)
	require.Equal(t, 1, gw.accountN)
	require.Empty(t, *slept)
}

func TestRetryNeverRepeatsSubmissions(t *testing.T) {
	gw := &flakyGateway{failWith: transient()}
	r, _ := newTestRetrying(gw, 5)

	_, err := r.SubmitOpen(context.Background(), OpenOrder{Pair: "BTCUSDT"})
	require.ErrorIs(t, err, ErrTransient)
	require.Equal(t, 1, gw.openN)
}

func TestRetryHonoursCancelledSleep(t *testing.T) {
	gw := &flakyGateway{failures: 5, failWith: transient()}
	r := NewRetrying(gw, 5, time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Account(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, gw.accountN)
}
