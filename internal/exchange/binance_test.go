package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"hedge-bot/internal/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeVenue struct {
	mu       sync.Mutex
	orders   []map[string]string
	spot     []map[string]string
	transfer []map[string]string
	fail     map[string]string
}

func (v *fakeVenue) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form := map[string]string{}
		for k := range r.Form {
			form[k] = r.Form.Get(k)
		}
		path := r.URL.Path
		v.mu.Lock()
		defer v.mu.Unlock()
		for frag, body := range v.fail {
			if strings.Contains(path, frag) {
				status := http.StatusBadRequest
				if strings.Contains(body, "-1003") {
					status = http.StatusTooManyRequests
				}
				w.WriteHeader(status)
				_, _ = w.Write([]byte(body))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(path, "positionRisk"):
			_, _ = w.Write([]byte(`[
				{"symbol":"BTCUSDT","positionAmt":"0.010","entryPrice":"49000.0","unRealizedProfit":"10.5","positionSide":"LONG"},
				{"symbol":"BTCUSDT","positionAmt":"-0.010","entryPrice":"49010.0","unRealizedProfit":"-4.5","positionSide":"SHORT"}
			]`))
		case strings.HasPrefix(path, "/fapi/") && strings.HasSuffix(path, "/account"):
			_, _ = w.Write([]byte(`{"assets":[{"asset":"BTC","walletBalance":"0.02000000"},{"asset":"USDT","walletBalance":"512.34"}],"totalMarginBalance":"1512.34"}`))
		case strings.HasSuffix(path, "/klines"):
			_, _ = w.Write([]byte(`[
				[1700000000000,"49900.0","50100.0","49800.0","50000.0","12.5",1700000899999,"0",10,"0","0","0"],
				[1700000900000,"50000.0","50200.0","49950.0","50150.0","10.1",1700001799999,"0",9,"0","0","0"]
			]`))
		case strings.HasSuffix(path, "/income"):
			_, _ = w.Write([]byte(`[
				{"symbol":"BTCUSDT","incomeType":"REALIZED_PNL","income":"3.2","asset":"USDT","info":"","time":1700000000000,"tranId":11,"tradeId":"77"},
				{"symbol":"","incomeType":"TRANSFER","income":"100","asset":"USDT","info":"","time":1700000001000,"tranId":12,"tradeId":""}
			]`))
		case strings.HasPrefix(path, "/fapi/") && strings.HasSuffix(path, "/order"):
			v.orders = append(v.orders, form)
			_, _ = w.Write([]byte(`{"orderId":` + strconv.Itoa(len(v.orders)) + `,"clientOrderId":"` + form["newClientOrderId"] + `","avgPrice":"50000.0","updateTime":1700000002000}`))
		case strings.HasPrefix(path, "/api/") && strings.HasSuffix(path, "/order"):
			v.spot = append(v.spot, form)
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":900,"transactTime":1700000003000,"executedQty":"0.00045","cummulativeQuoteQty":"22.50"}`))
		case strings.Contains(path, "/asset/transfer"):
			v.transfer = append(v.transfer, form)
			_, _ = w.Write([]byte(`{"tranId":1}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestBinance(t *testing.T, venue *fakeVenue) *Binance {
	t.Helper()
	srv := httptest.NewServer(venue.handler(t))
	t.Cleanup(srv.Close)
	creds := config.Credentials{TradeKey: "k", TradeSecret: "s", DataKey: "dk", DataSecret: "ds"}
	cfg := config.ExchangeConfig{Timeout: 5 * time.Second, PriceDecimals: 1, QtyDecimals: 3}
	return newBinance(creds, cfg, srv.URL, srv.URL, zap.NewNop())
}

func TestBinanceAccount(t *testing.T) {
	b := newTestBinance(t, &fakeVenue{})
	acct, err := b.Account(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0.02, acct.WalletBalances["BTC"])
	require.Equal(t, 512.34, acct.WalletBalances["USDT"])
	require.Equal(t, 1512.34, acct.TotalMarginBalance)
}

func TestBinancePositionSplitsHedgeLegs(t *testing.T) {
	b := newTestBinance(t, &fakeVenue{})
	pos, err := b.Position(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, 0.01, pos.Long.Amount)
	require.Equal(t, 0.01, pos.Short.Amount)
	require.Equal(t, 49010.0, pos.Short.EntryPrice)
	require.Equal(t, -4.5, pos.Short.Unrealized)
	require.Equal(t, 10.5, pos.Long.Unrealized)
}

func TestBinanceKlines(t *testing.T) {
	b := newTestBinance(t, &fakeVenue{})
	candles, err := b.Klines(context.Background(), "BTCUSDT", "15m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	require.Equal(t, 50150.0, candles[1].Close)
	require.Equal(t, time.UnixMilli(1700000900000), candles[1].Start)
}

func TestBinanceIncomeHistory(t *testing.T) {
	b := newTestBinance(t, &fakeVenue{})
	rows, err := b.IncomeHistory(context.Background(), time.UnixMilli(1699999999000), 1000)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(11), rows[0].TranID)
	require.False(t, rows[0].IsTransfer())
	require.True(t, rows[1].IsTransfer())
}

func TestBinanceSubmitOpenPlacesPostOnlyLegs(t *testing.T) {
	venue := &fakeVenue{}
	b := newTestBinance(t, venue)
	rep, err := b.SubmitOpen(context.Background(), OpenOrder{Pair: "BTCUSDT", Long: 0.01, Short: 0.01, Price: 50000.04, ClientID: "abc"})
	require.NoError(t, err)
	require.Len(t, rep.OrderIDs, 2)
	require.Len(t, venue.orders, 2)
	long, short := venue.orders[0], venue.orders[1]
	require.Equal(t, "BUY", long["side"])
	require.Equal(t, "LONG", long["positionSide"])
	require.Equal(t, "GTX", long["timeInForce"])
	require.Equal(t, "0.010", long["quantity"])
	require.Equal(t, "50000.0", long["price"])
	require.Equal(t, "abcL", long["newClientOrderId"])
	require.Equal(t, "SELL", short["side"])
	require.Equal(t, "SHORT", short["positionSide"])
	require.Equal(t, time.UnixMilli(1700000002000), rep.Time)
}

func TestBinanceSubmitCloseAtMarket(t *testing.T) {
	venue := &fakeVenue{}
	b := newTestBinance(t, venue)
	rep, err := b.SubmitClose(context.Background(), CloseOrder{Pair: "BTCUSDT", Long: 0.01, Short: 0.01, ClientID: "c"})
	require.NoError(t, err)
	require.Len(t, venue.orders, 2)
	require.Equal(t, "MARKET", venue.orders[0]["type"])
	require.Equal(t, "SELL", venue.orders[0]["side"])
	require.Equal(t, "BUY", venue.orders[1]["side"])
	require.Equal(t, 50000.0, rep.Price)
}

func TestBinanceConversionToStableRoundTripsFunds(t *testing.T) {
	venue := &fakeVenue{}
	b := newTestBinance(t, venue)
	rep, err := b.SubmitConversion(context.Background(), ConversionOrder{
		Pair: "BTCUSDT", BaseAsset: "BTC", StableAsset: "USDT",
		Direction: ToStable, QuoteAmount: 16.5, Price: 50000, ClientID: "conv",
	})
	require.NoError(t, err)
	require.Len(t, venue.spot, 1)
	require.Equal(t, "SELL", venue.spot[0]["side"])
	require.Equal(t, "0.00033", venue.spot[0]["quantity"])
	require.Len(t, venue.transfer, 2)
	require.Equal(t, "UMFUTURE_MAIN", venue.transfer[0]["type"])
	require.Equal(t, "BTC", venue.transfer[0]["asset"])
	require.Equal(t, "0.00033", venue.transfer[0]["amount"])
	require.Equal(t, "MAIN_UMFUTURE", venue.transfer[1]["type"])
	require.Equal(t, "USDT", venue.transfer[1]["asset"])
	require.Equal(t, "22.5", venue.transfer[1]["amount"])
	require.Equal(t, 22.5, rep.QuoteQuantity)
}

func TestBinanceRebalanceWithinToleranceSkips(t *testing.T) {
	venue := &fakeVenue{}
	b := newTestBinance(t, venue)
	_, err := b.SubmitRebalance(context.Background(), RebalanceOrder{TargetRatio: 0.3, CurrentRatio: 0.301, Equity: 1000, Price: 50000})
	require.NoError(t, err)
	require.Empty(t, venue.spot)
}

func TestBinanceRebalanceBuysBaseWhenOverStable(t *testing.T) {
	venue := &fakeVenue{}
	b := newTestBinance(t, venue)
	_, err := b.SubmitRebalance(context.Background(), RebalanceOrder{
		Pair: "BTCUSDT", BaseAsset: "BTC", StableAsset: "USDT",
		TargetRatio: 0.25, CurrentRatio: 0.5, Equity: 1000, Price: 50000,
	})
	require.NoError(t, err)
	require.Len(t, venue.spot, 1)
	require.Equal(t, "BUY", venue.spot[0]["side"])
	require.Equal(t, "250", venue.spot[0]["quoteOrderQty"])
}

func TestBinanceRejectedOrderIsNotTransient(t *testing.T) {
	venue := &fakeVenue{fail: map[string]string{"/fapi/v1/order": `{"code":-2019,"msg":"Margin is insufficient."}`}}
	b := newTestBinance(t, venue)
	_, err := b.SubmitOpen(context.Background(), OpenOrder{Pair: "BTCUSDT", Long: 0.01, Short: 0.01, Price: 50000, ClientID: "x"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrRejected))
	require.False(t, errors.Is(err, ErrTransient))
	var exErr *Error
	require.True(t, errors.As(err, &exErr))
	require.Equal(t, int64(-2019), exErr.Code)
}

func TestBinanceRateLimitIsTransient(t *testing.T) {
	venue := &fakeVenue{fail: map[string]string{"/klines": `{"code":-1003,"msg":"Too many requests."}`}}
	b := newTestBinance(t, venue)
	_, err := b.Klines(context.Background(), "BTCUSDT", "15m", 2)
	require.True(t, errors.Is(err, ErrTransient))
}
