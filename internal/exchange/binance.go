package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hedge-bot/internal/config"
	"hedge-bot/internal/market"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	spotQtyDecimals   = 5
	quoteDecimals     = 2
	minQuoteNotional  = 5.0
	transferSettleGap = 500 * time.Millisecond
)

// Binance talks to USDⓈ-M futures for positions and to spot for asset
// conversions. Futures must be in hedge (dual side) mode.
type Binance struct {
	trade *futures.Client
	data  *futures.Client
	spot  *binance.Client

	priceDecimals int32
	qtyDecimals   int32
	log           *zap.Logger
}

func NewBinance(creds config.Credentials, cfg config.ExchangeConfig, log *zap.Logger) *Binance {
	futures.UseTestnet = cfg.Testnet
	binance.UseTestnet = cfg.Testnet
	return newBinance(creds, cfg, "", "", log)
}

func newBinance(creds config.Credentials, cfg config.ExchangeConfig, futuresURL, spotURL string, log *zap.Logger) *Binance {
	if log == nil {
		log = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	trade := futures.NewClient(creds.TradeKey, creds.TradeSecret)
	data := futures.NewClient(creds.DataKey, creds.DataSecret)
	spot := binance.NewClient(creds.TradeKey, creds.TradeSecret)
	for _, c := range []*futures.Client{trade, data} {
		c.HTTPClient = httpClient
		if futuresURL != "" {
			c.BaseURL = futuresURL
		}
	}
	spot.HTTPClient = httpClient
	if spotURL != "" {
		spot.BaseURL = spotURL
	}
	return &Binance{
		trade:         trade,
		data:          data,
		spot:          spot,
		priceDecimals: cfg.PriceDecimals,
		qtyDecimals:   cfg.QtyDecimals,
		log:           log,
	}
}

func (b *Binance) Account(ctx context.Context) (Account, error) {
	res, err := b.data.NewGetAccountService().Do(ctx)
	if err != nil {
		return Account{}, Classify("account", err)
	}
	out := Account{WalletBalances: make(map[string]float64, len(res.Assets))}
	for _, a := range res.Assets {
		out.WalletBalances[a.Asset] = parseFloat(a.WalletBalance)
	}
	out.TotalMarginBalance = parseFloat(res.TotalMarginBalance)
	return out, nil
}

func (b *Binance) Position(ctx context.Context, pair string) (Position, error) {
	res, err := b.trade.NewGetPositionRiskService().Symbol(pair).Do(ctx)
	if err != nil {
		return Position{}, Classify("position", err)
	}
	out := Position{Pair: pair}
	for _, p := range res {
		leg := Leg{
			Amount:     math.Abs(parseFloat(p.PositionAmt)),
			EntryPrice: parseFloat(p.EntryPrice),
			Unrealized: parseFloat(p.UnRealizedProfit),
		}
		switch strings.ToUpper(p.PositionSide) {
		case string(futures.PositionSideTypeLong):
			out.Long = leg
		case string(futures.PositionSideTypeShort):
			out.Short = leg
		}
	}
	return out, nil
}

func (b *Binance) Klines(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	res, err := b.data.NewKlinesService().Symbol(pair).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, Classify("klines", err)
	}
	out := make([]market.Candle, 0, len(res))
	for _, k := range res {
		out = append(out, market.Candle{
			Pair:      pair,
			Interval:  interval,
			Start:     time.UnixMilli(k.OpenTime),
			CloseTime: time.UnixMilli(k.CloseTime),
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
		})
	}
	return out, nil
}

func (b *Binance) IncomeHistory(ctx context.Context, start time.Time, limit int) ([]Income, error) {
	svc := b.trade.NewGetIncomeHistoryService().Limit(int64(limit))
	if !start.IsZero() {
		svc = svc.StartTime(start.UnixMilli())
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return nil, Classify("income", err)
	}
	out := make([]Income, 0, len(res))
	for _, r := range res {
		out = append(out, Income{
			Symbol:  r.Symbol,
			Type:    r.IncomeType,
			Amount:  parseFloat(r.Income),
			Asset:   r.Asset,
			Info:    r.Info,
			Time:    time.UnixMilli(r.Time),
			TranID:  r.TranID,
			TradeID: r.TradeID,
		})
	}
	return out, nil
}

// SubmitOpen places both legs as post-only limit orders at the given price.
// If the second leg fails the first is not unwound; the next position read
// reflects whatever actually filled.
func (b *Binance) SubmitOpen(ctx context.Context, order OpenOrder) (Report, error) {
	price := b.price(order.Price)
	report := Report{ClientID: order.ClientID}
	legs := []struct {
		suffix string
		side   futures.SideType
		pos    futures.PositionSideType
		qty    float64
	}{
		{"L", futures.SideTypeBuy, futures.PositionSideTypeLong, order.Long},
		{"S", futures.SideTypeSell, futures.PositionSideTypeShort, order.Short},
	}
	for _, leg := range legs {
		if leg.qty <= 0 {
			continue
		}
		res, err := b.trade.NewCreateOrderService().
			Symbol(order.Pair).
			Side(leg.side).
			PositionSide(leg.pos).
			Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTX).
			Quantity(b.qty(leg.qty)).
			Price(price).
			NewClientOrderID(order.ClientID + leg.suffix).
			Do(ctx)
		if err != nil {
			return report, Classify("open "+string(leg.pos), err)
		}
		report.OrderIDs = append(report.OrderIDs, strconv.FormatInt(res.OrderID, 10))
		report.Time = time.UnixMilli(res.UpdateTime)
	}
	report.Price = order.Price
	report.Quantity = order.Long + order.Short
	return report, nil
}

// SubmitClose closes both legs at market.
func (b *Binance) SubmitClose(ctx context.Context, order CloseOrder) (Report, error) {
	report := Report{ClientID: order.ClientID}
	legs := []struct {
		suffix string
		side   futures.SideType
		pos    futures.PositionSideType
		qty    float64
	}{
		{"L", futures.SideTypeSell, futures.PositionSideTypeLong, order.Long},
		{"S", futures.SideTypeBuy, futures.PositionSideTypeShort, order.Short},
	}
	var notional, filled float64
	for _, leg := range legs {
		if leg.qty <= 0 {
			continue
		}
		res, err := b.trade.NewCreateOrderService().
			Symbol(order.Pair).
			Side(leg.side).
			PositionSide(leg.pos).
			Type(futures.OrderTypeMarket).
			Quantity(b.qty(leg.qty)).
			NewClientOrderID(order.ClientID + leg.suffix).
			Do(ctx)
		if err != nil {
			return report, Classify("close "+string(leg.pos), err)
		}
		report.OrderIDs = append(report.OrderIDs, strconv.FormatInt(res.OrderID, 10))
		report.Time = time.UnixMilli(res.UpdateTime)
		if avg := parseFloat(res.AvgPrice); avg > 0 {
			notional += avg * leg.qty
			filled += leg.qty
		}
	}
	if filled > 0 {
		report.Price = notional / filled
	} else {
		report.Price = order.EntryPrice
	}
	report.Quantity = order.Long + order.Short
	return report, nil
}

// SubmitRebalance converts the difference between the current and target
// stable ratio. Differences below the venue minimum notional are skipped.
func (b *Binance) SubmitRebalance(ctx context.Context, order RebalanceOrder) (Report, error) {
	delta := (order.TargetRatio - order.CurrentRatio) * order.Equity
	if math.Abs(delta) < minQuoteNotional {
		b.log.Info("rebalance within tolerance",
			zap.Float64("target", order.TargetRatio),
			zap.Float64("current", order.CurrentRatio),
		)
		return Report{ClientID: order.ClientID}, nil
	}
	dir := ToStable
	if delta < 0 {
		dir = ToBase
	}
	return b.SubmitConversion(ctx, ConversionOrder{
		Pair:        order.Pair,
		BaseAsset:   order.BaseAsset,
		StableAsset: order.StableAsset,
		Direction:   dir,
		QuoteAmount: math.Abs(delta),
		Price:       order.Price,
		ClientID:    order.ClientID,
	})
}

// SubmitConversion moves funds out of the futures wallet, trades them on
// spot at market and moves the proceeds back.
func (b *Binance) SubmitConversion(ctx context.Context, order ConversionOrder) (Report, error) {
	if order.QuoteAmount <= 0 {
		return Report{}, &Error{Op: "convert", kind: ErrRejected, err: errors.New("non-positive conversion amount")}
	}
	if order.Price <= 0 {
		return Report{}, &Error{Op: "convert", kind: ErrRejected, err: errors.New("conversion needs a price")}
	}
	report := Report{ClientID: order.ClientID}
	svc := b.spot.NewCreateOrderService().
		Symbol(order.Pair).
		Type(binance.OrderTypeMarket).
		NewClientOrderID(order.ClientID)

	switch order.Direction {
	case ToBase:
		quote := decimal.NewFromFloat(order.QuoteAmount).Truncate(quoteDecimals)
		if err := b.transfer(ctx, binance.UserUniversalTransferTypeUmFuturesToMain, order.StableAsset, quote); err != nil {
			return report, err
		}
		svc = svc.Side(binance.SideTypeBuy).QuoteOrderQty(quote.String())
	case ToStable:
		qty := decimal.NewFromFloat(order.QuoteAmount / order.Price).Truncate(spotQtyDecimals)
		if err := b.transfer(ctx, binance.UserUniversalTransferTypeUmFuturesToMain, order.BaseAsset, qty); err != nil {
			return report, err
		}
		svc = svc.Side(binance.SideTypeSell).Quantity(qty.String())
	default:
		return report, &Error{Op: "convert", kind: ErrRejected, err: fmt.Errorf("unknown direction %q", order.Direction)}
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return report, Classify("convert "+string(order.Direction), err)
	}
	report.OrderIDs = append(report.OrderIDs, strconv.FormatInt(res.OrderID, 10))
	report.Time = time.UnixMilli(res.TransactTime)
	report.Quantity = parseFloat(res.ExecutedQuantity)
	report.QuoteQuantity = parseFloat(res.CummulativeQuoteQuantity)
	if report.Quantity > 0 {
		report.Price = report.QuoteQuantity / report.Quantity
	}

	back, asset := report.Quantity, order.BaseAsset
	if order.Direction == ToStable {
		back, asset = report.QuoteQuantity, order.StableAsset
	}
	if back > 0 {
		timer := time.NewTimer(transferSettleGap)
		select {
		case <-ctx.Done():
			timer.Stop()
			return report, ctx.Err()
		case <-timer.C:
		}
		if err := b.transfer(ctx, binance.UserUniversalTransferTypeMainToUmFutures, asset, decimal.NewFromFloat(back)); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (b *Binance) transfer(ctx context.Context, kind binance.UserUniversalTransferType, asset string, amount decimal.Decimal) error {
	_, err := b.spot.NewUserUniversalTransferService().
		Type(kind).
		Asset(asset).
		Amount(amount.String()).
		Do(ctx)
	if err != nil {
		return Classify(fmt.Sprintf("transfer %s %s", kind, asset), err)
	}
	return nil
}

func (b *Binance) price(v float64) string {
	return decimal.NewFromFloat(v).Round(b.priceDecimals).StringFixed(b.priceDecimals)
}

func (b *Binance) qty(v float64) string {
	return decimal.NewFromFloat(v).Round(b.qtyDecimals).StringFixed(b.qtyDecimals)
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}
