package engine

import (
	"context"
	"fmt"
	"time"

	"hedge-bot/internal/exchange"
	"hedge-bot/internal/ledger"
	"hedge-bot/internal/strategy"

	"go.uber.org/zap"
)

// apply executes cmds in order and installs next as the current snapshot.
// An open or close submission gates the transition: if it fails, nothing
// after it runs and the snapshot stays as it was. Every other command is
// best effort.
func (e *Engine) apply(ctx context.Context, next strategy.Snapshot, cmds []strategy.Command) error {
	var rep exchange.Report
	committed := false
	commit := func() {
		if !committed {
			e.snap = next
			committed = true
		}
	}

	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case strategy.SubmitOpen:
			r, err := e.orders.Open(ctx, exchange.OpenOrder{
				Pair:     e.acct.Pair,
				Long:     c.Long,
				Short:    c.Short,
				Price:    c.Price,
				ClientID: e.beginIntent(ctx, intentOpen),
			})
			if err != nil {
				return fmt.Errorf("submit open: %w", err)
			}
			rep = r
			e.endIntent(ctx)
			e.log.Info("position opened",
				zap.Float64("long", c.Long),
				zap.Float64("short", c.Short),
				zap.Float64("price", c.Price),
				zap.Strings("order_ids", r.OrderIDs),
			)
		case strategy.SubmitClose:
			r, err := e.orders.Close(ctx, exchange.CloseOrder{
				Pair:       e.acct.Pair,
				Long:       c.Long,
				Short:      c.Short,
				EntryPrice: c.EntryPrice,
				ClientID:   e.beginIntent(ctx, intentClose),
			})
			if err != nil {
				return fmt.Errorf("submit close: %w", err)
			}
			rep = r
			e.endIntent(ctx)
			e.log.Info("position closed",
				zap.Float64("long", c.Long),
				zap.Float64("short", c.Short),
				zap.Bool("manual", c.Manual),
				zap.Strings("order_ids", r.OrderIDs),
			)
		default:
			commit()
			e.run(ctx, cmd, rep)
		}
		commit()
	}
	commit()
	e.publish(ctx)
	return nil
}

func (e *Engine) run(ctx context.Context, cmd strategy.Command, rep exchange.Report) {
	switch c := cmd.(type) {
	case strategy.CacheSet:
		value := c.Value
		if c.FromFill {
			value = float64(e.fillTime(rep).UnixMilli())
		}
		if err := e.cache.Set(ctx, c.Namespace, c.Field, value); err != nil {
			e.log.Warn("cache write failed", zap.String("namespace", string(c.Namespace)), zap.String("field", c.Field), zap.Error(err))
		}
	case strategy.AppendTrade:
		price := c.Price
		if rep.Price > 0 {
			price = rep.Price
		}
		e.append(ctx, e.tables.Trades, ledger.TradeEvent{
			Time:        e.fillTime(rep),
			Account:     e.acct.ID,
			Pair:        e.acct.Pair,
			Kind:        string(c.Kind),
			Side:        string(c.Side),
			Signal1:     c.Signals.First,
			Signal2:     c.Signals.Second,
			InTrade:     c.InTrade,
			Manual:      c.Manual,
			Price:       price,
			LongAmount:  c.Long,
			ShortAmount: c.Short,
			PnL:         c.PnL,
			OrderIDs:    rep.OrderIDs,
		})
	case strategy.AppendBalance:
		e.appendBalance(ctx)
	case strategy.Settle:
		if err := e.clock.Sleep(ctx, e.exchange.SettleDelay); err != nil {
			e.log.Warn("settle wait interrupted", zap.Error(err))
		}
	case strategy.SyncHistory:
		if err := e.syncIncome(ctx); err != nil {
			e.log.Warn("income sync failed", zap.Error(err))
		}
	case strategy.SubmitRebalance:
		e.rebalance(ctx, c)
	case strategy.SubmitConversion:
		e.convert(ctx, c)
	case strategy.Notify:
		e.notify(ctx, c)
	default:
		e.log.Error("unknown command", zap.String("type", fmt.Sprintf("%T", cmd)))
	}
}

func (e *Engine) fillTime(rep exchange.Report) time.Time {
	if !rep.Time.IsZero() {
		return rep.Time
	}
	return e.clock.Now()
}

func (e *Engine) append(ctx context.Context, t ledger.Table, rows ...ledger.Row) {
	if err := e.ledger.Append(ctx, t, rows...); err != nil {
		e.metrics.LedgerFailed.Inc()
		e.log.Warn("ledger append failed, queued for retry", zap.String("table", t.Name), zap.Int("rows", len(rows)), zap.Error(err))
	}
}

// appendBalance records the balance as the exchange reports it now, falling
// back to the snapshot when the read fails.
func (e *Engine) appendBalance(ctx context.Context) {
	bal := e.snap.Balance
	if acct, err := e.reader.Account(ctx); err != nil {
		e.log.Warn("balance read failed, recording last known balance", zap.Error(err))
	} else {
		bal = e.balanceFrom(acct.WalletBalances, acct.TotalMarginBalance)
	}
	e.append(ctx, e.tables.Balances, ledger.BalanceInfo{
		Time:          e.clock.Now(),
		Account:       e.acct.ID,
		Pair:          e.acct.Pair,
		Price:         e.snap.Price,
		BaseBalance:   bal.Base,
		StableBalance: bal.StableTotal(),
		Equity:        bal.Equity,
		Ratio:         bal.Ratio,
	})
}

func (e *Engine) rebalance(ctx context.Context, c strategy.SubmitRebalance) {
	id := e.clientID(intentRebalance)
	rep, err := e.orders.Rebalance(ctx, exchange.RebalanceOrder{
		Pair:         e.acct.Pair,
		BaseAsset:    e.acct.BaseAsset,
		StableAsset:  e.acct.QuoteAsset(),
		TargetRatio:  c.TargetRatio,
		CurrentRatio: e.snap.Balance.Ratio,
		Equity:       e.snap.Balance.Equity,
		Price:        e.snap.Price,
		ClientID:     id,
	})
	if err != nil {
		e.log.Warn("rebalance failed", zap.Float64("target", c.TargetRatio), zap.Error(err))
		return
	}
	e.forget(ctx, id)
	e.log.Info("rebalanced",
		zap.Float64("target", c.TargetRatio),
		zap.Float64("from", e.snap.Balance.Ratio),
		zap.Float64("quote", rep.QuoteQuantity),
	)
}

func (e *Engine) convert(ctx context.Context, c strategy.SubmitConversion) {
	dir := exchange.ToBase
	if c.Direction == strategy.ToStable {
		dir = exchange.ToStable
	}
	id := e.clientID(intentConvert)
	rep, err := e.orders.Convert(ctx, exchange.ConversionOrder{
		Pair:        e.acct.Pair,
		BaseAsset:   e.acct.BaseAsset,
		StableAsset: e.acct.QuoteAsset(),
		Direction:   dir,
		QuoteAmount: c.QuoteAmount,
		Price:       e.snap.Price,
		ClientID:    id,
	})
	if err != nil {
		e.metrics.ConversionFailed.Inc()
		e.log.Warn("conversion failed",
			zap.String("direction", string(c.Direction)),
			zap.Float64("quote_amount", c.QuoteAmount),
			zap.Float64("realized_pnl", c.RealizedPnL),
			zap.Error(err),
		)
		return
	}
	e.forget(ctx, id)
	e.log.Info("converted realized pnl",
		zap.String("direction", string(c.Direction)),
		zap.Float64("quote_amount", c.QuoteAmount),
		zap.Float64("filled_qty", rep.Quantity),
	)
}

func (e *Engine) notify(ctx context.Context, c strategy.Notify) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := e.notifier.Notify(ctx, c.Title, c.Body); err != nil {
		e.log.Warn("notification failed", zap.String("title", c.Title), zap.Error(err))
	}
}
