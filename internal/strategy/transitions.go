package strategy

import (
	"fmt"
	"math"
)

// Enter sizes and opens a hedged position. Capital below the minimum order
// size is a no-op: the snapshot is returned unchanged with no commands.
func Enter(s Snapshot, p Params, sig Signals) (Snapshot, []Command, error) {
	if err := tradeable(s); err != nil {
		return s, nil, err
	}
	if s.InTrade() {
		return s, nil, ErrAlreadyInTrade
	}
	capital := Capital(s.Balance.Base, p.Ammo)
	if capital < p.MinOrderSize {
		return s, nil, nil
	}
	long, short := Legs(capital, p.LongPct, p.ShortPct)

	next := s.clone()
	next.State = nextState(s.State, EventOpened)
	next.Position = Position{LongAmount: long, ShortAmount: short, EntryPrice: s.Price}
	next.Trail.OpenPrice = s.Price
	next.Trail.OpenTime = s.At
	next.Trail.BuyPrice = 0
	next.PnL = PnL{}

	cmds := []Command{
		SubmitOpen{Long: long, Short: short, Price: s.Price},
		AppendTrade{
			Kind:    TradeOpen,
			Side:    SideBuy,
			Signals: sig,
			InTrade: true,
			Price:   s.Price,
			Long:    long,
			Short:   short,
		},
		CacheSet{Namespace: NamespaceCache, Field: FieldOpenTime, FromFill: true},
		cacheSet(FieldOpenPrice, s.Price),
		cacheSet(FieldTrailBuy, 0),
		AppendBalance{},
	}
	return next, cmds, nil
}

// EnterTrail records a trailing reference price for side. SELL trails protect an
// open position's exit; BUY trails track a pending entry.
func EnterTrail(s Snapshot, side Side, sig Signals) (Snapshot, []Command, error) {
	if err := tradeable(s); err != nil {
		return s, nil, err
	}
	next := s.clone()
	var cmds []Command
	switch side {
	case SideSell:
		next.Trail.SellPrice = RatchetSell(s.Trail.SellPrice, s.Price)
		next.Trail.ExitPrice = s.Price
		cmds = append(cmds,
			cacheSet(FieldTrailSell, next.Trail.SellPrice),
			cacheSet(FieldExitPrice, next.Trail.ExitPrice),
		)
	case SideBuy:
		next.Trail.BuyPrice = RatchetBuy(s.Trail.BuyPrice, s.Price)
		next.Trail.OpenPrice = s.Price
		cmds = append(cmds,
			cacheSet(FieldTrailBuy, next.Trail.BuyPrice),
			cacheSet(FieldOpenPrice, next.Trail.OpenPrice),
		)
	default:
		return s, nil, fmt.Errorf("trail %q: %w", side, ErrInvalidSide)
	}
	cmds = append(cmds, AppendTrade{
		Kind:    TradeTrail,
		Side:    side,
		Signals: sig,
		InTrade: s.InTrade(),
		Price:   s.Price,
		Long:    s.Position.LongAmount,
		Short:   s.Position.ShortAmount,
		PnL:     s.PnL.PnL,
	})
	return next, cmds, nil
}

// Exit closes the open position. The realized PnL used for conversion
// routing is the last fee-netted PnL computed while in trade.
func Exit(s Snapshot, p Params, sig Signals, manual bool) (Snapshot, []Command, error) {
	if err := tradeable(s); err != nil {
		return s, nil, err
	}
	if !s.InTrade() {
		return s, nil, ErrNotInTrade
	}
	realized := s.PnL.PnL

	next := s.clone()
	next.State = nextState(s.State, EventClosed)
	next.PnL = PnL{}
	next.Position = Position{}
	next.Trail.SellPrice = 0
	next.Trail.ExitPrice = 0
	next.Trail.OpenPrice = 0
	next.Trail.OpenTime = zeroTime

	cmds := []Command{
		SubmitClose{
			Long:       s.Position.LongAmount,
			Short:      s.Position.ShortAmount,
			EntryPrice: s.Position.EntryPrice,
			Manual:     manual,
		},
		AppendTrade{
			Kind:    TradeClose,
			Side:    SideSell,
			Signals: sig,
			InTrade: false,
			Manual:  manual,
			Price:   s.Price,
			Long:    s.Position.LongAmount,
			Short:   s.Position.ShortAmount,
			PnL:     realized,
		},
		cacheSet(FieldTrailSell, 0),
		cacheSet(FieldExitPrice, 0),
		cacheSet(FieldOpenTime, 0),
		cacheSet(FieldOpenPrice, 0),
		indicatorSet(FieldShortPnL, 0),
		indicatorSet(FieldLongPnL, 0),
		Settle{},
		SyncHistory{},
	}
	cmds = append(cmds, Route(realized, s.Control.BalanceSlider, p.Routing)...)
	return next, cmds, nil
}

// Route picks at most one conversion for a realized PnL. Profits above the
// profit threshold move the slider-weighted share into the base asset;
// losses below the loss threshold move |pnl| times the over-convert factor
// of base into stable. Anything in between converts nothing.
func Route(realized, slider float64, r Routing) []Command {
	if r.profitHit(realized) {
		share := 1 - ClampRatio(slider)
		amount := Round(realized*share, 2)
		if amount <= 0 {
			return nil
		}
		return []Command{SubmitConversion{Direction: ToBase, QuoteAmount: amount, RealizedPnL: realized}}
	}
	if r.lossHit(realized) {
		amount := Round(math.Abs(realized)*r.LossOverConvert, 2)
		return []Command{SubmitConversion{Direction: ToStable, QuoteAmount: amount, RealizedPnL: realized}}
	}
	return nil
}

func (r Routing) profitHit(pnl float64) bool {
	if r.ProfitInclusive {
		return pnl >= r.ProfitThreshold
	}
	return pnl > r.ProfitThreshold
}

func (r Routing) lossHit(pnl float64) bool {
	if r.LossInclusive {
		return pnl <= r.LossThreshold
	}
	return pnl < r.LossThreshold
}

// Stop marks the instance as stopping. Stopping an already stopped instance
// emits nothing.
func Stop(s Snapshot, p Params) (Snapshot, []Command) {
	if s.State == StateStopping {
		return s, nil
	}
	next := s.clone()
	next.State = nextState(s.State, EventStop)
	return next, []Command{
		cacheSet(FieldAlive, 0),
		Notify{Title: fmt.Sprintf("Bot Stopped %s | %s", p.Account, p.Pair), Body: "Bot Stopped"},
	}
}
