package strategy

import (
	"time"

	"hedge-bot/internal/market"
)

var zeroTime time.Time

// Refresh folds one cycle's observation into the previous snapshot. The
// exchange position decides IN_TRADE versus FLAT regardless of any cached
// trail state. PnL and ROE are only computed while in trade.
func Refresh(prev Snapshot, obs Observation, p Params) (Snapshot, []Command) {
	next := prev.clone()
	next.Cycle = prev.Cycle + 1
	if !obs.At.IsZero() {
		next.At = obs.At
	}
	var cmds []Command

	if obs.HasBalance {
		next.Balance = obs.Balance
		cmds = append(cmds, indicatorSet(FieldActBalance, next.Balance.Ratio))
	}
	if obs.HasCandles {
		if price, ok := market.LastClose(obs.Candles); ok {
			next.Price = price
			next.Candles = append([]market.Candle(nil), obs.Candles...)
		}
	}
	if obs.HasTrail {
		next.Trail = obs.Trail
	}
	if obs.HasControl {
		next.Control = obs.Control
	}

	if obs.HasPosition {
		next.Position = obs.Position
		event := EventFlatSeen
		if obs.Position.InTrade() {
			event = EventPositionSeen
		}
		next.State = nextState(next.State, event)
		if next.State == StateInTrade {
			pnl := GainCalc(
				obs.Position.ShortUnrealized,
				obs.Position.LongUnrealized,
				obs.Position.ShortAmount,
				obs.Position.LongAmount,
				next.Price,
				p.FeeRate,
			)
			next.PnL = PnL{PnL: pnl, ROE: ROE(pnl, next.Balance.Equity)}
			cmds = append(cmds,
				indicatorSet(FieldShortPnL, obs.Position.ShortUnrealized),
				indicatorSet(FieldLongPnL, obs.Position.LongUnrealized),
			)
		} else if next.State == StateFlat {
			next.PnL = PnL{}
		}
	}

	var rb []Command
	next, rb = Rebalance(next)
	cmds = append(cmds, rb...)
	return next, cmds
}

// Rebalance is edge-triggered: it fires once per balance_trigger == 1 and
// resets the trigger in the same step.
func Rebalance(s Snapshot) (Snapshot, []Command) {
	if s.Control.BalanceTrigger != 1 {
		return s, nil
	}
	next := s.clone()
	next.Control.BalanceTrigger = 0
	return next, []Command{
		CacheSet{Namespace: NamespaceControl, Field: FieldBalanceTrigger, Value: 0},
		SubmitRebalance{TargetRatio: ClampRatio(s.Control.BalanceSlider)},
	}
}
