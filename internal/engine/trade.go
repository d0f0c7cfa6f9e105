package engine

import (
	"context"

	"hedge-bot/internal/strategy"

	"go.uber.org/zap"
)

// EnterTrade opens a hedged position sized from the base balance. Too little
// capital is not an error: the snapshot is returned unchanged.
func (e *Engine) EnterTrade(ctx context.Context, sig strategy.Signals) (strategy.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, cmds, err := strategy.Enter(e.snap, e.params, sig)
	if err != nil {
		return e.snap, err
	}
	if len(cmds) == 0 {
		e.log.Info("entry skipped, capital below minimum order size",
			zap.Float64("base_balance", e.snap.Balance.Base),
			zap.Float64("ammo", e.params.Ammo),
		)
		return e.snap, nil
	}
	if err := e.apply(ctx, next, cmds); err != nil {
		return e.snap, err
	}
	return e.snap, nil
}

// ExitTrade closes the open position, settles, syncs income history and
// routes the realized PnL.
func (e *Engine) ExitTrade(ctx context.Context, sig strategy.Signals, manual bool) (strategy.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	realized := e.snap.PnL.PnL
	next, cmds, err := strategy.Exit(e.snap, e.params, sig, manual)
	if err != nil {
		return e.snap, err
	}
	if err := e.apply(ctx, next, cmds); err != nil {
		return e.snap, err
	}
	e.log.Info("trade exited", zap.Float64("realized_pnl", realized), zap.Bool("manual", manual))
	return e.snap, nil
}

func (e *Engine) EnterTrail(ctx context.Context, side strategy.Side, sig strategy.Signals) (strategy.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, cmds, err := strategy.EnterTrail(e.snap, side, sig)
	if err != nil {
		return e.snap, err
	}
	if err := e.apply(ctx, next, cmds); err != nil {
		return e.snap, err
	}
	return e.snap, nil
}

// Stop clears the alive flag and sends the stop notification. Later trade
// calls fail with strategy.ErrStopped.
func (e *Engine) Stop(ctx context.Context) strategy.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, cmds := strategy.Stop(e.snap, e.params)
	if len(cmds) == 0 {
		return e.snap
	}
	_ = e.apply(ctx, next, cmds)
	e.log.Info("engine stopped")
	return e.snap
}
