package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"hedge-bot/internal/exchange"
	"hedge-bot/internal/ledger"

	"go.uber.org/zap"
)

func (e *Engine) cursorKey() string {
	return "ledger:income_cursor:" + e.acct.ID
}

// SyncLedger records a balance row, retries queued appends and pulls new
// income history.
func (e *Engine) SyncLedger(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.appendBalance(ctx)
	var errs []error
	if err := e.ledger.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.syncIncome(ctx); err != nil {
		errs = append(errs, err)
	}
	e.metrics.LedgerPending.Set(float64(e.ledger.Pending()))
	return errors.Join(errs...)
}

// SnapshotPnL appends a PnL sample while a position is open.
func (e *Engine) SnapshotPnL(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.snap
	if !s.InTrade() {
		return nil
	}
	err := e.ledger.Append(ctx, e.tables.PnL, ledger.PnLSample{
		Time:        e.clock.Now(),
		Account:     e.acct.ID,
		Pair:        e.acct.Pair,
		LongAmount:  s.Position.LongAmount,
		ShortAmount: s.Position.ShortAmount,
		LongPct:     e.params.LongPct,
		ShortPct:    e.params.ShortPct,
		EntryPrice:  s.Position.EntryPrice,
		Price:       s.Price,
		PnL:         s.PnL.PnL,
		ROE:         s.PnL.ROE,
	})
	if err != nil {
		e.metrics.LedgerFailed.Inc()
	}
	return err
}

// HealCache recreates missing cache keys and returns how many were created.
func (e *Engine) HealCache(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.cache.Init(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.log.Info("cache keys recreated", zap.Int("created", n))
	}
	return n, nil
}

func (e *Engine) BackupCache(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Backup(ctx)
}

// syncIncome appends income records newer than the stored cursor, split
// into transactions and transfers. The cursor only advances once both
// batches are written; replays are absorbed by the tran_id constraint.
func (e *Engine) syncIncome(ctx context.Context) error {
	cursor, err := e.incomeCursor(ctx)
	if err != nil {
		return err
	}
	start := time.Time{}
	if !cursor.IsZero() {
		start = cursor.Add(time.Millisecond)
	}
	records, err := e.reader.IncomeHistory(ctx, start, e.exchange.IncomeLimit)
	if err != nil {
		return fmt.Errorf("income history: %w", err)
	}

	var trans, transfers []ledger.Row
	latest := cursor
	for _, r := range records {
		if !r.Time.After(cursor) {
			continue
		}
		if r.Time.After(latest) {
			latest = r.Time
		}
		if r.IsTransfer() {
			transfers = append(transfers, e.transferRow(r))
		} else {
			trans = append(trans, e.transactionRow(r))
		}
	}
	if len(trans) == 0 && len(transfers) == 0 {
		return nil
	}

	var errs []error
	if err := e.ledger.Append(ctx, e.tables.Transactions, trans...); err != nil {
		errs = append(errs, err)
	}
	if err := e.ledger.Append(ctx, e.tables.Transfers, transfers...); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		e.metrics.LedgerFailed.Inc()
		return errors.Join(errs...)
	}
	if e.store != nil {
		if err := e.store.Set(ctx, e.cursorKey(), strconv.FormatInt(latest.UnixMilli(), 10)); err != nil {
			e.log.Warn("persist income cursor failed", zap.Error(err))
		}
	}
	e.log.Info("income synced", zap.Int("transactions", len(trans)), zap.Int("transfers", len(transfers)))
	return nil
}

// incomeCursor prefers the stored cursor and falls back to the newest row
// already in the ledger.
func (e *Engine) incomeCursor(ctx context.Context) (time.Time, error) {
	if e.store != nil {
		raw, ok, err := e.store.Get(ctx, e.cursorKey())
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			ms, err := strconv.ParseInt(raw, 10, 64)
			if err == nil {
				return time.UnixMilli(ms), nil
			}
			e.log.Warn("ignoring unreadable income cursor", zap.String("value", raw))
		}
	}
	var cursor time.Time
	for _, t := range []ledger.Table{e.tables.Transactions, e.tables.Transfers} {
		last, ok, err := e.ledger.LastTime(ctx, t)
		if err != nil {
			return time.Time{}, err
		}
		if ok && last.After(cursor) {
			cursor = last
		}
	}
	return cursor, nil
}

func (e *Engine) transactionRow(r exchange.Income) ledger.Transaction {
	return ledger.Transaction{
		Time:    r.Time,
		Account: e.acct.ID,
		Symbol:  r.Symbol,
		Type:    r.Type,
		Amount:  r.Amount,
		Asset:   r.Asset,
		Info:    r.Info,
		TranID:  r.TranID,
		TradeID: r.TradeID,
	}
}

func (e *Engine) transferRow(r exchange.Income) ledger.Transfer {
	return ledger.Transfer{
		Time:    r.Time,
		Account: e.acct.ID,
		Type:    r.Type,
		Amount:  r.Amount,
		Asset:   r.Asset,
		Info:    r.Info,
		TranID:  r.TranID,
	}
}
