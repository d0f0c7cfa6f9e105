package state

import (
	"context"
	"encoding/json"
	"strings"
)

func SnapshotKey(account, pair string) string {
	return "snapshot:" + account + ":" + pair
}

// SnapshotRecord is the persisted summary of an instance's last cycle.
type SnapshotRecord struct {
	Account      string  `json:"account"`
	Pair         string  `json:"pair"`
	Cycle        uint64  `json:"cycle"`
	State        string  `json:"state"`
	Price        float64 `json:"price"`
	LongAmount   float64 `json:"long_amount"`
	ShortAmount  float64 `json:"short_amount"`
	EntryPrice   float64 `json:"entry_price"`
	PnL          float64 `json:"pnl"`
	ROE          float64 `json:"roe"`
	BaseBalance  float64 `json:"base_balance"`
	Equity       float64 `json:"equity"`
	BalanceRatio float64 `json:"balance_ratio"`
	UpdatedAtMS  int64   `json:"updated_at_ms"`
}

func LoadSnapshot(ctx context.Context, store Store, account, pair string) (SnapshotRecord, bool, error) {
	if store == nil {
		return SnapshotRecord{}, false, nil
	}
	raw, ok, err := store.Get(ctx, SnapshotKey(account, pair))
	if err != nil {
		return SnapshotRecord{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return SnapshotRecord{}, false, nil
	}
	var rec SnapshotRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return SnapshotRecord{}, false, err
	}
	return rec, true, nil
}

func SaveSnapshot(ctx context.Context, store Store, rec SnapshotRecord) error {
	if store == nil {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return store.Set(ctx, SnapshotKey(rec.Account, rec.Pair), string(payload))
}
