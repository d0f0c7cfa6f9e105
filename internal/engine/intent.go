package engine

import (
	"context"
	"encoding/json"
	"strconv"

	"hedge-bot/internal/exec"
	"hedge-bot/internal/strategy"

	"go.uber.org/zap"
)

// IntentPrefix prefixes pending submissions in the state store.
const IntentPrefix = "intent:"

const (
	intentOpen      = "open"
	intentClose     = "close"
	intentRebalance = "rebalance"
	intentConvert   = "convert"
)

var intentPrefixes = map[string]string{
	intentOpen:      "hbo",
	intentClose:     "hbc",
	intentRebalance: "hbr",
	intentConvert:   "hbx",
}

// intent is an open or close that was submitted but whose outcome has not
// been committed yet. While it is pending, a repeated attempt of the same
// kind reuses its client order id.
type intent struct {
	Kind     string `json:"kind"`
	ClientID string `json:"client_id"`
	Cycle    uint64 `json:"cycle"`
}

func (e *Engine) intentKey() string {
	return IntentPrefix + e.acct.ID + ":" + e.acct.Pair
}

// clientID derives the client order id for kind at the current cycle.
func (e *Engine) clientID(kind string) string {
	return exec.IntentClientID(intentPrefixes[kind], e.acct.ID, e.acct.Pair, kind, strconv.FormatUint(e.snap.Cycle, 10))
}

// beginIntent returns the client order id for a gated submission and
// persists it before anything reaches the venue.
func (e *Engine) beginIntent(ctx context.Context, kind string) string {
	if p := e.pending; p != nil && p.Kind == kind {
		e.log.Info("replaying pending submission", zap.String("kind", kind), zap.String("client_id", p.ClientID))
		return p.ClientID
	}
	in := intent{Kind: kind, ClientID: e.clientID(kind), Cycle: e.snap.Cycle}
	e.pending = &in
	if e.store != nil {
		payload, err := json.Marshal(in)
		if err == nil {
			err = e.store.Set(ctx, e.intentKey(), string(payload))
		}
		if err != nil {
			e.log.Warn("persist intent failed", zap.String("kind", kind), zap.Error(err))
		}
	}
	return in.ClientID
}

// endIntent clears the pending intent and its remembered report.
func (e *Engine) endIntent(ctx context.Context) {
	p := e.pending
	if p == nil {
		return
	}
	e.pending = nil
	if e.store != nil {
		if err := e.store.Delete(ctx, e.intentKey()); err != nil {
			e.log.Warn("clear intent failed", zap.Error(err))
		}
	}
	e.forget(ctx, p.ClientID)
}

func (e *Engine) forget(ctx context.Context, clientID string) {
	if err := e.orders.Forget(ctx, clientID); err != nil {
		e.log.Debug("forget order report failed", zap.String("client_id", clientID), zap.Error(err))
	}
}

// loadIntent picks up an intent left behind by a previous process.
func (e *Engine) loadIntent(ctx context.Context) {
	if e.store == nil {
		return
	}
	raw, ok, err := e.store.Get(ctx, e.intentKey())
	if err != nil {
		e.log.Warn("load intent failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var in intent
	if err := json.Unmarshal([]byte(raw), &in); err != nil || in.ClientID == "" {
		e.log.Warn("discarding unreadable intent", zap.String("value", raw))
		return
	}
	e.pending = &in
	e.log.Warn("found pending submission from a previous run",
		zap.String("kind", in.Kind),
		zap.String("client_id", in.ClientID),
		zap.Uint64("cycle", in.Cycle),
	)
}

// reconcileIntent settles a pending intent once the exchange position shows
// its outcome: an open is done when a position exists, a close when none
// does.
func (e *Engine) reconcileIntent(ctx context.Context, seen bool, pos strategy.Position) {
	p := e.pending
	if p == nil || !seen {
		return
	}
	if (p.Kind == intentOpen && pos.InTrade()) || (p.Kind == intentClose && !pos.InTrade()) {
		e.log.Info("pending submission confirmed by position", zap.String("kind", p.Kind), zap.String("client_id", p.ClientID))
		e.endIntent(ctx)
	}
}
