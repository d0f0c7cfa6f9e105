package strategy

import (
	"time"

	"hedge-bot/internal/market"
)

type State string

type Event string

const (
	StateFlat     State = "FLAT"
	StateInTrade  State = "IN_TRADE"
	StateStopping State = "STOPPING"
)

const (
	EventOpened       Event = "OPENED"
	EventClosed       Event = "CLOSED"
	EventPositionSeen Event = "POSITION_SEEN"
	EventFlatSeen     Event = "FLAT_SEEN"
	EventStop         Event = "STOP"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Signals are opaque entry/exit indicators recorded alongside trade events.
type Signals struct {
	First  int
	Second int
}

// Position is the hedged pair as reported by the exchange. ShortAmount is
// the absolute size of the short leg.
type Position struct {
	LongAmount      float64
	ShortAmount     float64
	EntryPrice      float64
	LongUnrealized  float64
	ShortUnrealized float64
}

// InTrade reports whether either leg is open. A lone leg left behind by a
// partially failed close still counts, so Exit can flatten it and Enter
// refuses to stack a new pair on top of it.
func (p Position) InTrade() bool {
	return p.LongAmount > 0 || p.ShortAmount > 0
}

// Hedged reports whether both legs are open.
func (p Position) Hedged() bool {
	return p.LongAmount > 0 && p.ShortAmount > 0
}

// Trail mirrors the cache namespace prices. Zero means unset.
type Trail struct {
	SellPrice float64
	BuyPrice  float64
	OpenPrice float64
	ExitPrice float64
	OpenTime  time.Time
}

type Balance struct {
	Base   float64
	Stable map[string]float64
	Equity float64
	Ratio  float64
}

func (b Balance) StableTotal() float64 {
	var total float64
	for _, v := range b.Stable {
		total += v
	}
	return total
}

type PnL struct {
	PnL float64
	ROE float64
}

// Control is the operator-written control namespace.
type Control struct {
	BalanceTrigger int
	BalanceSlider  float64
}

// Snapshot is the per-cycle view of one (account, pair) instance. Transitions
// never modify a snapshot in place; they return a new one.
type Snapshot struct {
	Cycle    uint64
	At       time.Time
	State    State
	Balance  Balance
	Position Position
	Trail    Trail
	PnL      PnL
	Control  Control
	Price    float64
	Candles  []market.Candle
}

func (s Snapshot) InTrade() bool {
	return s.State == StateInTrade
}

func (s Snapshot) clone() Snapshot {
	next := s
	if s.Balance.Stable != nil {
		next.Balance.Stable = make(map[string]float64, len(s.Balance.Stable))
		for k, v := range s.Balance.Stable {
			next.Balance.Stable[k] = v
		}
	}
	if s.Candles != nil {
		next.Candles = append([]market.Candle(nil), s.Candles...)
	}
	return next
}

// Observation carries one cycle's reads. A false Has flag marks a failed or
// skipped read; the matching snapshot fields keep their last-known values.
type Observation struct {
	At          time.Time
	Balance     Balance
	HasBalance  bool
	Position    Position
	HasPosition bool
	Candles     []market.Candle
	HasCandles  bool
	Trail       Trail
	HasTrail    bool
	Control     Control
	HasControl  bool
}
