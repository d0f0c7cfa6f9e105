package strategy

// Command is a side effect requested by a transition. The engine executes
// commands in order; the pure functions in this package never perform I/O.
type Command interface {
	command()
}

type Namespace string

const (
	NamespaceCache     Namespace = "cache"
	NamespaceControl   Namespace = "control"
	NamespaceIndicator Namespace = "indicator"
)

const (
	FieldAlive          = "alive"
	FieldOpenTime       = "open_time"
	FieldOpenPrice      = "open_price"
	FieldTrailSell      = "trail_sell"
	FieldTrailBuy       = "trail_buy"
	FieldExitPrice      = "exit_price"
	FieldBalanceTrigger = "balance_trigger"
	FieldBalanceSlider  = "balance_slider"
	FieldActBalance     = "act_balance"
	FieldShortPnL       = "short_pnl"
	FieldLongPnL        = "long_pnl"
)

type TradeKind string

const (
	TradeOpen  TradeKind = "open"
	TradeClose TradeKind = "close"
	TradeTrail TradeKind = "trail"
)

type ConversionDirection string

const (
	// ToBase buys the base asset with QuoteAmount of stable.
	ToBase ConversionDirection = "to_base"
	// ToStable sells base asset worth QuoteAmount into stable.
	ToStable ConversionDirection = "to_stable"
)

type SubmitOpen struct {
	Long  float64
	Short float64
	Price float64
}

type SubmitClose struct {
	Long       float64
	Short      float64
	EntryPrice float64
	Manual     bool
}

type SubmitRebalance struct {
	TargetRatio float64
}

type SubmitConversion struct {
	Direction   ConversionDirection
	QuoteAmount float64
	RealizedPnL float64
}

// AppendTrade records a trade event. The engine fills in time and order ids
// from the preceding submission, if any.
type AppendTrade struct {
	Kind    TradeKind
	Side    Side
	Signals Signals
	InTrade bool
	Manual  bool
	Price   float64
	Long    float64
	Short   float64
	PnL     float64
}

type AppendBalance struct{}

// CacheSet writes one namespaced field. FromFill replaces Value with the
// fill time (unix ms) of the preceding submission.
type CacheSet struct {
	Namespace Namespace
	Field     string
	Value     float64
	FromFill  bool
}

// Settle waits for the exchange history to reflect a fill.
type Settle struct{}

type SyncHistory struct{}

type Notify struct {
	Title string
	Body  string
}

func (SubmitOpen) command()       {}
func (SubmitClose) command()      {}
func (SubmitRebalance) command()  {}
func (SubmitConversion) command() {}
func (AppendTrade) command()      {}
func (AppendBalance) command()    {}
func (CacheSet) command()         {}
func (Settle) command()           {}
func (SyncHistory) command()      {}
func (Notify) command()           {}

func cacheSet(field string, value float64) CacheSet {
	return CacheSet{Namespace: NamespaceCache, Field: field, Value: value}
}

func indicatorSet(field string, value float64) CacheSet {
	return CacheSet{Namespace: NamespaceIndicator, Field: field, Value: value}
}
