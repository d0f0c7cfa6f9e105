package exchange

import (
	"context"
	"time"

	"hedge-bot/internal/market"
)

// Gateway is everything the engine needs from the venue. Reads may be
// retried by Retrying; submissions are attempted exactly once.
type Gateway interface {
	Account(ctx context.Context) (Account, error)
	Position(ctx context.Context, pair string) (Position, error)
	Klines(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error)
	IncomeHistory(ctx context.Context, start time.Time, limit int) ([]Income, error)

	SubmitOpen(ctx context.Context, order OpenOrder) (Report, error)
	SubmitClose(ctx context.Context, order CloseOrder) (Report, error)
	SubmitRebalance(ctx context.Context, order RebalanceOrder) (Report, error)
	SubmitConversion(ctx context.Context, order ConversionOrder) (Report, error)
}

type Account struct {
	// WalletBalances is keyed by asset symbol.
	WalletBalances     map[string]float64
	TotalMarginBalance float64
}

type Leg struct {
	Amount     float64
	EntryPrice float64
	Unrealized float64
}

// Position is a hedge-mode position. Short.Amount is reported as a positive size.
type Position struct {
	Pair  string
	Long  Leg
	Short Leg
}

type Income struct {
	Symbol  string
	Type    string
	Amount  float64
	Asset   string
	Info    string
	Time    time.Time
	TranID  int64
	TradeID string
}

// IsTransfer reports whether the record moves funds rather than trades them.
func (i Income) IsTransfer() bool {
	return i.Type == "TRANSFER" || i.Type == "INTERNAL_TRANSFER"
}

type OpenOrder struct {
	Pair     string
	Long     float64
	Short    float64
	Price    float64
	ClientID string
}

type CloseOrder struct {
	Pair       string
	Long       float64
	Short      float64
	EntryPrice float64
	ClientID   string
}

type Direction string

const (
	ToBase   Direction = "to_base"
	ToStable Direction = "to_stable"
)

type ConversionOrder struct {
	Pair        string
	BaseAsset   string
	StableAsset string
	Direction   Direction
	QuoteAmount float64
	Price       float64
	ClientID    string
}

type RebalanceOrder struct {
	Pair         string
	BaseAsset    string
	StableAsset  string
	TargetRatio  float64
	CurrentRatio float64
	Equity       float64
	Price        float64
	ClientID     string
}

type Report struct {
	ClientID      string
	OrderIDs      []string
	Price         float64
	Quantity      float64
	QuoteQuantity float64
	Time          time.Time
}
