package ledger

import (
	"strings"
	"time"

	"hedge-bot/internal/config"
)

type columnKind int

const (
	kindTime columnKind = iota
	kindText
	kindReal
	kindInt
	kindBool
)

type Column struct {
	Name   string
	kind   columnKind
	unique bool
}

// Table is a named append-only table with a fixed column set. Rows passed
// to Append must return values in column order.
type Table struct {
	Name    string
	Columns []Column
}

type Row interface {
	Values() []any
}

// Tables are the five per-account ledgers.
type Tables struct {
	Trades       Table
	Balances     Table
	Transactions Table
	Transfers    Table
	PnL          Table
}

func (t Tables) All() []Table {
	return []Table{t.Trades, t.Balances, t.Transactions, t.Transfers, t.PnL}
}

func TablesFor(acct config.AccountConfig) Tables {
	return Tables{
		Trades:       Table{Name: acct.Table("trades"), Columns: tradeColumns},
		Balances:     Table{Name: acct.Table("balanceInfo"), Columns: balanceColumns},
		Transactions: Table{Name: acct.Table("transHist", "new"), Columns: transactionColumns},
		Transfers:    Table{Name: acct.Table("transferHist"), Columns: transferColumns},
		PnL:          Table{Name: acct.Table("pnlInfo", strings.ToLower(acct.Pair)), Columns: pnlColumns},
	}
}

var tradeColumns = []Column{
	{Name: "ts", kind: kindTime},
	{Name: "account", kind: kindText},
	{Name: "pair", kind: kindText},
	{Name: "kind", kind: kindText},
	{Name: "side", kind: kindText},
	{Name: "signal_1", kind: kindInt},
	{Name: "signal_2", kind: kindInt},
	{Name: "in_trade", kind: kindBool},
	{Name: "manual", kind: kindBool},
	{Name: "price", kind: kindReal},
	{Name: "long_amount", kind: kindReal},
	{Name: "short_amount", kind: kindReal},
	{Name: "pnl", kind: kindReal},
	{Name: "order_ids", kind: kindText},
}

type TradeEvent struct {
	Time        time.Time
	Account     string
	Pair        string
	Kind        string
	Side        string
	Signal1     int
	Signal2     int
	InTrade     bool
	Manual      bool
	Price       float64
	LongAmount  float64
	ShortAmount float64
	PnL         float64
	OrderIDs    []string
}

func (r TradeEvent) Values() []any {
	return []any{
		r.Time.UnixMilli(), r.Account, r.Pair, r.Kind, r.Side, r.Signal1, r.Signal2,
		r.InTrade, r.Manual, r.Price, r.LongAmount, r.ShortAmount, r.PnL,
		strings.Join(r.OrderIDs, ","),
	}
}

var balanceColumns = []Column{
	{Name: "ts", kind: kindTime},
	{Name: "account", kind: kindText},
	{Name: "pair", kind: kindText},
	{Name: "price", kind: kindReal},
	{Name: "base_balance", kind: kindReal},
	{Name: "stable_balance", kind: kindReal},
	{Name: "equity", kind: kindReal},
	{Name: "ratio", kind: kindReal},
}

type BalanceInfo struct {
	Time          time.Time
	Account       string
	Pair          string
	Price         float64
	BaseBalance   float64
	StableBalance float64
	Equity        float64
	Ratio         float64
}

func (r BalanceInfo) Values() []any {
	return []any{
		r.Time.UnixMilli(), r.Account, r.Pair, r.Price,
		r.BaseBalance, r.StableBalance, r.Equity, r.Ratio,
	}
}

var transactionColumns = []Column{
	{Name: "ts", kind: kindTime},
	{Name: "account", kind: kindText},
	{Name: "symbol", kind: kindText},
	{Name: "income_type", kind: kindText},
	{Name: "income", kind: kindReal},
	{Name: "asset", kind: kindText},
	{Name: "info", kind: kindText},
	{Name: "tran_id", kind: kindInt, unique: true},
	{Name: "trade_id", kind: kindText},
}

// Transaction is a non-transfer income record (realized pnl, fees, funding).
type Transaction struct {
	Time    time.Time
	Account string
	Symbol  string
	Type    string
	Amount  float64
	Asset   string
	Info    string
	TranID  int64
	TradeID string
}

func (r Transaction) Values() []any {
	return []any{
		r.Time.UnixMilli(), r.Account, r.Symbol, r.Type, r.Amount,
		r.Asset, r.Info, r.TranID, r.TradeID,
	}
}

var transferColumns = []Column{
	{Name: "ts", kind: kindTime},
	{Name: "account", kind: kindText},
	{Name: "income_type", kind: kindText},
	{Name: "amount", kind: kindReal},
	{Name: "asset", kind: kindText},
	{Name: "info", kind: kindText},
	{Name: "tran_id", kind: kindInt, unique: true},
}

type Transfer struct {
	Time    time.Time
	Account string
	Type    string
	Amount  float64
	Asset   string
	Info    string
	TranID  int64
}

func (r Transfer) Values() []any {
	return []any{r.Time.UnixMilli(), r.Account, r.Type, r.Amount, r.Asset, r.Info, r.TranID}
}

var pnlColumns = []Column{
	{Name: "ts", kind: kindTime},
	{Name: "account", kind: kindText},
	{Name: "pair", kind: kindText},
	{Name: "long_amount", kind: kindReal},
	{Name: "short_amount", kind: kindReal},
	{Name: "long_pct", kind: kindReal},
	{Name: "short_pct", kind: kindReal},
	{Name: "entry_price", kind: kindReal},
	{Name: "price", kind: kindReal},
	{Name: "pnl", kind: kindReal},
	{Name: "roe", kind: kindReal},
}

type PnLSample struct {
	Time        time.Time
	Account     string
	Pair        string
	LongAmount  float64
	ShortAmount float64
	LongPct     float64
	ShortPct    float64
	EntryPrice  float64
	Price       float64
	PnL         float64
	ROE         float64
}

func (r PnLSample) Values() []any {
	return []any{
		r.Time.UnixMilli(), r.Account, r.Pair, r.LongAmount, r.ShortAmount,
		r.LongPct, r.ShortPct, r.EntryPrice, r.Price, r.PnL, r.ROE,
	}
}
