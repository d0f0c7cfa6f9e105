package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	OrdersPlaced     Counter
	OrdersFailed     Counter
	RefreshFailed    Counter
	LedgerFailed     Counter
	ConversionFailed Counter
	JobFailed        Counter

	PnL           Gauge
	ROE           Gauge
	BalanceRatio  Gauge
	InTrade       Gauge
	LedgerPending Gauge
}

type noop struct{}

func (noop) Inc()        {}
func (noop) Set(float64) {}

func NewNoop() *Metrics {
	n := noop{}
	return &Metrics{
		OrdersPlaced:     n,
		OrdersFailed:     n,
		RefreshFailed:    n,
		LedgerFailed:     n,
		ConversionFailed: n,
		JobFailed:        n,
		PnL:              n,
		ROE:              n,
		BalanceRatio:     n,
		InTrade:          n,
		LedgerPending:    n,
	}
}
