package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "hedge_bot"

type Prometheus struct {
	Metrics *Metrics

	registry         *prometheus.Registry
	ordersPlaced     prometheus.Counter
	ordersFailed     prometheus.Counter
	refreshFailed    prometheus.Counter
	ledgerFailed     prometheus.Counter
	conversionFailed prometheus.Counter
	jobFailed        prometheus.Counter
	pnl              prometheus.Gauge
	roe              prometheus.Gauge
	balanceRatio     prometheus.Gauge
	inTrade          prometheus.Gauge
	ledgerPending    prometheus.Gauge
}

// NewPrometheus registers one instance's series, labelled by account and pair.
func NewPrometheus(account, pair string) *Prometheus {
	labels := prometheus.Labels{"account": account, "pair": pair}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   promNamespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   promNamespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	p := &Prometheus{
		registry:         prometheus.NewRegistry(),
		ordersPlaced:     counter("orders_placed_total", "Total number of orders placed."),
		ordersFailed:     counter("orders_failed_total", "Total number of rejected or failed order submissions."),
		refreshFailed:    counter("refresh_failed_total", "Total number of collaborator reads that failed during refresh."),
		ledgerFailed:     counter("ledger_failed_total", "Total number of ledger appends that failed and were queued."),
		conversionFailed: counter("conversion_failed_total", "Total number of post-close conversions that failed."),
		jobFailed:        counter("job_failed_total", "Total number of scheduled job failures."),
		pnl:              gauge("pnl", "Fee-netted unrealized PnL of the open position."),
		roe:              gauge("roe_percent", "PnL as a percentage of account equity."),
		balanceRatio:     gauge("balance_ratio", "Fraction of equity held in stable assets."),
		inTrade:          gauge("in_trade", "1 while a hedged position is open."),
		ledgerPending:    gauge("ledger_pending", "Ledger rows queued for retry."),
	}
	p.registry.MustRegister(
		p.ordersPlaced, p.ordersFailed, p.refreshFailed, p.ledgerFailed, p.conversionFailed, p.jobFailed,
		p.pnl, p.roe, p.balanceRatio, p.inTrade, p.ledgerPending,
	)
	p.Metrics = &Metrics{
		OrdersPlaced:     p.ordersPlaced,
		OrdersFailed:     p.ordersFailed,
		RefreshFailed:    p.refreshFailed,
		LedgerFailed:     p.ledgerFailed,
		ConversionFailed: p.conversionFailed,
		JobFailed:        p.jobFailed,
		PnL:              p.pnl,
		ROE:              p.roe,
		BalanceRatio:     p.balanceRatio,
		InTrade:          p.inTrade,
		LedgerPending:    p.ledgerPending,
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
