package exec

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"hedge-bot/internal/exchange"
	"hedge-bot/internal/metrics"
	"hedge-bot/internal/state"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

// ReportPrefix prefixes remembered order reports in the state store.
const ReportPrefix = "cloid:"

// Submitter is the write half of exchange.Gateway.
type Submitter interface {
	SubmitOpen(ctx context.Context, order exchange.OpenOrder) (exchange.Report, error)
	SubmitClose(ctx context.Context, order exchange.CloseOrder) (exchange.Report, error)
	SubmitRebalance(ctx context.Context, order exchange.RebalanceOrder) (exchange.Report, error)
	SubmitConversion(ctx context.Context, order exchange.ConversionOrder) (exchange.Report, error)
}

// Executor submits orders at most once per client order id. Accepted
// reports are remembered in memory and in the state store, so a repeated
// call with the same id returns the original report instead of trading again.
type Executor struct {
	venue   Submitter
	store   state.Store
	metrics *metrics.Metrics
	log     *zap.Logger

	mu    sync.Mutex
	cache map[string]exchange.Report
}

func New(venue Submitter, store state.Store, m *metrics.Metrics, log *zap.Logger) *Executor {
	if m == nil {
		m = metrics.NewNoop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		venue:   venue,
		store:   store,
		metrics: m,
		log:     log,
		cache:   make(map[string]exchange.Report),
	}
}

// NewClientOrderID returns a short unique id that fits the venue's client
// order id limit with room for a leg suffix.
func NewClientOrderID(prefix string) string {
	id := uuid.New()
	return prefix + base62.EncodeToString(id[:])
}

// IntentClientID derives a stable id from parts, so the same decision made
// again produces the same client order id.
func IntentClientID(prefix string, parts ...string) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(parts, "|")))
	return prefix + base62.EncodeToString(id[:])
}

func (e *Executor) Open(ctx context.Context, order exchange.OpenOrder) (exchange.Report, error) {
	order.ClientID = ensureID(order.ClientID, "hbo")
	return e.submit(ctx, "open", order.ClientID, func() (exchange.Report, error) {
		return e.venue.SubmitOpen(ctx, order)
	})
}

func (e *Executor) Close(ctx context.Context, order exchange.CloseOrder) (exchange.Report, error) {
	order.ClientID = ensureID(order.ClientID, "hbc")
	return e.submit(ctx, "close", order.ClientID, func() (exchange.Report, error) {
		return e.venue.SubmitClose(ctx, order)
	})
}

func (e *Executor) Rebalance(ctx context.Context, order exchange.RebalanceOrder) (exchange.Report, error) {
	order.ClientID = ensureID(order.ClientID, "hbr")
	return e.submit(ctx, "rebalance", order.ClientID, func() (exchange.Report, error) {
		return e.venue.SubmitRebalance(ctx, order)
	})
}

func (e *Executor) Convert(ctx context.Context, order exchange.ConversionOrder) (exchange.Report, error) {
	order.ClientID = ensureID(order.ClientID, "hbx")
	return e.submit(ctx, "convert", order.ClientID, func() (exchange.Report, error) {
		return e.venue.SubmitConversion(ctx, order)
	})
}

// Forget drops the stored report for clientID once the caller has committed
// the outcome and will not replay it.
func (e *Executor) Forget(ctx context.Context, clientID string) error {
	cacheKey := ReportPrefix + clientID
	e.mu.Lock()
	delete(e.cache, cacheKey)
	e.mu.Unlock()
	if e.store == nil {
		return nil
	}
	return e.store.Delete(ctx, cacheKey)
}

func ensureID(id, prefix string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return NewClientOrderID(prefix)
}

func (e *Executor) submit(ctx context.Context, op, clientID string, place func() (exchange.Report, error)) (exchange.Report, error) {
	cacheKey := ReportPrefix + clientID
	if rep, ok, err := e.lookup(ctx, cacheKey); err != nil {
		return exchange.Report{}, err
	} else if ok {
		e.log.Info("order already submitted", zap.String("op", op), zap.String("client_id", clientID))
		return rep, nil
	}

	rep, err := place()
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return rep, err
	}
	e.metrics.OrdersPlaced.Inc()
	if rep.ClientID == "" {
		rep.ClientID = clientID
	}
	if e.store != nil {
		payload, err := json.Marshal(rep)
		if err == nil {
			err = e.store.Set(ctx, cacheKey, string(payload))
		}
		if err != nil {
			e.log.Warn("failed to persist order report", zap.String("client_id", clientID), zap.Error(err))
		}
	}
	e.mu.Lock()
	e.cache[cacheKey] = rep
	e.mu.Unlock()
	return rep, nil
}

func (e *Executor) lookup(ctx context.Context, cacheKey string) (exchange.Report, bool, error) {
	e.mu.Lock()
	rep, ok := e.cache[cacheKey]
	e.mu.Unlock()
	if ok {
		return rep, true, nil
	}
	if e.store == nil {
		return exchange.Report{}, false, nil
	}
	raw, ok, err := e.store.Get(ctx, cacheKey)
	if err != nil || !ok {
		return exchange.Report{}, false, err
	}
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		e.log.Warn("discarding unreadable order report", zap.String("key", cacheKey), zap.Error(err))
		return exchange.Report{}, false, nil
	}
	e.mu.Lock()
	e.cache[cacheKey] = rep
	e.mu.Unlock()
	return rep, true, nil
}
