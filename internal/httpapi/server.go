package httpapi

import (
	"context"
	"net/http"
	"time"

	"hedge-bot/internal/market"
	"hedge-bot/internal/strategy"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const aliveTimeout = 2 * time.Second

// Source is the read-only view of one engine.
type Source interface {
	Snapshot() strategy.Snapshot
	Alive(ctx context.Context) (bool, error)
}

// Schedule reports when each maintenance job runs next.
type Schedule interface {
	NextRuns() map[string]time.Time
}

type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Status struct {
	State        string  `json:"state"`
	Cycle        uint64  `json:"cycle"`
	At           string  `json:"at,omitempty"`
	Price        float64 `json:"price"`
	LongAmount   float64 `json:"long_amount"`
	ShortAmount  float64 `json:"short_amount"`
	EntryPrice   float64 `json:"entry_price"`
	PnL          float64 `json:"pnl"`
	ROE          float64 `json:"roe"`
	BaseBalance  float64 `json:"base_balance"`
	StableTotal  float64 `json:"stable_total"`
	Equity       float64 `json:"equity"`
	BalanceRatio float64 `json:"balance_ratio"`
	TrailSell    float64 `json:"trail_sell"`
	TrailBuy     float64 `json:"trail_buy"`

	Closes   []float64         `json:"closes,omitempty"`
	NextRuns map[string]string `json:"next_runs,omitempty"`
}

// New builds the ops router. jobs and metrics may be nil; without metrics
// /metrics is not registered.
func New(src Source, jobs Schedule, metrics http.Handler, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), aliveTimeout)
		defer cancel()
		alive, err := src.Alive(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, Response{Error: err.Error()})
			return
		}
		status := http.StatusOK
		if !alive {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, Response{Success: alive, Data: gin.H{"alive": alive}})
	})
	r.GET("/status", func(c *gin.Context) {
		st := statusOf(src.Snapshot())
		if jobs != nil {
			runs := jobs.NextRuns()
			st.NextRuns = make(map[string]string, len(runs))
			for name, at := range runs {
				st.NextRuns[name] = at.UTC().Format(time.RFC3339)
			}
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: st})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	return r
}

func statusOf(s strategy.Snapshot) Status {
	st := Status{
		State:        string(s.State),
		Cycle:        s.Cycle,
		Price:        s.Price,
		LongAmount:   s.Position.LongAmount,
		ShortAmount:  s.Position.ShortAmount,
		EntryPrice:   s.Position.EntryPrice,
		PnL:          s.PnL.PnL,
		ROE:          s.PnL.ROE,
		BaseBalance:  s.Balance.Base,
		StableTotal:  s.Balance.StableTotal(),
		Equity:       s.Balance.Equity,
		BalanceRatio: s.Balance.Ratio,
		TrailSell:    s.Trail.SellPrice,
		TrailBuy:     s.Trail.BuyPrice,
	}
	if len(s.Candles) > 0 {
		st.Closes = market.Closes(s.Candles)
	}
	if !s.At.IsZero() {
		st.At = s.At.UTC().Format(time.RFC3339)
	}
	return st
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		id, _ := c.Get("request_id")
		fields := []zap.Field{
			zap.Any("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("http request failed", fields...)
			return
		}
		log.Debug("http request", fields...)
	}
}
