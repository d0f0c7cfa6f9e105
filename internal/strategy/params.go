package strategy

import "hedge-bot/internal/config"

// Params is the immutable per-instance configuration the transitions need.
type Params struct {
	Account      string
	Pair         string
	Ammo         float64
	LongPct      float64
	ShortPct     float64
	MinOrderSize float64
	FeeRate      float64
	Routing      Routing

	// GateHigh and GateLow are carried for the external signal source, which
	// reads them through Engine.Params. Transitions never consult them.
	GateHigh float64
	GateLow  float64
}

type Routing struct {
	ProfitThreshold float64
	LossThreshold   float64
	LossOverConvert float64
	ProfitInclusive bool
	LossInclusive   bool
}

func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Account:      cfg.Account.ID,
		Pair:         cfg.Account.Pair,
		Ammo:         cfg.Account.AmmoFraction,
		LongPct:      cfg.Account.LongPct,
		ShortPct:     cfg.Account.ShortPct,
		MinOrderSize: cfg.Exchange.MinOrderSize,
		FeeRate:      cfg.Exchange.FeeRate,
		Routing: Routing{
			ProfitThreshold: cfg.Routing.ProfitThreshold,
			LossThreshold:   cfg.Routing.LossThreshold,
			LossOverConvert: cfg.Routing.LossOverConvert,
			ProfitInclusive: cfg.Routing.ProfitInclusive,
			LossInclusive:   cfg.Routing.LossInclusive,
		},
		GateHigh: cfg.Account.Gate.High,
		GateLow:  cfg.Account.Gate.Low,
	}
}
