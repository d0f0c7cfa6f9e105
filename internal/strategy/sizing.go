package strategy

import "github.com/shopspring/decimal"

const (
	MinBalanceRatio = 0.1
	MaxBalanceRatio = 1.0

	// roundTripFees counts the open and close fee on each leg.
	roundTripFees = 2
)

// Round rounds half away from zero at the given number of decimal places.
func Round(value float64, places int32) float64 {
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}

// Capital is the base-asset amount available to a new position.
func Capital(baseBalance, ammo float64) float64 {
	return decimal.NewFromFloat(baseBalance).Round(4).
		Mul(decimal.NewFromFloat(ammo)).InexactFloat64()
}

// Legs splits capital into long and short sizes at exchange precision.
func Legs(capital, longPct, shortPct float64) (float64, float64) {
	c := decimal.NewFromFloat(capital)
	long := c.Mul(decimal.NewFromFloat(longPct)).Round(3)
	short := c.Mul(decimal.NewFromFloat(shortPct)).Round(3)
	return long.InexactFloat64(), short.InexactFloat64()
}

// GainCalc nets the unrealized PnL of both legs against the open and close
// fees of both legs at the current price.
func GainCalc(shortUnrealized, longUnrealized, shortAmount, longAmount, price, feeRate float64) float64 {
	fees := roundTripFees * feeRate * (shortAmount + longAmount) * price
	return shortUnrealized + longUnrealized - fees
}

func ROE(pnl, equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	return Round(pnl/equity*100, 3)
}

func ClampRatio(r float64) float64 {
	if r < MinBalanceRatio {
		return MinBalanceRatio
	}
	if r > MaxBalanceRatio {
		return MaxBalanceRatio
	}
	return r
}

// NewBalance applies exchange-display rounding and derives the stable ratio.
func NewBalance(base float64, stable map[string]float64, equity float64) Balance {
	b := Balance{
		Base:   Round(base, 5),
		Stable: make(map[string]float64, len(stable)),
		Equity: Round(equity, 2),
	}
	for asset, v := range stable {
		b.Stable[asset] = Round(v, 2)
	}
	if b.Equity > 0 {
		b.Ratio = Round(b.StableTotal()/b.Equity, 3)
	}
	return b
}

// RatchetSell moves the sell trail up only.
func RatchetSell(current, price float64) float64 {
	if current == 0 || price > current {
		return price
	}
	return current
}

// RatchetBuy moves the buy trail down only.
func RatchetBuy(current, price float64) float64 {
	if current == 0 || price < current {
		return price
	}
	return current
}
