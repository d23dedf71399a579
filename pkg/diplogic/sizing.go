package diplogic

import "github.com/shopspring/decimal"

// minOrderValue is the smallest order worth placing, in dollars.
const minOrderValue = 100.0

// baselineDip normalizes dip severity: a 3% dip has a dip ratio of 1.0.
const baselineDip = 0.03

// SizingInput carries everything CalculateShares needs. DipPct is negative.
// VolatilityFactor is the symbol's recent average daily range relative to a
// 2% baseline; IntradayMultiplier is 1.0 unless an intraday drop boost
// applies.
type SizingInput struct {
	DipPct               float64
	CurrentPrice         float64
	Equity               float64
	CurrentPositionValue float64
	BasePct              float64
	MaxPct               float64
	DipMultiplier        float64
	VolatilityFactor     float64
	IntradayMultiplier   float64
	Fractional           bool
}

// CalculateShares sizes a buy: bigger dips get bigger positions, more
// volatile names get smaller ones for the same dip depth. The target value
// is capped at Equity*MaxPct and only tops up toward the target; an existing
// position is never shrunk. Returns zero when the additional value falls
// under the minimum order floor.
func CalculateShares(in SizingInput) float64 {
	dipRatio := abs(in.DipPct) / baselineDip
	sizeMultiplier := dipRatio * in.DipMultiplier

	intraday := in.IntradayMultiplier
	if intraday <= 0 {
		intraday = 1.0
	}
	sizeMultiplier *= intraday

	// Clamp the volatility factor to [0.5, 2.0]; a non-positive input means
	// no volatility information and is treated as neutral.
	vol := in.VolatilityFactor
	if vol <= 0 {
		vol = 1.0
	} else if vol < 0.5 {
		vol = 0.5
	} else if vol > 2.0 {
		vol = 2.0
	}
	adjusted := sizeMultiplier / vol

	targetValue := in.Equity * in.BasePct * adjusted
	maxValue := in.Equity * in.MaxPct
	if targetValue > maxValue {
		targetValue = maxValue
	}

	additionalValue := targetValue - in.CurrentPositionValue
	if additionalValue < minOrderValue {
		return 0
	}

	shares := additionalValue / in.CurrentPrice
	if !in.Fractional {
		return float64(int(shares))
	}
	return shares
}

// CalculateLimitPrice prices a buy limit below the ask to improve fill
// probability, rounded to cents with banker's rounding: ask 100.00 with a 1%
// offset prices at 99.00.
func CalculateLimitPrice(askPrice, offsetPct float64) float64 {
	limit := decimal.NewFromFloat(askPrice * (1 - offsetPct))
	return limit.RoundBank(2).InexactFloat64()
}
