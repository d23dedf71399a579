package diplogic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sizingInput(dipPct float64) SizingInput {
	return SizingInput{
		DipPct:               dipPct,
		CurrentPrice:         100.0,
		Equity:               32000.0,
		CurrentPositionValue: 0,
		BasePct:              0.025,
		MaxPct:               0.15,
		DipMultiplier:        1.75,
		VolatilityFactor:     1.0,
		IntradayMultiplier:   1.0,
		Fractional:           true,
	}
}

func TestCalculateShares_SixPercentDip(t *testing.T) {
	shares := CalculateShares(sizingInput(-0.06))

	// 32000 * 0.025 * (0.06/0.03) * 1.75 = $2,800 at $100/share.
	assert.InDelta(t, 28.0, shares, 0.01)
}

func TestCalculateShares_CappedAtMaxPct(t *testing.T) {
	shares := CalculateShares(sizingInput(-0.12))

	// Uncapped target would be $5,600; the 15% cap holds it to $4,800.
	assert.InDelta(t, 48.0, shares, 0.01)
}

func TestCalculateShares_MonotonicInDipDepth(t *testing.T) {
	prev := 0.0
	for _, dip := range []float64{-0.03, -0.05, -0.07, -0.10, -0.15, -0.25} {
		shares := CalculateShares(sizingInput(dip))
		assert.GreaterOrEqual(t, shares, prev, "shares must not shrink as the dip deepens (dip %.2f)", dip)
		prev = shares
	}
}

func TestCalculateShares_TargetNeverExceedsMax(t *testing.T) {
	for _, dip := range []float64{-0.01, -0.06, -0.20, -0.45} {
		in := sizingInput(dip)
		shares := CalculateShares(in)
		assert.LessOrEqual(t, shares*in.CurrentPrice, in.Equity*in.MaxPct+0.01,
			"order value must respect the equity cap (dip %.2f)", dip)
	}
}

func TestCalculateShares_VolatilityAdjustment(t *testing.T) {
	normal := CalculateShares(sizingInput(-0.06))

	highVol := sizingInput(-0.06)
	highVol.VolatilityFactor = 1.5
	assert.Less(t, CalculateShares(highVol), normal, "high volatility shrinks the position")

	lowVol := sizingInput(-0.06)
	lowVol.VolatilityFactor = 0.7
	assert.Greater(t, CalculateShares(lowVol), normal, "low volatility grows the position")
}

func TestCalculateShares_VolatilityClamp(t *testing.T) {
	extreme := sizingInput(-0.06)
	extreme.VolatilityFactor = 3.0

	normal := CalculateShares(sizingInput(-0.06))

	// 3.0 clamps to 2.0: exactly half the shares of the neutral case.
	assert.InDelta(t, normal*0.5, CalculateShares(extreme), 0.01)

	tiny := sizingInput(-0.06)
	tiny.VolatilityFactor = 0.1
	doubled := CalculateShares(tiny)
	assert.InDelta(t, normal*2.0, doubled, 0.01, "0.1 clamps to 0.5")

	unset := sizingInput(-0.06)
	unset.VolatilityFactor = 0
	assert.InDelta(t, normal, CalculateShares(unset), 0.01, "non-positive factor is neutral")
}

func TestCalculateShares_IntradayMultiplier(t *testing.T) {
	boosted := sizingInput(-0.06)
	boosted.IntradayMultiplier = 1.5

	normal := CalculateShares(sizingInput(-0.06))
	assert.InDelta(t, normal*1.5, CalculateShares(boosted), 0.01)
}

func TestCalculateShares_TopUpOnly(t *testing.T) {
	in := sizingInput(-0.06)
	in.CurrentPositionValue = 2800.0

	// Target equals the existing position: nothing to add.
	assert.Zero(t, CalculateShares(in))

	in.CurrentPositionValue = 10000.0
	assert.Zero(t, CalculateShares(in), "never shrinks an existing position")
}

func TestCalculateShares_MinimumOrderFloor(t *testing.T) {
	in := sizingInput(-0.06)
	in.CurrentPositionValue = 2750.0

	// Only $50 left to deploy, under the $100 floor.
	assert.Zero(t, CalculateShares(in))
}

func TestCalculateShares_WholeShares(t *testing.T) {
	in := sizingInput(-0.06)
	in.Fractional = false
	in.CurrentPrice = 97.0

	shares := CalculateShares(in)
	assert.Equal(t, shares, float64(int(shares)), "non-fractional sizing truncates")
}

func TestCalculateLimitPrice(t *testing.T) {
	assert.Equal(t, 99.0, CalculateLimitPrice(100.0, 0.01))
	assert.Equal(t, 122.22, CalculateLimitPrice(123.45, 0.01))
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,234.50", FormatMoney(1234.5))
	assert.Equal(t, "$32,000.00", FormatMoney(32000))
	assert.Equal(t, "$-15,000.00", FormatMoney(-15000))
	assert.Equal(t, "$0.00", FormatMoney(0))
	assert.Equal(t, "$1,234,567.89", FormatMoney(1234567.89))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "5.25%", FormatPercent(0.0525))
	assert.Equal(t, "-4.00%", FormatPercent(-0.04))
}
