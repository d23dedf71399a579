// Package diplogic holds the pure decision functions of the dip buyer:
// dip detection, position sizing, admission checks, opportunity scoring and
// limit pricing. No I/O, no side effects; everything here is unit-testable
// with literal inputs.
package diplogic

import "bigdipper/pkg/broker"

// CalculateDip measures how far currentPrice sits below the highest close of
// the most recent lookback bars. It returns the dip as a negative fraction
// (-0.05 for a 5% dip) and ok=true only when a dip exists. ok=false covers
// insufficient history, a non-positive reference high, and a price at or
// above the high; callers must treat that as "does not qualify", not as zero.
func CalculateDip(currentPrice float64, bars []broker.Bar, lookback int) (float64, bool) {
	if lookback <= 0 || len(bars) < lookback {
		return 0, false
	}

	high := 0.0
	for _, bar := range bars[len(bars)-lookback:] {
		if bar.Close > high {
			high = bar.Close
		}
	}
	if high <= 0 {
		return 0, false
	}

	dip := (currentPrice - high) / high
	if dip >= 0 {
		return 0, false
	}
	return dip, true
}

// CalculateIntradayDrop returns the most recent bar's close-to-open decline
// as a negative fraction. This captures same-day weakness independent of the
// multi-day dip. ok=false when the bar opened at or below zero or closed flat
// or up.
func CalculateIntradayDrop(bars []broker.Bar) (float64, bool) {
	if len(bars) == 0 {
		return 0, false
	}

	last := bars[len(bars)-1]
	if last.Open <= 0 {
		return 0, false
	}

	drop := (last.Close - last.Open) / last.Open
	if drop >= 0 {
		return 0, false
	}
	return drop, true
}

// OpportunityScore grades a dip relative to the symbol's own threshold: a
// dip twice its threshold scores 2.0. Relative scoring rewards how unusual
// the dip is for that instrument, not its absolute size.
func OpportunityScore(dipPct, threshold float64) float64 {
	if threshold <= 0 {
		return 1.0
	}
	return abs(dipPct) / threshold
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
